package dsl

import "github.com/aretw0/chatflow/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

// Set stores a raw configuration value.
func (n *NodeBuilder) Set(key string, value any) *NodeBuilder {
	n.node.Data[key] = value
	return n
}

// SaveTo specifies the variable the answer is stored in.
func (n *NodeBuilder) SaveTo(variable string) *NodeBuilder {
	return n.Set("variable", variable)
}

// Placeholder sets the input hint of a question.
func (n *NodeBuilder) Placeholder(text string) *NodeBuilder {
	return n.Set("placeholder", text)
}

// At positions the node on the editor canvas.
func (n *NodeBuilder) At(x, y float64) *NodeBuilder {
	n.node.Position = &domain.Position{X: x, Y: y}
	return n
}

// Go adds a plain edge to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.builder.connect(n.node.ID, target, "")
	return n
}

// OnOption routes the i-th option (zero-based) to the target node.
func (n *NodeBuilder) OnOption(i int, target string) *NodeBuilder {
	n.builder.connect(n.node.ID, target, optionHandle(i))
	return n
}

// Yes routes a condition that holds to the target node.
func (n *NodeBuilder) Yes(target string) *NodeBuilder {
	n.builder.connect(n.node.ID, target, domain.HandleYes)
	return n
}

// No routes a condition that does not hold to the target node.
func (n *NodeBuilder) No(target string) *NodeBuilder {
	n.builder.connect(n.node.ID, target, domain.HandleNo)
	return n
}

// Build returns the underlying domain.Node.
func (n *NodeBuilder) Build() domain.Node {
	return n.node
}
