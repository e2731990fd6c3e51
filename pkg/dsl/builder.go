package dsl

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
)

// Builder manages the flow construction.
type Builder struct {
	flow  domain.Flow
	nodes []*NodeBuilder
	index map[string]*NodeBuilder
	edges []domain.Edge
}

// New creates a new flow builder.
func New(id string) *Builder {
	return &Builder{
		flow:  domain.Flow{ID: id},
		index: make(map[string]*NodeBuilder),
	}
}

// Owner sets the owner of the flow.
func (b *Builder) Owner(ownerID string) *Builder {
	b.flow.OwnerID = ownerID
	return b
}

// Name sets the display name of the flow.
func (b *Builder) Name(name string) *Builder {
	b.flow.Name = name
	return b
}

// Add creates a new node in the flow.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string, nodeType domain.NodeType) *NodeBuilder {
	if nb, ok := b.index[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{ID: id, Type: nodeType, Data: map[string]any{}},
		builder: b,
	}
	b.index[id] = nb
	b.nodes = append(b.nodes, nb)
	return nb
}

// Text adds a message node.
func (b *Builder) Text(id, label string) *NodeBuilder {
	return b.Add(id, domain.NodeTypeText).Set("label", label)
}

// Options adds a node offering a choice between options.
func (b *Builder) Options(id, label string, options ...string) *NodeBuilder {
	return b.Add(id, domain.NodeTypeOptions).Set("label", label).Set("options", options)
}

// Form adds a form node.
func (b *Builder) Form(id, label string, fields ...domain.FormField) *NodeBuilder {
	raw := make([]map[string]any, 0, len(fields))
	for _, f := range fields {
		m := map[string]any{"key": f.Key, "label": f.Label, "required": f.Required}
		if f.FieldType != "" {
			m["type"] = f.FieldType
		}
		if len(f.Options) > 0 {
			m["options"] = f.Options
		}
		raw = append(raw, m)
	}
	return b.Add(id, domain.NodeTypeForm).Set("label", label).Set("fields", raw)
}

// Field describes a form field.
func Field(key, label string, required bool) domain.FormField {
	return domain.FormField{Key: key, Label: label, Required: required}
}

// Input adds a free-text question.
func (b *Builder) Input(id, label string) *NodeBuilder {
	return b.Add(id, domain.NodeTypeSingleInput).Set("label", label)
}

// AI adds a question answered by an AI provider.
func (b *Builder) AI(id, label string, provider domain.ProviderConfig) *NodeBuilder {
	nb := b.Add(id, domain.NodeTypeAIInput).Set("label", label)
	if !provider.IsZero() {
		cfg := map[string]any{"provider": provider.Name}
		if provider.APIKey != "" {
			cfg["apiKey"] = provider.APIKey
		}
		if provider.Model != "" {
			cfg["model"] = provider.Model
		}
		if provider.BaseURL != "" {
			cfg["baseUrl"] = provider.BaseURL
		}
		if provider.SystemPrompt != "" {
			cfg["systemPrompt"] = provider.SystemPrompt
		}
		if provider.Temperature != 0 {
			cfg["temperature"] = provider.Temperature
		}
		nb.Set("providerConfig", cfg)
	}
	return nb
}

// Condition adds a node branching on an expression over the session variables.
func (b *Builder) Condition(id, expression string) *NodeBuilder {
	return b.Add(id, domain.NodeTypeCondition).Set("expression", expression)
}

// Webhook adds a node calling url.
func (b *Builder) Webhook(id, method, url string) *NodeBuilder {
	return b.Add(id, domain.NodeTypeWebhook).Set("method", method).Set("url", url)
}

func (b *Builder) connect(source, target, handle string) {
	e := domain.Edge{
		ID:     "e-" + source + "-" + target,
		Source: source,
		Target: target,
		Type:   domain.DefaultEdgeType,
	}
	if handle != "" {
		h := handle
		e.SourceHandle = &h
		e.ID += "-" + handle
	}
	b.edges = append(b.edges, e)
}

// Build compiles the flow. Edges must point at nodes added to the builder.
func (b *Builder) Build() (*domain.Flow, error) {
	flow := b.flow
	flow.Nodes = make([]domain.Node, 0, len(b.nodes))
	for _, nb := range b.nodes {
		flow.Nodes = append(flow.Nodes, nb.node)
	}
	for _, e := range b.edges {
		if _, ok := b.index[e.Target]; !ok {
			return nil, fmt.Errorf("%w: edge %s targets unknown node %q", domain.ErrInvalidFlow, e.ID, e.Target)
		}
	}
	flow.Edges = append([]domain.Edge{}, b.edges...)
	return &flow, nil
}

// BuildFlows compiles the flow into an in-memory flow source.
func (b *Builder) BuildFlows() (*memory.Flows, error) {
	flow, err := b.Build()
	if err != nil {
		return nil, err
	}
	flows, err := memory.NewFlows()
	if err != nil {
		return nil, err
	}
	if err := flows.SaveFlow(context.Background(), flow); err != nil {
		return nil, fmt.Errorf("failed to build memory flows: %w", err)
	}
	return flows, nil
}

// optionHandle names the source handle of the i-th option.
func optionHandle(i int) string {
	return domain.OptionHandlePrefix + strconv.Itoa(i)
}
