package domain

import (
	"encoding/json"
	"strings"
)

// NodeType selects how the interpreter treats a node.
type NodeType string

// NodeType constants define the control flow behavior.
const (
	// NodeTypeText displays a message and continues immediately.
	NodeTypeText NodeType = "text"
	// NodeTypeOptions displays choices and waits for an option index.
	NodeTypeOptions NodeType = "options"
	// NodeTypeForm displays fields and waits for a key/value submission.
	NodeTypeForm NodeType = "form"
	// NodeTypeSingleInput waits for one line of free text.
	NodeTypeSingleInput NodeType = "singleInput"
	// NodeTypeAIInput waits for free text and forwards it to a Responder.
	NodeTypeAIInput NodeType = "aiInput"
	// NodeTypeCondition picks the "yes" or "no" branch without user input.
	NodeTypeCondition NodeType = "condition"
	// NodeTypeWebhook calls an external URL and continues regardless of the outcome.
	NodeTypeWebhook NodeType = "webhook"
	// NodeTypeDefault is the pass-through behavior for unknown types.
	NodeTypeDefault NodeType = "default"
)

// Wire aliases emitted by the flow editor.
var nodeTypeAliases = map[string]NodeType{
	"custom":      NodeTypeOptions,
	"option":      NodeTypeOptions,
	"aiinput":     NodeTypeAIInput,
	"singleinput": NodeTypeSingleInput,
}

// NormalizeNodeType maps wire names and aliases onto the known node types.
// Anything unrecognized becomes NodeTypeDefault.
func NormalizeNodeType(raw string) NodeType {
	switch t := NodeType(raw); t {
	case NodeTypeText, NodeTypeOptions, NodeTypeForm, NodeTypeSingleInput,
		NodeTypeAIInput, NodeTypeCondition, NodeTypeWebhook:
		return t
	}
	if t, ok := nodeTypeAliases[strings.ToLower(raw)]; ok {
		return t
	}
	return NodeTypeDefault
}

// AwaitsInput reports whether the node type halts the conversation until a response arrives.
func (t NodeType) AwaitsInput() bool {
	switch t {
	case NodeTypeOptions, NodeTypeForm, NodeTypeSingleInput, NodeTypeAIInput:
		return true
	}
	return false
}

// Position is editor metadata. The interpreter never reads it.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is one step of a conversation flow.
type Node struct {
	ID       string         `json:"id" yaml:"id"`
	Type     NodeType       `json:"type" yaml:"type"`
	Data     map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
	Position *Position      `json:"position,omitempty" yaml:"position,omitempty"`
}

// UnmarshalJSON accepts "config" as an alias of "data" and normalizes the type.
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       string         `json:"id"`
		Type     string         `json:"type"`
		Data     map[string]any `json:"data"`
		Config   map[string]any `json:"config"`
		Position *Position      `json:"position"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	n.ID = raw.ID
	n.Type = NormalizeNodeType(raw.Type)
	n.Data = raw.Data
	if n.Data == nil {
		n.Data = raw.Config
	}
	n.Position = raw.Position
	return nil
}
