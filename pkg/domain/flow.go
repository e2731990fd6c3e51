package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Handle prefixes and values used on edges.
const (
	OptionHandlePrefix = "option-"
	HandleYes          = "yes"
	HandleNo           = "no"

	DefaultEdgeType = "default"
)

// Edge is a directed transition between two nodes.
// SourceHandle discriminates branches of options and condition nodes.
type Edge struct {
	ID           string  `json:"id" yaml:"id"`
	Source       string  `json:"source" yaml:"source"`
	Target       string  `json:"target" yaml:"target"`
	SourceHandle *string `json:"sourceHandle" yaml:"sourceHandle"`
	TargetHandle *string `json:"targetHandle" yaml:"targetHandle"`
	Type         string  `json:"type,omitempty" yaml:"type,omitempty"`
	Animated     bool    `json:"animated,omitempty" yaml:"animated,omitempty"`
}

// Handle returns the source handle, or "" when the edge is unconditioned.
func (e Edge) Handle() string {
	if e.SourceHandle == nil {
		return ""
	}
	return *e.SourceHandle
}

// Flow is an immutable conversation definition.
type Flow struct {
	ID            string `json:"id,omitempty" yaml:"id,omitempty"`
	OwnerID       string `json:"ownerId,omitempty" yaml:"ownerId,omitempty"`
	Name          string `json:"flowName,omitempty" yaml:"flowName,omitempty"`
	WebsiteDomain string `json:"websiteDomain,omitempty" yaml:"websiteDomain,omitempty"`
	Nodes         []Node `json:"nodes" yaml:"nodes"`
	Edges         []Edge `json:"edges" yaml:"edges"`
}

// FlowSummary is a listing entry for a stored flow.
type FlowSummary struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId,omitempty"`
	Name    string `json:"flowName,omitempty"`
}

// Node looks up a node by id.
func (f *Flow) Node(id string) (Node, bool) {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Outgoing returns the edges leaving source, in edge order.
func (f *Flow) Outgoing(source string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

// HasIncoming reports whether any edge targets id.
func (f *Flow) HasIncoming(id string) bool {
	for _, e := range f.Edges {
		if e.Target == id {
			return true
		}
	}
	return false
}

// StartCandidates returns the ids of nodes with no incoming edge, in node order.
func (f *Flow) StartCandidates() []string {
	targets := make(map[string]struct{}, len(f.Edges))
	for _, e := range f.Edges {
		targets[e.Target] = struct{}{}
	}
	var ids []string
	for _, n := range f.Nodes {
		if _, ok := targets[n.ID]; !ok {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Fingerprint identifies the behaviour of the flow: node ids, types and data,
// and edge source, target and handle, in declaration order. Edge ids, edge
// styling, node positions and metadata such as the name do not contribute,
// so loaders that generate edge ids do not make an unchanged flow look edited.
func (f *Flow) Fingerprint() string {
	if f == nil {
		return ""
	}
	type node struct {
		ID   string         `json:"id"`
		Type NodeType       `json:"type"`
		Data map[string]any `json:"data,omitempty"`
	}
	type edge struct {
		Source string `json:"source"`
		Target string `json:"target"`
		Handle string `json:"handle,omitempty"`
	}
	nodes := make([]node, len(f.Nodes))
	for i, n := range f.Nodes {
		nodes[i] = node{ID: n.ID, Type: n.Type, Data: n.Data}
	}
	edges := make([]edge, len(f.Edges))
	for i, e := range f.Edges {
		edges[i] = edge{Source: e.Source, Target: e.Target, Handle: e.Handle()}
	}
	b, err := json.Marshal(struct {
		Nodes []node `json:"nodes"`
		Edges []edge `json:"edges"`
	}{nodes, edges})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
