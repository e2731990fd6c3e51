package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromState builds the overlay of a session snapshot.
func OverlayFromState(state *domain.State) *GraphOverlay {
	if state == nil {
		return nil
	}
	return &GraphOverlay{
		VisitedNodes: append([]string{}, state.Visited...),
		CurrentNode:  state.CurrentNodeID,
	}
}

// GenerateMermaid produces a Mermaid flowchart of a flow.
// Shapes follow the node semantics:
// - Start: ((Circle))
// - Condition: {Rhombus}
// - Webhook: [[Subroutine]]
// - Input (options, form, singleInput, aiInput): [/Parallelogram/]
// - Default: [Rectangle]
// Edges from options and condition nodes are labeled with their branch.
func GenerateMermaid(flow *domain.Flow, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	if flow == nil {
		return sb.String()
	}

	starts := make(map[string]bool)
	for _, id := range flow.StartCandidates() {
		starts[id] = true
	}

	for _, node := range flow.Nodes {
		opener, closer := "[", "]"
		switch {
		case starts[node.ID]:
			opener, closer = "((", "))"
		case node.Type == domain.NodeTypeCondition:
			opener, closer = "{", "}"
		case node.Type == domain.NodeTypeWebhook:
			opener, closer = "[[", "]]"
		case node.Type.AwaitsInput():
			opener, closer = "[/", "/]"
		}

		text := node.Label()
		if text == "" {
			text = node.ID
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(node.ID), opener, escapeLabel(text), closer)
	}

	for _, edge := range flow.Edges {
		arrow := "-->"
		if label := branchLabel(flow, edge); label != "" {
			arrow = fmt.Sprintf("-- \"%s\" -->", escapeLabel(label))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(edge.Source), arrow, sanitizeMermaidID(edge.Target))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

// branchLabel names the branch an edge represents: the option text for
// "option-i" handles, YES/NO for condition handles.
func branchLabel(flow *domain.Flow, edge domain.Edge) string {
	handle := edge.Handle()
	switch {
	case handle == "":
		return ""
	case handle == domain.HandleYes, handle == domain.HandleNo:
		return strings.ToUpper(handle)
	case strings.HasPrefix(handle, domain.OptionHandlePrefix):
		idx, err := strconv.Atoi(strings.TrimPrefix(handle, domain.OptionHandlePrefix))
		if err != nil {
			return handle
		}
		if node, ok := flow.Node(edge.Source); ok {
			var cfg domain.OptionsConfig
			if node.DecodeConfig(&cfg) == nil && idx >= 0 && idx < len(cfg.Options) {
				return cfg.Options[idx]
			}
		}
		return fmt.Sprintf("Option %d", idx+1)
	}
	return handle
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.ReplaceAll(s, "\n", " ")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	// Mermaid reserves "end".
	if s == "end" {
		s = "end_"
	}
	return s
}
