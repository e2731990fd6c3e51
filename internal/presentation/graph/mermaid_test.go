package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/chatflow/internal/presentation/graph"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func handle(s string) *string { return &s }

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		flow     *domain.Flow
		contains []string
	}{
		{
			name: "Start Node Shape",
			flow: &domain.Flow{Nodes: []domain.Node{
				{ID: "welcome", Type: domain.NodeTypeText, Data: map[string]any{"label": "Hi"}},
			}},
			contains: []string{`welcome(("Hi"))`},
		},
		{
			name: "Semantic Shapes",
			flow: &domain.Flow{
				Nodes: []domain.Node{
					{ID: "a", Type: domain.NodeTypeText},
					{ID: "check", Type: domain.NodeTypeCondition},
					{ID: "hook", Type: domain.NodeTypeWebhook},
					{ID: "ask", Type: domain.NodeTypeSingleInput},
				},
				Edges: []domain.Edge{
					{Source: "a", Target: "check"},
					{Source: "check", Target: "hook", SourceHandle: handle("yes")},
					{Source: "check", Target: "ask", SourceHandle: handle("no")},
				},
			},
			contains: []string{
				`check{"check"}`,
				`hook[["hook"]]`,
				`ask[/"ask"/]`,
				`check -- "YES" --> hook`,
				`check -- "NO" --> ask`,
				`a --> check`,
			},
		},
		{
			name: "Option Labels",
			flow: &domain.Flow{
				Nodes: []domain.Node{
					{ID: "menu", Type: domain.NodeTypeOptions, Data: map[string]any{"options": []any{"Sales", "Support"}}},
					{ID: "s", Type: domain.NodeTypeText},
					{ID: "x", Type: domain.NodeTypeText},
				},
				Edges: []domain.Edge{
					{Source: "menu", Target: "s", SourceHandle: handle("option-1")},
					{Source: "menu", Target: "x", SourceHandle: handle("option-7")},
				},
			},
			contains: []string{`menu -- "Support" --> s`, `menu -- "Option 8" --> x`},
		},
		{
			name: "ID Sanitization",
			flow: &domain.Flow{Nodes: []domain.Node{
				{ID: "path/to/file.md"},
				{ID: "hyphen-ated"},
				{ID: "end"},
			}},
			contains: []string{
				`path_to_file_md(("path/to/file.md"))`,
				`hyphen_ated(("hyphen-ated"))`,
				`end_(("end"))`,
			},
		},
		{
			name: "Label Escaping",
			flow: &domain.Flow{Nodes: []domain.Node{
				{ID: "q", Data: map[string]any{"label": `Say "hi"`}},
			}},
			contains: []string{`q(("Say 'hi'"))`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.flow, nil)
			assert.True(t, strings.HasPrefix(got, "graph TD\n"))
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	flow := &domain.Flow{
		Nodes: []domain.Node{{ID: "a"}, {ID: "b-1"}},
		Edges: []domain.Edge{{Source: "a", Target: "b-1"}},
	}
	state := domain.NewState("s")
	state.Visited = []string{"a", "b-1", "a"}
	state.CurrentNodeID = "b-1"

	got := graph.GenerateMermaid(flow, graph.OverlayFromState(state))
	assert.Contains(t, got, "classDef visited")
	assert.Equal(t, 1, strings.Count(got, "class a visited;"))
	assert.Contains(t, got, "class b_1 current;")

	assert.Nil(t, graph.OverlayFromState(nil))
	assert.Equal(t, "graph TD\n", graph.GenerateMermaid(nil, nil))
}
