package chatflow_test

import (
	"context"
	"testing"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contactFlow() *domain.Flow {
	return &domain.Flow{
		ID: "contact",
		Nodes: []domain.Node{
			{ID: "hi", Type: domain.NodeTypeText, Data: map[string]any{"label": "Hi there"}},
			{ID: "form", Type: domain.NodeTypeForm, Data: map[string]any{
				"fields": []any{map[string]any{"key": "email", "label": "Email", "required": true}},
			}},
			{ID: "ask", Type: domain.NodeTypeAIInput, Data: map[string]any{"label": "Any question?"}},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "hi", Target: "form"},
			{ID: "e2", Source: "form", Target: "ask"},
		},
	}
}

func TestSession_Lifecycle(t *testing.T) {
	responder := ports.ResponderFunc(func(ctx context.Context, cfg domain.ProviderConfig, prompt string) (string, error) {
		return "You asked: " + prompt, nil
	})
	s, err := chatflow.NewSession(chatflow.WithResponder(responder))
	require.NoError(t, err)
	ctx := context.Background()

	assert.NotEmpty(t, s.ID())
	assert.Nil(t, s.State())
	assert.ErrorIs(t, s.SubmitResponse(ctx, "too early", nil), chatflow.ErrNotStarted)

	require.NoError(t, s.Start(ctx, contactFlow()))
	node, ok := s.CurrentNode()
	require.True(t, ok)
	assert.Equal(t, "form", node.ID)

	prompt, ok := s.Prompt()
	require.True(t, ok)
	assert.Equal(t, domain.PromptForm, prompt.Kind)

	require.NoError(t, s.SubmitForm(ctx, map[string]string{}))
	node, _ = s.CurrentNode()
	assert.Equal(t, "form", node.ID, "required fields gate the form")

	require.NoError(t, s.SubmitForm(ctx, map[string]string{"email": "ada@example.com"}))
	node, _ = s.CurrentNode()
	assert.Equal(t, "ask", node.ID)

	require.NoError(t, s.SubmitResponse(ctx, "pricing?", nil))
	_, ok = s.CurrentNode()
	assert.False(t, ok)

	transcript := s.Transcript()
	var ai []string
	for _, turn := range transcript {
		if turn.Role == domain.RoleAI {
			ai = append(ai, turn.Text)
		}
	}
	assert.Equal(t, []string{"You asked: pricing?"}, ai)

	require.NoError(t, s.Restart(ctx))
	assert.Equal(t, uint64(1), s.State().Generation)
	node, _ = s.CurrentNode()
	assert.Equal(t, "form", node.ID)
}

func TestSession_OptionIndex(t *testing.T) {
	s, err := chatflow.NewSession()
	require.NoError(t, err)
	ctx := context.Background()

	flow := &domain.Flow{
		ID: "menu",
		Nodes: []domain.Node{
			{ID: "menu", Type: domain.NodeTypeOptions, Data: map[string]any{"options": []any{"Sales", "Support"}}},
		},
	}
	require.NoError(t, s.Start(ctx, flow))

	idx := 2
	require.NoError(t, s.SubmitResponse(ctx, "", &idx))
	transcript := s.Transcript()
	assert.Equal(t, "No further options available.", transcript[len(transcript)-1].Text)
}
