package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewState(sessionID)
		state.CurrentNodeID = "ask"
		state.Status = domain.StatusAwaitingInput
		state.Visited = []string{"welcome", "ask"}
		state.Transcript = []domain.Turn{
			{Role: domain.RoleBot, Text: "Hello!", NodeID: "welcome", Timestamp: time.Unix(1700000000, 0).UTC()},
			{Role: domain.RoleBot, Text: "Pick one", NodeID: "ask", Prompt: &domain.Prompt{
				Kind: domain.PromptChoice, Text: "Pick one", Options: []string{"A", "B"},
			}},
		}
		state.Variables["name"] = "Ada"
		state.Generation = 3

		require.NoError(t, store.Save(ctx, sessionID, state), "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "ask", loaded.CurrentNodeID)
		assert.Equal(t, domain.StatusAwaitingInput, loaded.Status)
		assert.Equal(t, []string{"welcome", "ask"}, loaded.Visited)
		require.Len(t, loaded.Transcript, 2)
		assert.Equal(t, "Hello!", loaded.Transcript[0].Text)
		assert.True(t, loaded.Transcript[0].Timestamp.Equal(state.Transcript[0].Timestamp))
		require.NotNil(t, loaded.Transcript[1].Prompt)
		assert.Equal(t, []string{"A", "B"}, loaded.Transcript[1].Prompt.Options)
		assert.Equal(t, "Ada", loaded.Variables["name"])
		assert.Equal(t, uint64(3), loaded.Generation)
	})

	t.Run("Load Returns A Copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Transcript = append(loaded.Transcript, domain.Turn{Role: domain.RoleUser, Text: "mutated"})
		loaded.Variables["name"] = "mutated"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Len(t, again.Transcript, 2)
		assert.Equal(t, "Ada", again.Variables["name"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, domain.NewState(sessionID)))

		require.NoError(t, store.Delete(ctx, sessionID), "Delete should not return error")

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewState(id1))
		_ = store.Save(ctx, id2, domain.NewState(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunFlowStoreContract verifies the FlowStore behavior shared by all adapters.
func RunFlowStoreContract(t *testing.T, store FlowStore) {
	ctx := context.Background()
	owner := "contract-owner"
	yes := "yes"

	flow := &domain.Flow{
		ID:      "contract-flow",
		OwnerID: owner,
		Name:    "Contract",
		Nodes: []domain.Node{
			{ID: "a", Type: domain.NodeTypeText, Data: map[string]any{"label": "Hello"}},
			{ID: "b", Type: domain.NodeTypeCondition, Data: map[string]any{"label": "Check"}},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "a", Target: "b", Type: domain.DefaultEdgeType},
			{ID: "e2", Source: "b", Target: "a", SourceHandle: &yes, Type: domain.DefaultEdgeType},
		},
	}

	t.Run("Save and Load", func(t *testing.T) {
		require.NoError(t, store.SaveFlow(ctx, flow))

		loaded, err := store.LoadFlow(ctx, owner, flow.ID)
		require.NoError(t, err)
		assert.Equal(t, flow.Fingerprint(), loaded.Fingerprint())
		assert.Equal(t, "Contract", loaded.Name)
	})

	t.Run("List", func(t *testing.T) {
		flows, err := store.ListFlows(ctx, owner)
		require.NoError(t, err)
		ids := make([]string, 0, len(flows))
		for _, f := range flows {
			ids = append(ids, f.ID)
		}
		assert.Contains(t, ids, flow.ID)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.LoadFlow(ctx, owner, "missing")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.DeleteFlow(ctx, owner, flow.ID))
		_, err := store.LoadFlow(ctx, owner, flow.ID)
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})
}
