package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunStateStoreContract(t, store)
}

func TestMemoryFlows_Contract(t *testing.T) {
	flows, err := memory.NewFlows()
	require.NoError(t, err)
	ports.RunFlowStoreContract(t, flows)
}

func TestMemoryFlows_FromJSON(t *testing.T) {
	flows, err := memory.NewFlowsFromJSON("owner", map[string]string{
		"welcome": `{"flowName": "Welcome", "nodes": [{"id": "1", "type": "custom", "data": {"options": ["A"]}}], "edges": []}`,
	})
	require.NoError(t, err)

	flow, err := flows.LoadFlow(context.Background(), "owner", "welcome")
	require.NoError(t, err)
	assert.Equal(t, "owner", flow.OwnerID)
	assert.Equal(t, domain.NodeTypeOptions, flow.Nodes[0].Type)

	list, err := flows.ListFlows(context.Background(), "owner")
	require.NoError(t, err)
	assert.Equal(t, []domain.FlowSummary{{ID: "welcome", OwnerID: "owner", Name: "Welcome"}}, list)

	_, err = memory.NewFlowsFromJSON("owner", map[string]string{"bad": "{"})
	assert.ErrorIs(t, err, domain.ErrInvalidFlow)
}

func TestMemoryFlows_LoadReturnsCopy(t *testing.T) {
	flow := &domain.Flow{ID: "f", OwnerID: "o", Nodes: []domain.Node{{ID: "a", Type: domain.NodeTypeText}}}
	flows, err := memory.NewFlows(flow)
	require.NoError(t, err)

	flow.Nodes[0].ID = "mutated"
	loaded, err := flows.LoadFlow(context.Background(), "o", "f")
	require.NoError(t, err)
	assert.Equal(t, "a", loaded.Nodes[0].ID)
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(memory.WithTTL(time.Hour), memory.WithStoreClock(func() time.Time { return now }))

	require.NoError(t, store.Save(ctx, "s1", domain.NewState("s1")))
	_, err := store.Load(ctx, "s1")
	require.NoError(t, err)

	now = now.Add(59 * time.Minute)
	require.NoError(t, store.Save(ctx, "s2", domain.NewState("s2")))

	now = now.Add(2 * time.Minute)
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "s1 was last saved over an hour ago")

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids)
}
