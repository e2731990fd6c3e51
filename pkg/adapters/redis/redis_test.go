package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/chatflow/pkg/adapters/redis"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.StateStore        = (*redis.Store)(nil)
	_ ports.FlowStore         = (*redis.Flows)(nil)
	_ ports.DistributedLocker = (*redis.Locker)(nil)
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunStateStoreContract(t, redis.NewFromClient(client))
}

func TestRedisFlows_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunFlowStoreContract(t, redis.NewFlows(client, ""))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()
	sessionID := "session-ttl"
	state := domain.NewState(sessionID)
	state.CurrentNodeID = "node1"
	state.Variables["foo"] = "bar"

	require.NoError(t, store.Save(ctx, sessionID, state))

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, sessions, sessionID)

	// Key expiration is driven by miniredis' clock.
	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, sessionID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Index pruning compares scores with the wall clock.
	time.Sleep(1200 * time.Millisecond)

	sessions, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "my-session", domain.NewState("my-session")))

	assert.True(t, mr.Exists("custom:app:my-session"))
	assert.True(t, mr.Exists("custom:app:index"))
	assert.False(t, mr.Exists("chatflow:session:my-session"))
}

func TestRedisStore_DefaultPrefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)

	require.NoError(t, store.Save(context.Background(), "s1", domain.NewState("s1")))
	assert.True(t, mr.Exists("chatflow:session:s1"))
}

func TestRedisFlows_OwnerIsolation(t *testing.T) {
	_, client := newClient(t)
	flows := redis.NewFlows(client, "")
	ctx := context.Background()

	require.NoError(t, flows.SaveFlow(ctx, &domain.Flow{ID: "welcome", OwnerID: "acme", Name: "Welcome"}))
	require.NoError(t, flows.SaveFlow(ctx, &domain.Flow{ID: "welcome", OwnerID: "globex", Name: "Hello"}))

	acme, err := flows.ListFlows(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, acme, 1)
	assert.Equal(t, "Welcome", acme[0].Name)

	loaded, err := flows.LoadFlow(ctx, "globex", "welcome")
	require.NoError(t, err)
	assert.Equal(t, "Hello", loaded.Name)
	assert.Equal(t, "globex", loaded.OwnerID)

	err = flows.SaveFlow(ctx, &domain.Flow{OwnerID: "acme"})
	assert.ErrorIs(t, err, domain.ErrInvalidFlow)
}
