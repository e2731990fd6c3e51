package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.StateStore = (*Store)(nil)
	_ ports.FlowStore  = (*Store)(nil)
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "nested", "chatflow.db")
	store, err := Open(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, openSQLite(t))
}

func TestSQLiteFlows_Contract(t *testing.T) {
	ports.RunFlowStoreContract(t, openSQLite(t))
}

func TestSQLiteStore_Upsert(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	state := domain.NewState("s1")
	state.CurrentNodeID = "a"
	require.NoError(t, store.Save(ctx, "s1", state))

	state.CurrentNodeID = "b"
	state.Generation = 1
	require.NoError(t, store.Save(ctx, "s1", state))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "b", loaded.CurrentNodeID)
	assert.Equal(t, uint64(1), loaded.Generation)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "chatflow.db")
	first, err := Open(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.ErrorContains(t, err, "unsupported")

	_, err = Open(context.Background(), DriverSQLite, "")
	assert.Error(t, err)
}

func TestBind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.bind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.bind("x = ?"))
}
