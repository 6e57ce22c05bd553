package identity_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ha1tch/hotelmig/pkg/cache"
	"github.com/ha1tch/hotelmig/pkg/identity"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupIdentityTest(t *testing.T) (*identity.Map, storage.MigrationStore, *cache.MemoryCache, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "hotelmig-identity-*.db")
	require.NoError(t, err)
	tmpFile.Close()

	store, err := storage.NewMigrationStore("sqlite", map[string]interface{}{"db_path": tmpFile.Name()})
	require.NoError(t, err)

	c := cache.NewMemoryCache(128, time.Minute)
	cleanup := func() {
		c.Close()
		store.Close()
		os.Remove(tmpFile.Name())
	}
	return identity.New(store, c), store, c, cleanup
}

func TestResolveAndRegister(t *testing.T) {
	ids, _, c, cleanup := setupIdentityTest(t)
	defer cleanup()

	ctx := context.Background()

	_, ok, err := ids.Resolve(ctx, models.Partner, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ids.Register(ctx, models.Partner, 42, 1001, "run-1"))
	assert.Equal(t, 1, c.Len())

	local, ok, err := ids.Resolve(ctx, models.Partner, 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1001, local)

	err = ids.Register(ctx, models.Partner, 42, 2002, "run-2")
	assert.ErrorIs(t, err, identity.ErrAlreadyRegistered)

	local, _, err = ids.Resolve(ctx, models.Partner, 42)
	require.NoError(t, err)
	assert.Equal(t, 1001, local)

	_, ok, err = ids.Resolve(ctx, models.Partner, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveReadsThroughAfterPurge(t *testing.T) {
	ids, _, c, cleanup := setupIdentityTest(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, ids.Register(ctx, models.Folio, 5, 9, ""))
	require.NoError(t, ids.Purge(ctx))
	assert.Equal(t, 0, c.Len())

	local, ok, err := ids.Resolve(ctx, models.Folio, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, local)
	assert.Equal(t, 1, c.Len(), "a durable hit is cached")
}

func TestRegisterTxRollback(t *testing.T) {
	ids, store, c, cleanup := setupIdentityTest(t)
	defer cleanup()

	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, ids.RegisterTx(ctx, tx, models.Payment, 3, 30, "run-1"))
	assert.Equal(t, 0, c.Len(), "cache untouched before commit")
	require.NoError(t, tx.Rollback())

	_, ok, err := ids.Resolve(ctx, models.Payment, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	tx, err = store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, ids.RegisterTx(ctx, tx, models.Payment, 3, 31, "run-2"))
	err = ids.RegisterTx(ctx, tx, models.Payment, 3, 32, "run-2")
	assert.ErrorIs(t, err, identity.ErrAlreadyRegistered)
	require.NoError(t, tx.Commit())
	ids.Remember(ctx, models.Payment, 3, 31)

	local, ok, err := ids.Resolve(ctx, models.Payment, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 31, local)
}

func TestResolveAll(t *testing.T) {
	ids := identity.New(nilCacheStore(t), nil)
	ctx := context.Background()

	require.NoError(t, ids.Register(ctx, models.Service, 1, 100, ""))
	require.NoError(t, ids.Register(ctx, models.Service, 3, 300, ""))

	got, err := ids.ResolveAll(ctx, models.Service, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{100, 300}, got)
	assert.NoError(t, ids.Purge(ctx))
}

func nilCacheStore(t *testing.T) storage.MigrationStore {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "hotelmig-identity-*.db")
	require.NoError(t, err)
	tmpFile.Close()

	store, err := storage.NewMigrationStore("sqlite", map[string]interface{}{"db_path": tmpFile.Name()})
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		os.Remove(tmpFile.Name())
	})
	return store
}
