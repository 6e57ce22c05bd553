package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLiteTest(t *testing.T) (storage.MigrationStore, string, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "hotelmig-test-*.db")
	require.NoError(t, err)
	tmpFile.Close()

	dbPath := tmpFile.Name()

	store, err := storage.NewMigrationStore("sqlite", map[string]interface{}{
		"db_path": dbPath,
	})
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		store.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}

	return store, dbPath, cleanup
}

// =============================================================================
// Entity operations
// =============================================================================

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store, _, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	id, err := store.Create(ctx, "partner", map[string]interface{}{
		"name":      "Alice Guest",
		"remote_id": 42,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	second, err := store.Create(ctx, "partner", map[string]interface{}{"name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, 2, second)

	other, err := store.Create(ctx, "folio", map[string]interface{}{"name": "F/0001"})
	require.NoError(t, err)
	assert.Equal(t, 1, other, "sequences are per entity type")

	got, err := store.Get(ctx, "partner", id)
	require.NoError(t, err)
	assert.Equal(t, "Alice Guest", got["name"])
	assert.Equal(t, float64(42), got["remote_id"])
	assert.Equal(t, float64(1), got["id"])

	_, err = store.Get(ctx, "partner", 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Create(ctx, "", map[string]interface{}{})
	assert.ErrorIs(t, err, storage.ErrInvalidEntity)
}

func TestSQLiteStore_UpdatePatchDelete(t *testing.T) {
	store, _, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	id, err := store.Create(ctx, "product", map[string]interface{}{
		"name":  "Breakfast",
		"price": 9.5,
		"code":  "BRK",
	})
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, "product", id, map[string]interface{}{"name": "Dinner"}))
	got, err := store.Get(ctx, "product", id)
	require.NoError(t, err)
	assert.Equal(t, "Dinner", got["name"])
	assert.NotContains(t, got, "price")

	require.NoError(t, store.Patch(ctx, "product", id, map[string]interface{}{
		"price": 20.0,
		"name":  nil,
	}))
	got, err = store.Get(ctx, "product", id)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got["price"])
	assert.NotContains(t, got, "name")

	assert.ErrorIs(t, store.Update(ctx, "product", 77, map[string]interface{}{}), storage.ErrNotFound)
	assert.ErrorIs(t, store.Patch(ctx, "product", 77, map[string]interface{}{}), storage.ErrNotFound)

	assert.True(t, store.Exists(ctx, "product", id))
	require.NoError(t, store.Delete(ctx, "product", id))
	assert.False(t, store.Exists(ctx, "product", id))
	assert.ErrorIs(t, store.Delete(ctx, "product", id), storage.ErrNotFound)
}

func TestSQLiteStore_SaveWithID(t *testing.T) {
	store, _, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "partner", 1000, map[string]interface{}{"name": "Front Desk"}))

	got, err := store.Get(ctx, "partner", 1000)
	require.NoError(t, err)
	assert.Equal(t, "Front Desk", got["name"])

	next, err := store.Create(ctx, "partner", map[string]interface{}{"name": "Walk-in"})
	require.NoError(t, err)
	assert.Equal(t, 1001, next, "sequence moves past saved ids")

	err = store.Save(ctx, "partner", 1000, map[string]interface{}{"name": "Again"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	require.NoError(t, store.Save(ctx, "partner", 5, map[string]interface{}{"name": "Low id"}))
	next, err = store.Create(ctx, "partner", map[string]interface{}{"name": "Later"})
	require.NoError(t, err)
	assert.Equal(t, 1002, next, "a lower saved id never moves the sequence back")
}

func TestSQLiteStore_List(t *testing.T) {
	store, _, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	empty, err := store.List(ctx, "journal")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, name := range []string{"Cash", "Bank", "Card"} {
		_, err := store.Create(ctx, "journal", map[string]interface{}{"name": name})
		require.NoError(t, err)
	}

	all, err := store.List(ctx, "journal")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Cash", all[0]["name"])
	assert.Equal(t, "Card", all[2]["name"])
}

func TestSQLiteStore_Find(t *testing.T) {
	store, _, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	spain, err := store.Create(ctx, "country", map[string]interface{}{"code": "ES"})
	require.NoError(t, err)
	france, err := store.Create(ctx, "country", map[string]interface{}{"code": "FR"})
	require.NoError(t, err)

	madrid, err := store.Create(ctx, "country_state", map[string]interface{}{
		"name":    "Madrid",
		"country": models.Ref(models.Country, spain),
		"active":  true,
		"seats":   3,
	})
	require.NoError(t, err)
	_, err = store.Create(ctx, "country_state", map[string]interface{}{
		"name":    "Madrid",
		"country": models.Ref(models.Country, france),
		"active":  false,
	})
	require.NoError(t, err)

	ids, err := store.Find(ctx, "country", map[string]interface{}{"code": "FR"})
	require.NoError(t, err)
	assert.Equal(t, []int{france}, ids)

	ids, err = store.Find(ctx, "country_state", map[string]interface{}{
		"name":    "Madrid",
		"country": models.Ref(models.Country, spain),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{madrid}, ids)

	ids, err = store.Find(ctx, "country_state", map[string]interface{}{"active": true, "seats": 3})
	require.NoError(t, err)
	assert.Equal(t, []int{madrid}, ids)

	ids, err = store.Find(ctx, "country_state", map[string]interface{}{"seats": nil})
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	ids, err = store.Find(ctx, "country", map[string]interface{}{"code": "PT"})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// =============================================================================
// Transactions
// =============================================================================

func TestSQLiteStore_TransactionRollback(t *testing.T) {
	store, _, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	err := storage.WithTransaction(ctx, store, func(tx storage.Transaction) error {
		id, err := tx.Create(ctx, "partner", map[string]interface{}{"name": "Ghost"})
		if err != nil {
			return err
		}
		if err := tx.RegisterIdentity(ctx, models.IdentityMapping{
			EntityType: models.Partner, RemoteID: 7, LocalID: id,
		}); err != nil {
			return err
		}
		return errors.New("transform failed")
	})
	require.Error(t, err)

	assert.False(t, store.Exists(ctx, "partner", 1))
	_, err = store.LookupIdentity(ctx, models.Partner, 7)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLiteStore_TransactionCommit(t *testing.T) {
	store, _, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	var localID int
	err := storage.WithTransaction(ctx, store, func(tx storage.Transaction) error {
		var err error
		localID, err = tx.Create(ctx, "partner", map[string]interface{}{"name": "Alice", "remote_id": 42})
		if err != nil {
			return err
		}

		ids, err := tx.Find(ctx, "partner", map[string]interface{}{"remote_id": 42})
		if err != nil {
			return err
		}
		if len(ids) != 1 {
			return errors.New("uncommitted record not visible inside its transaction")
		}

		return tx.RegisterIdentity(ctx, models.IdentityMapping{
			EntityType: models.Partner, RemoteID: 42, LocalID: localID, RunID: "run-1",
		})
	})
	require.NoError(t, err)

	got, err := store.LookupIdentity(ctx, models.Partner, 42)
	require.NoError(t, err)
	assert.Equal(t, localID, got)
}

// =============================================================================
// Identity map
// =============================================================================

func TestSQLiteStore_Identity(t *testing.T) {
	store, _, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	for remoteID, localID := range map[int]int{42: 1001, 43: 1002} {
		require.NoError(t, store.RegisterIdentity(ctx, models.IdentityMapping{
			EntityType: models.Partner, RemoteID: remoteID, LocalID: localID, RunID: "run-1",
		}))
	}

	err := store.RegisterIdentity(ctx, models.IdentityMapping{
		EntityType: models.Partner, RemoteID: 42, LocalID: 5000,
	})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	got, err := store.LookupIdentity(ctx, models.Partner, 42)
	require.NoError(t, err)
	assert.Equal(t, 1001, got, "mappings are never overwritten")

	// same remote id, other entity type
	require.NoError(t, store.RegisterIdentity(ctx, models.IdentityMapping{
		EntityType: models.Product, RemoteID: 42, LocalID: 3,
	}))

	all, err := store.ListIdentities(ctx, models.Partner)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 42, all[0].RemoteID)
	assert.Equal(t, "run-1", all[0].RunID)
	assert.False(t, all[0].CreatedAt.IsZero())

	assert.Error(t, store.RegisterIdentity(ctx, models.IdentityMapping{EntityType: models.Partner, RemoteID: 9}))
}

func TestSQLiteStore_OrphanIdentities(t *testing.T) {
	store, _, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	kept, err := store.Create(ctx, "product", map[string]interface{}{"name": "Kept"})
	require.NoError(t, err)
	gone, err := store.Create(ctx, "product", map[string]interface{}{"name": "Gone"})
	require.NoError(t, err)

	require.NoError(t, store.RegisterIdentity(ctx, models.IdentityMapping{EntityType: models.Product, RemoteID: 1, LocalID: kept}))
	require.NoError(t, store.RegisterIdentity(ctx, models.IdentityMapping{EntityType: models.Product, RemoteID: 2, LocalID: gone}))
	require.NoError(t, store.Delete(ctx, "product", gone))

	orphans, err := store.OrphanIdentities(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, 2, orphans[0].RemoteID)
	assert.Equal(t, models.Product, orphans[0].EntityType)
}

// =============================================================================
// Migration log
// =============================================================================

func TestSQLiteStore_Log(t *testing.T) {
	store, _, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	entries := []models.MigrationLogEntry{
		{RunID: "a", ProfileID: 1, EntityType: models.Partner, RemoteID: 10, Level: models.LogWarning, Message: "invalid VAT"},
		{RunID: "a", ProfileID: 1, EntityType: models.Folio, RemoteID: 11, Level: models.LogFailure, Message: "missing partner"},
		{RunID: "b", ProfileID: 2, EntityType: models.Folio, RemoteID: 12, Level: models.LogFailure, Message: "missing partner"},
	}
	for i := range entries {
		require.NoError(t, store.AppendLog(ctx, &entries[i]))
		assert.Equal(t, i+1, entries[i].ID)
	}

	all, err := store.ListLog(ctx, storage.LogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 12, all[0].RemoteID, "newest first")
	assert.WithinDuration(t, time.Now(), all[0].Timestamp, time.Minute)

	profile1, err := store.ListLog(ctx, storage.LogFilter{ProfileID: 1, Level: models.LogFailure})
	require.NoError(t, err)
	require.Len(t, profile1, 1)
	assert.Equal(t, "missing partner", profile1[0].Message)

	limited, err := store.ListLog(ctx, storage.LogFilter{EntityType: models.Folio, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].RunID)
}

// =============================================================================
// Connection profiles
// =============================================================================

func TestSQLiteStore_Profiles(t *testing.T) {
	store, _, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	p := &models.ConnectionProfile{
		Name:            "old-hotel",
		Host:            "legacy.example.com",
		Port:            8069,
		Protocol:        "jsonrpc",
		Database:        "hotel",
		Username:        "admin",
		Password:        "secret",
		CutoverDate:     time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC),
		CutoverOperator: models.CutoverBefore,
		RemoteVersion:   "10.0",
	}
	require.NoError(t, store.CreateProfile(ctx, p))
	assert.Equal(t, 1, p.ID)

	dup := *p
	assert.ErrorIs(t, store.CreateProfile(ctx, &dup), storage.ErrAlreadyExists)

	bad := *p
	bad.Name = "bad"
	bad.CutoverOperator = "after"
	assert.Error(t, store.CreateProfile(ctx, &bad))

	got, err := store.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Password)
	assert.Equal(t, "2019-06-01", got.CutoverDateString())
	assert.Equal(t, models.CutoverBefore, got.CutoverOperator)

	require.NoError(t, store.UpdateCutover(ctx, p.ID, p.CutoverDate, models.CutoverOnOrAfter))
	got, err = store.GetProfileByName(ctx, "old-hotel")
	require.NoError(t, err)
	assert.Equal(t, models.CutoverOnOrAfter, got.CutoverOperator)

	assert.ErrorIs(t, store.UpdateCutover(ctx, 99, p.CutoverDate, models.CutoverBefore), storage.ErrNotFound)
	_, err = store.GetProfile(ctx, 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := store.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// =============================================================================
// Graph integrity
// =============================================================================

func TestSQLiteStore_GraphIntegrity(t *testing.T) {
	store, dbPath, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	res, err := store.Create(ctx, "reservation", map[string]interface{}{"name": "R1"})
	require.NoError(t, err)
	svc, err := store.Create(ctx, "service", map[string]interface{}{"name": "S1"})
	require.NoError(t, err)
	_, err = store.Create(ctx, "invoice", map[string]interface{}{
		"reservations": []interface{}{models.Ref(models.Reservation, res)},
		"services":     []interface{}{models.Ref(models.Service, svc)},
	})
	require.NoError(t, err)

	require.NoError(t, store.VerifyGraphIntegrity(ctx))

	raw, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, "DELETE FROM graph_edges WHERE relationship_name = 'services'")
	require.NoError(t, err)
	raw.Close()

	err = store.VerifyGraphIntegrity(ctx)
	assert.ErrorIs(t, err, storage.ErrGraphIntegrity)

	require.NoError(t, store.RebuildGraph(ctx))
	assert.NoError(t, store.VerifyGraphIntegrity(ctx))
}

func TestSQLiteStore_Info(t *testing.T) {
	store, _, cleanup := setupSQLiteTest(t)
	defer cleanup()

	info := store.(storage.InfoProvider).Info()
	assert.Equal(t, "sqlite", info.Type)
	assert.True(t, info.SupportsTransaction)
}

func TestNewStoreUnknownType(t *testing.T) {
	_, err := storage.NewStore("jsonfile", nil)
	assert.Error(t, err)
	assert.Contains(t, storage.ListStores(), "sqlite")
}
