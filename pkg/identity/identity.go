// Package identity resolves legacy records to the local records created for
// them.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/ha1tch/hotelmig/pkg/cache"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/storage"
)

// ErrAlreadyRegistered is returned when a remote record already has a mapping
var ErrAlreadyRegistered = errors.New("identity already registered")

// Map is the durable (entity type, remote id) -> local id table with an
// optional read-through cache. Mappings are never overwritten or removed.
type Map struct {
	store storage.IdentityStore
	cache cache.Cache
}

// New creates an identity map; c may be nil
func New(store storage.IdentityStore, c cache.Cache) *Map {
	return &Map{store: store, cache: c}
}

func cacheKey(entity models.EntityType, remoteID int) string {
	return fmt.Sprintf("identity:%s:%d", entity, remoteID)
}

// Resolve returns the local id for a remote record, or ok=false when the
// record has not been migrated.
func (m *Map) Resolve(ctx context.Context, entity models.EntityType, remoteID int) (int, bool, error) {
	if remoteID <= 0 {
		return 0, false, nil
	}

	key := cacheKey(entity, remoteID)
	if m.cache != nil {
		if id, err := m.cache.Get(ctx, key); err == nil {
			return id, true, nil
		}
	}

	id, err := m.store.LookupIdentity(ctx, entity, remoteID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve %s/%d: %w", entity, remoteID, err)
	}

	m.Remember(ctx, entity, remoteID, id)
	return id, true, nil
}

// ResolveAll resolves several remote ids, dropping the unmigrated ones
func (m *Map) ResolveAll(ctx context.Context, entity models.EntityType, remoteIDs []int) ([]int, error) {
	ids := make([]int, 0, len(remoteIDs))
	for _, remoteID := range remoteIDs {
		id, ok, err := m.Resolve(ctx, entity, remoteID)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Register records a mapping on its own
func (m *Map) Register(ctx context.Context, entity models.EntityType, remoteID, localID int, runID string) error {
	err := m.store.RegisterIdentity(ctx, mapping(entity, remoteID, localID, runID))
	if err != nil {
		return wrap(entity, remoteID, err)
	}
	m.Remember(ctx, entity, remoteID, localID)
	return nil
}

// RegisterTx records a mapping inside a record transaction. The cache is not
// touched; call Remember after the transaction commits.
func (m *Map) RegisterTx(ctx context.Context, tx storage.Transaction, entity models.EntityType, remoteID, localID int, runID string) error {
	if err := tx.RegisterIdentity(ctx, mapping(entity, remoteID, localID, runID)); err != nil {
		return wrap(entity, remoteID, err)
	}
	return nil
}

// Remember caches a committed mapping
func (m *Map) Remember(ctx context.Context, entity models.EntityType, remoteID, localID int) {
	if m.cache != nil {
		m.cache.Set(ctx, cacheKey(entity, remoteID), localID)
	}
}

// Purge drops every cached mapping; the durable table is untouched
func (m *Map) Purge(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}
	return m.cache.DeletePattern(ctx, "identity:*")
}

func mapping(entity models.EntityType, remoteID, localID int, runID string) models.IdentityMapping {
	return models.IdentityMapping{
		EntityType: entity,
		RemoteID:   remoteID,
		LocalID:    localID,
		RunID:      runID,
	}
}

func wrap(entity models.EntityType, remoteID int, err error) error {
	if errors.Is(err, storage.ErrAlreadyExists) {
		return fmt.Errorf("%w: %s/%d", ErrAlreadyRegistered, entity, remoteID)
	}
	return fmt.Errorf("register %s/%d: %w", entity, remoteID, err)
}
