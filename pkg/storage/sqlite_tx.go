package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ha1tch/hotelmig/pkg/models"
)

// sqliteTx runs store operations inside one database transaction. It does
// not take the store mutex; SQLite serialises writers itself.
type sqliteTx struct {
	tx *sql.Tx
}

// Begin starts a transaction
func (s *SQLiteStore) Begin(ctx context.Context) (Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (t *sqliteTx) Create(ctx context.Context, entity string, data map[string]interface{}) (int, error) {
	return createEntity(ctx, t.tx, entity, data)
}

func (t *sqliteTx) Get(ctx context.Context, entity string, id int) (map[string]interface{}, error) {
	return getEntity(ctx, t.tx, entity, id)
}

func (t *sqliteTx) Update(ctx context.Context, entity string, id int, data map[string]interface{}) error {
	return updateEntity(ctx, t.tx, entity, id, data)
}

func (t *sqliteTx) Patch(ctx context.Context, entity string, id int, data map[string]interface{}) error {
	return patchEntity(ctx, t.tx, entity, id, data)
}

func (t *sqliteTx) Delete(ctx context.Context, entity string, id int) error {
	return deleteEntity(ctx, t.tx, entity, id)
}

func (t *sqliteTx) Save(ctx context.Context, entity string, id int, data map[string]interface{}) error {
	return saveEntity(ctx, t.tx, entity, id, data)
}

func (t *sqliteTx) Find(ctx context.Context, entity string, filter map[string]interface{}) ([]int, error) {
	return findEntities(ctx, t.tx, entity, filter)
}

func (t *sqliteTx) List(ctx context.Context, entity string) ([]map[string]interface{}, error) {
	return listEntities(ctx, t.tx, entity)
}

func (t *sqliteTx) Exists(ctx context.Context, entity string, id int) bool {
	return entityExists(ctx, t.tx, entity, id)
}

func (t *sqliteTx) RegisterIdentity(ctx context.Context, m models.IdentityMapping) error {
	return insertIdentity(ctx, t.tx, m)
}

// Close is a no-op; a transaction ends with Commit or Rollback
func (t *sqliteTx) Close() error {
	return nil
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}
