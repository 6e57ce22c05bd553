package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ha1tch/hotelmig/pkg/models"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore implements MigrationStore using SQLite database
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	config SQLiteConfig
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	DBPath      string
	EnableWAL   bool // Write-Ahead Logging for better concurrency
	CacheSize   int  // Page cache size in KB
	BusyTimeout int  // Milliseconds to wait on locked database
}

// dbtx is satisfied by both *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var _ MigrationStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based storage
func NewSQLiteStore(dbPath string, config SQLiteConfig) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "hotelmig.db"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	store := &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		config: config,
	}

	if err := store.initialize(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *SQLiteStore) initialize(ctx context.Context) error {
	journal := "DELETE"
	if s.config.EnableWAL {
		journal = "WAL"
	}
	pragmas := []string{
		"PRAGMA journal_mode = " + journal,
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", s.config.CacheSize),
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.config.BusyTimeout),
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		-- Local records (JSON blob approach)
		CREATE TABLE IF NOT EXISTS entities (
			entity_type TEXT NOT NULL,
			id INTEGER NOT NULL,
			data TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (entity_type, id)
		);

		CREATE INDEX IF NOT EXISTS idx_entity_type ON entities(entity_type);

		-- References between records, kept in step with REF fields
		CREATE TABLE IF NOT EXISTS graph_edges (
			source_entity TEXT NOT NULL,
			source_id INTEGER NOT NULL,
			target_entity TEXT NOT NULL,
			target_id INTEGER NOT NULL,
			relationship_name TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (source_entity, source_id, target_entity, target_id, relationship_name)
		);

		CREATE INDEX IF NOT EXISTS idx_graph_source ON graph_edges(source_entity, source_id);
		CREATE INDEX IF NOT EXISTS idx_graph_target ON graph_edges(target_entity, target_id);

		CREATE TABLE IF NOT EXISTS entity_sequences (
			entity_type TEXT PRIMARY KEY,
			next_id INTEGER NOT NULL DEFAULT 1
		);

		-- (entity_type, remote_id) -> local_id, never overwritten
		CREATE TABLE IF NOT EXISTS identity_map (
			entity_type TEXT NOT NULL,
			remote_id INTEGER NOT NULL,
			local_id INTEGER NOT NULL,
			run_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			PRIMARY KEY (entity_type, remote_id)
		);

		CREATE INDEX IF NOT EXISTS idx_identity_local ON identity_map(entity_type, local_id);

		-- Append-only per-record problems
		CREATE TABLE IF NOT EXISTS migration_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			profile_id INTEGER NOT NULL,
			entity_type TEXT NOT NULL,
			remote_id INTEGER NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_log_profile ON migration_log(profile_id, id);

		CREATE TABLE IF NOT EXISTS connection_profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			protocol TEXT NOT NULL,
			db_name TEXT NOT NULL,
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			cutover_date TEXT NOT NULL,
			cutover_operator TEXT NOT NULL,
			remote_version TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// Info returns store information
func (s *SQLiteStore) Info() StoreInfo {
	return StoreInfo{
		Type:                "sqlite",
		Version:             "1.0.0",
		SupportsTransaction: true,
	}
}

// write runs fn in a short transaction owned by the store
func (s *SQLiteStore) write(ctx context.Context, fn func(q dbtx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Create inserts a new entity with auto-generated ID
func (s *SQLiteStore) Create(ctx context.Context, entity string, data map[string]interface{}) (int, error) {
	var id int
	err := s.write(ctx, func(q dbtx) error {
		var err error
		id, err = createEntity(ctx, q, entity, data)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get retrieves an entity by ID
func (s *SQLiteStore) Get(ctx context.Context, entity string, id int) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntity(ctx, s.db, entity, id)
}

// Update replaces an entity completely
func (s *SQLiteStore) Update(ctx context.Context, entity string, id int, data map[string]interface{}) error {
	return s.write(ctx, func(q dbtx) error {
		return updateEntity(ctx, q, entity, id, data)
	})
}

// Patch partially updates an entity; nil values remove fields
func (s *SQLiteStore) Patch(ctx context.Context, entity string, id int, updates map[string]interface{}) error {
	return s.write(ctx, func(q dbtx) error {
		return patchEntity(ctx, q, entity, id, updates)
	})
}

// Delete removes an entity and its edges
func (s *SQLiteStore) Delete(ctx context.Context, entity string, id int) error {
	return s.write(ctx, func(q dbtx) error {
		return deleteEntity(ctx, q, entity, id)
	})
}

// Save creates an entity with a specific ID (fails if exists)
func (s *SQLiteStore) Save(ctx context.Context, entity string, id int, data map[string]interface{}) error {
	return s.write(ctx, func(q dbtx) error {
		return saveEntity(ctx, q, entity, id, data)
	})
}

// Find returns the ids of entities whose fields equal every filter value
func (s *SQLiteStore) Find(ctx context.Context, entity string, filter map[string]interface{}) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findEntities(ctx, s.db, entity, filter)
}

// List returns all entities of a given type
func (s *SQLiteStore) List(ctx context.Context, entity string) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEntities(ctx, s.db, entity)
}

// Exists checks if an entity exists
func (s *SQLiteStore) Exists(ctx context.Context, entity string, id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entityExists(ctx, s.db, entity, id)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func createEntity(ctx context.Context, q dbtx, entity string, data map[string]interface{}) (int, error) {
	if entity == "" {
		return 0, ErrInvalidEntity
	}

	var nextID int
	err := q.QueryRowContext(ctx, `
		INSERT INTO entity_sequences (entity_type, next_id)
		VALUES (?, 1)
		ON CONFLICT(entity_type) DO UPDATE SET next_id = next_id + 1
		RETURNING next_id
	`, entity).Scan(&nextID)
	if err != nil {
		return 0, fmt.Errorf("failed to get next ID: %w", err)
	}

	dataCopy := copyData(data, nextID)
	jsonData, err := json.Marshal(dataCopy)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal data: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO entities (entity_type, id, data)
		VALUES (?, ?, ?)
	`, entity, nextID, string(jsonData))
	if err != nil {
		return 0, fmt.Errorf("failed to insert entity: %w", err)
	}

	if err := syncGraphEdges(ctx, q, entity, nextID, dataCopy); err != nil {
		return 0, fmt.Errorf("failed to sync graph: %w", err)
	}

	return nextID, nil
}

func saveEntity(ctx context.Context, q dbtx, entity string, id int, data map[string]interface{}) error {
	if entity == "" {
		return ErrInvalidEntity
	}
	if entityExists(ctx, q, entity, id) {
		return ErrAlreadyExists
	}

	dataCopy := copyData(data, id)
	jsonData, err := json.Marshal(dataCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO entity_sequences (entity_type, next_id)
		VALUES (?, ?)
		ON CONFLICT(entity_type) DO UPDATE
		SET next_id = MAX(next_id, excluded.next_id)
	`, entity, id)
	if err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO entities (entity_type, id, data)
		VALUES (?, ?, ?)
	`, entity, id, string(jsonData))
	if err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}

	if err := syncGraphEdges(ctx, q, entity, id, dataCopy); err != nil {
		return fmt.Errorf("failed to sync graph: %w", err)
	}
	return nil
}

func getEntity(ctx context.Context, q dbtx, entity string, id int) (map[string]interface{}, error) {
	var jsonData string
	err := q.QueryRowContext(ctx, `
		SELECT data FROM entities
		WHERE entity_type = ? AND id = ?
	`, entity, id).Scan(&jsonData)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entity: %w", err)
	}

	return decodeData(jsonData)
}

func updateEntity(ctx context.Context, q dbtx, entity string, id int, data map[string]interface{}) error {
	dataCopy := copyData(data, id)
	return writeEntity(ctx, q, entity, id, dataCopy)
}

func patchEntity(ctx context.Context, q dbtx, entity string, id int, updates map[string]interface{}) error {
	existing, err := getEntity(ctx, q, entity, id)
	if err != nil {
		return err
	}

	for key, value := range updates {
		if key == "id" {
			continue
		}
		if value == nil {
			delete(existing, key)
		} else {
			existing[key] = value
		}
	}
	existing["id"] = id

	return writeEntity(ctx, q, entity, id, existing)
}

func writeEntity(ctx context.Context, q dbtx, entity string, id int, data map[string]interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	result, err := q.ExecContext(ctx, `
		UPDATE entities
		SET data = ?, updated_at = CURRENT_TIMESTAMP
		WHERE entity_type = ? AND id = ?
	`, string(jsonData), entity, id)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	if err := syncGraphEdges(ctx, q, entity, id, data); err != nil {
		return fmt.Errorf("failed to sync graph: %w", err)
	}
	return nil
}

func deleteEntity(ctx context.Context, q dbtx, entity string, id int) error {
	result, err := q.ExecContext(ctx, `
		DELETE FROM entities
		WHERE entity_type = ? AND id = ?
	`, entity, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	_, err = q.ExecContext(ctx, `
		DELETE FROM graph_edges
		WHERE (source_entity = ? AND source_id = ?)
		   OR (target_entity = ? AND target_id = ?)
	`, entity, id, entity, id)
	if err != nil {
		return fmt.Errorf("failed to delete graph edges: %w", err)
	}
	return nil
}

func findEntities(ctx context.Context, q dbtx, entity string, filter map[string]interface{}) ([]int, error) {
	query := "SELECT id FROM entities WHERE entity_type = ?"
	args := []interface{}{entity}

	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := filter[key]
		if ref, ok := models.IsReference(value); ok {
			query += " AND json_extract(data, '$.' || ? || '.entity') = ? AND json_extract(data, '$.' || ? || '.id') = ?"
			args = append(args, key, ref.Entity, key, ref.ID)
			continue
		}
		switch v := value.(type) {
		case nil:
			query += " AND json_extract(data, '$.' || ?) IS NULL"
			args = append(args, key)
		case bool:
			b := 0
			if v {
				b = 1
			}
			query += " AND json_extract(data, '$.' || ?) = ?"
			args = append(args, key, b)
		default:
			query += " AND json_extract(data, '$.' || ?) = ?"
			args = append(args, key, value)
		}
	}
	query += " ORDER BY id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find entities: %w", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func listEntities(ctx context.Context, q dbtx, entity string) ([]map[string]interface{}, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT data FROM entities
		WHERE entity_type = ?
		ORDER BY id
	`, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		var jsonData string
		if err := rows.Scan(&jsonData); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		data, err := decodeData(jsonData)
		if err != nil {
			return nil, err
		}
		results = append(results, data)
	}

	return results, rows.Err()
}

func entityExists(ctx context.Context, q dbtx, entity string, id int) bool {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM entities WHERE entity_type = ? AND id = ?)
	`, entity, id).Scan(&exists)

	return err == nil && exists
}

func copyData(data map[string]interface{}, id int) map[string]interface{} {
	dataCopy := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		dataCopy[k] = v
	}
	dataCopy["id"] = id
	return dataCopy
}

func decodeData(jsonData string) (map[string]interface{}, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return data, nil
}

// edgeKey identifies one graph edge
type edgeKey struct {
	source   string
	sourceID int
	target   string
	targetID int
	name     string
}

func (e edgeKey) String() string {
	return fmt.Sprintf("%s:%d:%s:%d:%s", e.source, e.sourceID, e.target, e.targetID, e.name)
}

// referenceEdges lists the edges implied by a record's REF fields, single or
// list valued.
func referenceEdges(entity string, id int, data map[string]interface{}) []edgeKey {
	var edges []edgeKey
	for key, value := range data {
		if key == "id" {
			continue
		}
		for _, ref := range models.References(value) {
			if ref.Entity == "" || ref.ID <= 0 {
				continue
			}
			edges = append(edges, edgeKey{entity, id, ref.Entity, ref.ID, key})
		}
	}
	return edges
}

// syncGraphEdges replaces the outgoing edges of one record
func syncGraphEdges(ctx context.Context, q dbtx, sourceEntity string, sourceID int, data map[string]interface{}) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM graph_edges
		WHERE source_entity = ? AND source_id = ?
	`, sourceEntity, sourceID)
	if err != nil {
		return err
	}

	for _, edge := range referenceEdges(sourceEntity, sourceID, data) {
		if err := insertEdge(ctx, q, edge); err != nil {
			return err
		}
	}
	return nil
}

func insertEdge(ctx context.Context, q dbtx, edge edgeKey) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO graph_edges (source_entity, source_id, target_entity, target_id, relationship_name)
		VALUES (?, ?, ?, ?, ?)
	`, edge.source, edge.sourceID, edge.target, edge.targetID, edge.name)
	return err
}

// VerifyGraphIntegrity checks if graph_edges matches stored REF fields
func (s *SQLiteStore) VerifyGraphIntegrity(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT entity_type, id, data FROM entities")
	if err != nil {
		return err
	}
	defer rows.Close()

	expected := make(map[edgeKey]bool)
	for rows.Next() {
		var entity, jsonData string
		var id int
		if err := rows.Scan(&entity, &id, &jsonData); err != nil {
			return err
		}

		data, err := decodeData(jsonData)
		if err != nil {
			continue
		}
		for _, edge := range referenceEdges(entity, id, data) {
			expected[edge] = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	actualRows, err := s.db.QueryContext(ctx,
		"SELECT source_entity, source_id, target_entity, target_id, relationship_name FROM graph_edges")
	if err != nil {
		return err
	}
	defer actualRows.Close()

	actual := make(map[edgeKey]bool)
	for actualRows.Next() {
		var edge edgeKey
		if err := actualRows.Scan(&edge.source, &edge.sourceID, &edge.target, &edge.targetID, &edge.name); err != nil {
			return err
		}
		actual[edge] = true
	}
	if err := actualRows.Err(); err != nil {
		return err
	}

	for edge := range expected {
		if !actual[edge] {
			return fmt.Errorf("%w: missing edge: %s", ErrGraphIntegrity, edge)
		}
	}
	for edge := range actual {
		if !expected[edge] {
			return fmt.Errorf("%w: unexpected edge: %s", ErrGraphIntegrity, edge)
		}
	}

	return nil
}

// RebuildGraph rebuilds the graph_edges table from stored records
func (s *SQLiteStore) RebuildGraph(ctx context.Context) error {
	return s.write(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM graph_edges"); err != nil {
			return err
		}

		rows, err := q.QueryContext(ctx, "SELECT entity_type, id, data FROM entities")
		if err != nil {
			return err
		}

		var edges []edgeKey
		for rows.Next() {
			var entity, jsonData string
			var id int
			if err := rows.Scan(&entity, &id, &jsonData); err != nil {
				rows.Close()
				return err
			}
			data, err := decodeData(jsonData)
			if err != nil {
				continue
			}
			edges = append(edges, referenceEdges(entity, id, data)...)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, edge := range edges {
			if err := insertEdge(ctx, q, edge); err != nil {
				return fmt.Errorf("failed to insert edge: %w", err)
			}
		}
		return nil
	})
}
