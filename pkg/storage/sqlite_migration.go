package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ha1tch/hotelmig/pkg/models"
)

const timeLayout = time.RFC3339Nano

// LookupIdentity returns the local id mapped to a remote record
func (s *SQLiteStore) LookupIdentity(ctx context.Context, entity models.EntityType, remoteID int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var localID int
	err := s.db.QueryRowContext(ctx, `
		SELECT local_id FROM identity_map
		WHERE entity_type = ? AND remote_id = ?
	`, string(entity), remoteID).Scan(&localID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query identity: %w", err)
	}
	return localID, nil
}

// RegisterIdentity records a mapping outside any record transaction
func (s *SQLiteStore) RegisterIdentity(ctx context.Context, m models.IdentityMapping) error {
	return s.write(ctx, func(q dbtx) error {
		return insertIdentity(ctx, q, m)
	})
}

func insertIdentity(ctx context.Context, q dbtx, m models.IdentityMapping) error {
	if m.EntityType == "" || m.RemoteID <= 0 || m.LocalID <= 0 {
		return fmt.Errorf("invalid identity mapping %s/%d -> %d", m.EntityType, m.RemoteID, m.LocalID)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO identity_map (entity_type, remote_id, local_id, run_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, remote_id) DO NOTHING
	`, string(m.EntityType), m.RemoteID, m.LocalID, m.RunID, m.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s/%d", ErrAlreadyExists, m.EntityType, m.RemoteID)
	}
	return nil
}

// ListIdentities returns the mappings of one entity type ordered by remote id
func (s *SQLiteStore) ListIdentities(ctx context.Context, entity models.EntityType) ([]models.IdentityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, remote_id, local_id, run_id, created_at
		FROM identity_map
		WHERE entity_type = ?
		ORDER BY remote_id
	`, string(entity))
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	return scanIdentities(rows)
}

// OrphanIdentities returns mappings whose local record has been removed
func (s *SQLiteStore) OrphanIdentities(ctx context.Context) ([]models.IdentityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.entity_type, m.remote_id, m.local_id, m.run_id, m.created_at
		FROM identity_map m
		LEFT JOIN entities e ON e.entity_type = m.entity_type AND e.id = m.local_id
		WHERE e.id IS NULL
		ORDER BY m.entity_type, m.remote_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to find orphan identities: %w", err)
	}
	return scanIdentities(rows)
}

func scanIdentities(rows *sql.Rows) ([]models.IdentityMapping, error) {
	defer rows.Close()

	mappings := []models.IdentityMapping{}
	for rows.Next() {
		var m models.IdentityMapping
		var entity, created string
		if err := rows.Scan(&entity, &m.RemoteID, &m.LocalID, &m.RunID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		m.EntityType = models.EntityType(entity)
		m.CreatedAt, _ = time.Parse(timeLayout, created)
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// AppendLog adds an entry to the migration log and sets its id
func (s *SQLiteStore) AppendLog(ctx context.Context, entry *models.MigrationLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	return s.write(ctx, func(q dbtx) error {
		result, err := q.ExecContext(ctx, `
			INSERT INTO migration_log (run_id, profile_id, entity_type, remote_id, level, message, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, entry.RunID, entry.ProfileID, string(entry.EntityType), entry.RemoteID,
			string(entry.Level), entry.Message, entry.Timestamp.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("failed to append log entry: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		entry.ID = int(id)
		return nil
	})
}

// ListLog returns log entries newest first
func (s *SQLiteStore) ListLog(ctx context.Context, filter LogFilter) ([]models.MigrationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, run_id, profile_id, entity_type, remote_id, level, message, created_at
		FROM migration_log WHERE 1 = 1`
	var args []interface{}

	if filter.ProfileID > 0 {
		query += " AND profile_id = ?"
		args = append(args, filter.ProfileID)
	}
	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, string(filter.EntityType))
	}
	if filter.Level != "" {
		query += " AND level = ?"
		args = append(args, string(filter.Level))
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list log: %w", err)
	}
	defer rows.Close()

	entries := []models.MigrationLogEntry{}
	for rows.Next() {
		var e models.MigrationLogEntry
		var entity, level, created string
		if err := rows.Scan(&e.ID, &e.RunID, &e.ProfileID, &entity, &e.RemoteID, &level, &e.Message, &created); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.EntityType = models.EntityType(entity)
		e.Level = models.LogLevel(level)
		e.Timestamp, _ = time.Parse(timeLayout, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const profileColumns = `id, name, host, port, protocol, db_name, username, password,
	cutover_date, cutover_operator, remote_version, created_at`

// CreateProfile stores a new connection profile and sets its id
func (s *SQLiteStore) CreateProfile(ctx context.Context, p *models.ConnectionProfile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if _, err := models.ParseCutoverOperator(string(p.CutoverOperator)); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	return s.write(ctx, func(q dbtx) error {
		var exists bool
		if err := q.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM connection_profiles WHERE name = ?)", p.Name).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check profile: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: profile %q", ErrAlreadyExists, p.Name)
		}

		result, err := q.ExecContext(ctx, `
			INSERT INTO connection_profiles (name, host, port, protocol, db_name, username, password,
				cutover_date, cutover_operator, remote_version, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.Name, p.Host, p.Port, p.Protocol, p.Database, p.Username, p.Password,
			p.CutoverDateString(), string(p.CutoverOperator), p.RemoteVersion, p.CreatedAt.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("failed to insert profile: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		p.ID = int(id)
		return nil
	})
}

// GetProfile retrieves a profile by id
func (s *SQLiteStore) GetProfile(ctx context.Context, id int) (*models.ConnectionProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM connection_profiles WHERE id = ?", id)
	return scanProfile(row)
}

// GetProfileByName retrieves a profile by its unique name
func (s *SQLiteStore) GetProfileByName(ctx context.Context, name string) (*models.ConnectionProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM connection_profiles WHERE name = ?", name)
	return scanProfile(row)
}

// ListProfiles returns all profiles ordered by id
func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]models.ConnectionProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+profileColumns+" FROM connection_profiles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := []models.ConnectionProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// UpdateCutover changes a profile's cutover date and operator, the only
// mutation a profile allows.
func (s *SQLiteStore) UpdateCutover(ctx context.Context, id int, date time.Time, op models.CutoverOperator) error {
	if _, err := models.ParseCutoverOperator(string(op)); err != nil {
		return err
	}

	return s.write(ctx, func(q dbtx) error {
		result, err := q.ExecContext(ctx, `
			UPDATE connection_profiles SET cutover_date = ?, cutover_operator = ?
			WHERE id = ?
		`, date.Format("2006-01-02"), string(op), id)
		if err != nil {
			return fmt.Errorf("failed to update cutover: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*models.ConnectionProfile, error) {
	var p models.ConnectionProfile
	var cutover, op, created string
	err := row.Scan(&p.ID, &p.Name, &p.Host, &p.Port, &p.Protocol, &p.Database, &p.Username, &p.Password,
		&cutover, &op, &p.RemoteVersion, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	p.CutoverDate, err = time.Parse("2006-01-02", cutover)
	if err != nil {
		return nil, fmt.Errorf("profile %d has invalid cutover date %q: %w", p.ID, cutover, err)
	}
	p.CutoverOperator = models.CutoverOperator(op)
	p.CreatedAt, _ = time.Parse(timeLayout, created)
	return &p, nil
}
