package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ha1tch/hotelmig/pkg/models"
)

var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")
	// ErrAlreadyExists is returned when an entity or mapping already exists
	ErrAlreadyExists = errors.New("entity already exists")
	// ErrInvalidEntity is returned when entity name is invalid
	ErrInvalidEntity = errors.New("invalid entity name")
	// ErrGraphIntegrity is returned when graph_edges disagrees with stored references
	ErrGraphIntegrity = errors.New("graph integrity error")
)

// Store defines the local persistence collaborator
type Store interface {
	// Entity operations
	Create(ctx context.Context, entity string, data map[string]interface{}) (int, error)
	Get(ctx context.Context, entity string, id int) (map[string]interface{}, error)
	Update(ctx context.Context, entity string, id int, data map[string]interface{}) error
	Patch(ctx context.Context, entity string, id int, data map[string]interface{}) error
	Delete(ctx context.Context, entity string, id int) error
	Save(ctx context.Context, entity string, id int, data map[string]interface{}) error

	// Query operations
	Find(ctx context.Context, entity string, filter map[string]interface{}) ([]int, error)
	List(ctx context.Context, entity string) ([]map[string]interface{}, error)
	Exists(ctx context.Context, entity string, id int) bool

	// Lifecycle
	Close() error
}

// Transactional defines transaction support
type Transactional interface {
	Store
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction represents a storage transaction. Identity mappings written
// through it commit or roll back together with the records.
type Transaction interface {
	Store
	RegisterIdentity(ctx context.Context, m models.IdentityMapping) error
	Commit() error
	Rollback() error
}

// IdentityStore persists the remote to local identity table
type IdentityStore interface {
	LookupIdentity(ctx context.Context, entity models.EntityType, remoteID int) (int, error)
	RegisterIdentity(ctx context.Context, m models.IdentityMapping) error
	ListIdentities(ctx context.Context, entity models.EntityType) ([]models.IdentityMapping, error)
	// OrphanIdentities returns mappings whose local record no longer exists
	OrphanIdentities(ctx context.Context) ([]models.IdentityMapping, error)
}

// LogFilter narrows a migration log query; zero fields match everything
type LogFilter struct {
	ProfileID  int
	RunID      string
	EntityType models.EntityType
	Level      models.LogLevel
	Limit      int
}

// LogStore persists the append-only migration log
type LogStore interface {
	AppendLog(ctx context.Context, entry *models.MigrationLogEntry) error
	ListLog(ctx context.Context, filter LogFilter) ([]models.MigrationLogEntry, error)
}

// ProfileStore persists connection profiles
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *models.ConnectionProfile) error
	GetProfile(ctx context.Context, id int) (*models.ConnectionProfile, error)
	GetProfileByName(ctx context.Context, name string) (*models.ConnectionProfile, error)
	ListProfiles(ctx context.Context) ([]models.ConnectionProfile, error)
	UpdateCutover(ctx context.Context, id int, date time.Time, op models.CutoverOperator) error
}

// GraphIntegrity defines graph integrity checking
type GraphIntegrity interface {
	VerifyGraphIntegrity(ctx context.Context) error
	RebuildGraph(ctx context.Context) error
}

// MigrationStore is everything the migration engine persists through
type MigrationStore interface {
	Transactional
	IdentityStore
	LogStore
	ProfileStore
	GraphIntegrity
}

// StoreInfo provides metadata about the store implementation
type StoreInfo struct {
	Type                string
	Version             string
	SupportsTransaction bool
}

// InfoProvider allows stores to provide metadata about their capabilities
type InfoProvider interface {
	Info() StoreInfo
}
