package migration

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/storage"
)

// Log appends per-record problems of one run to the migration log
type Log struct {
	store     storage.LogStore
	runID     string
	profileID int
	logger    zerolog.Logger
}

// NewLog creates a log writer for a run
func NewLog(store storage.LogStore, runID string, profileID int, logger zerolog.Logger) *Log {
	return &Log{store: store, runID: runID, profileID: profileID, logger: logger}
}

// Warning records a repair made while migrating a record
func (l *Log) Warning(ctx context.Context, entity models.EntityType, remoteID int, message string) error {
	l.logger.Warn().
		Str("entity", string(entity)).
		Int("remote_id", remoteID).
		Str("run_id", l.runID).
		Msg(message)
	return l.append(ctx, entity, remoteID, models.LogWarning, message)
}

// Failure records a record that could not be migrated
func (l *Log) Failure(ctx context.Context, entity models.EntityType, remoteID int, message string) error {
	l.logger.Error().
		Str("entity", string(entity)).
		Int("remote_id", remoteID).
		Str("run_id", l.runID).
		Msg(message)
	return l.append(ctx, entity, remoteID, models.LogFailure, message)
}

func (l *Log) append(ctx context.Context, entity models.EntityType, remoteID int, level models.LogLevel, message string) error {
	return l.store.AppendLog(ctx, &models.MigrationLogEntry{
		RunID:      l.runID,
		ProfileID:  l.profileID,
		EntityType: entity,
		RemoteID:   remoteID,
		Level:      level,
		Message:    message,
	})
}
