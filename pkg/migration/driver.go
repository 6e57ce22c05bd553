package migration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ha1tch/hotelmig/pkg/command"
	"github.com/ha1tch/hotelmig/pkg/graph"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
	"github.com/ha1tch/hotelmig/pkg/storage"
)

// Status is the result of one candidate record
type Status int

const (
	StatusMigrated Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusMigrated:
		return "migrated"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is Migrated(local id), Skipped or Failed(reason)
type Outcome struct {
	Status  Status
	LocalID int
	Reason  string
}

func Migrated(localID int) Outcome { return Outcome{Status: StatusMigrated, LocalID: localID} }
func Skipped() Outcome             { return Outcome{Status: StatusSkipped} }
func Failed(reason string) Outcome { return Outcome{Status: StatusFailed, Reason: reason} }

// BatchResult aggregates the outcomes of one entity batch
type BatchResult struct {
	Entity   models.EntityType `json:"entity,omitempty"`
	Migrated int               `json:"migrated"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Warnings int               `json:"warnings"`
}

func (r *BatchResult) add(o Outcome) {
	switch o.Status {
	case StatusMigrated:
		r.Migrated++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
}

// Transformed is the local form of one legacy record
type Transformed struct {
	Fields   command.FieldSet
	Warnings []string // repairs, each logged once the record is stored
	Existing int      // local record to update instead of creating one
}

// Migrator is the entity-specific half of a batch: candidate selection and
// the field rules.
type Migrator[T models.Record] interface {
	Entity() models.EntityType
	Fetch(ctx context.Context, mc *Context) ([]T, error)
	Transform(ctx context.Context, mc *Context, rec T) (*Transformed, error)
}

// RunBatch migrates every candidate the migrator selects. Per-record errors
// are logged and counted; fatal remote errors and cancellation stop the
// batch and are returned with the partial result.
func RunBatch[T models.Record](ctx context.Context, mc *Context, m Migrator[T]) (*BatchResult, error) {
	entity := m.Entity()
	result := &BatchResult{Entity: entity}

	mc.rejected = nil
	records, err := m.Fetch(ctx, mc)
	if err != nil {
		return result, fmt.Errorf("select %s candidates: %w", entity, err)
	}
	for _, r := range mc.rejected {
		result.add(rejectRecord(ctx, mc, r))
	}
	mc.rejected = nil

	records = parentsFirst(mc, records)
	mc.Logger.Info().Str("entity", string(entity)).Int("candidates", len(records)).Str("run_id", mc.RunID).Msg("batch started")

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome, err := migrateRecord(ctx, mc, m, rec)
		if err != nil {
			return result, fmt.Errorf("migrate %s %d: %w", entity, rec.RemoteID(), err)
		}
		result.add(outcome)
		if outcome.Status == StatusMigrated && outcome.Reason != "" {
			result.Warnings++
		}
	}

	mc.Logger.Info().
		Str("entity", string(entity)).
		Int("migrated", result.Migrated).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("warnings", result.Warnings).
		Str("run_id", mc.RunID).
		Msg("batch finished")
	return result, nil
}

// migrateRecord runs one record through idempotency check, transformation,
// validation and persistence. Only fatal errors are returned; everything
// else becomes a Failed outcome. A Migrated outcome carries a non-empty
// Reason when the record was repaired.
func migrateRecord[T models.Record](ctx context.Context, mc *Context, m Migrator[T], rec T) (outcome Outcome, fatal error) {
	entity := m.Entity()
	remoteID := rec.RemoteID()

	defer func() {
		if r := recover(); r != nil {
			outcome, fatal = fail(ctx, mc, entity, remoteID, fmt.Errorf("panic: %v", r))
		}
	}()

	if _, ok, err := mc.Identity.Resolve(ctx, entity, remoteID); err != nil {
		return fail(ctx, mc, entity, remoteID, err)
	} else if ok {
		mc.Logger.Debug().Str("entity", string(entity)).Int("remote_id", remoteID).Msg("already migrated")
		return Skipped(), nil
	}

	t, err := m.Transform(ctx, mc, rec)
	if err != nil {
		if remote.IsFatal(err) {
			return Outcome{}, err
		}
		return fail(ctx, mc, entity, remoteID, err)
	}

	var base map[string]interface{}
	if t.Existing > 0 {
		if base, err = mc.Store.Get(ctx, string(entity), t.Existing); err != nil {
			return fail(ctx, mc, entity, remoteID, fmt.Errorf("local %s %d: %w", entity, t.Existing, err))
		}
	}
	if problems := validate(mc, entity, base, t.Fields); len(problems) > 0 {
		return fail(ctx, mc, entity, remoteID, fmt.Errorf("validation failed: %s", strings.Join(problems, "; ")))
	}

	localID := t.Existing
	err = storage.WithTransaction(ctx, mc.Store, func(tx storage.Transaction) error {
		if t.Existing > 0 {
			if err := storage.ApplyUpdate(ctx, tx, entity, t.Existing, t.Fields); err != nil {
				return err
			}
		} else {
			id, err := storage.ApplyCreate(ctx, tx, entity, t.Fields)
			if err != nil {
				return err
			}
			localID = id
		}
		return mc.Identity.RegisterTx(ctx, tx, entity, remoteID, localID, mc.RunID)
	})
	if err != nil {
		return fail(ctx, mc, entity, remoteID, err)
	}
	mc.Identity.Remember(ctx, entity, remoteID, localID)

	for _, warning := range t.Warnings {
		if err := mc.Log.Warning(ctx, entity, remoteID, warning); err != nil {
			mc.Logger.Error().Err(err).Msg("failed to write migration log")
		}
	}

	mc.Logger.Info().
		Str("entity", string(entity)).
		Int("remote_id", remoteID).
		Int("local_id", localID).
		Str("run_id", mc.RunID).
		Msg("migrated")

	outcome = Migrated(localID)
	outcome.Reason = strings.Join(t.Warnings, "; ")
	return outcome, nil
}

// rejectRecord settles a candidate that did not decode: a record migrated
// by an earlier run is skipped, anything else fails.
func rejectRecord(ctx context.Context, mc *Context, r rejection) Outcome {
	if r.remoteID > 0 {
		if _, ok, err := mc.Identity.Resolve(ctx, r.entity, r.remoteID); err == nil && ok {
			mc.Logger.Debug().Str("entity", string(r.entity)).Int("remote_id", r.remoteID).Msg("already migrated")
			return Skipped()
		}
	}
	outcome, _ := fail(ctx, mc, r.entity, r.remoteID, errors.New(r.reason))
	return outcome
}

func fail(ctx context.Context, mc *Context, entity models.EntityType, remoteID int, err error) (Outcome, error) {
	if logErr := mc.Log.Failure(ctx, entity, remoteID, err.Error()); logErr != nil {
		mc.Logger.Error().Err(logErr).Msg("failed to write migration log")
	}
	return Failed(err.Error()), nil
}

// validate checks a field set and its nested records. For updates, base is
// the stored record the field set is applied to.
func validate(mc *Context, entity models.EntityType, base map[string]interface{}, fs command.FieldSet) []string {
	if mc.Validator == nil {
		return nil
	}

	data := fs.Values()
	for k, v := range base {
		if _, ok := data[k]; !ok {
			data[k] = v
		}
	}

	var problems []string
	if ok, errs := mc.Validator.Validate(string(entity), data); !ok {
		problems = append(problems, errs...)
	}
	for _, n := range fs.Nested() {
		for _, p := range validate(mc, n.Entity, nil, n.Fields) {
			problems = append(problems, fmt.Sprintf("%s: %s", n.Entity, p))
		}
	}
	return problems
}

// parentsFirst orders records so a parent of the same entity type in the
// batch comes before its children. Records without a parent in the batch
// keep their relative order at the front. A second candidate with the same
// remote id is dropped.
func parentsFirst[T models.Record](mc *Context, records []T) []T {
	byID := make(map[string]T, len(records))
	unique := make([]T, 0, len(records))
	g := graph.New()
	for _, rec := range records {
		key := strconv.Itoa(rec.RemoteID())
		if _, dup := byID[key]; dup {
			mc.Logger.Debug().Int("remote_id", rec.RemoteID()).Msg("duplicate candidate dropped")
			continue
		}
		byID[key] = rec
		unique = append(unique, rec)
		g.AddNode(key)
	}
	for _, rec := range unique {
		parent := strconv.Itoa(rec.ParentRemoteID())
		if _, ok := byID[parent]; ok && rec.ParentRemoteID() != rec.RemoteID() {
			g.AddEdge(strconv.Itoa(rec.RemoteID()), parent, "parent")
		}
	}

	order, err := g.TopologicalOrder()
	if errors.Is(err, graph.ErrCycle) {
		mc.Logger.Warn().Err(err).Msg("parent references form a cycle")
	}

	ordered := make([]T, 0, len(order))
	for _, key := range order {
		ordered = append(ordered, byID[key])
	}
	return ordered
}
