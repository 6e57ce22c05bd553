// Package migration moves legacy hotel records into the local store: it
// builds the crosswalk tables, selects candidate records, transforms them and
// persists each one together with its identity mapping.
package migration

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ha1tch/hotelmig/pkg/identity"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
	"github.com/ha1tch/hotelmig/pkg/storage"
	"github.com/ha1tch/hotelmig/pkg/validation"
)

// Settings are the transformation defaults of a run
type Settings struct {
	DefaultTaxRate     float64
	DefaultCountryCode string
	ExcludedLogins     []string
}

// Context is everything one phase needs. It is passed explicitly to every
// migrator and transformer.
type Context struct {
	RunID      string
	Profile    *models.ConnectionProfile
	Source     remote.Source
	Store      storage.MigrationStore
	Identity   *identity.Map
	Crosswalks *Crosswalks
	Validator  validation.Validator
	Log        *Log
	Logger     zerolog.Logger
	Settings   Settings

	rejected []rejection
}

// rejection is a candidate that could not be decoded
type rejection struct {
	entity   models.EntityType
	remoteID int
	reason   string
}

// reject records candidates that did not decode. The running batch counts
// each one as failed unless it was migrated before.
func (mc *Context) reject(entity models.EntityType, bad malformed) {
	for _, id := range bad.ids() {
		mc.rejected = append(mc.rejected, rejection{entity: entity, remoteID: id, reason: bad[id]})
	}
}

// Cutover returns the profile's record selection boundary
func (mc *Context) Cutover() Cutover {
	return Cutover{Date: mc.Profile.CutoverDateString(), Op: mc.Profile.CutoverOperator}
}

// resolve maps a legacy link to an already migrated local record; 0 means
// no mapping.
func (mc *Context) resolve(ctx context.Context, entity models.EntityType, link remote.Many2One) (int, error) {
	if !link.Valid() {
		return 0, nil
	}
	id, ok, err := mc.Identity.Resolve(ctx, entity, link.ID)
	if err != nil || !ok {
		return 0, err
	}
	return id, nil
}

// require is resolve for mandatory links
func (mc *Context) require(ctx context.Context, entity models.EntityType, field string, link remote.Many2One) (int, error) {
	if !link.Valid() {
		return 0, fmt.Errorf("%s is not set", field)
	}
	id, err := mc.resolve(ctx, entity, link)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("%s %d (%s) has not been migrated", field, link.ID, link.Name)
	}
	return id, nil
}

// resolveAll maps legacy ids to migrated local ids, dropping the unmigrated
func (mc *Context) resolveAll(ctx context.Context, entity models.EntityType, ids []int) ([]int, error) {
	return mc.Identity.ResolveAll(ctx, entity, ids)
}
