package migration_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/hotelmig/pkg/migration"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote/remotetest"
)

var allDomains = []migration.Domain{
	migration.Countries, migration.States, migration.PartnerCategories, migration.ProductCategories,
	migration.Users, migration.RoomTypes, migration.Rooms, migration.Journals,
	migration.OTAChannels, migration.Taxes,
}

func TestBuilder_MatchesReferenceData(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	fx.source.Add("res.country", remotetest.Record{"id": 69, "name": "France", "code": "FR"})
	fx.source.Add("account.journal", remotetest.Record{"id": 10, "name": "cash", "code": false})
	fx.source.Add("res.users", remotetest.Record{"id": 7, "login": "  MARIA ", "partner_id": false})

	cw, err := migration.NewBuilder(fx.source, fx.store, testSettings, zerolog.Nop()).
		Build(context.Background(), allDomains...)
	require.NoError(t, err)

	tests := []struct {
		name     string
		domain   migration.Domain
		remoteID int
		want     int
		matched  bool
	}{
		{"country by external id", migration.Countries, 68, seeded, true},
		{"country without local record", migration.Countries, 69, 0, false},
		{"state ignoring accents", migration.States, 400, seeded, true},
		{"category ignoring case", migration.PartnerCategories, 3, seeded, true},
		{"product category", migration.ProductCategories, 5, seeded, true},
		{"user by login", migration.Users, 6, seeded, true},
		{"user login is trimmed and folded", migration.Users, 7, seeded, true},
		{"excluded login", migration.Users, 1, 0, false},
		{"room type", migration.RoomTypes, 11, seeded, true},
		{"room", migration.Rooms, 12, seeded, true},
		{"journal by code", migration.Journals, 9, seeded, true},
		{"journal by name", migration.Journals, 10, seeded, true},
		{"channel by OTA id", migration.OTAChannels, 13, seeded, true},
		{"tax with another name", migration.Taxes, 7, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cw.Lookup(tt.domain, tt.remoteID)
			assert.Equal(t, tt.matched, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "ES", cw.CountryCode(68))
	assert.Equal(t, "FR", cw.CountryCode(69))

	tax, ok := cw.DefaultTax()
	require.True(t, ok)
	assert.Equal(t, seeded, tax)

	assert.Equal(t, []int{seeded}, cw.LookupAll(migration.PartnerCategories, []int{3, 99}))
}

func TestBuilder_OnlyBuildsRequestedDomains(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	cw, err := migration.NewBuilder(fx.source, fx.store, testSettings, zerolog.Nop()).
		Build(context.Background(), migration.Journals, migration.Journals)
	require.NoError(t, err)

	assert.True(t, cw.Has(migration.Journals))
	assert.False(t, cw.Has(migration.Countries))
	assert.Equal(t, 1, cw.Len(migration.Journals))
	assert.Zero(t, fx.source.Calls("res.country"))
	assert.Equal(t, 1, fx.source.Calls("account.journal"))
}

func TestBuilder_AmbiguousLocalKeyIsNotMatched(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	ctx := context.Background()
	_, err := fx.store.Create(ctx, string(models.RoomType), map[string]interface{}{"name": " DOUBLE"})
	require.NoError(t, err)
	fx.source.Add("hotel.virtual.room", remotetest.Record{"id": 14, "name": 7})

	cw, err := migration.NewBuilder(fx.source, fx.store, testSettings, zerolog.Nop()).
		Build(ctx, migration.RoomTypes, migration.Rooms)
	require.NoError(t, err)

	_, ok := cw.Lookup(migration.RoomTypes, 11)
	assert.False(t, ok, "two local room types share the name")
	_, ok = cw.Lookup(migration.RoomTypes, 14)
	assert.False(t, ok)

	room, ok := cw.Lookup(migration.Rooms, 12)
	assert.True(t, ok)
	assert.Equal(t, seeded, room)
}

func TestBuilder_NoDefaultTaxForUnknownRate(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	settings := testSettings
	settings.DefaultTaxRate = 21

	cw, err := migration.NewBuilder(fx.source, fx.store, settings, zerolog.Nop()).
		Build(context.Background(), migration.Taxes)
	require.NoError(t, err)

	_, ok := cw.DefaultTax()
	assert.False(t, ok)
}

func TestCrosswalks_NilIsEmpty(t *testing.T) {
	var cw *migration.Crosswalks

	_, ok := cw.Lookup(migration.Countries, 68)
	assert.False(t, ok)
	assert.Empty(t, cw.LookupAll(migration.Taxes, []int{1, 2}))
	assert.False(t, cw.Has(migration.Taxes))
	assert.Zero(t, cw.Len(migration.Taxes))
	assert.Empty(t, cw.CountryCode(68))
	_, ok = cw.DefaultTax()
	assert.False(t, ok)
}
