package migration_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/hotelmig/pkg/cache"
	"github.com/ha1tch/hotelmig/pkg/identity"
	"github.com/ha1tch/hotelmig/pkg/migration"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
	"github.com/ha1tch/hotelmig/pkg/remote/remotetest"
	"github.com/ha1tch/hotelmig/pkg/storage"
	"github.com/ha1tch/hotelmig/pkg/validation"
)

// Each entity type has its own id sequence, so every seeded reference
// record has local id 1.
const (
	seeded            = 1
	localMariaPartner = 1000
)

var testSettings = migration.Settings{
	DefaultTaxRate:     10,
	DefaultCountryCode: "ES",
	ExcludedLogins:     []string{"admin"},
}

type fixture struct {
	store   storage.MigrationStore
	source  *remotetest.Source
	ids     *identity.Map
	orch    *migration.Orchestrator
	profile *models.ConnectionProfile
}

func setupMigrationTest(t *testing.T) (*fixture, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "hotelmig-migration-*.db")
	require.NoError(t, err)
	tmpFile.Close()

	store, err := storage.NewMigrationStore("sqlite", map[string]interface{}{"db_path": tmpFile.Name()})
	require.NoError(t, err)

	c := cache.NewMemoryCache(1024, time.Minute)
	fx := &fixture{
		store:  store,
		source: remotetest.New(),
		ids:    identity.New(store, c),
		profile: &models.ConnectionProfile{
			Name:            "legacy",
			Host:            "legacy.example.com",
			Port:            8069,
			Protocol:        remote.ProtocolJSONRPC,
			Database:        "hotel",
			Username:        "migrator",
			Password:        "secret",
			CutoverDate:     time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC),
			CutoverOperator: models.CutoverBefore,
		},
	}

	ctx := context.Background()
	require.NoError(t, store.CreateProfile(ctx, fx.profile))

	fx.orch, err = migration.New(migration.Options{
		Store:     store,
		Identity:  fx.ids,
		Validator: validation.NewSchemaValidator(),
		Dialer: func(ctx context.Context, p *models.ConnectionProfile) (remote.Source, error) {
			return fx.source, nil
		},
		Settings: testSettings,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	seedLocal(t, store)
	seedRemote(fx.source)

	cleanup := func() {
		c.Close()
		store.Close()
		os.Remove(tmpFile.Name())
	}
	return fx, cleanup
}

// seedLocal creates the destination reference data
func seedLocal(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	create := func(entity models.EntityType, data map[string]interface{}) {
		_, err := store.Create(ctx, string(entity), data)
		require.NoError(t, err)
	}

	create(models.Country, map[string]interface{}{"name": "Spain", "code": "ES", "xml_id": "base.es"})
	create(models.CountryState, map[string]interface{}{
		"name": "Málaga", "code": "MA", "country": models.Ref(models.Country, seeded),
	})
	create(models.PartnerCategory, map[string]interface{}{"name": "VIP"})
	create(models.ProductCategory, map[string]interface{}{"name": "Services"})
	create(models.Tax, map[string]interface{}{"name": "IVA 10%", "amount": 10})
	create(models.Journal, map[string]interface{}{"name": "Cash", "code": "CSH"})
	create(models.RoomType, map[string]interface{}{"name": "Double"})
	create(models.Room, map[string]interface{}{"name": "101"})
	create(models.OTAChannel, map[string]interface{}{"name": "Booking.com", "ota_id": "2"})

	require.NoError(t, store.Save(ctx, string(models.Partner), localMariaPartner, map[string]interface{}{
		"name": "María López",
	}))
	create(models.User, map[string]interface{}{
		"login": "maria", "partner": models.Ref(models.Partner, localMariaPartner),
	})
}

// seedRemote creates the legacy reference data
func seedRemote(src *remotetest.Source) {
	src.Add("res.country", remotetest.Record{"id": 68, "name": "Spain", "code": "ES"}).
		SetExternalID("res.country", 68, "base.es")
	src.Add("res.country.state", remotetest.Record{
		"id": 400, "name": "Malaga", "code": "MA", "country_id": link(68, "Spain"),
	})
	src.Add("res.partner.category", remotetest.Record{"id": 3, "name": "vip"})
	src.Add("product.category", remotetest.Record{"id": 5, "name": "Services"})
	src.Add("account.tax", remotetest.Record{"id": 7, "name": "IVA 10% (old)"})
	src.Add("account.journal", remotetest.Record{"id": 9, "name": "Caja", "code": "CSH"})
	src.Add("hotel.virtual.room", remotetest.Record{"id": 11, "name": "double"})
	src.Add("hotel.room", remotetest.Record{"id": 12, "name": "101"})
	src.Add("wubook.channel.ota.info", remotetest.Record{"id": 13, "name": "Booking", "ota_id": "2"})
	src.Add("res.users",
		remotetest.Record{"id": 1, "login": "admin", "partner_id": link(3, "Administrator")},
		remotetest.Record{"id": 6, "login": "maria", "partner_id": link(60, "Maria Lopez")},
	)
}

func link(id int, name string) []interface{} {
	return []interface{}{id, name}
}

func folio(id, partnerID int, dateOrder string) remotetest.Record {
	return remotetest.Record{
		"id":         id,
		"name":       "F/" + dateOrder[:4],
		"partner_id": link(partnerID, "guest"),
		"date_order": dateOrder,
		"state":      "sale",
	}
}

func partner(id int, name string) remotetest.Record {
	return remotetest.Record{"id": id, "name": name, "customer": true}
}

func (fx *fixture) run(t *testing.T, phase migration.Phase) *migration.BatchResult {
	t.Helper()
	report, err := fx.orch.RunPhase(context.Background(), fx.profile.ID, phase)
	require.NoError(t, err)
	require.NotNil(t, report.Result)
	return report.Result
}

func (fx *fixture) local(t *testing.T, entity models.EntityType, remoteID int) map[string]interface{} {
	t.Helper()
	ctx := context.Background()
	id, ok, err := fx.ids.Resolve(ctx, entity, remoteID)
	require.NoError(t, err)
	require.True(t, ok, "%s %d not migrated", entity, remoteID)
	rec, err := fx.store.Get(ctx, string(entity), id)
	require.NoError(t, err)
	return rec
}

func refID(t *testing.T, v interface{}) int {
	t.Helper()
	ref, ok := models.IsReference(v)
	require.True(t, ok, "not a reference: %v", v)
	return ref.ID
}

func refIDs(t *testing.T, v interface{}) []int {
	t.Helper()
	var ids []int
	for _, ref := range models.References(v) {
		ids = append(ids, ref.ID)
	}
	return ids
}
