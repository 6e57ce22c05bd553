package migration_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/hotelmig/pkg/migration"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
	"github.com/ha1tch/hotelmig/pkg/remote/remotetest"
	"github.com/ha1tch/hotelmig/pkg/storage"
	"github.com/ha1tch/hotelmig/pkg/validation"
)

func TestParsePhase(t *testing.T) {
	tests := []struct {
		input string
		want  migration.Phase
	}{
		{"partners", migration.PhasePartners},
		{"migrate-partners", migration.PhasePartners},
		{"payment_returns", migration.PhasePaymentReturns},
		{"Migrate-Invoices", migration.PhaseInvoices},
		{"cleanup", migration.PhaseCleanup},
		{"clean-up", migration.PhaseCleanup},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := migration.ParsePhase(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := migration.ParsePhase("rooms")
	assert.ErrorIs(t, err, migration.ErrUnknownPhase)
}

func TestPhases_Order(t *testing.T) {
	phases := migration.Phases()
	require.Len(t, phases, 10)
	assert.Equal(t, migration.PhaseUsers, phases[0])
	assert.Equal(t, migration.PhaseCleanup, phases[len(phases)-1])
}

func TestPrerequisites(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	got, err := fx.orch.Prerequisites(migration.PhaseServices)
	require.NoError(t, err)
	assert.Equal(t, []migration.Phase{
		migration.PhaseUsers,
		migration.PhasePartners,
		migration.PhaseProducts,
		migration.PhaseFolios,
		migration.PhaseReservations,
	}, got)

	got, err = fx.orch.Prerequisites(migration.PhaseUsers)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = fx.orch.Prerequisites(migration.Phase("rooms"))
	assert.ErrorIs(t, err, migration.ErrUnknownPhase)
}

func TestFolios_FailureIsolation(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	fx.source.Add("res.partner", partner(42, "Ana Ruiz"), partner(43, "Luis Gomez"))
	orphan := folio(502, 0, "2019-05-21 10:00:00")
	orphan["partner_id"] = false
	fx.source.Add("hotel.folio",
		folio(501, 42, "2019-05-20 10:00:00"),
		orphan,
		folio(503, 43, "2019-05-22 10:00:00"),
	)

	fx.run(t, migration.PhasePartners)
	result := fx.run(t, migration.PhaseFolios)
	assert.Equal(t, models.Folio, result.Entity)
	assert.Equal(t, 2, result.Migrated)
	assert.Equal(t, 1, result.Failed)

	entries, err := fx.store.ListLog(context.Background(), storage.LogFilter{EntityType: models.Folio})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 502, entries[0].RemoteID)
	assert.Equal(t, models.LogFailure, entries[0].Level)
	assert.Contains(t, entries[0].Message, "partner is not set")
	assert.NotEmpty(t, entries[0].RunID)

	fx.local(t, models.Folio, 501)
	fx.local(t, models.Folio, 503)
}

func TestFolios_MalformedRecordFailsAlone(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	fx.source.Add("res.partner", partner(42, "Ana Ruiz"))
	mistyped := folio(502, 42, "2019-05-21 10:00:00")
	mistyped["name"] = 12345
	fx.source.Add("hotel.folio",
		folio(501, 42, "2019-05-20 10:00:00"),
		mistyped,
		folio(503, 42, "2019-05-22 10:00:00"),
	)

	fx.run(t, migration.PhasePartners)
	report, err := fx.orch.RunPhase(context.Background(), fx.profile.ID, migration.PhaseFolios)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Result.Migrated)
	assert.Equal(t, 1, report.Result.Failed)

	entries, err := fx.store.ListLog(context.Background(), storage.LogFilter{EntityType: models.Folio})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 502, entries[0].RemoteID)
	assert.Equal(t, models.LogFailure, entries[0].Level)
	assert.Contains(t, entries[0].Message, "malformed record")

	fx.local(t, models.Folio, 501)
	fx.local(t, models.Folio, 503)

	again := fx.run(t, migration.PhaseFolios)
	assert.Equal(t, 2, again.Skipped)
	assert.Equal(t, 1, again.Failed)
}

func TestRunPhase_Idempotent(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	fx.source.Add("res.partner", partner(42, "Ana Ruiz"), partner(43, "Luis Gomez"))
	fx.source.Add("hotel.folio",
		folio(500, 42, "2019-05-20 10:00:00"),
		folio(501, 43, "2019-05-21 10:00:00"),
	)

	first := fx.run(t, migration.PhasePartners)
	assert.Equal(t, 2, first.Migrated)
	firstID := refIDOf(t, fx, 42)

	second := fx.run(t, migration.PhasePartners)
	assert.Equal(t, 0, second.Migrated)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 0, second.Failed)
	assert.Equal(t, firstID, refIDOf(t, fx, 42))

	partners, err := fx.store.List(context.Background(), string(models.Partner))
	require.NoError(t, err)
	assert.Len(t, partners, 3, "seeded user partner plus two guests")
}

func TestRunPhase_CutoverOperatorFlip(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	fx.source.Add("res.partner", partner(42, "Ana Ruiz"))
	fx.source.Add("hotel.folio",
		folio(500, 42, "2019-05-31 23:59:59"),
		folio(501, 42, "2019-06-01 00:00:00"),
	)
	fx.run(t, migration.PhasePartners)

	before := fx.run(t, migration.PhaseFolios)
	assert.Equal(t, 1, before.Migrated)
	fx.local(t, models.Folio, 500)

	ctx := context.Background()
	require.NoError(t, fx.store.UpdateCutover(ctx, fx.profile.ID, fx.profile.CutoverDate, models.CutoverOnOrAfter))

	after := fx.run(t, migration.PhaseFolios)
	assert.Equal(t, 1, after.Migrated)
	assert.Equal(t, 0, after.Skipped, "the earlier folio is no longer a candidate")
	fx.local(t, models.Folio, 501)
}

func TestUsersPhase_AnchorsUserPartners(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	fx.source.Add("res.partner", partner(60, "Maria Lopez"), partner(3, "Administrator"))
	fx.source.Add("hotel.folio",
		folio(500, 60, "2019-05-20 10:00:00"),
		folio(501, 3, "2019-05-20 10:00:00"),
	)

	users := fx.run(t, migration.PhaseUsers)
	assert.Equal(t, models.Partner, users.Entity)
	assert.Equal(t, 1, users.Migrated, "admin is excluded")
	assert.Equal(t, localMariaPartner, refIDOf(t, fx, 60))

	anchored := fx.local(t, models.Partner, 60)
	assert.Equal(t, "María López", anchored["name"], "local data is kept")
	assert.EqualValues(t, 60, anchored["remote_id"])

	partners := fx.run(t, migration.PhasePartners)
	assert.Equal(t, 1, partners.Skipped)
	assert.Equal(t, 1, partners.Migrated, "the administrator partner is an ordinary guest")
	assert.Equal(t, localMariaPartner, refIDOf(t, fx, 60))
}

func TestUsersPhase_KeepsAnAnchoredPartner(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, fx.store.Patch(ctx, string(models.Partner), localMariaPartner, map[string]interface{}{
		"remote_id": 99,
	}))

	users := fx.run(t, migration.PhaseUsers)
	assert.Equal(t, 0, users.Migrated)
	assert.Equal(t, 1, users.Failed)

	entries, err := fx.store.ListLog(ctx, storage.LogFilter{Level: models.LogFailure})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 60, entries[0].RemoteID)
	assert.Contains(t, entries[0].Message, "already belongs to legacy partner 99")

	rec, err := fx.store.Get(ctx, string(models.Partner), localMariaPartner)
	require.NoError(t, err)
	assert.EqualValues(t, 99, rec["remote_id"])

	_, ok, err := fx.ids.Resolve(ctx, models.Partner, 60)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCleanup_ReportsOrphanedIdentities(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	fx.source.Add("res.partner", partner(42, "Ana Ruiz"), partner(43, "Luis Gomez"))
	fx.source.Add("hotel.folio",
		folio(500, 42, "2019-05-20 10:00:00"),
		folio(501, 43, "2019-05-21 10:00:00"),
	)
	fx.run(t, migration.PhasePartners)

	ctx := context.Background()
	require.NoError(t, fx.store.Delete(ctx, string(models.Partner), refIDOf(t, fx, 43)))

	result := fx.run(t, migration.PhaseCleanup)
	assert.Equal(t, 1, result.Warnings)

	entries, err := fx.store.ListLog(ctx, storage.LogFilter{Level: models.LogWarning})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 43, entries[0].RemoteID)
	assert.Contains(t, entries[0].Message, "no longer exists")

	require.NoError(t, fx.store.VerifyGraphIntegrity(ctx))

	data, err := json.Marshal(result)
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.NotContains(t, fields, "entity")
	assert.EqualValues(t, 1, fields["warnings"])
}

func TestRunAll_EndToEnd(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	fx.source.Add("res.partner", partner(42, "Ana Ruiz"), partner(60, "Maria Lopez"))
	booked := folio(500, 42, "2019-05-20 10:00:00")
	booked["user_id"] = link(6, "maria")
	fx.source.Add("hotel.folio", booked)
	fx.source.Add("hotel.reservation", remotetest.Record{
		"id": 600, "folio_id": link(500, "F"), "partner_id": link(42, "Ana Ruiz"),
		"virtual_room_id": link(11, "double"), "checkin": "2019-05-20", "checkout": "2019-05-22",
		"state": "done", "reservation_line_ids": []int{6001},
	})
	fx.source.Add("hotel.reservation.line", remotetest.Record{
		"id": 6001, "reservation_id": link(600, "R"), "date": "2019-05-20", "price": 90.0,
	})
	fx.source.Add("account.payment", remotetest.Record{
		"id": 700, "amount": 180.0, "journal_id": link(9, "Caja"), "partner_id": link(60, "Maria Lopez"),
		"payment_date": "2019-05-22", "folio_id": link(500, "F"), "state": "posted",
	})
	fx.source.Add("account.invoice", remotetest.Record{
		"id": 900, "partner_id": link(42, "Ana Ruiz"), "date_invoice": "2019-05-22", "state": "paid",
		"type": "out_invoice", "payment_ids": []int{700},
	})

	reports, err := fx.orch.RunAll(context.Background(), fx.profile.ID)
	require.NoError(t, err)
	require.Len(t, reports, 10)

	runID := reports[0].RunID
	require.NotEmpty(t, runID)
	for i, r := range reports {
		assert.Equal(t, migration.Phases()[i], r.Phase)
		assert.Equal(t, runID, r.RunID)
		require.NotNil(t, r.Result, "phase %s", r.Phase)
		assert.Zero(t, r.Result.Failed, "phase %s", r.Phase)
	}

	booking := fx.local(t, models.Folio, 500)
	assert.Equal(t, seeded, refID(t, booking["salesperson"]))
	payment := fx.local(t, models.Payment, 700)
	assert.Equal(t, localMariaPartner, refID(t, payment["partner"]), "paid by the anchored user partner")
	invoice := fx.local(t, models.Invoice, 900)
	assert.Equal(t, "paid", invoice["state"])
	assert.Equal(t, []int{int(payment["id"].(float64))}, refIDs(t, invoice["payments"]))

	ids, err := fx.store.ListIdentities(context.Background(), models.Reservation)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, runID, ids[0].RunID)
}

func TestRunPhase_FatalRemoteErrorAbortsThePhase(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	fx.source.Add("res.partner", partner(42, "Ana Ruiz"))
	fx.source.Add("hotel.folio", folio(500, 42, "2019-05-20 10:00:00"))
	fx.run(t, migration.PhasePartners)

	fx.source.FailOn("hotel.folio", &remote.TransportError{Op: "search_read", Err: errors.New("connection reset")})

	report, err := fx.orch.RunPhase(context.Background(), fx.profile.ID, migration.PhaseFolios)
	require.Error(t, err)
	assert.True(t, remote.IsFatal(err))

	var transportErr *remote.TransportError
	assert.ErrorAs(t, err, &transportErr)
	require.NotNil(t, report)
	assert.Equal(t, migration.PhaseFolios, report.Phase)

	_, ok, err := fx.ids.Resolve(context.Background(), models.Folio, 500)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunPhase_CrosswalkErrorAbortsThePhase(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	fx.source.Add("res.partner", partner(42, "Ana Ruiz"))
	fx.source.Add("hotel.folio", folio(500, 42, "2019-05-20 10:00:00"))
	fx.source.FailOn("res.country", remote.ErrProtocol)

	_, err := fx.orch.RunPhase(context.Background(), fx.profile.ID, migration.PhasePartners)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrProtocol)
	assert.Zero(t, fx.source.Calls("res.partner"), "no candidates selected")
}

func TestRunPhase_UnknownProfileAndPhase(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	_, err := fx.orch.RunPhase(context.Background(), 999, migration.PhasePartners)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = fx.orch.RunPhase(context.Background(), fx.profile.ID, migration.Phase("rooms"))
	assert.ErrorIs(t, err, migration.ErrUnknownPhase)
}

func TestRunPhase_OneRunPerProfile(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	entered := make(chan struct{})
	release := make(chan struct{})
	orch, err := migration.New(migration.Options{
		Store:     fx.store,
		Identity:  fx.ids,
		Validator: validation.NewSchemaValidator(),
		Dialer: func(ctx context.Context, p *models.ConnectionProfile) (remote.Source, error) {
			close(entered)
			<-release
			return fx.source, nil
		},
		Settings: testSettings,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := orch.RunPhase(context.Background(), fx.profile.ID, migration.PhaseUsers)
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never dialed")
	}

	_, err = orch.RunPhase(context.Background(), fx.profile.ID, migration.PhaseUsers)
	assert.ErrorIs(t, err, migration.ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestCreateProfile_RecordsRemoteVersion(t *testing.T) {
	fx, cleanup := setupMigrationTest(t)
	defer cleanup()

	ctx := context.Background()
	p := &models.ConnectionProfile{
		Name:            "second",
		Host:            "legacy.example.com",
		Port:            8069,
		Protocol:        remote.ProtocolJSONRPC,
		Database:        "hotel",
		Username:        "migrator",
		Password:        "secret",
		CutoverDate:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		CutoverOperator: models.CutoverOnOrAfter,
	}
	require.NoError(t, fx.orch.CreateProfile(ctx, p))
	assert.NotZero(t, p.ID)

	stored, err := fx.store.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0", stored.RemoteVersion)
	assert.Equal(t, models.CutoverOnOrAfter, stored.CutoverOperator)

	bad := *p
	bad.Name = "third"
	bad.CutoverOperator = "after"
	assert.Error(t, fx.orch.CreateProfile(ctx, &bad))
}
