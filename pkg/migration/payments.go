package migration

import (
	"context"
	"fmt"

	"github.com/ha1tch/hotelmig/pkg/command"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
)

// PaymentMigrator migrates the payments registered on in-scope folios
type PaymentMigrator struct{}

func (PaymentMigrator) Entity() models.EntityType { return models.Payment }

func (PaymentMigrator) Fetch(ctx context.Context, mc *Context) ([]models.RemotePayment, error) {
	folios, err := selectedFolios(ctx, mc)
	if err != nil {
		return nil, err
	}
	payments, bad, err := searchRowsIn[models.RemotePayment](ctx, mc, models.Payment.RemoteModel(), "folio_id", folios, nil, models.Fields(models.RemotePayment{}))
	if err != nil {
		return nil, err
	}
	mc.reject(models.Payment, bad)
	return payments, nil
}

func (PaymentMigrator) Transform(ctx context.Context, mc *Context, rec models.RemotePayment) (*Transformed, error) {
	journalID, ok := mc.Crosswalks.Lookup(Journals, rec.JournalID.ID)
	if !ok {
		return nil, fmt.Errorf("journal %d (%s) has no local match", rec.JournalID.ID, rec.JournalID.Name)
	}
	partnerID, err := mc.resolve(ctx, models.Partner, rec.PartnerID)
	if err != nil {
		return nil, err
	}
	folioID, err := mc.resolve(ctx, models.Folio, rec.FolioID)
	if err != nil {
		return nil, err
	}

	t := &Transformed{}
	fs := &t.Fields
	fs.Set("remote_id", rec.ID)
	fs.SetText("name", rec.Name.String())
	fs.SetRef("journal", models.Journal, journalID)
	fs.SetRef("partner", models.Partner, partnerID)
	fs.SetRef("folio", models.Folio, folioID)
	fs.Set("amount", rec.Amount)
	fs.SetText("payment_date", rec.PaymentDate.String())
	fs.SetText("communication", rec.Communication.String())
	fs.SetText("payment_type", rec.PaymentType.String())
	fs.SetText("partner_type", rec.PartnerType.String())
	fs.Set("state", paymentState(rec.State.String()))

	return t, nil
}

func paymentState(state string) string {
	switch state {
	case "posted", "sent", "reconciled", "cancelled":
		return state
	case "cancel":
		return "cancelled"
	}
	return "draft"
}

// PaymentReturnMigrator migrates bank returns of migrated payments. Return
// lines and the journal items linking them to payments are read once per
// batch.
type PaymentReturnMigrator struct {
	lines        map[int][]models.RemotePaymentReturnLine
	payments     map[int]int // move line -> payment
	badLines     malformed
	badMoveLines malformed
}

// NewPaymentReturnMigrator creates a payment return migrator
func NewPaymentReturnMigrator() *PaymentReturnMigrator {
	return &PaymentReturnMigrator{
		lines:    make(map[int][]models.RemotePaymentReturnLine),
		payments: make(map[int]int),
	}
}

func (m *PaymentReturnMigrator) Entity() models.EntityType { return models.PaymentReturn }

func (m *PaymentReturnMigrator) Fetch(ctx context.Context, mc *Context) ([]models.RemotePaymentReturn, error) {
	domain := remote.Domain{mc.Cutover().Term("date")}
	returns, bad, err := searchRows[models.RemotePaymentReturn](ctx, mc.Source, models.PaymentReturn.RemoteModel(), domain, models.Fields(models.RemotePaymentReturn{}))
	if err != nil {
		return nil, err
	}
	mc.reject(models.PaymentReturn, bad)

	var lineIDs []int
	for _, r := range returns {
		lineIDs = append(lineIDs, r.LineIDs...)
	}
	lines, badLines, err := readRows[models.RemotePaymentReturnLine](ctx, mc, models.PaymentReturnLine.RemoteModel(), lineIDs, models.Fields(models.RemotePaymentReturnLine{}))
	if err != nil {
		return nil, err
	}
	m.badLines = badLines

	var moveLineIDs []int
	for _, l := range lines {
		m.lines[l.ReturnID.ID] = append(m.lines[l.ReturnID.ID], l)
		moveLineIDs = append(moveLineIDs, l.MoveLineIDs...)
	}

	moveLines, badMoveLines, err := readRows[models.RemoteMoveLine](ctx, mc, models.MoveLineModel, moveLineIDs, models.Fields(models.RemoteMoveLine{}))
	if err != nil {
		return nil, err
	}
	m.badMoveLines = badMoveLines
	for _, ml := range moveLines {
		if ml.PaymentID.Valid() {
			m.payments[ml.ID] = ml.PaymentID.ID
		}
	}
	return returns, nil
}

func (m *PaymentReturnMigrator) Transform(ctx context.Context, mc *Context, rec models.RemotePaymentReturn) (*Transformed, error) {
	if err := m.badLines.check(models.PaymentReturnLine, rec.LineIDs); err != nil {
		return nil, err
	}
	journalID, ok := mc.Crosswalks.Lookup(Journals, rec.JournalID.ID)
	if !ok {
		return nil, fmt.Errorf("journal %d (%s) has no local match", rec.JournalID.ID, rec.JournalID.Name)
	}
	folioID, err := mc.resolve(ctx, models.Folio, rec.FolioID)
	if err != nil {
		return nil, err
	}

	t := &Transformed{}
	fs := &t.Fields
	fs.Set("remote_id", rec.ID)
	fs.SetText("name", rec.Name.String())
	fs.SetText("date", rec.Date.String())
	fs.SetRef("journal", models.Journal, journalID)
	fs.SetRef("folio", models.Folio, folioID)
	fs.SetText("state", rec.State.String())

	for _, line := range m.lines[rec.ID] {
		nested, err := m.returnLine(ctx, mc, line)
		if err != nil {
			return nil, err
		}
		fs.Nest("lines", models.PaymentReturnLine, nested, "payment_return")
	}

	return t, nil
}

func (m *PaymentReturnMigrator) returnLine(ctx context.Context, mc *Context, line models.RemotePaymentReturnLine) (command.FieldSet, error) {
	if err := m.badMoveLines.check("journal item", line.MoveLineIDs); err != nil {
		return nil, fmt.Errorf("return line %d: %w", line.ID, err)
	}
	var remotePayments []int
	seen := make(map[int]bool)
	for _, moveLine := range line.MoveLineIDs {
		if payment, ok := m.payments[moveLine]; ok && !seen[payment] {
			seen[payment] = true
			remotePayments = append(remotePayments, payment)
		}
	}

	payments, err := mc.resolveAll(ctx, models.Payment, remotePayments)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, fmt.Errorf("return line %d: returned payment has not been migrated", line.ID)
	}
	partnerID, err := mc.resolve(ctx, models.Partner, line.PartnerID)
	if err != nil {
		return nil, err
	}

	var fs command.FieldSet
	fs.Link("payments", models.Payment, payments)
	fs.SetRef("partner", models.Partner, partnerID)
	fs.Set("amount", line.Amount)
	fs.SetText("reference", line.Reference.String())
	return fs, nil
}

var (
	_ Migrator[models.RemotePayment]       = PaymentMigrator{}
	_ Migrator[models.RemotePaymentReturn] = (*PaymentReturnMigrator)(nil)
)
