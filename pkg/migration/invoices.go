package migration

import (
	"context"
	"strings"

	"github.com/ha1tch/hotelmig/pkg/command"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
)

// InvoiceMigrator migrates invoices inside the cutover window with their
// lines, linking them to migrated reservations, services and payments.
type InvoiceMigrator struct {
	lines    map[int][]models.RemoteInvoiceLine
	badLines malformed
}

// NewInvoiceMigrator creates an invoice migrator
func NewInvoiceMigrator() *InvoiceMigrator {
	return &InvoiceMigrator{lines: make(map[int][]models.RemoteInvoiceLine)}
}

func (m *InvoiceMigrator) Entity() models.EntityType { return models.Invoice }

func (m *InvoiceMigrator) Fetch(ctx context.Context, mc *Context) ([]models.RemoteInvoice, error) {
	domain := remote.Domain{mc.Cutover().Term("date_invoice")}
	invoices, bad, err := searchRows[models.RemoteInvoice](ctx, mc.Source, models.Invoice.RemoteModel(), domain, models.Fields(models.RemoteInvoice{}))
	if err != nil {
		return nil, err
	}
	mc.reject(models.Invoice, bad)

	var lineIDs []int
	for _, inv := range invoices {
		lineIDs = append(lineIDs, inv.InvoiceLineIDs...)
	}
	lines, badLines, err := readRows[models.RemoteInvoiceLine](ctx, mc, models.InvoiceLine.RemoteModel(), lineIDs, models.Fields(models.RemoteInvoiceLine{}))
	if err != nil {
		return nil, err
	}
	m.badLines = badLines
	for _, l := range lines {
		m.lines[l.InvoiceID.ID] = append(m.lines[l.InvoiceID.ID], l)
	}
	return invoices, nil
}

func (m *InvoiceMigrator) Transform(ctx context.Context, mc *Context, rec models.RemoteInvoice) (*Transformed, error) {
	if err := m.badLines.check(models.InvoiceLine, rec.InvoiceLineIDs); err != nil {
		return nil, err
	}
	partnerID, err := mc.require(ctx, models.Partner, "partner", rec.PartnerID)
	if err != nil {
		return nil, err
	}
	payments, err := mc.resolveAll(ctx, models.Payment, rec.PaymentIDs)
	if err != nil {
		return nil, err
	}

	t := &Transformed{}
	fs := &t.Fields
	fs.Set("remote_id", rec.ID)
	fs.SetText("number", rec.Number.String())
	fs.SetRef("partner", models.Partner, partnerID)
	fs.SetText("date_invoice", rec.DateInvoice.String())
	fs.SetText("date_due", rec.DateDue.String())
	switch kind := rec.Type.String(); kind {
	case "out_invoice", "out_refund", "in_invoice", "in_refund":
		fs.Set("type", kind)
	}
	fs.Set("state", invoiceState(rec.State.String()))
	fs.SetText("origin", rec.Origin.String())
	fs.SetText("reference", rec.Reference.String())
	fs.SetText("comment", rec.Comment.String())
	if id, ok := mc.Crosswalks.Lookup(Journals, rec.JournalID.ID); ok {
		fs.SetRef("journal", models.Journal, id)
	}
	fs.Set("amount_total", rec.AmountTotal)
	fs.Link("payments", models.Payment, payments)

	for _, line := range m.lines[rec.ID] {
		nested, err := invoiceLine(ctx, mc, line)
		if err != nil {
			return nil, err
		}
		fs.Nest("lines", models.InvoiceLine, nested, "invoice")
	}

	return t, nil
}

func invoiceLine(ctx context.Context, mc *Context, line models.RemoteInvoiceLine) (command.FieldSet, error) {
	productID, err := mc.resolve(ctx, models.Product, line.ProductID)
	if err != nil {
		return nil, err
	}
	reservations, err := mc.resolveAll(ctx, models.Reservation, line.ReservationIDs)
	if err != nil {
		return nil, err
	}
	services, err := mc.resolveAll(ctx, models.Service, line.ServiceIDs)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(line.Name.String())
	if name == "" {
		name = line.ProductID.Name
	}
	if name == "" {
		name = "/"
	}

	var fs command.FieldSet
	fs.Set("name", name)
	fs.SetRef("product", models.Product, productID)
	fs.Set("quantity", line.Quantity)
	fs.Set("price_unit", line.PriceUnit)
	fs.Set("discount", line.Discount)
	fs.Link("taxes", models.Tax, mapTaxes(mc, line.InvoiceLineTaxIDs))
	fs.Link("reservations", models.Reservation, reservations)
	fs.Link("services", models.Service, services)
	return fs, nil
}

// invoiceState maps pro-forma invoices to draft; other states are kept
func invoiceState(state string) string {
	switch state {
	case "open", "paid", "cancel":
		return state
	}
	return "draft"
}

var _ Migrator[models.RemoteInvoice] = (*InvoiceMigrator)(nil)
