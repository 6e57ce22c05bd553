package migration

import (
	"context"

	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
)

// FolioMigrator migrates the booking headers inside the cutover window
type FolioMigrator struct{}

func (FolioMigrator) Entity() models.EntityType { return models.Folio }

func (FolioMigrator) Fetch(ctx context.Context, mc *Context) ([]models.RemoteFolio, error) {
	domain := remote.Domain{mc.Cutover().Term("date_order")}
	folios, bad, err := searchRows[models.RemoteFolio](ctx, mc.Source, models.Folio.RemoteModel(), domain, models.Fields(models.RemoteFolio{}))
	if err != nil {
		return nil, err
	}
	mc.reject(models.Folio, bad)
	return folios, nil
}

func (FolioMigrator) Transform(ctx context.Context, mc *Context, rec models.RemoteFolio) (*Transformed, error) {
	partnerID, err := mc.require(ctx, models.Partner, "partner", rec.PartnerID)
	if err != nil {
		return nil, err
	}
	invoicePartnerID, err := mc.resolve(ctx, models.Partner, rec.PartnerInvoiceID)
	if err != nil {
		return nil, err
	}
	if invoicePartnerID == 0 {
		invoicePartnerID = partnerID
	}

	t := &Transformed{}
	fs := &t.Fields
	fs.Set("remote_id", rec.ID)
	fs.SetText("name", rec.Name.String())
	fs.SetRef("partner", models.Partner, partnerID)
	fs.SetRef("invoice_partner", models.Partner, invoicePartnerID)
	if id, ok := mc.Crosswalks.Lookup(Users, rec.UserID.ID); ok {
		fs.SetRef("salesperson", models.User, id)
	}
	fs.SetText("date_order", rec.DateOrder.String())
	fs.Set("state", folioState(rec.State.String()))
	fs.SetText("reservation_type", rec.ReservationType.String())
	fs.SetText("channel_type", rec.ChannelType.String())
	fs.SetText("customer_notes", rec.CustomerNotes.String())
	fs.SetText("internal_comment", rec.InternalComment.String())
	fs.SetText("cancelled_reason", rec.CancelledReason.String())
	fs.SetText("email", rec.Email.String())
	fs.SetText("phone", rec.Phone.String())

	return t, nil
}

// folioState maps the legacy sale order states. An order in progress is
// confirmed; terminal states are kept.
func folioState(state string) string {
	switch state {
	case "sale":
		return "confirm"
	case "done", "cancel":
		return state
	}
	return "draft"
}

var _ Migrator[models.RemoteFolio] = FolioMigrator{}
