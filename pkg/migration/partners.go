package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
	"github.com/ha1tch/hotelmig/pkg/validation"
)

// partnerLinks is the slice of a booking document naming its customers
type partnerLinks struct {
	PartnerID        remote.Many2One `json:"partner_id"`
	PartnerInvoiceID remote.Many2One `json:"partner_invoice_id"`
}

// partnerSources are the documents whose customers are migrated, with the
// date field the cutover applies to.
var partnerSources = []struct {
	model  string
	date   string
	fields []string
}{
	{models.Folio.RemoteModel(), "date_order", []string{"partner_id", "partner_invoice_id"}},
	{models.Reservation.RemoteModel(), "checkout", []string{"partner_id"}},
	{models.Payment.RemoteModel(), "payment_date", []string{"partner_id"}},
	{models.Invoice.RemoteModel(), "date_invoice", []string{"partner_id"}},
}

// PartnerMigrator migrates the customers referenced by in-scope bookings,
// payments and invoices, plus their parent companies.
type PartnerMigrator struct{}

func (PartnerMigrator) Entity() models.EntityType { return models.Partner }

func (PartnerMigrator) Fetch(ctx context.Context, mc *Context) ([]models.RemotePartner, error) {
	cutover := mc.Cutover()
	wanted := make(map[int]bool)
	for _, src := range partnerSources {
		domain := remote.Domain{cutover.Term(src.date)}
		links, bad, err := searchRows[partnerLinks](ctx, mc.Source, src.model, domain, src.fields)
		if err != nil {
			return nil, err
		}
		skipMalformed(mc, src.model, bad)
		for _, l := range links {
			if l.PartnerID.Valid() {
				wanted[l.PartnerID.ID] = true
			}
			if l.PartnerInvoiceID.Valid() {
				wanted[l.PartnerInvoiceID.ID] = true
			}
		}
	}

	var partners []models.RemotePartner
	pending := sortedIDs(wanted)
	for len(pending) > 0 {
		batch, bad, err := readRows[models.RemotePartner](ctx, mc, models.Partner.RemoteModel(), pending, models.Fields(models.RemotePartner{}))
		if err != nil {
			return nil, err
		}
		mc.reject(models.Partner, bad)
		partners = append(partners, batch...)

		parents := make(map[int]bool)
		for _, p := range batch {
			if parent := p.ParentID.ID; parent > 0 && !wanted[parent] {
				wanted[parent] = true
				parents[parent] = true
			}
		}
		pending = sortedIDs(parents)
	}

	sort.SliceStable(partners, func(i, j int) bool { return partners[i].ID < partners[j].ID })
	return partners, nil
}

func (PartnerMigrator) Transform(ctx context.Context, mc *Context, rec models.RemotePartner) (*Transformed, error) {
	name := strings.TrimSpace(rec.Name.String())
	if name == "" {
		return nil, errors.New("partner has no name")
	}

	t := &Transformed{}
	fs := &t.Fields
	fs.Set("remote_id", rec.ID)
	fs.Set("name", name)
	fs.Set("is_company", rec.IsCompany)
	fs.Set("customer", rec.Customer)
	fs.Set("supplier", rec.Supplier)
	fs.SetText("type", rec.Type.String())
	fs.SetText("ref", rec.Ref.String())
	fs.SetText("email", strings.TrimSpace(rec.Email.String()))
	fs.SetText("phone", rec.Phone.String())
	fs.SetText("mobile", rec.Mobile.String())
	fs.SetText("street", rec.Street.String())
	fs.SetText("street2", rec.Street2.String())
	fs.SetText("zip", rec.Zip.String())
	fs.SetText("city", rec.City.String())
	fs.SetText("lang", rec.Lang.String())
	switch gender := rec.Gender.String(); gender {
	case "male", "female", "other":
		fs.Set("gender", gender)
	}
	fs.SetText("birthdate_date", rec.BirthdateDate.String())
	fs.SetText("document_type", rec.DocumentType.String())
	fs.SetText("document_number", rec.DocumentNumber.String())
	fs.SetText("document_expedition_date", rec.DocumentExpeditionDate.String())

	if id, ok := mc.Crosswalks.Lookup(Countries, rec.CountryID.ID); ok {
		fs.SetRef("country", models.Country, id)
	}
	if id, ok := mc.Crosswalks.Lookup(States, rec.StateID.ID); ok {
		fs.SetRef("state", models.CountryState, id)
	}
	if id, ok := mc.Crosswalks.Lookup(Users, rec.UserID.ID); ok {
		fs.SetRef("salesperson", models.User, id)
	}
	fs.Link("categories", models.PartnerCategory, mc.Crosswalks.LookupAll(PartnerCategories, rec.CategoryIDs))

	parentID, err := mc.resolve(ctx, models.Partner, rec.ParentID)
	if err != nil {
		return nil, err
	}
	fs.SetRef("parent", models.Partner, parentID)

	comment := rec.Comment.String()
	vat, diagnostic, err := partnerVAT(ctx, mc, rec, parentID)
	if err != nil {
		return nil, err
	}
	fs.SetText("vat", vat)
	if diagnostic != "" {
		comment = appendComment(comment, diagnostic)
		t.Warnings = append(t.Warnings, diagnostic)
	}
	fs.SetText("comment", comment)

	return t, nil
}

// partnerVAT applies the parent-VAT rule: a contact of an already migrated
// company carries the company's tax identifier. Otherwise the contact's own
// identifier is normalized and validated; an invalid one is dropped and the
// returned diagnostic explains why.
func partnerVAT(ctx context.Context, mc *Context, rec models.RemotePartner, parentID int) (vat, diagnostic string, err error) {
	if parentID > 0 {
		parent, err := mc.Store.Get(ctx, string(models.Partner), parentID)
		if err != nil {
			return "", "", fmt.Errorf("parent partner %d: %w", parentID, err)
		}
		if parentVAT := localString(parent, "vat"); parentVAT != "" {
			return parentVAT, "", nil
		}
	}

	if rec.Vat.Empty() {
		return "", "", nil
	}

	country := mc.Crosswalks.CountryCode(rec.CountryID.ID)
	if country == "" {
		country = mc.Settings.DefaultCountryCode
	}
	vat, err = validation.ValidateVAT(rec.Vat.String(), country)
	if err != nil {
		reason := err.Error()
		var vatErr *validation.VATError
		if errors.As(err, &vatErr) {
			reason = vatErr.Reason
		}
		return "", fmt.Sprintf("VAT %s removed during migration: %s", rec.Vat.String(), reason), nil
	}
	return vat, "", nil
}

func appendComment(comment, note string) string {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return note
	}
	return comment + "\n" + note
}

func sortedIDs(set map[int]bool) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

var _ Migrator[models.RemotePartner] = PartnerMigrator{}

