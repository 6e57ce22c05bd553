package migration

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
)

type productLink struct {
	ProductID remote.Many2One `json:"product_id"`
}

// ProductMigrator migrates the products sold on in-scope folios and invoices
// together with the saleable service catalog.
type ProductMigrator struct{}

func (ProductMigrator) Entity() models.EntityType { return models.Product }

func (ProductMigrator) Fetch(ctx context.Context, mc *Context) ([]models.RemoteProduct, error) {
	wanted := make(map[int]bool)
	collect := func(links []productLink) {
		for _, l := range links {
			if l.ProductID.Valid() {
				wanted[l.ProductID.ID] = true
			}
		}
	}

	folios, err := selectedFolios(ctx, mc)
	if err != nil {
		return nil, err
	}
	services, bad, err := searchRowsIn[productLink](ctx, mc, models.Service.RemoteModel(), "folio_id", folios, nil, []string{"product_id"})
	if err != nil {
		return nil, err
	}
	skipMalformed(mc, models.Service.RemoteModel(), bad)
	collect(services)

	invoices, err := mc.Source.Search(ctx, models.Invoice.RemoteModel(), remote.Domain{mc.Cutover().Term("date_invoice")})
	if err != nil {
		return nil, err
	}
	lines, bad, err := searchRowsIn[productLink](ctx, mc, models.InvoiceLine.RemoteModel(), "invoice_id", invoices, nil, []string{"product_id"})
	if err != nil {
		return nil, err
	}
	skipMalformed(mc, models.InvoiceLine.RemoteModel(), bad)
	collect(lines)

	catalog, err := mc.Source.Search(ctx, models.Product.RemoteModel(), remote.Domain{
		remote.Cond("sale_ok", "=", true),
		remote.Cond("type", "=", "service"),
	})
	if err != nil {
		return nil, err
	}
	for _, id := range catalog {
		wanted[id] = true
	}

	products, bad, err := readRows[models.RemoteProduct](ctx, mc, models.Product.RemoteModel(), sortedIDs(wanted), models.Fields(models.RemoteProduct{}))
	if err != nil {
		return nil, err
	}
	mc.reject(models.Product, bad)
	sort.SliceStable(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (ProductMigrator) Transform(ctx context.Context, mc *Context, rec models.RemoteProduct) (*Transformed, error) {
	name := strings.TrimSpace(rec.Name.String())
	if name == "" {
		return nil, errors.New("product has no name")
	}

	t := &Transformed{}
	fs := &t.Fields
	fs.Set("remote_id", rec.ID)
	fs.Set("name", name)
	fs.SetText("default_code", rec.DefaultCode.String())
	switch kind := rec.Type.String(); kind {
	case "service", "consu", "product":
		fs.Set("type", kind)
	}
	fs.Set("list_price", rec.ListPrice)
	fs.Set("sale_ok", rec.SaleOK)
	fs.Set("purchase_ok", rec.PurchaseOK)
	fs.Set("active", rec.Active)
	fs.Set("per_day", rec.PerDay)
	fs.Set("per_person", rec.PerPerson)
	fs.Set("daily_limit", rec.DailyLimit)
	fs.Set("is_extra_bed", rec.IsExtraBed)

	if id, ok := mc.Crosswalks.Lookup(ProductCategories, rec.CategID.ID); ok {
		fs.SetRef("category", models.ProductCategory, id)
	}

	taxes := mapTaxes(mc, rec.TaxesID)
	if len(taxes) == 0 {
		if id, ok := mc.Crosswalks.DefaultTax(); ok {
			taxes = []int{id}
		}
	}
	fs.Link("taxes", models.Tax, taxes)

	return t, nil
}

var _ Migrator[models.RemoteProduct] = ProductMigrator{}
