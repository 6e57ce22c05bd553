package migration

import (
	"context"
	"sort"

	"github.com/ha1tch/hotelmig/pkg/command"
	"github.com/ha1tch/hotelmig/pkg/models"
)

// ServiceMigrator migrates the extra services sold on migrated folios
type ServiceMigrator struct {
	lines    map[int][]models.RemoteServiceLine
	badLines malformed
}

// NewServiceMigrator creates a service migrator
func NewServiceMigrator() *ServiceMigrator {
	return &ServiceMigrator{lines: make(map[int][]models.RemoteServiceLine)}
}

func (m *ServiceMigrator) Entity() models.EntityType { return models.Service }

func (m *ServiceMigrator) Fetch(ctx context.Context, mc *Context) ([]models.RemoteService, error) {
	folios, err := selectedFolios(ctx, mc)
	if err != nil {
		return nil, err
	}

	services, bad, err := searchRowsIn[models.RemoteService](ctx, mc, models.Service.RemoteModel(), "folio_id", folios, nil, models.Fields(models.RemoteService{}))
	if err != nil {
		return nil, err
	}
	mc.reject(models.Service, bad)

	var lineIDs []int
	for _, s := range services {
		lineIDs = append(lineIDs, s.ServiceLineIDs...)
	}
	lines, badLines, err := readRows[models.RemoteServiceLine](ctx, mc, models.ServiceLine.RemoteModel(), lineIDs, models.Fields(models.RemoteServiceLine{}))
	if err != nil {
		return nil, err
	}
	m.badLines = badLines
	for _, l := range lines {
		m.lines[l.ServiceID.ID] = append(m.lines[l.ServiceID.ID], l)
	}
	for id := range m.lines {
		sort.SliceStable(m.lines[id], func(i, j int) bool {
			return m.lines[id][i].Date.String() < m.lines[id][j].Date.String()
		})
	}
	return services, nil
}

func (m *ServiceMigrator) Transform(ctx context.Context, mc *Context, rec models.RemoteService) (*Transformed, error) {
	if err := m.badLines.check(models.ServiceLine, rec.ServiceLineIDs); err != nil {
		return nil, err
	}
	productID, err := mc.require(ctx, models.Product, "product", rec.ProductID)
	if err != nil {
		return nil, err
	}
	folioID, err := mc.require(ctx, models.Folio, "folio", rec.FolioID)
	if err != nil {
		return nil, err
	}
	reservationID, err := mc.resolve(ctx, models.Reservation, rec.SerRoomLine)
	if err != nil {
		return nil, err
	}

	name := rec.Name.String()
	if name == "" {
		name = rec.ProductID.Name
	}

	t := &Transformed{}
	fs := &t.Fields
	fs.Set("remote_id", rec.ID)
	fs.SetText("name", name)
	fs.SetRef("product", models.Product, productID)
	fs.SetRef("folio", models.Folio, folioID)
	fs.SetRef("reservation", models.Reservation, reservationID)
	fs.Set("list_price", rec.ListPrice)
	fs.Set("quantity", rec.ProductQty)
	fs.Set("discount", rec.Discount)
	fs.SetText("channel_type", rec.ChannelType.String())

	for _, line := range m.lines[rec.ID] {
		var nested command.FieldSet
		nested.SetText("date", line.Date.String())
		nested.Set("day_qty", line.DayQty)
		fs.Nest("lines", models.ServiceLine, nested, "service")
	}

	return t, nil
}

var _ Migrator[models.RemoteService] = (*ServiceMigrator)(nil)
