package migration

import (
	"context"
	"fmt"
	"sort"

	"github.com/ha1tch/hotelmig/pkg/command"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
)

// ReservationMigrator migrates the room stays of migrated folios. Nightly
// lines are read once per batch in Fetch.
type ReservationMigrator struct {
	lines    map[int][]models.RemoteReservationLine
	badLines malformed
}

// NewReservationMigrator creates a reservation migrator
func NewReservationMigrator() *ReservationMigrator {
	return &ReservationMigrator{lines: make(map[int][]models.RemoteReservationLine)}
}

func (m *ReservationMigrator) Entity() models.EntityType { return models.Reservation }

func (m *ReservationMigrator) Fetch(ctx context.Context, mc *Context) ([]models.RemoteReservation, error) {
	folios, err := selectedFolios(ctx, mc)
	if err != nil {
		return nil, err
	}

	extra := remote.Domain{mc.Cutover().Term("checkout")}
	reservations, bad, err := searchRowsIn[models.RemoteReservation](ctx, mc, models.Reservation.RemoteModel(), "folio_id", folios, extra, models.Fields(models.RemoteReservation{}))
	if err != nil {
		return nil, err
	}
	mc.reject(models.Reservation, bad)

	var lineIDs []int
	for _, r := range reservations {
		lineIDs = append(lineIDs, r.ReservationLineIDs...)
	}
	lines, badLines, err := readRows[models.RemoteReservationLine](ctx, mc, models.ReservationLine.RemoteModel(), lineIDs, models.Fields(models.RemoteReservationLine{}))
	if err != nil {
		return nil, err
	}
	m.badLines = badLines
	for _, l := range lines {
		m.lines[l.ReservationID.ID] = append(m.lines[l.ReservationID.ID], l)
	}
	for id := range m.lines {
		sort.SliceStable(m.lines[id], func(i, j int) bool {
			return m.lines[id][i].Date.String() < m.lines[id][j].Date.String()
		})
	}
	return reservations, nil
}

func (m *ReservationMigrator) Transform(ctx context.Context, mc *Context, rec models.RemoteReservation) (*Transformed, error) {
	if err := m.badLines.check(models.ReservationLine, rec.ReservationLineIDs); err != nil {
		return nil, err
	}
	folioID, err := mc.require(ctx, models.Folio, "folio", rec.FolioID)
	if err != nil {
		return nil, err
	}
	roomTypeID, ok := mc.Crosswalks.Lookup(RoomTypes, rec.VirtualRoomID.ID)
	if !ok {
		return nil, fmt.Errorf("room type %d (%s) has no local match", rec.VirtualRoomID.ID, rec.VirtualRoomID.Name)
	}
	partnerID, err := mc.resolve(ctx, models.Partner, rec.PartnerID)
	if err != nil {
		return nil, err
	}
	parentID, err := mc.resolve(ctx, models.Reservation, rec.ParentReservation)
	if err != nil {
		return nil, err
	}

	t := &Transformed{}
	fs := &t.Fields
	fs.Set("remote_id", rec.ID)
	fs.SetText("name", rec.Name.String())
	fs.SetRef("folio", models.Folio, folioID)
	fs.SetRef("partner", models.Partner, partnerID)
	fs.SetRef("room_type", models.RoomType, roomTypeID)
	if id, ok := mc.Crosswalks.Lookup(Rooms, rec.RoomID.ID); ok {
		fs.SetRef("room", models.Room, id)
	}
	fs.SetRef("parent_reservation", models.Reservation, parentID)
	fs.SetText("checkin", rec.Checkin.String())
	fs.SetText("checkout", rec.Checkout.String())
	fs.Set("adults", rec.Adults)
	fs.Set("children", rec.Children)
	fs.Set("state", reservationState(rec.State.String()))
	fs.SetText("reservation_type", rec.ReservationType.String())
	fs.SetText("channel_type", rec.ChannelType.String())
	fs.SetText("call_center", rec.CallCenter.String())
	fs.Set("overbooking", rec.Overbooking)
	fs.Set("to_assign", rec.ToAssign)

	for _, line := range m.lines[rec.ID] {
		var nested command.FieldSet
		nested.SetText("date", line.Date.String())
		nested.Set("price", line.Price)
		nested.Set("discount", line.Discount)
		fs.Nest("lines", models.ReservationLine, nested, "reservation")
	}

	if binding, ok := channelBinding(mc, rec); ok {
		fs.Nest("channel_bindings", models.ChannelBinding, binding, "reservation")
	}

	return t, nil
}

// channelBinding builds the channel manager metadata, only for bookings
// that came in through the web channel with a channel reservation code.
func channelBinding(mc *Context, rec models.RemoteReservation) (command.FieldSet, bool) {
	if rec.ChannelType.String() != "web" || rec.WChannelReservationCode.Empty() {
		return nil, false
	}

	externalID := rec.Wrid.String()
	if externalID == "" {
		externalID = rec.WChannelReservationCode.String()
	}

	var fs command.FieldSet
	fs.Set("external_id", externalID)
	fs.Set("channel_reservation_code", rec.WChannelReservationCode.String())
	fs.SetText("channel_status", rec.WStatus.String())
	fs.SetText("channel_status_reason", rec.WStatusReason.String())
	if id, ok := mc.Crosswalks.Lookup(OTAChannels, rec.WChannelID.ID); ok {
		fs.SetRef("ota_channel", models.OTAChannel, id)
	}
	return fs, true
}

// reservationState maps legacy room stay states; a guest checked in
// ("booking") is on board.
func reservationState(state string) string {
	switch state {
	case "booking":
		return "onboard"
	case "draft", "confirm", "done":
		return state
	case "cancelled", "cancel":
		return "cancel"
	}
	return "confirm"
}

var _ Migrator[models.RemoteReservation] = (*ReservationMigrator)(nil)
