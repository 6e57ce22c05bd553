package models

import (
	"reflect"
	"strings"
)

// EntityType names a local record type
type EntityType string

// Migrated entity types
const (
	Partner       EntityType = "partner"
	Product       EntityType = "product"
	Folio         EntityType = "folio"
	Reservation   EntityType = "reservation"
	Service       EntityType = "service"
	Payment       EntityType = "payment"
	PaymentReturn EntityType = "payment_return"
	Invoice       EntityType = "invoice"
)

// Reference data types, seeded in the destination before migration
const (
	Country         EntityType = "country"
	CountryState    EntityType = "country_state"
	PartnerCategory EntityType = "partner_category"
	ProductCategory EntityType = "product_category"
	User            EntityType = "user"
	RoomType        EntityType = "room_type"
	Room            EntityType = "room"
	Journal         EntityType = "journal"
	OTAChannel      EntityType = "ota_channel"
	Tax             EntityType = "tax"
)

// Nested types, only ever created together with their owner
const (
	ReservationLine   EntityType = "reservation_line"
	ChannelBinding    EntityType = "channel_binding"
	ServiceLine       EntityType = "service_line"
	InvoiceLine       EntityType = "invoice_line"
	PaymentReturnLine EntityType = "payment_return_line"
)

var remoteModels = map[EntityType]string{
	Partner:           "res.partner",
	Product:           "product.product",
	Folio:             "hotel.folio",
	Reservation:       "hotel.reservation",
	Service:           "hotel.service",
	Payment:           "account.payment",
	PaymentReturn:     "payment.return",
	Invoice:           "account.invoice",
	Country:           "res.country",
	CountryState:      "res.country.state",
	PartnerCategory:   "res.partner.category",
	ProductCategory:   "product.category",
	User:              "res.users",
	RoomType:          "hotel.virtual.room",
	Room:              "hotel.room",
	Journal:           "account.journal",
	OTAChannel:        "wubook.channel.ota.info",
	Tax:               "account.tax",
	ReservationLine:   "hotel.reservation.line",
	ServiceLine:       "hotel.service.line",
	InvoiceLine:       "account.invoice.line",
	PaymentReturnLine: "payment.return.line",
}

// MoveLineModel holds the journal items that link return lines to payments
const MoveLineModel = "account.move.line"

// RemoteModel returns the legacy model name for the entity type
func (e EntityType) RemoteModel() string {
	return remoteModels[e]
}

// MigratedTypes lists the entity types the engine creates, in dependency order
func MigratedTypes() []EntityType {
	return []EntityType{Partner, Product, Folio, Reservation, Service, Payment, PaymentReturn, Invoice}
}

// ParseEntityType accepts a migrated entity type name
func ParseEntityType(s string) (EntityType, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "-", "_")
	for _, e := range MigratedTypes() {
		if string(e) == s {
			return e, true
		}
	}
	return "", false
}

// Reference represents a reference to another local entity
type Reference struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	ID     int    `json:"id"`
}

// Ref builds the stored form of a reference
func Ref(entity EntityType, id int) map[string]interface{} {
	return map[string]interface{}{
		"type":   "REF",
		"entity": string(entity),
		"id":     id,
	}
}

// IsReference checks if a value is a reference
func IsReference(v interface{}) (*Reference, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}

	typeVal, hasType := m["type"].(string)
	entityVal, hasEntity := m["entity"].(string)
	idVal, hasID := m["id"]

	if hasType && typeVal == "REF" && hasEntity && hasID {
		var id int
		switch v := idVal.(type) {
		case float64:
			id = int(v)
		case int:
			id = v
		default:
			return nil, false
		}
		return &Reference{
			Type:   typeVal,
			Entity: entityVal,
			ID:     id,
		}, true
	}
	return nil, false
}

// References returns every reference held by a stored value: a single REF or
// a list of them.
func References(v interface{}) []Reference {
	if ref, ok := IsReference(v); ok {
		return []Reference{*ref}
	}

	var refs []Reference
	switch list := v.(type) {
	case []interface{}:
		for _, item := range list {
			if ref, ok := IsReference(item); ok {
				refs = append(refs, *ref)
			}
		}
	case []map[string]interface{}:
		for _, item := range list {
			if ref, ok := IsReference(item); ok {
				refs = append(refs, *ref)
			}
		}
	}
	return refs
}

// Fields lists the json field names of a remote record struct, for use as
// the field list of a read.
func Fields(record interface{}) []string {
	t := reflect.TypeOf(record)
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}

	fields := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name := strings.Split(tag, ",")[0]
		if name == "" || name == "-" || name == "id" {
			continue
		}
		fields = append(fields, name)
	}
	return fields
}
