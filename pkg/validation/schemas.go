package validation

type props map[string]interface{}

func str() map[string]interface{}  { return map[string]interface{}{"type": "string"} }
func num() map[string]interface{}  { return map[string]interface{}{"type": "number", "minimum": 0} }
func flag() map[string]interface{} { return map[string]interface{}{"type": "boolean"} }

func ref(entity string) map[string]interface{} {
	return map[string]interface{}{"type": "object", "ref": entity}
}

func refs(entity string) map[string]interface{} {
	return map[string]interface{}{"type": "array", "ref": entity}
}

func enum(values ...interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "string", "enum": values}
}

func schema(required []string, properties props) map[string]interface{} {
	properties["remote_id"] = map[string]interface{}{"type": "integer", "minimum": 1}
	return map[string]interface{}{
		"required":   required,
		"properties": map[string]interface{}(properties),
	}
}

// DefaultSchemas returns the schemas of the local record types the migration
// writes.
func DefaultSchemas() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"partner": schema([]string{"name"}, props{
			"name":        map[string]interface{}{"type": "string", "minLength": 1},
			"email":       str(),
			"vat":         str(),
			"comment":     str(),
			"is_company":  flag(),
			"country":     ref("country"),
			"state":       ref("country_state"),
			"parent":      ref("partner"),
			"salesperson": ref("user"),
			"categories":  refs("partner_category"),
			"gender":      enum("male", "female", "other"),
		}),
		"product": schema([]string{"name"}, props{
			"name":        map[string]interface{}{"type": "string", "minLength": 1},
			"list_price":  num(),
			"daily_limit": map[string]interface{}{"type": "integer", "minimum": 0},
			"category":    ref("product_category"),
			"taxes":       refs("tax"),
			"type":        enum("service", "consu", "product"),
		}),
		"folio": schema([]string{"partner", "state"}, props{
			"partner":         ref("partner"),
			"invoice_partner": ref("partner"),
			"salesperson":     ref("user"),
			"state":           enum("draft", "confirm", "done", "cancel"),
		}),
		"reservation": schema([]string{"folio", "room_type", "checkin", "checkout"}, props{
			"folio":              ref("folio"),
			"partner":            ref("partner"),
			"room_type":          ref("room_type"),
			"room":               ref("room"),
			"parent_reservation": ref("reservation"),
			"checkin":            str(),
			"checkout":           str(),
			"adults":             map[string]interface{}{"type": "integer", "minimum": 0},
			"children":           map[string]interface{}{"type": "integer", "minimum": 0},
			"state":              enum("draft", "confirm", "onboard", "done", "cancel"),
		}),
		"reservation_line": {
			"required": []string{"date"},
			"properties": map[string]interface{}{
				"date":     str(),
				"price":    num(),
				"discount": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 100},
			},
		},
		"channel_binding": {
			"required": []string{"external_id"},
			"properties": map[string]interface{}{
				"external_id": map[string]interface{}{"type": "string", "minLength": 1},
				"ota_channel": ref("ota_channel"),
			},
		},
		"service": schema([]string{"product", "folio"}, props{
			"product":     ref("product"),
			"folio":       ref("folio"),
			"reservation": ref("reservation"),
			"list_price":  num(),
			"quantity":    num(),
		}),
		"service_line": {
			"required": []string{"date"},
			"properties": map[string]interface{}{
				"date":    str(),
				"day_qty": num(),
			},
		},
		"payment": schema([]string{"journal", "amount"}, props{
			"journal": ref("journal"),
			"partner": ref("partner"),
			"folio":   ref("folio"),
			"amount":  num(),
			"state":   enum("draft", "posted", "sent", "reconciled", "cancelled"),
		}),
		"payment_return": schema([]string{"journal"}, props{
			"journal": ref("journal"),
			"folio":   ref("folio"),
		}),
		"payment_return_line": {
			"required": []string{"payments"},
			"properties": map[string]interface{}{
				"payments": refs("payment"),
				"partner":  ref("partner"),
				"amount":   num(),
			},
		},
		"invoice": schema([]string{"partner"}, props{
			"partner":      ref("partner"),
			"journal":      ref("journal"),
			"payments":     refs("payment"),
			"amount_total": map[string]interface{}{"type": "number"},
			"state":        enum("draft", "open", "paid", "cancel"),
			"type":         enum("out_invoice", "out_refund", "in_invoice", "in_refund"),
		}),
		"invoice_line": {
			"required": []string{"name"},
			"properties": map[string]interface{}{
				"product":      ref("product"),
				"taxes":        refs("tax"),
				"reservations": refs("reservation"),
				"services":     refs("service"),
				"quantity":     map[string]interface{}{"type": "number"},
				"price_unit":   map[string]interface{}{"type": "number"},
			},
		},
	}
}
