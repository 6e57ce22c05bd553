package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var jsonFalse = []byte("false")

func isEmptyJSON(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, jsonFalse) || bytes.Equal(b, []byte("null"))
}

// Many2One is a link field as the legacy server encodes it: false when unset,
// [id, "display name"] otherwise.
type Many2One struct {
	ID   int
	Name string
}

// Link builds a set Many2One.
func Link(id int, name string) Many2One {
	return Many2One{ID: id, Name: name}
}

// Valid reports whether the link points at a record.
func (m Many2One) Valid() bool {
	return m.ID > 0
}

func (m *Many2One) UnmarshalJSON(b []byte) error {
	*m = Many2One{}
	if isEmptyJSON(b) {
		return nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("many2one: %w", err)
	}
	if len(parts) == 0 {
		return nil
	}
	if err := json.Unmarshal(parts[0], &m.ID); err != nil {
		return fmt.Errorf("many2one id: %w", err)
	}
	if len(parts) > 1 && !isEmptyJSON(parts[1]) {
		if err := json.Unmarshal(parts[1], &m.Name); err != nil {
			return fmt.Errorf("many2one name: %w", err)
		}
	}
	return nil
}

func (m Many2One) MarshalJSON() ([]byte, error) {
	if !m.Valid() {
		return jsonFalse, nil
	}
	return json.Marshal([]interface{}{m.ID, m.Name})
}

// Text is a char, text, date or selection value; the legacy server sends
// false for empty values.
type Text struct {
	Value string
	Valid bool
}

// NewText builds a set Text.
func NewText(s string) Text {
	return Text{Value: s, Valid: true}
}

// String returns the value, or "" when unset.
func (t Text) String() string {
	if !t.Valid {
		return ""
	}
	return t.Value
}

// Empty reports whether the value is unset or blank.
func (t Text) Empty() bool {
	return !t.Valid || t.Value == ""
}

func (t *Text) UnmarshalJSON(b []byte) error {
	*t = Text{}
	if isEmptyJSON(b) {
		return nil
	}
	if err := json.Unmarshal(b, &t.Value); err != nil {
		return fmt.Errorf("text: %w", err)
	}
	t.Valid = true
	return nil
}

func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return jsonFalse, nil
	}
	return json.Marshal(t.Value)
}
