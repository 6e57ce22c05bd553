// Package command describes writes against local records as explicit values
// instead of positional tuples.
package command

import (
	"github.com/ha1tch/hotelmig/pkg/models"
)

// Command is one write against a local record field
type Command interface {
	Target() string
}

// SetField stores a scalar or single reference
type SetField struct {
	Field string
	Value interface{}
}

// LinkMany stores a list of references to existing records
type LinkMany struct {
	Field  string
	Entity models.EntityType
	IDs    []int
}

// CreateNested creates a sub-record together with its owner. The new record
// is appended to the owner's Field list; when Inverse is set the sub-record
// gets a reference back to the owner under that name.
type CreateNested struct {
	Field   string
	Entity  models.EntityType
	Fields  FieldSet
	Inverse string
}

func (c SetField) Target() string     { return c.Field }
func (c LinkMany) Target() string     { return c.Field }
func (c CreateNested) Target() string { return c.Field }

// FieldSet is an ordered list of commands making up one local record
type FieldSet []Command

// Set appends a SetField
func (fs *FieldSet) Set(field string, value interface{}) {
	*fs = append(*fs, SetField{Field: field, Value: value})
}

// SetText sets field only when the value is non-empty
func (fs *FieldSet) SetText(field, value string) {
	if value != "" {
		fs.Set(field, value)
	}
}

// SetRef stores a reference; a zero id means no mapping and leaves the field
// unset.
func (fs *FieldSet) SetRef(field string, entity models.EntityType, id int) {
	if id > 0 {
		fs.Set(field, models.Ref(entity, id))
	}
}

// Link appends a LinkMany, dropping zero ids
func (fs *FieldSet) Link(field string, entity models.EntityType, ids []int) {
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			kept = append(kept, id)
		}
	}
	*fs = append(*fs, LinkMany{Field: field, Entity: entity, IDs: kept})
}

// Nest appends a CreateNested
func (fs *FieldSet) Nest(field string, entity models.EntityType, nested FieldSet, inverse string) {
	*fs = append(*fs, CreateNested{Field: field, Entity: entity, Fields: nested, Inverse: inverse})
}

// Get returns the last value set for field
func (fs FieldSet) Get(field string) (interface{}, bool) {
	for i := len(fs) - 1; i >= 0; i-- {
		if c, ok := fs[i].(SetField); ok && c.Field == field {
			return c.Value, true
		}
	}
	return nil, false
}

// String returns the last string value set for field
func (fs FieldSet) String(field string) string {
	v, _ := fs.Get(field)
	s, _ := v.(string)
	return s
}

// Values flattens SetField and LinkMany commands into stored field values.
// Later commands on the same field win. Nested creations are not included.
func (fs FieldSet) Values() map[string]interface{} {
	values := make(map[string]interface{}, len(fs))
	for _, c := range fs {
		switch c := c.(type) {
		case SetField:
			values[c.Field] = c.Value
		case LinkMany:
			refs := make([]interface{}, 0, len(c.IDs))
			for _, id := range c.IDs {
				refs = append(refs, models.Ref(c.Entity, id))
			}
			values[c.Field] = refs
		}
	}
	return values
}

// Nested returns the nested creations in order
func (fs FieldSet) Nested() []CreateNested {
	var nested []CreateNested
	for _, c := range fs {
		if n, ok := c.(CreateNested); ok {
			nested = append(nested, n)
		}
	}
	return nested
}
