package remote

import "encoding/json"

// Term is one (field, operator, value) condition of a search domain.
type Term struct {
	Field string
	Op    string
	Value interface{}
}

// Cond builds a Term.
func Cond(field, op string, value interface{}) Term {
	return Term{Field: field, Op: op, Value: value}
}

func (t Term) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{t.Field, t.Op, t.Value})
}

// Domain is a conjunction of terms.
type Domain []Term

// And returns a new domain with the extra terms appended; d is not modified.
func (d Domain) And(terms ...Term) Domain {
	out := make(Domain, 0, len(d)+len(terms))
	out = append(out, d...)
	return append(out, terms...)
}

func (d Domain) MarshalJSON() ([]byte, error) {
	terms := []Term(d)
	if terms == nil {
		terms = []Term{}
	}
	return json.Marshal(terms)
}
