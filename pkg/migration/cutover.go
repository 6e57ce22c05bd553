package migration

import (
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
)

// Cutover partitions legacy records by a date field
type Cutover struct {
	Date string // 2006-01-02
	Op   models.CutoverOperator
}

// Term builds the search condition selecting records on field
func (c Cutover) Term(field string) remote.Term {
	return remote.Cond(field, c.Op.DomainOp(), c.Date)
}

// Selects applies the same predicate locally. Datetime values are compared
// by their date part; an empty value is never selected.
func (c Cutover) Selects(value string) bool {
	if value == "" {
		return false
	}
	if len(value) > len("2006-01-02") {
		value = value[:len("2006-01-02")]
	}
	if c.Op == models.CutoverOnOrAfter {
		return value >= c.Date
	}
	return value < c.Date
}
