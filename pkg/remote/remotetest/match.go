package remotetest

import (
	"fmt"

	"github.com/ha1tch/hotelmig/pkg/remote"
)

func matches(rec Record, domain remote.Domain) bool {
	for _, term := range domain {
		if !matchTerm(rec[term.Field], term) {
			return false
		}
	}
	return true
}

func matchTerm(value interface{}, term remote.Term) bool {
	// x2many fields match when any linked id satisfies the term
	if ids, ok := asIDList(value); ok {
		hit := false
		for _, id := range ids {
			if term.Op == "=" || term.Op == "!=" {
				hit = hit || equal(id, term.Value)
			} else {
				hit = hit || contains(term.Value, id)
			}
		}
		if term.Op == "!=" || term.Op == "not in" {
			return !hit
		}
		return hit
	}
	return matchScalar(scalar(value), term)
}

func matchScalar(value interface{}, term remote.Term) bool {
	switch term.Op {
	case "=":
		return equal(value, term.Value)
	case "!=":
		return !equal(value, term.Value)
	case "in":
		return contains(term.Value, value)
	case "not in":
		return !contains(term.Value, value)
	case "<", "<=", ">", ">=":
		if value == nil || value == false {
			return false
		}
		c, ok := compare(value, term.Value)
		if !ok {
			return false
		}
		switch term.Op {
		case "<":
			return c < 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		default:
			return c >= 0
		}
	}
	panic(fmt.Sprintf("remotetest: unsupported operator %q", term.Op))
}

// scalar reduces a link value [id, name] to its id
func scalar(value interface{}) interface{} {
	if pair, ok := value.([]interface{}); ok && isLink(pair) {
		return pair[0]
	}
	return value
}

func isLink(pair []interface{}) bool {
	if len(pair) != 2 {
		return false
	}
	_, isNum := number(pair[0])
	_, isName := pair[1].(string)
	return isNum && isName
}

func asIDList(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case []int:
		out := make([]interface{}, len(v))
		for i, id := range v {
			out[i] = id
		}
		return out, true
	case []interface{}:
		if isLink(v) {
			return nil, false
		}
		return v, true
	}
	return nil, false
}

func contains(list interface{}, value interface{}) bool {
	switch l := list.(type) {
	case []int:
		for _, item := range l {
			if equal(value, item) {
				return true
			}
		}
	case []string:
		for _, item := range l {
			if equal(value, item) {
				return true
			}
		}
	case []interface{}:
		for _, item := range l {
			if equal(value, item) {
				return true
			}
		}
	}
	return false
}

func equal(a, b interface{}) bool {
	if an, ok := number(a); ok {
		bn, ok := number(b)
		return ok && an == bn
	}
	return a == b
}

func compare(a, b interface{}) (int, bool) {
	if an, ok := number(a); ok {
		bn, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}
	as, ok := a.(string)
	if !ok {
		return 0, false
	}
	bs, ok := b.(string)
	if !ok {
		return 0, false
	}
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	}
	return 0, true
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toInt(v interface{}) int {
	n, _ := number(v)
	return int(n)
}
