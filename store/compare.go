package store

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Values maps field names to values.
type Values map[string]any

// TimeLayout is the fixed-width UTC layout used wherever a timestamp is
// stored as a string, so that lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Op is a filter comparator.
type Op string

const (
	OpEq  Op = "="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Valid reports whether o is a supported comparator.
func (o Op) Valid() bool {
	switch o {
	case OpEq, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// Filter is one (field, comparator, value) predicate.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Match reports whether v satisfies the filter.
func (f Filter) Match(v any) (bool, error) {
	c, err := Compare(v, f.Value)
	if err != nil {
		return false, err
	}
	switch f.Op {
	case OpEq:
		return c == 0, nil
	case OpLt:
		return c < 0, nil
	case OpLte:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	case OpGte:
		return c >= 0, nil
	}
	return false, fmt.Errorf("%w: unsupported comparator %q", ErrBadValue, f.Op)
}

// Compare orders two field values. nil sorts before everything else;
// integers and floats compare numerically; keys compare by kind then id.
func Compare(a, b any) (int, error) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, nil
		case a == nil:
			return -1, nil
		default:
			return 1, nil
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y), nil
		case float64:
			return cmp.Compare(float64(x), y), nil
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmp.Compare(x, y), nil
		case int64:
			return cmp.Compare(x, float64(y)), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	case Key:
		if y, ok := b.(Key); ok {
			if c := strings.Compare(x.Kind, y.Kind); c != 0 {
				return c, nil
			}
			return strings.Compare(x.ID, y.ID), nil
		}
	}
	return 0, fmt.Errorf("%w: cannot compare %T with %T", ErrBadValue, a, b)
}

// FormatValue renders a field value as it appears inside an entity id.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(TimeLayout)
	case Key:
		return x.ID
	case *Entity:
		return x.ID()
	}
	return fmt.Sprint(v)
}
