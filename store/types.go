package store

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxLength is the longest value a StringType accepts when MaxLength is unset.
const DefaultMaxLength = 1500

// FieldType is the value strategy behind a Field. Coerce validates and
// normalizes a non-nil value assigned by application code; Decode does the
// same for a non-nil value read back from a backend, which may arrive in
// its wire form (for example a string from a key-value store).
type FieldType interface {
	TypeName() string
	Coerce(v any) (any, error)
	Decode(raw any) (any, error)
}

// defaulter is implemented by types that supply an implicit default.
type defaulter interface {
	implicitDefault() any
}

// serializer is implemented by types whose persisted form differs from
// the value the application sees.
type serializer interface {
	serialize(v any) any
}

func typeMismatch(t FieldType, v any) error {
	return fmt.Errorf("must be %s, not %T", t.TypeName(), v)
}

// StringType holds single-line strings up to MaxLength bytes.
type StringType struct {
	MaxLength int
	Multiline bool
}

func (t StringType) TypeName() string { return "string" }

func (t StringType) Coerce(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, typeMismatch(t, v)
	}
	if !t.Multiline && strings.ContainsRune(s, '\n') {
		return nil, errors.New("cannot be multi-line")
	}
	limit := t.MaxLength
	if limit <= 0 {
		limit = DefaultMaxLength
	}
	if len(s) > limit {
		return nil, fmt.Errorf("is %d bytes long; it must be %d or less", len(s), limit)
	}
	return s, nil
}

func (t StringType) Decode(raw any) (any, error) { return t.Coerce(raw) }

// TextType holds strings of any length, including newlines.
type TextType struct{}

func (t TextType) TypeName() string { return "text" }

func (t TextType) Coerce(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, typeMismatch(t, v)
	}
	return s, nil
}

func (t TextType) Decode(raw any) (any, error) { return t.Coerce(raw) }

// IntegerType holds int64 values, optionally bounded by Min and Max.
// Every Go integer kind and integral floats are normalized to int64.
type IntegerType struct {
	Min *int64
	Max *int64
}

// Bound returns a pointer to n for use as an IntegerType limit.
func Bound(n int64) *int64 { return &n }

func (t IntegerType) TypeName() string { return "integer" }

func (t IntegerType) Coerce(v any) (any, error) {
	var n int64
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, errors.New("must fit in 64 bits")
		}
		n = int64(u)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("must be integer, not %v", f)
		}
		n = int64(f)
	default:
		return nil, typeMismatch(t, v)
	}
	if t.Min != nil && n < *t.Min {
		return nil, fmt.Errorf("is %d; must be at least %d", n, *t.Min)
	}
	if t.Max != nil && n > *t.Max {
		return nil, fmt.Errorf("is %d; must be at most %d", n, *t.Max)
	}
	return n, nil
}

func (t IntegerType) Decode(raw any) (any, error) {
	if s, ok := raw.(string); ok {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot decode %q as integer", s)
		}
		return t.Coerce(n)
	}
	return t.Coerce(raw)
}

// FloatType holds float64 values.
type FloatType struct{}

func (t FloatType) TypeName() string { return "float" }

func (t FloatType) Coerce(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return nil, typeMismatch(t, v)
}

func (t FloatType) Decode(raw any) (any, error) {
	if s, ok := raw.(string); ok {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot decode %q as float", s)
		}
		return f, nil
	}
	return t.Coerce(raw)
}

// BooleanType holds bool values.
type BooleanType struct{}

func (t BooleanType) TypeName() string { return "boolean" }

func (t BooleanType) Coerce(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, typeMismatch(t, v)
	}
	return b, nil
}

func (t BooleanType) Decode(raw any) (any, error) {
	if s, ok := raw.(string); ok {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("cannot decode %q as boolean", s)
		}
		return b, nil
	}
	return t.Coerce(raw)
}

// DateTimeType holds UTC timestamps.
//
// With AutoNowAdd the field defaults to the construction time. With AutoNow
// it also defaults to the construction time and is set to the current time
// every time the entity is serialized for a write.
type DateTimeType struct {
	AutoNow    bool
	AutoNowAdd bool
}

func (t DateTimeType) TypeName() string { return "datetime" }

func (t DateTimeType) Coerce(v any) (any, error) {
	ts, ok := v.(time.Time)
	if !ok {
		return nil, typeMismatch(t, v)
	}
	return ts.UTC(), nil
}

func (t DateTimeType) Decode(raw any) (any, error) {
	if s, ok := raw.(string); ok {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("cannot decode %q as datetime", s)
		}
		return ts.UTC(), nil
	}
	return t.Coerce(raw)
}

func (t DateTimeType) implicitDefault() any {
	if t.AutoNow || t.AutoNowAdd {
		return time.Now().UTC()
	}
	return nil
}

func (t DateTimeType) serialize(v any) any {
	if t.AutoNow {
		return time.Now().UTC()
	}
	return v
}

// ReferenceType holds a Key pointing at another entity. When Kind is set,
// only keys of that kind are accepted.
type ReferenceType struct {
	Kind string
}

func (t ReferenceType) TypeName() string {
	if t.Kind == "" {
		return "reference"
	}
	return "reference to " + t.Kind
}

func (t ReferenceType) Coerce(v any) (any, error) {
	var key Key
	switch val := v.(type) {
	case *Entity:
		key = val.Key()
	case Key:
		key = val
	case *Key:
		key = *val
	default:
		return nil, typeMismatch(t, v)
	}
	if key.Kind == "" || key.ID == "" {
		return nil, fmt.Errorf("incomplete key %q/%q", key.Kind, key.ID)
	}
	if t.Kind != "" && key.Kind != t.Kind {
		return nil, fmt.Errorf("%w: expects values of kind %q but got %q", ErrModelReference, t.Kind, key.Kind)
	}
	return key, nil
}

// Decode accepts a Key, a "kind/id" string, or a bare id when Kind is set.
func (t ReferenceType) Decode(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return t.Coerce(raw)
	}
	if key, err := ParseKey(s); err == nil && (t.Kind == "" || key.Kind == t.Kind) {
		return t.Coerce(key)
	}
	if t.Kind == "" {
		return nil, fmt.Errorf("cannot decode %q as a key without a target kind", s)
	}
	return t.Coerce(Key{Kind: t.Kind, ID: s})
}
