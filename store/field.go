package store

import (
	"errors"
	"slices"

	"github.com/google/uuid"
)

// Field holds the value of one attribute of one entity.
//
// A Field keeps a committed value (the last value known to match storage)
// and a stack of staged values (mutations not yet persisted). Value returns
// the most recent staged value, or the committed value when nothing is
// staged. SetPersisted commits a value and clears the stack.
//
// Fields declared on a Model are templates; each Entity works on its own
// clones, so the templates are never mutated after declaration.
type Field struct {
	name string
	typ  FieldType
	opts fieldOptions

	committed any
	staged    []any

	// resolved caches the entity a reference field points at.
	resolved *Entity
}

type fieldOptions struct {
	required  bool
	notNull   bool
	unindexed bool
	uniqueKey bool
	def       any
	defFn     func() any
	choices   []any
}

// FieldOption configures a Field at declaration.
type FieldOption func(*fieldOptions)

// Required makes the field mandatory when constructing a new entity,
// unless it has a default.
func Required() FieldOption {
	return func(o *fieldOptions) { o.required = true }
}

// NotNull rejects nil values.
func NotNull() FieldOption {
	return func(o *fieldOptions) { o.notNull = true }
}

// Unindexed excludes the field from secondary indexes where the backend
// maintains them itself.
func Unindexed() FieldOption {
	return func(o *fieldOptions) { o.unindexed = true }
}

// UniqueKey marks the field as part of the entity identifier. A string
// field without an explicit default gets a fresh UUID for each new entity.
func UniqueKey() FieldOption {
	return func(o *fieldOptions) { o.uniqueKey = true }
}

// Default sets a constant default value.
func Default(v any) FieldOption {
	return func(o *fieldOptions) { o.def = v }
}

// DefaultFunc sets a default evaluated once per new entity.
func DefaultFunc(fn func() any) FieldOption {
	return func(o *fieldOptions) { o.defFn = fn }
}

// Choices restricts the field to the given values.
func Choices(values ...any) FieldOption {
	return func(o *fieldOptions) { o.choices = values }
}

// NewField declares a field of the given type.
func NewField(name string, typ FieldType, opts ...FieldOption) *Field {
	f := &Field{name: name, typ: typ}
	for _, opt := range opts {
		opt(&f.opts)
	}
	if f.opts.uniqueKey && f.opts.def == nil && f.opts.defFn == nil {
		switch typ.(type) {
		case StringType, TextType:
			f.opts.defFn = func() any { return uuid.NewString() }
		}
	}
	return f
}

// String declares a single-line string field limited to DefaultMaxLength bytes.
func String(name string, opts ...FieldOption) *Field {
	return NewField(name, StringType{}, opts...)
}

// Text declares an unbounded string field.
func Text(name string, opts ...FieldOption) *Field {
	return NewField(name, TextType{}, opts...)
}

// Integer declares a 64-bit integer field.
func Integer(name string, opts ...FieldOption) *Field {
	return NewField(name, IntegerType{}, opts...)
}

// Float declares a float64 field.
func Float(name string, opts ...FieldOption) *Field {
	return NewField(name, FloatType{}, opts...)
}

// Boolean declares a bool field.
func Boolean(name string, opts ...FieldOption) *Field {
	return NewField(name, BooleanType{}, opts...)
}

// DateTime declares a timestamp field.
func DateTime(name string, typ DateTimeType, opts ...FieldOption) *Field {
	return NewField(name, typ, opts...)
}

// Reference declares a field holding a Key of the given kind.
// An empty kind accepts keys of any kind.
func Reference(name, kind string, opts ...FieldOption) *Field {
	return NewField(name, ReferenceType{Kind: kind}, opts...)
}

func (f *Field) Name() string    { return f.name }
func (f *Field) Type() FieldType { return f.typ }
func (f *Field) Required() bool  { return f.opts.required }
func (f *Field) Nullable() bool  { return !f.opts.notNull }
func (f *Field) Indexed() bool   { return !f.opts.unindexed }
func (f *Field) UniqueKey() bool { return f.opts.uniqueKey }

// Choices returns the allowed values, or nil when unrestricted.
func (f *Field) Choices() []any { return slices.Clone(f.opts.choices) }

// Default returns the value a new entity gets when none is supplied.
// Default functions run on every call.
func (f *Field) Default() any {
	if f.opts.defFn != nil {
		return f.opts.defFn()
	}
	if f.opts.def != nil {
		return f.opts.def
	}
	if d, ok := f.typ.(defaulter); ok {
		return d.implicitDefault()
	}
	return nil
}

// Value returns the logical value: the top staged value, else the committed one.
func (f *Field) Value() any {
	if n := len(f.staged); n > 0 {
		return f.staged[n-1]
	}
	return f.committed
}

// Committed returns the last persisted value.
func (f *Field) Committed() any { return f.committed }

// Dirty reports whether the field has staged mutations.
func (f *Field) Dirty() bool { return len(f.staged) > 0 }

// Set validates v and stages it above any earlier mutation.
func (f *Field) Set(v any) error {
	val, err := f.Validate(v)
	if err != nil {
		return err
	}
	f.staged = append(f.staged, val)
	if e, ok := v.(*Entity); ok {
		f.resolved = e
	} else {
		f.resolved = nil
	}
	return nil
}

// Validate checks nullability, type and choices, returning the normalized value.
// It does not modify the field.
func (f *Field) Validate(v any) (any, error) {
	if v == nil {
		if f.opts.notNull {
			return nil, badValue(f.name, "field is not nullable")
		}
		return nil, nil
	}
	val, err := f.typ.Coerce(v)
	if err != nil {
		return nil, f.wrap(err)
	}
	return f.checkChoices(val)
}

func (f *Field) checkChoices(val any) (any, error) {
	if len(f.opts.choices) == 0 {
		return val, nil
	}
	for _, c := range f.opts.choices {
		if c == val {
			return val, nil
		}
		// Choices declared with untyped constants arrive as int or float64.
		if cv, err := f.typ.Coerce(c); err == nil && cv == val {
			return val, nil
		}
	}
	return nil, badValue(f.name, "%v is not one of %v", val, f.opts.choices)
}

func (f *Field) wrap(err error) error {
	ve := &ValueError{Field: f.name, Reason: err.Error()}
	if errors.Is(err, ErrModelReference) {
		ve.Cause = ErrModelReference
	}
	return ve
}

// Serialize returns the value to persist.
func (f *Field) Serialize() any {
	v := f.Value()
	if s, ok := f.typ.(serializer); ok {
		return s.serialize(v)
	}
	return v
}

// Deserialize loads a raw persisted value and commits it.
func (f *Field) Deserialize(raw any) error {
	if raw == nil {
		if f.opts.notNull {
			return badValue(f.name, "field is not nullable")
		}
		f.SetPersisted(nil)
		return nil
	}
	val, err := f.typ.Decode(raw)
	if err != nil {
		return f.wrap(err)
	}
	if val, err = f.checkChoices(val); err != nil {
		return err
	}
	f.SetPersisted(val)
	return nil
}

// SetPersisted commits v as the persisted value and drops staged mutations.
func (f *Field) SetPersisted(v any) {
	f.committed = v
	f.staged = nil
}

// Clone returns an independent copy of the declaration with no value.
func (f *Field) Clone() *Field {
	return &Field{name: f.name, typ: f.typ, opts: f.opts}
}
