package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Model describes one kind of entity: its name, its field templates, and
// the Client used to persist it. Its methods are the kind-level lifecycle
// operations.
type Model struct {
	kind      string
	fields    []*Field
	index     map[string]int
	uniqueKey []int
	registry  *Registry
	client    Client
}

// NewModel builds a model without registering it. Most callers use Registry.Define.
func NewModel(kind string, fields ...*Field) (*Model, error) {
	if err := validateName("kind", kind); err != nil {
		return nil, err
	}
	m := &Model{kind: kind, index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if f == nil {
			return nil, fmt.Errorf("%w: kind %q declares a nil field", ErrConfiguration, kind)
		}
		if err := validateName("field", f.name); err != nil {
			return nil, err
		}
		if _, dup := m.index[f.name]; dup {
			return nil, fmt.Errorf("%w: kind %q declares field %q twice", ErrConfiguration, kind, f.name)
		}
		m.index[f.name] = len(m.fields)
		if f.UniqueKey() {
			m.uniqueKey = append(m.uniqueKey, len(m.fields))
		}
		m.fields = append(m.fields, f.Clone())
	}
	if len(m.uniqueKey) == 0 {
		return nil, fmt.Errorf("%w: kind %q must declare at least one unique key field", ErrConfiguration, kind)
	}
	return m, nil
}

// Kind returns the kind name.
func (m *Model) Kind() string { return m.kind }

// Registry returns the registry the model belongs to, or nil.
func (m *Model) Registry() *Registry { return m.registry }

// Fields returns the field templates in declaration order. They must not be modified.
func (m *Model) Fields() []*Field { return slices.Clone(m.fields) }

// Field returns the template of the named field.
func (m *Model) Field(name string) (*Field, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return m.fields[i], true
}

// HasField reports whether the kind declares the named field.
func (m *Model) HasField(name string) bool {
	_, ok := m.index[name]
	return ok
}

// UniqueKeyFields returns the names of the fields that form the id.
func (m *Model) UniqueKeyFields() []string {
	names := make([]string, len(m.uniqueKey))
	for i, idx := range m.uniqueKey {
		names[i] = m.fields[idx].name
	}
	return names
}

// Use sets a Client for this model, overriding the registry default.
func (m *Model) Use(c Client) *Model {
	m.client = c
	return m
}

// Client returns the Client used for this model.
func (m *Model) Client() (Client, error) {
	if m.client != nil {
		return m.client, nil
	}
	if m.registry != nil && m.registry.client != nil {
		return m.registry.client, nil
	}
	return nil, fmt.Errorf("%w: no client configured for kind %q", ErrConfiguration, m.kind)
}

// Key returns the key of the entity with the given id.
func (m *Model) Key(id string) Key {
	return Key{Kind: m.kind, ID: id}
}

func (m *Model) instantiate() *Entity {
	e := &Entity{model: m, fields: make([]*Field, len(m.fields))}
	for i, f := range m.fields {
		e.fields[i] = f.Clone()
	}
	return e
}

// New constructs a new, unsaved entity. Unset fields take their defaults;
// required fields without a value or default fail, as do unknown names and
// empty unique-key fields.
func (m *Model) New(values Values) (*Entity, error) {
	var unknown []string
	for name := range values {
		if !m.HasField(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %q was given unrecognized fields: %s",
			ErrFieldDoesNotExist, m.kind, strings.Join(unknown, ", "))
	}

	e := m.instantiate()
	for _, f := range e.fields {
		v, ok := values[f.name]
		if !ok {
			if d := f.Default(); d != nil {
				v, ok = d, true
			}
		}
		if f.Required() && !ok {
			return nil, badValue(f.name, "missing value for required field")
		}
		if err := f.Set(v); err != nil {
			return nil, err
		}
	}
	for _, idx := range m.uniqueKey {
		if f := e.fields[idx]; FormatValue(f.Serialize()) == "" {
			return nil, badValue(f.name, "unique key field is empty")
		}
	}
	return e, nil
}

// FromDatabase reconstructs an entity from persisted values and marks every
// field committed. Names that are not fields of the kind are ignored.
func (m *Model) FromDatabase(values Values) (*Entity, error) {
	e := m.instantiate()
	for _, f := range e.fields {
		if err := f.Deserialize(values[f.name]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Create constructs a new entity and persists it.
func (m *Model) Create(ctx context.Context, values Values) (*Entity, error) {
	e, err := m.New(values)
	if err != nil {
		return nil, err
	}
	c, err := m.Client()
	if err != nil {
		return nil, err
	}
	return c.Create(ctx, e)
}

// GetByID fetches an entity. It returns nil, nil when it does not exist.
func (m *Model) GetByID(ctx context.Context, id string) (*Entity, error) {
	if id == "" {
		return nil, nil
	}
	c, err := m.Client()
	if err != nil {
		return nil, err
	}
	return c.Get(ctx, m, id)
}

// MustGetByID is like GetByID but reports absence as ErrNotFound.
func (m *Model) MustGetByID(ctx context.Context, id string) (*Entity, error) {
	e, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, m.kind, id)
	}
	return e, nil
}

// GetOrCreate returns the entity whose id the given values produce,
// creating it when absent. The bool reports whether it was created.
func (m *Model) GetOrCreate(ctx context.Context, values Values) (*Entity, bool, error) {
	e, err := m.New(values)
	if err != nil {
		return nil, false, err
	}
	existing, err := m.GetByID(ctx, e.ID())
	if err != nil || existing != nil {
		return existing, false, err
	}
	c, err := m.Client()
	if err != nil {
		return nil, false, err
	}
	created, err := c.Create(ctx, e)
	if errors.Is(err, ErrAlreadyExists) {
		// Lost the race to a concurrent creator.
		existing, err = m.GetByID(ctx, e.ID())
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// DeleteByID removes an entity. Deleting a missing entity is a no-op.
func (m *Model) DeleteByID(ctx context.Context, id string) error {
	c, err := m.Client()
	if err != nil {
		return err
	}
	return c.Delete(ctx, m.Key(id))
}

// All starts an unfiltered query over the kind.
func (m *Model) All() Query {
	return Query{model: m}
}
