package store

import (
	"context"
	"fmt"
	"strings"
)

// IDSeparator joins the serialized unique-key values that form an id.
const IDSeparator = ":"

// Entity is one record of a kind. It owns private clones of the kind's
// field templates, so entities never share field state.
type Entity struct {
	model  *Model
	fields []*Field
}

// Model returns the entity's model.
func (e *Entity) Model() *Model { return e.model }

// Kind returns the kind name.
func (e *Entity) Kind() string { return e.model.kind }

// ID joins the serialized unique-key values in declaration order.
func (e *Entity) ID() string {
	parts := make([]string, len(e.model.uniqueKey))
	for i, idx := range e.model.uniqueKey {
		parts[i] = FormatValue(e.fields[idx].Serialize())
	}
	return strings.Join(parts, IDSeparator)
}

// Key returns the storage address of the entity.
func (e *Entity) Key() Key {
	return Key{Kind: e.model.kind, ID: e.ID()}
}

// Field returns the entity's own instance of the named field.
func (e *Entity) Field(name string) (*Field, error) {
	i, ok := e.model.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrFieldDoesNotExist, e.model.kind, name)
	}
	return e.fields[i], nil
}

// Fields returns the entity's field instances in declaration order.
func (e *Entity) Fields() []*Field {
	out := make([]*Field, len(e.fields))
	copy(out, e.fields)
	return out
}

// Get returns the logical value of the named field.
func (e *Entity) Get(name string) (any, error) {
	f, err := e.Field(name)
	if err != nil {
		return nil, err
	}
	return f.Value(), nil
}

// Set validates v and stages it on the named field.
func (e *Entity) Set(name string, v any) error {
	f, err := e.Field(name)
	if err != nil {
		return err
	}
	return f.Set(v)
}

// Values returns the logical value of every field.
func (e *Entity) Values() Values {
	out := make(Values, len(e.fields))
	for _, f := range e.fields {
		out[f.name] = f.Value()
	}
	return out
}

// Serialize returns the persistence-facing value of every field.
func (e *Entity) Serialize() Values {
	out := make(Values, len(e.fields))
	for _, f := range e.fields {
		out[f.name] = f.Serialize()
	}
	return out
}

// MarkPersisted commits the given values on every field. Clients call it
// after a successful write with the values they wrote.
func (e *Entity) MarkPersisted(values Values) *Entity {
	for _, f := range e.fields {
		f.SetPersisted(values[f.name])
	}
	return e
}

// Dirty reports whether any field has staged mutations.
func (e *Entity) Dirty() bool {
	for _, f := range e.fields {
		if f.Dirty() {
			return true
		}
	}
	return false
}

// Update persists the current values. It returns nil, nil when the record
// no longer exists in storage.
func (e *Entity) Update(ctx context.Context) (*Entity, error) {
	c, err := e.model.Client()
	if err != nil {
		return nil, err
	}
	return c.Update(ctx, e)
}

// Delete removes the record. The in-memory entity remains usable but stale.
func (e *Entity) Delete(ctx context.Context) error {
	c, err := e.model.Client()
	if err != nil {
		return err
	}
	return c.Delete(ctx, e.Key())
}

// Resolve fetches the entity a reference field points at. The result is
// cached until the field is set again. It returns nil, nil when the field
// is empty or the referenced entity does not exist.
func (e *Entity) Resolve(ctx context.Context, name string) (*Entity, error) {
	f, err := e.Field(name)
	if err != nil {
		return nil, err
	}
	if _, ok := f.typ.(ReferenceType); !ok {
		return nil, fmt.Errorf("%w: %s.%s is not a reference field", ErrModelReference, e.model.kind, name)
	}
	key, ok := f.Value().(Key)
	if !ok {
		return nil, nil
	}
	if f.resolved != nil && f.resolved.Key() == key {
		return f.resolved, nil
	}
	target, err := key.Fetch(ctx, e.model.registry)
	if err != nil {
		return nil, err
	}
	f.resolved = target
	return target, nil
}
