package store

import (
	"context"
	"fmt"
	"strings"
)

// Key addresses one entity: its kind and identifier.
// Holding a Key never implies the entity exists.
type Key struct {
	Kind string
	ID   string
}

// String returns the identifier.
func (k Key) String() string { return k.ID }

// Ref returns the kind-qualified form "kind/id", which ParseKey reverses.
func (k Key) Ref() string { return k.Kind + "/" + k.ID }

// IsZero reports whether the key is empty.
func (k Key) IsZero() bool { return k.Kind == "" && k.ID == "" }

// ParseKey parses the "kind/id" form produced by Key.Ref.
// Kinds never contain '/', so everything after the first slash is the id.
func ParseKey(ref string) (Key, error) {
	kind, id, ok := strings.Cut(ref, "/")
	if !ok || kind == "" || id == "" {
		return Key{}, fmt.Errorf("%w: malformed key %q", ErrBadValue, ref)
	}
	return Key{Kind: kind, ID: id}, nil
}

// Fetch loads the referenced entity through the model registered for the
// key's kind. It returns nil, nil when the entity does not exist.
func (k Key) Fetch(ctx context.Context, registry *Registry) (*Entity, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: no registry to resolve kind %q", ErrConfiguration, k.Kind)
	}
	model, ok := registry.Lookup(k.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: kind %q is not registered", ErrModelReference, k.Kind)
	}
	return model.GetByID(ctx, k.ID)
}
