package store

import (
	"fmt"
	"slices"
	"strings"
)

// Registry maps kind names to their models.
//
// Models are registered while the application declares its kinds, normally
// from init() or main before any request is served. Registration is not
// safe for concurrent use; lookups are, once registration is finished.
type Registry struct {
	models map[string]*Model
	kinds  []string
	client Client
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClient sets the default Client for every model in the registry.
func WithClient(c Client) RegistryOption {
	return func(r *Registry) { r.client = c }
}

// NewRegistry creates a new empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{models: make(map[string]*Model)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetClient sets the default Client for every model in the registry.
func (r *Registry) SetClient(c Client) {
	r.client = c
}

// Client returns the default Client, or nil if not set.
func (r *Registry) Client() Client {
	return r.client
}

// Define declares a kind with its field templates and registers it.
func (r *Registry) Define(kind string, fields ...*Field) (*Model, error) {
	m, err := NewModel(kind, fields...)
	if err != nil {
		return nil, err
	}
	if err := r.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// MustDefine is like Define but panics on error. It is meant for
// package-level declarations.
func (r *Registry) MustDefine(kind string, fields ...*Field) *Model {
	m, err := r.Define(kind, fields...)
	if err != nil {
		panic(err)
	}
	return m
}

// Register adds a model to the registry. A model belongs to at most one registry.
func (r *Registry) Register(m *Model) error {
	if _, exists := r.models[m.kind]; exists {
		return fmt.Errorf("%w: kind %q is already registered", ErrConfiguration, m.kind)
	}
	if m.registry != nil && m.registry != r {
		return fmt.Errorf("%w: kind %q belongs to another registry", ErrConfiguration, m.kind)
	}
	m.registry = r
	r.models[m.kind] = m
	r.kinds = append(r.kinds, m.kind)
	return nil
}

// Lookup returns the model registered for kind.
func (r *Registry) Lookup(kind string) (*Model, bool) {
	m, ok := r.models[kind]
	return m, ok
}

// Kinds returns all registered kinds in registration order.
func (r *Registry) Kinds() []string {
	return slices.Clone(r.kinds)
}

// Fields returns clones of the field templates of kind, or nil if it is
// not registered.
func (r *Registry) Fields(kind string) []*Field {
	m, ok := r.models[kind]
	if !ok {
		return nil
	}
	out := make([]*Field, len(m.fields))
	for i, f := range m.fields {
		out[i] = f.Clone()
	}
	return out
}

func validateName(what, name string) error {
	if name == "" {
		return fmt.Errorf("%w: %s name is empty", ErrConfiguration, what)
	}
	if strings.HasPrefix(name, "_") {
		return fmt.Errorf("%w: %s name %q starts with '_', which is reserved", ErrConfiguration, what, name)
	}
	if strings.ContainsAny(name, ":/*?[]\\ ") {
		return fmt.Errorf("%w: %s name %q contains a reserved character", ErrConfiguration, what, name)
	}
	return nil
}
