package store

import "fmt"

// Attr is a typed accessor for one field, declared next to the model:
//
//	var (
//	    Users     = registry.MustDefine("User", store.String("email", store.UniqueKey()), store.Integer("age"))
//	    UserEmail = store.NewAttr[string]("email")
//	    UserAge   = store.NewAttr[int64]("age")
//	)
//
//	age, err := UserAge.Get(user)
//	err = UserAge.Set(user, age+1)
//
// Reads and writes go through the field's validation.
type Attr[T any] struct {
	name string
}

// NewAttr returns an accessor for the named field.
func NewAttr[T any](name string) Attr[T] {
	return Attr[T]{name: name}
}

// Name returns the field name.
func (a Attr[T]) Name() string { return a.name }

// Get returns the field value. A nil value yields the zero T.
func (a Attr[T]) Get(e *Entity) (T, error) {
	var zero T
	v, err := e.Get(a.name)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s.%s holds %T, not %T", ErrBadValue, e.Kind(), a.name, v, zero)
	}
	return t, nil
}

// Set validates and stages v on the field.
func (a Attr[T]) Set(e *Entity, v T) error {
	return e.Set(a.name, v)
}
