// Package store provides a storage-agnostic entity layer with pluggable backends.
//
// Applications declare kinds (entity types) as a list of typed fields and
// persist entities through a [Client]. The same model runs unchanged on a
// document store ([github.com/jacentio/strata/store/dynamo]), a key-value
// store ([github.com/jacentio/strata/store/redis]) or in memory
// ([github.com/jacentio/strata/store/memory]).
//
// # Declaring Kinds
//
//	registry := store.NewRegistry()
//	Users := registry.MustDefine("User",
//	    store.String("email", store.UniqueKey()),
//	    store.Integer("age", store.Default(0)),
//	    store.DateTime("created", store.DateTimeType{AutoNowAdd: true}),
//	)
//
// Every kind needs at least one unique-key field. The entity id is the
// serialized unique-key values joined with [IDSeparator], in declaration
// order. A unique-key field without a default gets a fresh UUID.
//
// # Entities
//
// An [Entity] owns private clones of its kind's fields. Each field keeps a
// committed value (what storage holds) and staged mutations; writes commit
// the values that were actually persisted:
//
//	user, err := Users.Create(ctx, store.Values{"email": "a@example.com"})
//	_ = user.Set("age", 42)        // staged
//	user, err = user.Update(ctx)    // committed; nil, nil if it was deleted
//
// # Queries
//
// [Query] values are immutable builders. [Query.Fetch] returns an
// [Iterator] whose [Iterator.Cursor] encodes the position after the last
// entity it yielded, so a consumer can stop at any entity and resume later:
//
//	it := Users.All().Filter("age", store.OpGte, 18).OrderBy("-age").PageSize(100).Fetch(cursor)
//
// # Errors
//
// The package defines sentinel errors matched with errors.Is:
//
//   - [ErrConfiguration] - bad setup or an operation forbidden in this mode
//   - [ErrBadValue] - a value failed field validation (see [ValueError])
//   - [ErrFieldDoesNotExist] - unknown field name
//   - [ErrModelReference] - reference to the wrong or an unregistered kind
//   - [ErrAlreadyExists] - key collision on create
//   - [ErrNotFound] - absence on paths that report it as an error
//   - [ErrClient] - failure raised by a storage backend
//   - [ErrMaxRetryExceeded] - optimistic write retries exhausted
package store
