package store

import "context"

// Client is the storage backend interface.
//
// Clients persist Entity.Serialize output and rebuild entities with
// Model.FromDatabase. After every successful write they call
// Entity.MarkPersisted with the values they wrote.
type Client interface {
	// Get fetches one entity. It returns nil, nil when it does not exist.
	Get(ctx context.Context, m *Model, id string) (*Entity, error)

	// Create persists a new entity.
	Create(ctx context.Context, e *Entity) (*Entity, error)

	// Update persists all current values of an existing entity. It returns
	// nil, nil when the record no longer exists, so that a concurrent
	// delete is never undone by recreating the record.
	Update(ctx context.Context, e *Entity) (*Entity, error)

	// Delete removes a record. Deleting a missing record is a no-op.
	Delete(ctx context.Context, key Key) error

	// RunQuery returns one raw page of results and the raw cursor of the
	// next page, which is empty when there are no further pages.
	RunQuery(ctx context.Context, params QueryParams) (Page, error)

	// Flush removes all data. Clients permit it only in test or emulator
	// mode and return ErrConfiguration otherwise.
	Flush(ctx context.Context) error
}

// QueryParams is a validated query as handed to a Client.
type QueryParams struct {
	Model   *Model
	Filters []Filter

	// OrderBy lists field names; a leading '-' sorts descending.
	OrderBy []string

	// Limit is the maximum page size; 0 leaves it to the backend.
	Limit int

	// Cursor is the raw backend cursor of the page to fetch; empty for the first.
	Cursor string
}

// Page is one raw page of query results.
type Page struct {
	Entities []*Entity
	Next     string
}

// OrderField splits an OrderBy entry into its field name and direction.
func OrderField(spec string) (name string, descending bool) {
	if len(spec) > 0 && spec[0] == '-' {
		return spec[1:], true
	}
	return spec, false
}

// Counter is implemented by clients that can count the records of a kind
// without reading them.
type Counter interface {
	Count(ctx context.Context, m *Model) (int64, error)
}
