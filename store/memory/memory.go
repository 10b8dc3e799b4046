// Package memory provides an in-memory implementation of store.Client for
// tests and single-process tools. Records are lost when the process exits.
package memory

import (
	"context"
	"encoding/base64"
	"fmt"
	"maps"
	"strconv"
	"sync"

	"github.com/jacentio/strata/store"
)

// Client keeps serialized copies of entities keyed by kind and id.
type Client struct {
	mu    sync.RWMutex
	kinds map[string]map[string]store.Values
}

// Ensure Client implements store.Client and store.Counter at compile time.
var (
	_ store.Client  = (*Client)(nil)
	_ store.Counter = (*Client)(nil)
)

// New creates an empty in-memory client.
func New() *Client {
	return &Client{kinds: make(map[string]map[string]store.Values)}
}

// Get returns the entity stored under id, or nil, nil.
func (c *Client) Get(_ context.Context, m *store.Model, id string) (*store.Entity, error) {
	c.mu.RLock()
	values, ok := c.kinds[m.Kind()][id]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return m.FromDatabase(maps.Clone(values))
}

// Create stores a new entity. It fails with store.ErrAlreadyExists when
// the id is taken.
func (c *Client) Create(_ context.Context, e *store.Entity) (*store.Entity, error) {
	values := e.Serialize()
	key := e.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	records := c.kinds[key.Kind]
	if records == nil {
		records = make(map[string]store.Values)
		c.kinds[key.Kind] = records
	}
	if _, exists := records[key.ID]; exists {
		return nil, fmt.Errorf("%w: %s", store.ErrAlreadyExists, key.Ref())
	}
	records[key.ID] = maps.Clone(values)
	return e.MarkPersisted(values), nil
}

// Update overwrites an existing entity. It returns nil, nil when the
// record is gone.
func (c *Client) Update(_ context.Context, e *store.Entity) (*store.Entity, error) {
	values := e.Serialize()
	key := e.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	records := c.kinds[key.Kind]
	if _, exists := records[key.ID]; !exists {
		return nil, nil
	}
	records[key.ID] = maps.Clone(values)
	return e.MarkPersisted(values), nil
}

// Delete removes a record if present.
func (c *Client) Delete(_ context.Context, key store.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.kinds[key.Kind], key.ID)
	return nil
}

// RunQuery filters and sorts every record of the kind, then returns the
// page at the offset encoded in the cursor.
func (c *Client) RunQuery(_ context.Context, params store.QueryParams) (store.Page, error) {
	offset, err := decodeOffset(params.Cursor)
	if err != nil {
		return store.Page{}, err
	}

	c.mu.RLock()
	var matched []store.Values
	for _, values := range c.kinds[params.Model.Kind()] {
		ok, err := store.MatchFilters(values, params.Filters)
		if err != nil {
			c.mu.RUnlock()
			return store.Page{}, err
		}
		if ok {
			matched = append(matched, maps.Clone(values))
		}
	}
	c.mu.RUnlock()

	entities := make([]*store.Entity, 0, len(matched))
	for _, values := range matched {
		e, err := params.Model.FromDatabase(values)
		if err != nil {
			return store.Page{}, err
		}
		entities = append(entities, e)
	}
	if err := store.SortEntities(entities, params.OrderBy); err != nil {
		return store.Page{}, err
	}

	if offset > len(entities) {
		offset = len(entities)
	}
	end := len(entities)
	if params.Limit > 0 && offset+params.Limit < end {
		end = offset + params.Limit
	}
	page := store.Page{Entities: entities[offset:end]}
	if end < len(entities) {
		page.Next = encodeOffset(end)
	}
	return page, nil
}

// Flush removes every record.
func (c *Client) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.kinds)
	return nil
}

// Count returns the number of records of the model's kind.
func (c *Client) Count(_ context.Context, m *store.Model) (int64, error) {
	return int64(c.Len(m.Kind())), nil
}

// Len returns the number of records stored for kind.
func (c *Client) Len(kind string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.kinds[kind])
}

func encodeOffset(n int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(n)))
}

func decodeOffset(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed cursor %q", store.ErrBadValue, cursor)
	}
	n, err := strconv.Atoi(string(b))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: malformed cursor %q", store.ErrBadValue, cursor)
	}
	return n, nil
}
