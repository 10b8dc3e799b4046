package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Iterator streams query results page by page.
//
// Backends only understand page-level cursors. The iterator extends them
// with an item position: after each entity, Cursor returns
// "<raw page cursor>:<entities consumed from that page>". Fetching with that
// cursor re-reads the page and skips the consumed entities, so a consumer
// can stop after any entity and resume with the next one.
//
//	it := Users.All().Filter("active", store.OpEq, true).PageSize(50).Fetch(cursor)
//	for it.Next(ctx) {
//	    user := it.Entity()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
//	next := it.Cursor()
type Iterator struct {
	client Client
	params QueryParams
	limit  int
	err    error

	start   string
	cursor  string
	started bool
	done    bool

	raw     string
	page    []*Entity
	pos     int
	next    string
	skip    int
	yielded int
	current *Entity
}

// Next advances to the next entity. It returns false when the results are
// exhausted or an error occurred; check Err afterwards.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil || it.done {
		return false
	}
	if it.limit > 0 && it.yielded >= it.limit {
		it.done = true
		return false
	}
	if !it.started {
		it.started = true
		raw, skip, err := ParseCursor(it.start)
		if err != nil {
			it.err = err
			return false
		}
		it.skip = skip
		if err := it.fetch(ctx, raw); err != nil {
			it.err = err
			return false
		}
	}
	for {
		for it.pos < len(it.page) {
			e := it.page[it.pos]
			it.pos++
			if it.skip > 0 {
				it.skip--
				continue
			}
			it.current = e
			it.yielded++
			it.cursor = FormatCursor(it.raw, it.pos)
			return true
		}
		if it.next == "" || it.next == it.raw {
			it.done = true
			it.current = nil
			return false
		}
		if err := it.fetch(ctx, it.next); err != nil {
			it.err = err
			return false
		}
	}
}

func (it *Iterator) fetch(ctx context.Context, raw string) error {
	params := it.params
	params.Cursor = raw
	page, err := it.client.RunQuery(ctx, params)
	if err != nil {
		return err
	}
	it.raw = raw
	it.page = page.Entities
	it.pos = 0
	it.next = page.Next
	return nil
}

// Entity returns the current entity.
func (it *Iterator) Entity() *Entity { return it.current }

// Err returns the first error encountered.
func (it *Iterator) Err() error { return it.err }

// Cursor returns the position after the most recent entity, or the
// starting cursor before the first call to Next.
func (it *Iterator) Cursor() string { return it.cursor }

// Collect drains the iterator.
func (it *Iterator) Collect(ctx context.Context) ([]*Entity, error) {
	var out []*Entity
	for it.Next(ctx) {
		out = append(out, it.Entity())
	}
	return out, it.Err()
}

// FormatCursor builds an item-level cursor.
func FormatCursor(raw string, consumed int) string {
	return raw + ":" + strconv.Itoa(consumed)
}

// ParseCursor splits an item-level cursor into the raw backend cursor and
// the number of entities to skip. The empty cursor means the start.
func ParseCursor(cursor string) (raw string, skip int, err error) {
	if cursor == "" {
		return "", 0, nil
	}
	i := strings.LastIndexByte(cursor, ':')
	if i < 0 {
		return "", 0, fmt.Errorf("%w: malformed cursor %q", ErrBadValue, cursor)
	}
	skip, err = strconv.Atoi(cursor[i+1:])
	if err != nil || skip < 0 {
		return "", 0, fmt.Errorf("%w: malformed cursor %q", ErrBadValue, cursor)
	}
	return cursor[:i], skip, nil
}
