package store

import (
	"context"
	"fmt"
	"slices"
)

// Query accumulates filters, ordering and limits for one kind. Every
// builder method returns a new Query; the receiver is never modified.
type Query struct {
	model    *Model
	filters  []Filter
	orderBy  []string
	limit    int
	pageSize int
}

// Model returns the queried model.
func (q Query) Model() *Model { return q.model }

// Filter adds a (field, comparator, value) predicate.
func (q Query) Filter(field string, op Op, value any) Query {
	q.filters = append(slices.Clip(q.filters), Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy appends sort fields. Prefix a name with '-' to sort descending.
func (q Query) OrderBy(fields ...string) Query {
	q.orderBy = append(slices.Clip(q.orderBy), fields...)
	return q
}

// Limit caps the number of entities the iterator yields. Zero means no cap.
func (q Query) Limit(n int) Query {
	q.limit = n
	return q
}

// PageSize sets the number of entities requested from the backend per
// page. When unset, the limit is used.
func (q Query) PageSize(n int) Query {
	q.pageSize = n
	return q
}

// Params validates the query and returns what is handed to a Client.
// Filter values are normalized through the field's validation.
func (q Query) Params() (QueryParams, error) {
	if q.model == nil {
		return QueryParams{}, fmt.Errorf("%w: query has no model", ErrConfiguration)
	}
	if q.limit < 0 || q.pageSize < 0 {
		return QueryParams{}, fmt.Errorf("%w: negative limit", ErrBadValue)
	}
	p := QueryParams{
		Model:   q.model,
		Filters: make([]Filter, 0, len(q.filters)),
		OrderBy: slices.Clone(q.orderBy),
		Limit:   q.pageSize,
	}
	if p.Limit == 0 {
		p.Limit = q.limit
	}
	for _, f := range q.filters {
		tmpl, ok := q.model.Field(f.Field)
		if !ok {
			return QueryParams{}, fmt.Errorf("%w: cannot filter on %s.%s", ErrFieldDoesNotExist, q.model.kind, f.Field)
		}
		if !f.Op.Valid() {
			return QueryParams{}, fmt.Errorf("%w: unsupported comparator %q", ErrBadValue, f.Op)
		}
		v, err := tmpl.Validate(f.Value)
		if err != nil {
			return QueryParams{}, err
		}
		if v == nil && f.Op != OpEq {
			return QueryParams{}, badValue(f.Field, "nil only supports %s", OpEq)
		}
		p.Filters = append(p.Filters, Filter{Field: f.Field, Op: f.Op, Value: v})
	}
	for _, spec := range q.orderBy {
		name, _ := OrderField(spec)
		if !q.model.HasField(name) {
			return QueryParams{}, fmt.Errorf("%w: cannot order by %s.%s", ErrFieldDoesNotExist, q.model.kind, name)
		}
	}
	return p, nil
}

// Fetch runs the query, starting after the position encoded in cursor.
// An empty cursor starts from the beginning.
func (q Query) Fetch(cursor string) *Iterator {
	it := &Iterator{limit: q.limit, start: cursor, cursor: cursor}
	it.params, it.err = q.Params()
	if it.err == nil {
		it.client, it.err = q.model.Client()
	}
	return it
}

// First returns the first matching entity, or nil when there is none.
func (q Query) First(ctx context.Context) (*Entity, error) {
	it := q.Limit(1).Fetch("")
	if it.Next(ctx) {
		return it.Entity(), nil
	}
	return nil, it.Err()
}
