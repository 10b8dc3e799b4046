package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jacentio/strata/store"
)

// Outcome labels for OperationsTotal.
const (
	StatusOK       = "ok"
	StatusMiss     = "miss"
	StatusConflict = "conflict"
	StatusError    = "error"
)

// Client wraps a store.Client and records metrics for every call.
type Client struct {
	next    store.Client
	backend string
}

// Ensure Client implements store.Client and store.Counter at compile time.
var (
	_ store.Client  = (*Client)(nil)
	_ store.Counter = (*Client)(nil)
)

// Instrument wraps next. backend labels every metric, for example "dynamo".
func Instrument(next store.Client, backend string) *Client {
	return &Client{next: next, backend: backend}
}

// Unwrap returns the wrapped client.
func (c *Client) Unwrap() store.Client { return c.next }

func (c *Client) observe(op, kind string, start time.Time, status string) {
	OperationsTotal.WithLabelValues(c.backend, op, kind, status).Inc()
	OperationDuration.WithLabelValues(c.backend, op).Observe(time.Since(start).Seconds())
}

func status(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, store.ErrAlreadyExists):
		return StatusConflict
	}
	return StatusError
}

func (c *Client) Get(ctx context.Context, m *store.Model, id string) (*store.Entity, error) {
	start := time.Now()
	e, err := c.next.Get(ctx, m, id)
	s := status(err)
	if err == nil && e == nil {
		s = StatusMiss
	}
	c.observe("get", m.Kind(), start, s)
	return e, err
}

func (c *Client) Create(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	start := time.Now()
	out, err := c.next.Create(ctx, e)
	c.observe("create", e.Kind(), start, status(err))
	return out, err
}

// Update records a lost update (nil, nil) as a miss.
func (c *Client) Update(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	start := time.Now()
	out, err := c.next.Update(ctx, e)
	s := status(err)
	if err == nil && out == nil {
		s = StatusMiss
	}
	c.observe("update", e.Kind(), start, s)
	return out, err
}

func (c *Client) Delete(ctx context.Context, key store.Key) error {
	start := time.Now()
	err := c.next.Delete(ctx, key)
	c.observe("delete", key.Kind, start, status(err))
	return err
}

func (c *Client) RunQuery(ctx context.Context, params store.QueryParams) (store.Page, error) {
	start := time.Now()
	page, err := c.next.RunQuery(ctx, params)
	kind := params.Model.Kind()
	c.observe("query", kind, start, status(err))
	if err == nil {
		QueryResultsTotal.WithLabelValues(c.backend, kind).Add(float64(len(page.Entities)))
	}
	return page, err
}

func (c *Client) Flush(ctx context.Context) error {
	start := time.Now()
	err := c.next.Flush(ctx)
	c.observe("flush", "", start, status(err))
	return err
}

// Count delegates to the wrapped client. It fails with
// store.ErrConfiguration when that client cannot count.
func (c *Client) Count(ctx context.Context, m *store.Model) (int64, error) {
	counter, ok := c.next.(store.Counter)
	if !ok {
		return 0, fmt.Errorf("%w: %T cannot count", store.ErrConfiguration, c.next)
	}
	start := time.Now()
	n, err := counter.Count(ctx, m)
	c.observe("count", m.Kind(), start, status(err))
	return n, err
}
