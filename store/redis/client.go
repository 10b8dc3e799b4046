// Package redis implements store.Client on a Redis server.
//
// Redis has no secondary indexes and no multi-key transactions with reads,
// so both are emulated. Each entity is a hash; each kind keeps a set of its
// entity keys, a counter, and one sentinel key per indexed field value (see
// package internal/keys for the layout). Writes run as WATCH/MULTI
// optimistic transactions.
//
// Queries load every candidate and filter, sort and return them as a
// single page. The backend has no cursors.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jacentio/strata/internal/keys"
	"github.com/jacentio/strata/store"
)

// Client stores entities in Redis.
type Client struct {
	rdb    goredis.UniversalClient
	config Config
	logger *slog.Logger
}

// Ensure Client implements store.Client and store.Counter at compile time.
var (
	_ store.Client  = (*Client)(nil)
	_ store.Counter = (*Client)(nil)
)

// New creates a Client. If logger is nil, slog.Default() is used.
func New(rdb goredis.UniversalClient, config Config, logger *slog.Logger) *Client {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{rdb: rdb, config: config, logger: logger}
}

// Config returns the validated configuration.
func (c *Client) Config() Config { return c.config }

// Get reads one entity hash. A key holding an index entry is not an entity.
func (c *Client) Get(ctx context.Context, m *store.Model, id string) (*store.Entity, error) {
	key := m.Key(id)
	hash, err := c.rdb.HGetAll(ctx, keys.Entity(key.Kind, key.ID)).Result()
	if err != nil && wrongType(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", store.ErrClient, key.Ref(), err)
	}
	if len(hash) == 0 {
		return nil, nil
	}
	return m.FromDatabase(decodeHash(hash))
}

// Create writes the hash, membership entry, index entries and counter in
// one transaction. It fails with store.ErrAlreadyExists when the hash
// exists, including when a concurrent create wins the race, and with
// store.ErrBadValue when the entity key or one of its index keys is
// already used by the other layout.
func (c *Client) Create(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	values := e.Serialize()
	key := e.Key()
	entityKey := keys.Entity(key.Kind, key.ID)
	if entityKey == keys.Count(key.Kind) {
		return nil, fmt.Errorf("%w: id %q is reserved", store.ErrBadValue, key.ID)
	}
	hash, err := encodeHash(key.ID, values)
	if err != nil {
		return nil, err
	}
	index := indexKeys(key, hash, indexedFields(e.Model()))

	err = c.transact(ctx, func(tx *goredis.Tx) error {
		typ, err := tx.Type(ctx, entityKey).Result()
		if err != nil {
			return err
		}
		switch typ {
		case "none":
		case "hash":
			return fmt.Errorf("%w: %s", store.ErrAlreadyExists, key.Ref())
		default:
			return fmt.Errorf("%w: key of %s is taken by an index entry", store.ErrBadValue, key.Ref())
		}
		if err := checkIndexKeys(ctx, tx, key, index); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, entityKey, hash)
			pipe.SAdd(ctx, keys.Members(key.Kind), entityKey)
			writeIndex(ctx, pipe, index)
			pipe.Incr(ctx, keys.Count(key.Kind))
			return nil
		})
		return err
	}, append([]string{entityKey}, index...)...)
	if errors.Is(err, store.ErrMaxRetryExceeded) {
		return nil, fmt.Errorf("%w: %s", store.ErrAlreadyExists, key.Ref())
	}
	if err != nil {
		return nil, c.wrap("create", key, err)
	}
	c.logger.DebugContext(ctx, "created entity", "kind", key.Kind, "id", key.ID)
	return e.MarkPersisted(values), nil
}

// Update deletes the previous index entries and rewrites the hash and its
// index entries in one transaction. When the hash no longer exists the
// lost update is logged and nil, nil is returned.
func (c *Client) Update(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	values := e.Serialize()
	key := e.Key()
	entityKey := keys.Entity(key.Kind, key.ID)
	hash, err := encodeHash(key.ID, values)
	if err != nil {
		return nil, err
	}
	index := indexKeys(key, hash, indexedFields(e.Model()))

	var found bool
	err = c.transact(ctx, func(tx *goredis.Tx) error {
		old, err := tx.HGetAll(ctx, entityKey).Result()
		if err != nil {
			return err
		}
		found = len(old) > 0
		if !found {
			return nil
		}
		if err := checkIndexKeys(ctx, tx, key, index); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			dropIndex(ctx, pipe, key, old)
			pipe.Del(ctx, entityKey)
			pipe.HSet(ctx, entityKey, hash)
			writeIndex(ctx, pipe, index)
			return nil
		})
		return err
	}, append([]string{entityKey}, index...)...)
	if err != nil {
		return nil, c.wrap("update", key, err)
	}
	if !found {
		c.logger.WarnContext(ctx, "update lost: entity no longer exists", "kind", key.Kind, "id", key.ID)
		return nil, nil
	}
	return e.MarkPersisted(values), nil
}

// Delete removes the hash with its membership entry and index entries and
// decrements the counter. Deleting a missing entity is a no-op.
func (c *Client) Delete(ctx context.Context, key store.Key) error {
	entityKey := keys.Entity(key.Kind, key.ID)
	var found bool
	err := c.transact(ctx, func(tx *goredis.Tx) error {
		old, err := tx.HGetAll(ctx, entityKey).Result()
		if err != nil {
			return err
		}
		found = len(old) > 0
		if !found {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, entityKey)
			pipe.SRem(ctx, keys.Members(key.Kind), entityKey)
			dropIndex(ctx, pipe, key, old)
			pipe.Decr(ctx, keys.Count(key.Kind))
			return nil
		})
		return err
	}, entityKey)
	if err != nil {
		return c.wrap("delete", key, err)
	}
	if found {
		c.logger.DebugContext(ctx, "deleted entity", "kind", key.Kind, "id", key.ID)
	}
	return nil
}

// RunQuery returns every matching entity in one page.
//
// Without filters the candidates are the kind's members. Each filter with
// a non-nil value scans the field's index entries and compares the
// embedded value; the candidate id sets of all filters are intersected.
// Candidates are then loaded and checked against every filter, which also
// discards ambiguous index splits. Filtering on an unindexed field fails
// with store.ErrConfiguration.
func (c *Client) RunQuery(ctx context.Context, params store.QueryParams) (store.Page, error) {
	m := params.Model
	if params.Cursor != "" {
		return store.Page{}, fmt.Errorf("%w: %s queries do not support cursors", store.ErrBadValue, m.Kind())
	}

	var candidates map[string]struct{}
	for _, f := range params.Filters {
		field, ok := m.Field(f.Field)
		if !ok {
			return store.Page{}, fmt.Errorf("%w: cannot filter on %s.%s", store.ErrFieldDoesNotExist, m.Kind(), f.Field)
		}
		if !field.Indexed() {
			return store.Page{}, fmt.Errorf("%w: %s.%s is not indexed", store.ErrConfiguration, m.Kind(), f.Field)
		}
		if f.Value == nil {
			continue
		}
		ids, err := c.scanIndex(ctx, m.Kind(), field, f)
		if err != nil {
			return store.Page{}, err
		}
		if candidates == nil {
			candidates = ids
			continue
		}
		maps.DeleteFunc(candidates, func(id string, _ struct{}) bool {
			_, ok := ids[id]
			return !ok
		})
	}

	var ids []string
	if candidates != nil {
		ids = slices.Collect(maps.Keys(candidates))
	} else {
		members, err := c.rdb.SMembers(ctx, keys.Members(m.Kind())).Result()
		if err != nil {
			return store.Page{}, fmt.Errorf("%w: members of %s: %w", store.ErrClient, m.Kind(), err)
		}
		for _, member := range members {
			if id, ok := keys.EntityID(member, m.Kind()); ok {
				ids = append(ids, id)
			}
		}
	}

	entities, err := c.load(ctx, m, ids)
	if err != nil {
		return store.Page{}, err
	}
	matched := entities[:0]
	for _, e := range entities {
		ok, err := store.MatchFilters(e.Values(), params.Filters)
		if err != nil {
			return store.Page{}, err
		}
		if ok {
			matched = append(matched, e)
		}
	}
	if err := store.SortEntities(matched, params.OrderBy); err != nil {
		return store.Page{}, err
	}
	c.logger.DebugContext(ctx, "ran query", "kind", m.Kind(), "candidates", len(ids), "matched", len(matched))
	return store.Page{Entities: matched}, nil
}

// Count reads the kind's counter.
func (c *Client) Count(ctx context.Context, m *store.Model) (int64, error) {
	n, err := c.rdb.Get(ctx, keys.Count(m.Kind())).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %w", store.ErrClient, m.Kind(), err)
	}
	return n, nil
}

// Flush empties the selected database. It requires Config.TestMode.
func (c *Client) Flush(ctx context.Context) error {
	if !c.config.TestMode {
		return fmt.Errorf("%w: flush requires test mode", store.ErrConfiguration)
	}
	if err := c.rdb.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("%w: flush: %w", store.ErrClient, err)
	}
	c.logger.InfoContext(ctx, "flushed database", "db", c.config.DB)
	return nil
}

// transact runs fn under WATCH on the given keys, retrying when another
// client modifies them before EXEC.
func (c *Client) transact(ctx context.Context, fn func(*goredis.Tx) error, watch ...string) error {
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		err := c.rdb.Watch(ctx, fn, watch...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
		c.logger.DebugContext(ctx, "transaction conflict", "keys", watch, "attempt", attempt)
	}
	return store.ErrMaxRetryExceeded
}

func (c *Client) wrap(op string, key store.Key, err error) error {
	if errors.Is(err, store.ErrAlreadyExists) || errors.Is(err, store.ErrMaxRetryExceeded) || errors.Is(err, store.ErrBadValue) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", store.ErrClient, op, key.Ref(), err)
}

// scanIndex returns the ids whose index entries for field satisfy f.
func (c *Client) scanIndex(ctx context.Context, kind string, field *store.Field, f store.Filter) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	iter := c.rdb.Scan(ctx, 0, keys.IndexPattern(kind, f.Field), c.config.ScanCount).Iterator()
	for iter.Next(ctx) {
		for _, entry := range keys.ParseIndex(iter.Val(), kind, f.Field) {
			v, err := field.Type().Decode(entry.Value)
			if err != nil {
				continue
			}
			ok, err := f.Match(v)
			if err != nil {
				return nil, err
			}
			if ok {
				ids[entry.ID] = struct{}{}
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", store.ErrClient, keys.IndexPattern(kind, f.Field), err)
	}
	return ids, nil
}

// load fetches the hashes of ids in one pipeline. Missing hashes and keys
// that are not hashes are skipped.
func (c *Client) load(ctx context.Context, m *store.Model, ids []string) ([]*store.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, _ = c.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, keys.Entity(m.Kind(), id))
		}
		return nil
	})
	entities := make([]*store.Entity, 0, len(ids))
	for _, cmd := range cmds {
		if err := cmd.Err(); err != nil {
			if wrongType(err) {
				c.logger.WarnContext(ctx, "skipping key that is not an entity hash", "key", cmd.Args()[1])
				continue
			}
			return nil, fmt.Errorf("%w: load %s: %w", store.ErrClient, m.Kind(), err)
		}
		hash := cmd.Val()
		if len(hash) == 0 {
			continue
		}
		e, err := m.FromDatabase(decodeHash(hash))
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func indexedFields(m *store.Model) map[string]bool {
	out := make(map[string]bool)
	for _, f := range m.Fields() {
		if f.Indexed() {
			out[f.Name()] = true
		}
	}
	return out
}

// indexKeys returns the index entries of a hash, sorted.
func indexKeys(key store.Key, hash map[string]string, indexed map[string]bool) []string {
	var out []string
	for name, s := range hash {
		if indexed[name] {
			out = append(out, keys.Index(key.Kind, key.ID, name, s))
		}
	}
	slices.Sort(out)
	return out
}

// checkIndexKeys fails when an index key is an entity hash. An id holding
// ":<field>:" makes both layouts produce the same key.
func checkIndexKeys(ctx context.Context, tx *goredis.Tx, key store.Key, index []string) error {
	for _, k := range index {
		typ, err := tx.Type(ctx, k).Result()
		if err != nil {
			return err
		}
		if typ == "hash" {
			return fmt.Errorf("%w: index entry %q of %s collides with an entity", store.ErrBadValue, k, key.Ref())
		}
	}
	return nil
}

func writeIndex(ctx context.Context, pipe goredis.Pipeliner, index []string) {
	for _, k := range index {
		pipe.Set(ctx, k, keys.Sentinel, 0)
	}
}

func wrongType(err error) bool {
	return strings.HasPrefix(err.Error(), "WRONGTYPE")
}

// dropIndex deletes the index entries of a stored hash. Entries of fields
// that were never indexed do not exist, and DEL ignores them.
func dropIndex(ctx context.Context, pipe goredis.Pipeliner, key store.Key, hash map[string]string) {
	for name, s := range hash {
		if !strings.HasPrefix(name, "_") {
			pipe.Del(ctx, keys.Index(key.Kind, key.ID, name, s))
		}
	}
}
