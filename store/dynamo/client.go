// Package dynamo implements store.Client on a single DynamoDB table.
//
// Every kind shares the table: the partition key "_kind" holds the kind
// name and the sort key "_id" the entity id. Field values are stored as
// top-level attributes next to a few managed ones (_version, _created_at,
// _updated_at).
//
// Queries run on one partition. Filters become a FilterExpression, so a
// page may hold fewer entities than the requested limit while a next
// cursor is still returned. Ordering uses the sort key when a kind has a
// single string unique key, or a local secondary index listed in
// Config.Indexes.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/strata/store"
)

// API is the subset of *dynamodb.Client the store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// batchSize is the BatchWriteItem request limit.
const batchSize = 25

// Client stores entities in DynamoDB.
type Client struct {
	api    API
	config Config
	logger *slog.Logger
}

// Ensure Client implements store.Client and store.Counter at compile time.
var (
	_ store.Client  = (*Client)(nil)
	_ store.Counter = (*Client)(nil)
)

// New creates a Client. If logger is nil, slog.Default() is used.
func New(api API, config Config, logger *slog.Logger) *Client {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, config: config, logger: logger}
}

// Config returns the validated configuration.
func (c *Client) Config() Config { return c.config }

// Get reads one entity with a strongly consistent read.
func (c *Client) Get(ctx context.Context, m *store.Model, id string) (*store.Entity, error) {
	key := m.Key(id)
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.config.Table),
		Key:            primaryKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", store.ErrClient, key.Ref(), err)
	}
	if out.Item == nil {
		return nil, nil
	}
	_, values, err := DecodeItem(out.Item)
	if err != nil {
		return nil, err
	}
	return m.FromDatabase(values)
}

// Create writes a new item. With Config.RejectDuplicates the write is
// conditional on the id being free.
func (c *Client) Create(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	values := e.Serialize()
	key := e.Key()
	item, err := EncodeItem(key, values)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(store.TimeLayout)
	item[attrVersion] = &types.AttributeValueMemberN{Value: "1"}
	item[attrCreatedAt] = &types.AttributeValueMemberS{Value: now}
	item[attrUpdatedAt] = &types.AttributeValueMemberS{Value: now}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(c.config.Table),
		Item:      item,
	}
	if c.config.RejectDuplicates {
		input.ConditionExpression = aws.String("attribute_not_exists(#id)")
		input.ExpressionAttributeNames = map[string]string{"#id": attrID}
	}

	if _, err := c.api.PutItem(ctx, input); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, fmt.Errorf("%w: %s", store.ErrAlreadyExists, key.Ref())
		}
		return nil, fmt.Errorf("%w: create %s: %w", store.ErrClient, key.Ref(), err)
	}
	c.logger.DebugContext(ctx, "created entity", "kind", key.Kind, "id", key.ID)
	return e.MarkPersisted(values), nil
}

// Update rewrites every field of an existing item and bumps its version.
// The write is conditional on the item existing; when it does not, the
// lost update is logged and nil, nil is returned.
func (c *Client) Update(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	values := e.Serialize()
	key := e.Key()

	expr := newExpression()
	expr.names["#id"] = attrID
	expr.names["#updated_at"] = attrUpdatedAt
	expr.names["#version"] = attrVersion
	expr.values[":updated_at"] = &types.AttributeValueMemberS{Value: time.Now().UTC().Format(store.TimeLayout)}
	expr.values[":zero"] = &types.AttributeValueMemberN{Value: "0"}
	expr.values[":one"] = &types.AttributeValueMemberN{Value: "1"}

	for i, f := range e.Fields() {
		av, err := encodeValue(values[f.Name()])
		if err != nil {
			return nil, err
		}
		nameKey := "#attr" + strconv.Itoa(i)
		valueKey := ":val" + strconv.Itoa(i)
		expr.names[nameKey] = f.Name()
		expr.values[valueKey] = av
		expr.clauses = append(expr.clauses, nameKey+" = "+valueKey)
	}
	expr.clauses = append(expr.clauses,
		"#updated_at = :updated_at",
		"#version = if_not_exists(#version, :zero) + :one",
	)

	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.config.Table),
		Key:                       primaryKey(key),
		UpdateExpression:          aws.String("SET " + strings.Join(expr.clauses, ", ")),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			c.logger.WarnContext(ctx, "update lost: entity no longer exists", "kind", key.Kind, "id", key.ID)
			return nil, nil
		}
		return nil, fmt.Errorf("%w: update %s: %w", store.ErrClient, key.Ref(), err)
	}
	return e.MarkPersisted(values), nil
}

// Delete removes an item. Deleting a missing item succeeds.
func (c *Client) Delete(ctx context.Context, key store.Key) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.config.Table),
		Key:       primaryKey(key),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", store.ErrClient, key.Ref(), err)
	}
	c.logger.DebugContext(ctx, "deleted entity", "kind", key.Kind, "id", key.ID)
	return nil
}

// RunQuery issues one Query call on the kind's partition.
func (c *Client) RunQuery(ctx context.Context, params store.QueryParams) (store.Page, error) {
	m := params.Model
	index, forward, err := c.orderIndex(m, params.OrderBy)
	if err != nil {
		return store.Page{}, err
	}
	filter, err := filterExpression(params.Filters)
	if err != nil {
		return store.Page{}, err
	}
	start, err := decodeCursor(params.Cursor)
	if err != nil {
		return store.Page{}, err
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(c.config.Table),
		KeyConditionExpression: aws.String("#kind = :kind"),
		ExpressionAttributeNames: mergeExprNames(
			map[string]string{"#kind": attrKind},
			filter.names,
		),
		ExpressionAttributeValues: mergeExprValues(
			map[string]types.AttributeValue{":kind": &types.AttributeValueMemberS{Value: m.Kind()}},
			filter.values,
		),
		ScanIndexForward:  aws.Bool(forward),
		ExclusiveStartKey: start,
	}
	if len(filter.clauses) > 0 {
		input.FilterExpression = aws.String(filter.String())
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}
	if params.Limit > 0 {
		input.Limit = aws.Int32(int32(params.Limit))
	}

	out, err := c.api.Query(ctx, input)
	if err != nil {
		return store.Page{}, fmt.Errorf("%w: query %s: %w", store.ErrClient, m.Kind(), err)
	}

	page := store.Page{Entities: make([]*store.Entity, 0, len(out.Items))}
	for _, item := range out.Items {
		_, values, err := DecodeItem(item)
		if err != nil {
			return store.Page{}, err
		}
		e, err := m.FromDatabase(values)
		if err != nil {
			return store.Page{}, err
		}
		page.Entities = append(page.Entities, e)
	}
	if page.Next, err = encodeCursor(out.LastEvaluatedKey); err != nil {
		return store.Page{}, err
	}
	return page, nil
}

// orderIndex picks the index that yields the requested order.
func (c *Client) orderIndex(m *store.Model, orderBy []string) (index string, forward bool, err error) {
	switch len(orderBy) {
	case 0:
		return "", true, nil
	case 1:
	default:
		return "", false, fmt.Errorf("%w: DynamoDB orders by at most one field, got %v", store.ErrConfiguration, orderBy)
	}

	name, desc := store.OrderField(orderBy[0])
	if keys := m.UniqueKeyFields(); len(keys) == 1 && keys[0] == name {
		f, _ := m.Field(name)
		switch f.Type().(type) {
		case store.StringType, store.TextType:
			return "", !desc, nil
		}
	}
	if index, ok := c.config.Indexes[name]; ok {
		return index, !desc, nil
	}
	return "", false, fmt.Errorf("%w: no index orders %s by %q", store.ErrConfiguration, m.Kind(), name)
}

// Count returns the number of items of a kind.
func (c *Client) Count(ctx context.Context, m *store.Model) (int64, error) {
	paginator := dynamodb.NewQueryPaginator(c.api, &dynamodb.QueryInput{
		TableName:                 aws.String(c.config.Table),
		KeyConditionExpression:    aws.String("#kind = :kind"),
		ExpressionAttributeNames:  map[string]string{"#kind": attrKind},
		ExpressionAttributeValues: map[string]types.AttributeValue{":kind": &types.AttributeValueMemberS{Value: m.Kind()}},
		Select:                    types.SelectCount,
	})

	var total int64
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: count %s: %w", store.ErrClient, m.Kind(), err)
		}
		total += int64(page.Count)
	}
	return total, nil
}

// Flush deletes every item in the table. It requires Config.TestMode.
func (c *Client) Flush(ctx context.Context) error {
	if !c.config.TestMode {
		return fmt.Errorf("%w: flush is only allowed in test mode", store.ErrConfiguration)
	}

	segments := c.config.ScanSegments
	g, gctx := errgroup.WithContext(ctx)
	for segment := 0; segment < segments; segment++ {
		g.Go(func() error {
			return c.flushSegment(gctx, int32(segment), int32(segments))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "flushed table", "table", c.config.Table)
	return nil
}

func (c *Client) flushSegment(ctx context.Context, segment, total int32) error {
	paginator := dynamodb.NewScanPaginator(c.api, &dynamodb.ScanInput{
		TableName:                aws.String(c.config.Table),
		ProjectionExpression:     aws.String("#kind, #id"),
		ExpressionAttributeNames: map[string]string{"#kind": attrKind, "#id": attrID},
		Segment:                  aws.Int32(segment),
		TotalSegments:            aws.Int32(total),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("%w: scan segment %d: %w", store.ErrClient, segment, err)
		}
		for start := 0; start < len(page.Items); start += batchSize {
			end := min(start+batchSize, len(page.Items))
			if err := c.deleteBatch(ctx, page.Items[start:end]); err != nil {
				return err
			}
		}
	}
	return nil
}

// deleteBatch deletes up to batchSize items, resubmitting unprocessed ones.
func (c *Client) deleteBatch(ctx context.Context, items []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, len(items))
	for i, item := range items {
		requests[i] = types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
				attrKind: item[attrKind],
				attrID:   item[attrID],
			}},
		}
	}

	pending := map[string][]types.WriteRequest{c.config.Table: requests}
	backoff := 50 * time.Millisecond
	for {
		out, err := c.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("%w: batch delete: %w", store.ErrClient, err)
		}
		pending = out.UnprocessedItems
		if len(pending[c.config.Table]) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, 2*time.Second)
	}
}
