// Package stream dispatches DynamoDB Streams records of a strata table to
// per-kind hooks as decoded entities.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/strata/observability"
	"github.com/jacentio/strata/store"
	"github.com/jacentio/strata/store/dynamo"
)

// Stream event names.
const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

// Change is one decoded stream record. Old is nil for inserts and New is
// nil for removals. Both are nil when the stream carries keys only.
type Change struct {
	Event string
	Key   store.Key
	Old   *store.Entity
	New   *store.Entity
}

// Hook reacts to a change. A returned error fails the batch so that
// Lambda retries it.
type Hook func(ctx context.Context, change Change) error

// Handler decodes stream records and runs the hooks registered for their kind.
type Handler struct {
	registry *store.Registry
	hooks    map[string][]Hook
	logger   *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(registry *store.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		hooks:    make(map[string][]Hook),
		logger:   logger,
	}
}

// On registers a hook for changes to entities of kind. Hooks run in
// registration order.
func (h *Handler) On(kind string, hook Hook) {
	h.hooks[kind] = append(h.hooks[kind], hook)
}

// HandleEvent processes a batch of stream records in order. It is designed
// to be used as an AWS Lambda handler.
func (h *Handler) HandleEvent(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord decodes a single record and dispatches it.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if h.registry == nil {
		return fmt.Errorf("%w: stream handler has no registry", store.ErrConfiguration)
	}
	switch record.EventName {
	case EventInsert, EventModify, EventRemove:
	default:
		return nil
	}

	key, _, err := dynamo.DecodeItem(ConvertImage(record.Change.Keys))
	if err != nil {
		return fmt.Errorf("record %s: %w", record.EventID, err)
	}
	m, ok := h.registry.Lookup(key.Kind)
	if !ok {
		h.logger.Debug("skipping record of unregistered kind", "kind", key.Kind, "id", key.ID)
		observability.ChangeEventsTotal.WithLabelValues(key.Kind, record.EventName, "skipped").Inc()
		return nil
	}

	change := Change{Event: record.EventName, Key: key}
	if change.Old, err = decodeImage(m, record.Change.OldImage); err != nil {
		return fmt.Errorf("old image of %s: %w", key.Ref(), err)
	}
	if change.New, err = decodeImage(m, record.Change.NewImage); err != nil {
		return fmt.Errorf("new image of %s: %w", key.Ref(), err)
	}

	var errs []error
	for _, hook := range h.hooks[key.Kind] {
		if err := hook(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	status := observability.StatusOK
	if len(errs) > 0 {
		status = observability.StatusError
	}
	observability.ChangeEventsTotal.WithLabelValues(key.Kind, record.EventName, status).Inc()
	return errors.Join(errs...)
}

func decodeImage(m *store.Model, image map[string]events.DynamoDBAttributeValue) (*store.Entity, error) {
	if len(image) == 0 {
		return nil, nil
	}
	_, values, err := dynamo.DecodeItem(ConvertImage(image))
	if err != nil {
		return nil, err
	}
	return m.FromDatabase(values)
}

// LogChanges returns a hook that logs every change at info level.
func LogChanges(logger *slog.Logger) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, change Change) error {
		attrs := []any{"event", change.Event, "kind", change.Key.Kind, "id", change.Key.ID}
		if change.Old != nil && change.New != nil {
			var changed []string
			old, next := change.Old.Values(), change.New.Values()
			for name, v := range next {
				if c, err := store.Compare(old[name], v); err != nil || c != 0 {
					changed = append(changed, name)
				}
			}
			attrs = append(attrs, "changed", changed)
		}
		logger.InfoContext(ctx, "entity changed", attrs...)
		return nil
	}
}

// ConvertImage converts a stream image into attribute values the dynamo
// codec understands.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertAttr(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertAttr(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := make([]types.AttributeValue, 0, len(v.List()))
		for _, item := range v.List() {
			if av := convertAttr(item); av != nil {
				list = append(list, av)
			}
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	}
	return nil
}
