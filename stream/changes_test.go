package stream_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/strata/store"
	"github.com/jacentio/strata/stream"
)

func newRegistry(t *testing.T) *store.Registry {
	t.Helper()
	registry := store.NewRegistry()
	registry.MustDefine("User",
		store.String("email", store.UniqueKey()),
		store.String("name"),
		store.Integer("age"),
	)
	return registry
}

func keys(kind, id string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"_kind": events.NewStringAttribute(kind),
		"_id":   events.NewStringAttribute(id),
	}
}

func image(kind, id string, attrs map[string]events.DynamoDBAttributeValue) map[string]events.DynamoDBAttributeValue {
	out := keys(kind, id)
	out["_version"] = events.NewNumberAttribute("1")
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// --- NewHandler Tests ---

func TestNewHandler(t *testing.T) {
	// Test with nil registry and logger (should not panic)
	h := stream.NewHandler(nil, nil)
	if h == nil {
		t.Fatal("expected non-nil Handler")
	}
}

func TestHandler_NilRegistry(t *testing.T) {
	h := stream.NewHandler(nil, nil)
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventName: stream.EventInsert, Change: events.DynamoDBStreamRecord{Keys: keys("User", "a")}},
	}}

	err := h.HandleEvent(context.Background(), event)
	if !errors.Is(err, store.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

// --- HandleEvent Tests ---

func TestHandler_EmptyEvent(t *testing.T) {
	h := stream.NewHandler(newRegistry(t), nil)

	// Empty event should not error
	if err := h.HandleEvent(context.Background(), events.DynamoDBEvent{}); err != nil {
		t.Errorf("expected no error for empty event, got %v", err)
	}
}

func TestHandler_Insert(t *testing.T) {
	h := stream.NewHandler(newRegistry(t), nil)
	var got []stream.Change
	h.On("User", func(_ context.Context, c stream.Change) error {
		got = append(got, c)
		return nil
	})

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{{
		EventName: stream.EventInsert,
		Change: events.DynamoDBStreamRecord{
			Keys: keys("User", "a@example.com"),
			NewImage: image("User", "a@example.com", map[string]events.DynamoDBAttributeValue{
				"email": events.NewStringAttribute("a@example.com"),
				"name":  events.NewStringAttribute("Ada"),
				"age":   events.NewNumberAttribute("36"),
			}),
		},
	}}}

	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 change, got %d", len(got))
	}
	c := got[0]
	if c.Event != stream.EventInsert || c.Key != (store.Key{Kind: "User", ID: "a@example.com"}) {
		t.Errorf("unexpected change %+v", c)
	}
	if c.Old != nil {
		t.Error("expected no old entity on insert")
	}
	if c.New == nil {
		t.Fatal("expected new entity")
	}
	if age, _ := c.New.Get("age"); age != int64(36) {
		t.Errorf("expected age 36, got %v", age)
	}
}

func TestHandler_ModifyAndRemove(t *testing.T) {
	h := stream.NewHandler(newRegistry(t), nil)
	var got []stream.Change
	h.On("User", func(_ context.Context, c stream.Change) error {
		got = append(got, c)
		return nil
	})

	old := image("User", "a", map[string]events.DynamoDBAttributeValue{
		"email": events.NewStringAttribute("a"),
		"name":  events.NewStringAttribute("old"),
	})
	next := image("User", "a", map[string]events.DynamoDBAttributeValue{
		"email": events.NewStringAttribute("a"),
		"name":  events.NewStringAttribute("new"),
	})
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventName: stream.EventModify, Change: events.DynamoDBStreamRecord{Keys: keys("User", "a"), OldImage: old, NewImage: next}},
		{EventName: stream.EventRemove, Change: events.DynamoDBStreamRecord{Keys: keys("User", "a"), OldImage: next}},
	}}

	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(got))
	}
	oldName, _ := got[0].Old.Get("name")
	newName, _ := got[0].New.Get("name")
	if oldName != "old" || newName != "new" {
		t.Errorf("expected old -> new, got %v -> %v", oldName, newName)
	}
	if got[1].Event != stream.EventRemove || got[1].New != nil || got[1].Old == nil {
		t.Errorf("unexpected remove change %+v", got[1])
	}
}

func TestHandler_KeysOnly(t *testing.T) {
	h := stream.NewHandler(newRegistry(t), nil)
	var got stream.Change
	h.On("User", func(_ context.Context, c stream.Change) error {
		got = c
		return nil
	})

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventName: stream.EventRemove, Change: events.DynamoDBStreamRecord{Keys: keys("User", "a")}},
	}}
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if got.Key.ID != "a" || got.Old != nil || got.New != nil {
		t.Errorf("unexpected change %+v", got)
	}
}

func TestHandler_UnregisteredKind(t *testing.T) {
	h := stream.NewHandler(newRegistry(t), nil)
	called := false
	h.On("Order", func(context.Context, stream.Change) error {
		called = true
		return nil
	})

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventName: stream.EventInsert, Change: events.DynamoDBStreamRecord{Keys: keys("Order", "o1")}},
	}}
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Errorf("expected unregistered kinds to be skipped, got %v", err)
	}
	if called {
		t.Error("hook must not run for an unregistered kind")
	}
}

func TestHandler_UnknownEventName(t *testing.T) {
	h := stream.NewHandler(newRegistry(t), nil)
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventName: "TRUNCATE", Change: events.DynamoDBStreamRecord{}},
	}}
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Errorf("expected unknown events to be skipped, got %v", err)
	}
}

func TestHandler_MissingKey(t *testing.T) {
	h := stream.NewHandler(newRegistry(t), nil)
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{{
		EventName: stream.EventInsert,
		Change: events.DynamoDBStreamRecord{Keys: map[string]events.DynamoDBAttributeValue{
			"id": events.NewStringAttribute("test"),
		}},
	}}}
	if err := h.HandleEvent(context.Background(), event); !errors.Is(err, store.ErrBadValue) {
		t.Errorf("expected ErrBadValue, got %v", err)
	}
}

func TestHandler_HookErrorStopsBatch(t *testing.T) {
	h := stream.NewHandler(newRegistry(t), nil)
	boom := errors.New("boom")
	var seen []string
	h.On("User", func(_ context.Context, c stream.Change) error {
		seen = append(seen, c.Key.ID)
		return boom
	})

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventName: stream.EventInsert, Change: events.DynamoDBStreamRecord{Keys: keys("User", "a")}},
		{EventName: stream.EventInsert, Change: events.DynamoDBStreamRecord{Keys: keys("User", "b")}},
	}}
	err := h.HandleEvent(context.Background(), event)
	if !errors.Is(err, boom) {
		t.Errorf("expected hook error, got %v", err)
	}
	if len(seen) != 1 || seen[0] != "a" {
		t.Errorf("expected processing to stop after a, got %v", seen)
	}
}

func TestHandler_InvalidImage(t *testing.T) {
	h := stream.NewHandler(newRegistry(t), nil)
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{{
		EventName: stream.EventInsert,
		Change: events.DynamoDBStreamRecord{
			Keys: keys("User", "a"),
			NewImage: image("User", "a", map[string]events.DynamoDBAttributeValue{
				"age": events.NewStringAttribute("not a number"),
			}),
		},
	}}}
	if err := h.HandleEvent(context.Background(), event); !errors.Is(err, store.ErrBadValue) {
		t.Errorf("expected ErrBadValue, got %v", err)
	}
}

func TestLogChanges(t *testing.T) {
	h := stream.NewHandler(newRegistry(t), nil)
	h.On("User", stream.LogChanges(nil))

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{{
		EventName: stream.EventModify,
		Change: events.DynamoDBStreamRecord{
			Keys:     keys("User", "a"),
			OldImage: image("User", "a", map[string]events.DynamoDBAttributeValue{"name": events.NewStringAttribute("x")}),
			NewImage: image("User", "a", map[string]events.DynamoDBAttributeValue{"name": events.NewStringAttribute("y")}),
		},
	}}}
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
