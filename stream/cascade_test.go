package stream_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/appellation/rejects/backend/memory"
	"github.com/appellation/rejects/store"
	"github.com/appellation/rejects/stream"
	"github.com/appellation/rejects/token"
)

func ttlRemove(key string, image map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
	image["pk"] = events.NewStringAttribute(key)
	image["key"] = events.NewStringAttribute(key)
	return events.DynamoDBEventRecord{
		EventID:   "evt-" + key,
		EventName: "REMOVE",
		UserIdentity: &events.DynamoDBUserIdentity{
			Type:        "Service",
			PrincipalID: "dynamodb.amazonaws.com",
		},
		Change: events.DynamoDBStreamRecord{
			Keys:     map[string]events.DynamoDBAttributeValue{"pk": events.NewStringAttribute(key)},
			OldImage: image,
		},
	}
}

func TestNewHandler(t *testing.T) {
	// Test with nil store and logger (should not panic)
	h := stream.NewHandler(nil, nil)
	if h == nil {
		t.Fatal("expected non-nil Handler")
	}
}

func TestHandleExpiry_DeletesChildren(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	s := store.New(b, store.DefaultConfig())

	// The root record is already gone; its children remain.
	if err := s.Set(ctx, "guild", map[string]any{
		"members": map[string]any{"id": map[string]any{"nick": "meme"}},
		"list":    []any{"a", "b"},
	}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Delete(ctx, "guild"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Set(ctx, "other", map[string]any{"x": 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		ttlRemove("guild", map[string]events.DynamoDBAttributeValue{
			"ttl":       events.NewNumberAttribute("1704067200"),
			"f_members": events.NewStringAttribute("ref:obj:guild.members"),
			"f_list":    events.NewStringAttribute("ref:arr:guild.list"),
			"f_name":    events.NewStringAttribute("raw:string:xd"),
		}),
	}}

	if err := stream.NewHandler(s, nil).HandleExpiry(ctx, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, key := range []string{"guild.members", "guild.members.id", "guild.list"} {
		if ok, _ := s.Exists(ctx, key); ok {
			t.Errorf("expected %q to be deleted", key)
		}
	}
	if ok, _ := s.Exists(ctx, "other"); !ok {
		t.Error("expected unrelated record to survive")
	}
}

func TestHandleExpiry_SetMembers(t *testing.T) {
	ctx := context.Background()
	cfg := store.DefaultConfig()
	cfg.ArrayEncoding = store.ArraySet
	s := store.New(memory.New(), cfg)

	if err := s.Upsert(ctx, "l.x", map[string]any{"n": 1}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		ttlRemove("l.tags", map[string]events.DynamoDBAttributeValue{
			"members": events.NewStringSetAttribute([]string{"raw:string:a", "ref:obj:l.x"}),
		}),
	}}

	if err := stream.NewHandler(s, nil).HandleExpiry(ctx, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := s.Exists(ctx, "l.x"); ok {
		t.Error("expected set member record to be deleted")
	}
}

func TestHandleExpiry_IgnoresClientDeletes(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New(), store.DefaultConfig())

	if err := s.Upsert(ctx, "a.b", map[string]any{"c": 1}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	record := ttlRemove("a", map[string]events.DynamoDBAttributeValue{
		"f_b": events.NewStringAttribute("ref:obj:a.b"),
	})
	record.UserIdentity = nil

	if err := stream.NewHandler(s, nil).HandleExpiry(ctx, events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{record}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := s.Exists(ctx, "a.b"); !ok {
		t.Error("expected child of a client delete to be left alone")
	}
}

func TestHandleExpiry_MalformedReference(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New(), store.DefaultConfig())

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		ttlRemove("a", map[string]events.DynamoDBAttributeValue{
			"f_b": events.NewStringAttribute("ref:obj:"),
		}),
	}}

	err := stream.NewHandler(s, nil).HandleExpiry(ctx, event)
	if !errors.Is(err, token.ErrInvalidReference) {
		t.Errorf("expected ErrInvalidReference, got %v", err)
	}
}

func TestHandleExpiry_ManyRecords(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New(), store.DefaultConfig())

	var records []events.DynamoDBEventRecord
	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, k := range keys {
		if err := s.Upsert(ctx, k+".child", map[string]any{"v": 1}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		records = append(records, ttlRemove(k, map[string]events.DynamoDBAttributeValue{
			"f_child": events.NewStringAttribute("ref:obj:" + k + ".child"),
		}))
	}

	h := stream.NewHandler(s, nil).WithWorkers(3)
	if err := h.HandleExpiry(ctx, events.DynamoDBEvent{Records: records}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, k := range keys {
		if ok, _ := s.Exists(ctx, k+".child"); ok {
			t.Errorf("expected %s.child to be deleted", k)
		}
	}
}
