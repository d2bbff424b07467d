package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/appellation/rejects/token"
)

func ttlIdentity() *events.DynamoDBUserIdentity {
	return &events.DynamoDBUserIdentity{Type: "Service", PrincipalID: "dynamodb.amazonaws.com"}
}

// --- getStringAttr Tests ---

func TestGetStringAttr_ExistingString(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"key": events.NewStringAttribute("guild.members"),
	}

	result := getStringAttr(image, "key")
	if result != "guild.members" {
		t.Errorf("expected 'guild.members', got %q", result)
	}
}

func TestGetStringAttr_MissingKey(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"other": events.NewStringAttribute("value"),
	}

	result := getStringAttr(image, "key")
	if result != "" {
		t.Errorf("expected empty string for missing key, got %q", result)
	}
}

func TestGetStringAttr_NilImage(t *testing.T) {
	var image map[string]events.DynamoDBAttributeValue

	result := getStringAttr(image, "key")
	if result != "" {
		t.Errorf("expected empty string for nil image, got %q", result)
	}
}

func TestGetStringAttr_NumberAttribute(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"key": events.NewNumberAttribute("12"),
	}

	result := getStringAttr(image, "key")
	if result != "" {
		t.Errorf("expected empty string for number attribute, got %q", result)
	}
}

func TestGetStringAttr_UnicodeValue(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"f_name": events.NewStringAttribute("raw:string:日本語テスト"),
	}

	result := getStringAttr(image, "f_name")
	if result != "raw:string:日本語テスト" {
		t.Errorf("expected unicode string, got %q", result)
	}
}

// --- getNumberAttr Tests ---

func TestGetNumberAttr_ValidNumber(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"ttl": events.NewNumberAttribute("1704067200"),
	}

	result := getNumberAttr(image, "ttl")
	if result != 1704067200 {
		t.Errorf("expected 1704067200, got %d", result)
	}
}

func TestGetNumberAttr_MissingKey(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{}

	result := getNumberAttr(image, "ttl")
	if result != 0 {
		t.Errorf("expected 0 for missing key, got %d", result)
	}
}

func TestGetNumberAttr_StringAttribute(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"ttl": events.NewStringAttribute("1234"),
	}

	result := getNumberAttr(image, "ttl")
	if result != 0 {
		t.Errorf("expected 0 for string attribute, got %d", result)
	}
}

// --- getStringSetAttr Tests ---

func TestGetStringSetAttr_ValidSet(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"members": events.NewStringSetAttribute([]string{"raw:string:a", "ref:obj:l.x"}),
	}

	result := getStringSetAttr(image, "members")
	if len(result) != 2 || result[0] != "raw:string:a" || result[1] != "ref:obj:l.x" {
		t.Errorf("unexpected members %v", result)
	}
}

func TestGetStringSetAttr_MissingKey(t *testing.T) {
	result := getStringSetAttr(map[string]events.DynamoDBAttributeValue{}, "members")
	if result != nil {
		t.Errorf("expected nil for missing key, got %v", result)
	}
}

func TestGetStringSetAttr_NonSetAttribute(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"members": events.NewStringAttribute("not-a-set"),
	}

	result := getStringSetAttr(image, "members")
	if result != nil {
		t.Errorf("expected nil for non-set attribute, got %v", result)
	}
}

// --- isTTLRemoval Tests ---

func TestIsTTLRemoval(t *testing.T) {
	tests := []struct {
		name     string
		identity *events.DynamoDBUserIdentity
		expected bool
	}{
		{"ttl service", ttlIdentity(), true},
		{"no identity", nil, false},
		{"other service", &events.DynamoDBUserIdentity{Type: "Service", PrincipalID: "lambda.amazonaws.com"}, false},
		{"user", &events.DynamoDBUserIdentity{Type: "User", PrincipalID: "dynamodb.amazonaws.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := events.DynamoDBEventRecord{UserIdentity: tt.identity}
			if result := isTTLRemoval(record); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// --- references Tests ---

func TestReferences(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"pk":        events.NewStringAttribute("guild"),
		"key":       events.NewStringAttribute("ref:obj:not-a-field"),
		"f_name":    events.NewStringAttribute("raw:string:xd"),
		"f_members": events.NewStringAttribute("ref:obj:guild.members"),
		"f_count":   events.NewStringAttribute("41"),
		"members":   events.NewStringSetAttribute([]string{"ref:arr:guild.list", "raw:number:1"}),
	}

	refs, err := references(image)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := map[token.Reference]bool{}
	for _, r := range refs {
		found[r] = true
	}
	if len(refs) != 2 || !found[token.Ref("guild.members")] || !found[token.ArrayRef("guild.list")] {
		t.Errorf("unexpected references %v", refs)
	}
}

func TestReferences_Malformed(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"f_bad": events.NewStringAttribute("ref:set:x"),
	}

	if _, err := references(image); !errors.Is(err, token.ErrInvalidReference) {
		t.Errorf("expected ErrInvalidReference, got %v", err)
	}
}

// --- recordKey Tests ---

func TestRecordKey(t *testing.T) {
	tests := []struct {
		name     string
		change   events.DynamoDBStreamRecord
		expected string
	}{
		{
			"old image",
			events.DynamoDBStreamRecord{OldImage: map[string]events.DynamoDBAttributeValue{"key": events.NewStringAttribute("a.b")}},
			"a.b",
		},
		{
			"new image",
			events.DynamoDBStreamRecord{NewImage: map[string]events.DynamoDBAttributeValue{"key": events.NewStringAttribute("a.c")}},
			"a.c",
		},
		{
			"partition key",
			events.DynamoDBStreamRecord{Keys: map[string]events.DynamoDBAttributeValue{"pk": events.NewStringAttribute("a")}},
			"a",
		},
		{"nothing", events.DynamoDBStreamRecord{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := recordKey(events.DynamoDBEventRecord{Change: tt.change}); result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

// --- processRecord Tests ---

func TestProcessRecord_SkipsOtherEvents(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
		identity  *events.DynamoDBUserIdentity
	}{
		{"INSERT", "INSERT", nil},
		{"MODIFY", "MODIFY", ttlIdentity()},
		{"client REMOVE", "REMOVE", nil},
		{"Unknown", "UNKNOWN", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A nil store would panic if the record were processed.
			h := NewHandler(nil, nil)
			record := events.DynamoDBEventRecord{
				EventName:    tt.eventName,
				UserIdentity: tt.identity,
				Change: events.DynamoDBStreamRecord{
					OldImage: map[string]events.DynamoDBAttributeValue{
						"f_child": events.NewStringAttribute("ref:obj:a.child"),
					},
				},
			}

			err := h.processRecord(context.Background(), record)
			if err != nil {
				t.Errorf("expected no error for %s event, got %v", tt.eventName, err)
			}
		})
	}
}

func TestWithWorkers(t *testing.T) {
	h := NewHandler(nil, nil)
	if h.workers != DefaultWorkers {
		t.Errorf("expected %d workers, got %d", DefaultWorkers, h.workers)
	}
	if h.WithWorkers(0).workers != 1 {
		t.Errorf("expected at least one worker, got %d", h.workers)
	}
	if h.WithWorkers(8).workers != 8 {
		t.Errorf("expected 8 workers, got %d", h.workers)
	}
}

// --- Benchmark Tests ---

func BenchmarkReferences(b *testing.B) {
	image := map[string]events.DynamoDBAttributeValue{
		"key":       events.NewStringAttribute("guild"),
		"f_name":    events.NewStringAttribute("raw:string:xd"),
		"f_members": events.NewStringAttribute("ref:obj:guild.members"),
		"f_list":    events.NewStringAttribute("ref:arr:guild.list"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		references(image)
	}
}
