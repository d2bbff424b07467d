package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/appellation/rejects/backend/backendtest"
	"github.com/appellation/rejects/store"
)

func openTest(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "test.db"), &Options{IsTesting: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestConformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) store.Backend { return openTest(t) })
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	b, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s := store.New(b, store.DefaultConfig())
	if err := s.Set(ctx, "a", map[string]any{"b": map[string]any{"c": "d"}}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err = Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()

	got, err := store.New(b, store.DefaultConfig()).Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	c := got.(map[string]any)["b"].(map[string]any)["c"]
	if c != "d" {
		t.Errorf("expected d, got %v", c)
	}
}

func TestWrongType(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)

	if err := b.SetAdd(ctx, "s", "raw:string:a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.HashSetFields(ctx, "s", map[string]string{"a": "b"}); !errors.Is(err, ErrWrongType) {
		t.Errorf("expected ErrWrongType, got %v", err)
	}
}

func TestBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)

	if err := b.SetAdd(ctx, "s", "raw:string:a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batch := b.Begin()
	batch.HashSetFields("h", map[string]string{"a": "raw:string:1"})
	batch.HashSetFields("s", map[string]string{"a": "raw:string:1"})
	if err := batch.Exec(ctx); !errors.Is(err, ErrWrongType) {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}

	if ok, _ := b.Exists(ctx, "h"); ok {
		t.Error("expected failed batch to leave no writes behind")
	}
}

func TestExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	b := openTest(t)
	b.Now = func() time.Time { return now }

	if err := b.HashSetFields(ctx, "h", map[string]string{"a": "raw:string:1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Expire(ctx, "h", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := b.Exists(ctx, "h"); !ok {
		t.Error("expected record to live until its deadline")
	}

	now = now.Add(time.Minute)
	if ok, _ := b.Exists(ctx, "h"); ok {
		t.Error("expected record to expire at its deadline")
	}
	fields, err := b.HashGetAll(ctx, "h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fields) != 0 {
		t.Errorf("expected expired record to read empty, got %v", fields)
	}

	// A write after the deadline starts a fresh record without the expiry.
	if err := b.HashSetFields(ctx, "h", map[string]string{"b": "raw:string:2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now = now.Add(time.Hour)
	fields, err = b.HashGetAll(ctx, "h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fields) != 1 || fields["b"] != "raw:string:2" {
		t.Errorf("expected only the new field, got %v", fields)
	}
}
