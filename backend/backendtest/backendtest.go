// Package backendtest is a conformance suite for store.Backend
// implementations.
//
// Backend packages call Run from their own tests:
//
//	func TestConformance(t *testing.T) {
//	    backendtest.Run(t, func(t *testing.T) store.Backend { return New() })
//	}
package backendtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appellation/rejects/store"
	"github.com/appellation/rejects/token"
)

// Factory returns an empty backend for one subtest.
type Factory func(t *testing.T) store.Backend

// Run runs the backend contract tests and the store scenarios against
// backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("Hash", func(t *testing.T) { testHash(t, newBackend(t)) })
	t.Run("MissingKey", func(t *testing.T) { testMissingKey(t, newBackend(t)) })
	t.Run("Set", func(t *testing.T) { testSet(t, newBackend(t)) })
	t.Run("IsSet", func(t *testing.T) { testIsSet(t, newBackend(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newBackend(t)) })
	t.Run("IncrementInt", func(t *testing.T) { testIncrementInt(t, newBackend(t)) })
	t.Run("IncrementFloat", func(t *testing.T) { testIncrementFloat(t, newBackend(t)) })
	t.Run("IncrementErrors", func(t *testing.T) { testIncrementErrors(t, newBackend(t)) })
	t.Run("Batch", func(t *testing.T) { testBatch(t, newBackend(t)) })
	t.Run("Store", func(t *testing.T) { RunStore(t, newBackend) })
}

func testHash(t *testing.T, b store.Backend) {
	ctx := context.Background()

	require.NoError(t, b.HashSetFields(ctx, "h", map[string]string{"a": "raw:string:1", "b": "raw:string:2"}))
	require.NoError(t, b.HashSetFields(ctx, "h", map[string]string{"b": "raw:string:3", "c": "raw:string:4"}))

	fields, err := b.HashGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "raw:string:1", "b": "raw:string:3", "c": "raw:string:4"}, fields)

	names, err := b.HashFieldNames(ctx, "h")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, names)

	n, err := b.HashFieldCount(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ok, err := b.Exists(ctx, "h")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testMissingKey(t *testing.T, b store.Backend) {
	ctx := context.Background()

	fields, err := b.HashGetAll(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, fields)

	names, err := b.HashFieldNames(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, names)

	n, err := b.HashFieldCount(ctx, "nope")
	require.NoError(t, err)
	assert.Zero(t, n)

	members, err := b.SetMembers(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, members)

	ok, err := b.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Delete(ctx, "nope"))
}

func testSet(t *testing.T, b store.Backend) {
	ctx := context.Background()

	require.NoError(t, b.SetAdd(ctx, "s", "raw:string:a", "raw:string:b"))
	require.NoError(t, b.SetAdd(ctx, "s", "raw:string:b", "raw:string:c"))

	members, err := b.SetMembers(ctx, "s")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"raw:string:a", "raw:string:b", "raw:string:c"}, members)

	ok, err := b.Exists(ctx, "s")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testIsSet(t *testing.T, b store.Backend) {
	ctx := context.Background()

	require.NoError(t, b.SetAdd(ctx, "s", "raw:string:a"))
	require.NoError(t, b.HashSetFields(ctx, "h", map[string]string{"a": "raw:string:1"}))

	tests := map[string]bool{"s": true, "h": false, "missing": false}
	for key, expected := range tests {
		isSet, err := b.IsSet(ctx, key)
		require.NoError(t, err, key)
		assert.Equal(t, expected, isSet, key)
	}
}

func testDelete(t *testing.T, b store.Backend) {
	ctx := context.Background()

	require.NoError(t, b.HashSetFields(ctx, "h", map[string]string{"a": "raw:string:1"}))
	require.NoError(t, b.SetAdd(ctx, "s", "raw:string:a"))
	require.NoError(t, b.Delete(ctx, "h"))
	require.NoError(t, b.Delete(ctx, "s"))

	for _, key := range []string{"h", "s"} {
		ok, err := b.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func testIncrementInt(t *testing.T, b store.Backend) {
	ctx := context.Background()

	n, err := b.HashIncrementInt(ctx, "h", "n", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, b.HashSetFields(ctx, "h", map[string]string{"m": "raw:number:5"}))
	n, err = b.HashIncrementInt(ctx, "h", "m", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	fields, err := b.HashGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, "raw:number:8", fields["m"])
	assert.Equal(t, "raw:number:2", fields["n"])
}

func testIncrementFloat(t *testing.T, b store.Backend) {
	ctx := context.Background()

	require.NoError(t, b.HashSetFields(ctx, "h", map[string]string{"f": "raw:number:1"}))
	f, err := b.HashIncrementFloat(ctx, "h", "f", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	fields, err := b.HashGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, "raw:number:1.5", fields["f"])
}

func testIncrementErrors(t *testing.T, b store.Backend) {
	ctx := context.Background()

	require.NoError(t, b.HashSetFields(ctx, "h", map[string]string{
		"s": "raw:string:5",
		"f": "raw:number:1.5",
	}))

	_, err := b.HashIncrementInt(ctx, "h", "s", 1)
	assert.True(t, errors.Is(err, token.ErrNotNumeric), "got %v", err)

	_, err = b.HashIncrementInt(ctx, "h", "f", 1)
	assert.True(t, errors.Is(err, token.ErrNotInteger), "got %v", err)

	fields, err := b.HashGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, "raw:string:5", fields["s"])
	assert.Equal(t, "raw:number:1.5", fields["f"])
}

func testBatch(t *testing.T, b store.Backend) {
	ctx := context.Background()

	require.NoError(t, b.HashSetFields(ctx, "old", map[string]string{"a": "raw:string:1"}))

	batch := b.Begin()
	batch.HashSetFields("h1", map[string]string{"a": "raw:string:1"})
	batch.HashSetFields("h2", map[string]string{"b": "raw:string:2"})
	batch.SetAdd("s", "raw:string:x")
	batch.Delete("old")
	assert.Equal(t, 4, batch.Len())

	ok, err := b.Exists(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, ok, "queued writes must not be visible before Exec")

	require.NoError(t, batch.Exec(ctx))

	for key, expected := range map[string]bool{"h1": true, "h2": true, "s": true, "old": false} {
		ok, err := b.Exists(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, expected, ok, key)
	}
}
