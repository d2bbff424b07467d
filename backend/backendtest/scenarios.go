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

// RunStore runs end-to-end store scenarios on top of backends produced by
// newBackend.
func RunStore(t *testing.T, newBackend Factory) {
	newStore := func(t *testing.T) *store.Store {
		return store.New(newBackend(t), store.DefaultConfig())
	}

	t.Run("RoundTrip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		value := map[string]any{
			"name":  "xd",
			"count": int64(0),
			"zero":  "0",
			"none":  nil,
			"ratio": 0.5,
			"members": map[string]any{
				"id":  map[string]any{"nick": "meme", "joinedAt": int64(20)},
				"id2": map[string]any{"nick": "meme2", "joinedAt": int64(30)},
			},
			"list": []any{"item", "other item", "item"},
		}
		require.NoError(t, s.Set(ctx, "guild", value))

		got, err := s.Get(ctx, "guild")
		require.NoError(t, err)
		assert.Equal(t, value, got)
	})

	t.Run("PartialUpdate", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, "a", map[string]any{"b": map[string]any{"c": 1}}))
		require.NoError(t, s.Upsert(ctx, "a.b", map[string]any{"d": 2}))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"b": map[string]any{"c": int64(1), "d": int64(2)}}, got)
	})

	t.Run("Increment", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, "x", map[string]any{"n": 5}))
		n, err := s.Incr(ctx, "x.n", 3)
		require.NoError(t, err)
		assert.Equal(t, 8.0, n)

		got, err := s.Get(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"n": int64(8)}, got)

		_, err = s.Incr(ctx, "x", 1)
		assert.True(t, errors.Is(err, store.ErrNoFieldInKey), "got %v", err)
	})

	t.Run("DeleteCascade", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, "a", map[string]any{"b": map[string]any{"c": 1}}))
		n, err := s.Delete(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		for _, key := range []string{"a", "a.b"} {
			ok, err := s.Exists(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok, key)
		}

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("MissingReference", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, "g", map[string]any{"id": token.Ref("missing")}))
		got, err := s.Get(ctx, "g")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": map[string]any{}}, got)
	})

	t.Run("SetArrays", func(t *testing.T) {
		ctx := context.Background()
		cfg := store.DefaultConfig()
		cfg.ArrayEncoding = store.ArraySet
		s := store.New(newBackend(t), cfg)

		require.NoError(t, s.Set(ctx, "l", map[string]any{
			"tags": []any{"a", "b", map[string]any{"c": true}},
		}))

		got, err := s.Get(ctx, "l")
		require.NoError(t, err)
		tags := got.(map[string]any)["tags"]
		assert.ElementsMatch(t, []any{"a", "b", map[string]any{"c": true}}, tags)

		n, err := s.Delete(ctx, "l")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("SetArrayRoot", func(t *testing.T) {
		ctx := context.Background()
		cfg := store.DefaultConfig()
		cfg.ArrayEncoding = store.ArraySet
		s := store.New(newBackend(t), cfg)

		require.NoError(t, s.Set(ctx, "list", []any{"a", "b"}))
		require.NoError(t, s.Set(ctx, "list", []any{"c"}))

		got, err := s.GetWithOptions(ctx, "list", store.GetOptions{Kind: token.Array, MaxDepth: store.Unbounded})
		require.NoError(t, err)
		assert.Equal(t, []any{"c"}, got)

		n, err := s.Delete(ctx, "list")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}
