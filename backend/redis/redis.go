// Package redis provides a store.Backend on a Redis server.
//
// Records map one to one onto Redis hashes and sets. Batches run as
// MULTI/EXEC pipelines and increments as optimistic WATCH transactions, since
// stored numbers are tokens that HINCRBY cannot operate on.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/appellation/rejects/store"
	"github.com/appellation/rejects/token"
)

// DefaultMaxRetries bounds the attempts of an increment that keeps losing
// its WATCH race.
const DefaultMaxRetries = 16

// ErrContended is returned when an increment exhausts its retries.
var ErrContended = errors.New("redis: increment retries exhausted")

// Backend stores records in Redis.
type Backend struct {
	client     redis.UniversalClient
	maxRetries int
}

var (
	_ store.Backend = (*Backend)(nil)
	_ store.Expirer = (*Backend)(nil)
)

// New wraps an existing client.
func New(client redis.UniversalClient) *Backend {
	return &Backend{client: client, maxRetries: DefaultMaxRetries}
}

// Dial connects to the server at addr and checks that it answers.
func Dial(ctx context.Context, addr string) (*Backend, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: connecting to %s: %w", addr, err)
	}
	return New(client), nil
}

// Client returns the underlying client.
func (b *Backend) Client() redis.UniversalClient {
	return b.client
}

// Close closes the client.
func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) HashSetFields(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return b.client.HSet(ctx, key, fields).Err()
}

func (b *Backend) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	return b.client.HGetAll(ctx, key).Result()
}

func (b *Backend) HashFieldNames(ctx context.Context, key string) ([]string, error) {
	names, err := b.client.HKeys(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

func (b *Backend) HashFieldCount(ctx context.Context, key string) (int64, error) {
	return b.client.HLen(ctx, key).Result()
}

// incr runs apply against the current field value inside a WATCH
// transaction, retrying when another client changes the key first.
func (b *Backend) incr(ctx context.Context, key, field string, apply func(cur string, exists bool) (string, error)) error {
	txf := func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, field).Result()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists, err = false, nil
		}
		if err != nil {
			return err
		}
		stored, err := apply(cur, exists)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, stored)
			return nil
		})
		return err
	}

	for i := 0; i < b.maxRetries; i++ {
		err := b.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("%w: %q", ErrContended, key)
}

func (b *Backend) HashIncrementInt(ctx context.Context, key, field string, delta int64) (int64, error) {
	var n int64
	err := b.incr(ctx, key, field, func(cur string, exists bool) (string, error) {
		stored, v, err := token.IncrementInt(cur, exists, delta)
		n = v
		return stored, err
	})
	return n, err
}

func (b *Backend) HashIncrementFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	var f float64
	err := b.incr(ctx, key, field, func(cur string, exists bool) (string, error) {
		stored, v, err := token.IncrementFloat(cur, exists, delta)
		f = v
		return stored, err
	})
	return f, err
}

func (b *Backend) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return b.client.SAdd(ctx, key, toArgs(members)...).Err()
}

func (b *Backend) SetMembers(ctx context.Context, key string) ([]string, error) {
	return b.client.SMembers(ctx, key).Result()
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (b *Backend) IsSet(ctx context.Context, key string) (bool, error) {
	typ, err := b.client.Type(ctx, key).Result()
	return typ == "set", err
}

// Expire implements store.Expirer.
func (b *Backend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return b.client.Expire(ctx, key, ttl).Err()
}

// Begin implements store.Backend.
func (b *Backend) Begin() store.Batch {
	return &batch{pipe: b.client.TxPipeline()}
}

type batch struct {
	pipe redis.Pipeliner
	n    int
}

// The context of queued commands is only used by hooks; Exec supplies the
// one that governs the round trip.
func (q *batch) HashSetFields(key string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	q.pipe.HSet(context.Background(), key, fields)
	q.n++
}

func (q *batch) SetAdd(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	q.pipe.SAdd(context.Background(), key, toArgs(members)...)
	q.n++
}

func (q *batch) Delete(key string) {
	q.pipe.Del(context.Background(), key)
	q.n++
}

func (q *batch) Len() int {
	return q.n
}

func (q *batch) Exec(ctx context.Context) error {
	if q.n == 0 {
		return nil
	}
	_, err := q.pipe.Exec(ctx)
	return err
}

func toArgs(members []string) []any {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
