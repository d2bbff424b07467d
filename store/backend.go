package store

import (
	"context"
	"time"
)

// Backend is the hash-oriented key-value store that records are persisted in.
//
// A record is a flat field map stored under one key. Array records may
// instead be stored as a set of members when Config.ArrayEncoding is
// ArraySet. An empty field map and an absent key are indistinguishable.
type Backend interface {
	// HashSetFields writes the given field/value pairs to the record at key,
	// leaving other fields untouched.
	HashSetFields(ctx context.Context, key string, fields map[string]string) error

	// HashGetAll returns every field of the record at key. A missing key
	// returns an empty map.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// HashFieldNames returns the field names of the record at key.
	HashFieldNames(ctx context.Context, key string) ([]string, error)

	// HashFieldCount returns the number of fields of the record at key.
	HashFieldCount(ctx context.Context, key string) (int64, error)

	// HashIncrementInt atomically adds delta to an integer field. A missing
	// field counts as zero. The result is stored as a number token.
	HashIncrementInt(ctx context.Context, key, field string, delta int64) (int64, error)

	// HashIncrementFloat atomically adds delta to a numeric field. The result
	// is stored as a float number token.
	HashIncrementFloat(ctx context.Context, key, field string, delta float64) (float64, error)

	// SetAdd adds members to the set at key.
	SetAdd(ctx context.Context, key string, members ...string) error

	// SetMembers returns the members of the set at key in backend order.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Delete removes key, whatever it holds.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds a record.
	Exists(ctx context.Context, key string) (bool, error)

	// IsSet reports whether key holds a set. A missing key is not a set.
	IsSet(ctx context.Context, key string) (bool, error)

	// Begin starts a batch. Nothing queued on a batch is visible until Exec
	// succeeds, and then all of it is.
	Begin() Batch
}

// Batch queues writes for atomic execution.
type Batch interface {
	HashSetFields(key string, fields map[string]string)
	SetAdd(key string, members ...string)
	Delete(key string)

	// Len returns the number of queued commands.
	Len() int

	// Exec commits every queued command in one transaction.
	Exec(ctx context.Context) error
}

// Expirer is implemented by backends that can expire records.
type Expirer interface {
	// Expire removes key once ttl has elapsed. Expired records read as absent.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// BatchLimiter is implemented by backends whose transactions hold a bounded
// number of commands.
type BatchLimiter interface {
	MaxBatchSize() int
}
