package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/semaphore"

	"github.com/appellation/rejects/internal/keypath"
	"github.com/appellation/rejects/token"
)

// Store maps nested values onto records of a Backend.
type Store struct {
	backend Backend
	config  Config
	logger  *slog.Logger
	reads   *semaphore.Weighted
}

// New creates a new Store instance.
func New(backend Backend, config Config) *Store {
	config.validate()
	return &Store{
		backend: backend,
		config:  config,
		logger:  config.Logger,
		reads:   semaphore.NewWeighted(int64(config.MaxConcurrency)),
	}
}

// Backend returns the backend the store writes to.
func (s *Store) Backend() Backend {
	return s.backend
}

// Upsert writes value at key, merging into whatever is already stored there.
//
// Objects and arrays become records linked by reference tokens, primitives
// become primitive tokens, and token.Reference values are stored verbatim.
// A dotted key writes one branch of the record at its root: upserting {d: 2}
// at "a.b" keeps the other fields of "a" and "a.b". Every record of the write
// is committed in one backend transaction.
func (s *Store) Upsert(ctx context.Context, key string, value any) error {
	batch := s.backend.Begin()
	if err := s.QueueUpsert(batch, key, value); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := batch.Exec(ctx); err != nil {
		return fmt.Errorf("upsert %q: %w", key, err)
	}
	return nil
}

// QueueUpsert queues the writes of an Upsert onto a caller-owned batch
// without executing it. On error nothing is queued.
func (s *Store) QueueUpsert(batch Batch, key string, value any) error {
	plan, err := s.flatten(key, value)
	if err != nil {
		return err
	}
	plan.queue(batch)
	s.logger.Debug("queued upsert", "key", key, "records", plan.records())
	return nil
}

// Set replaces whatever is stored at key with value. It is Delete followed by
// Upsert; between the two the key reads as absent. A value that cannot be
// written leaves the stored one in place.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	plan, err := s.flatten(key, value)
	if err != nil {
		return err
	}
	if _, err := s.Delete(ctx, key); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	batch := s.backend.Begin()
	plan.queue(batch)
	if batch.Len() == 0 {
		return nil
	}
	if err := batch.Exec(ctx); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	s.logger.Debug("set", "key", key, "records", plan.records())
	return nil
}

// QueueSet queues the removal of everything stored at key, followed by the
// writes of value, onto a caller-owned batch. The records to remove are read
// now; the batch is not split for backends with a BatchLimiter. On error
// nothing is queued.
func (s *Store) QueueSet(ctx context.Context, batch Batch, key string, value any) error {
	plan, err := s.flatten(key, value)
	if err != nil {
		return err
	}
	root, err := s.rootRef(ctx, key)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	nodes, err := s.Discover(ctx, root)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	for i := len(nodes) - 1; i >= 0; i-- {
		batch.Delete(nodes[i].Key)
	}
	plan.queue(batch)
	s.logger.Debug("queued set", "key", key, "removed", len(nodes), "records", plan.records())
	return nil
}

// Get reads the object at key with every reference resolved. It returns nil
// when key does not exist.
func (s *Store) Get(ctx context.Context, key string) (any, error) {
	return s.GetWithOptions(ctx, key, GetOptions{Kind: token.Object, MaxDepth: Unbounded})
}

// GetWithOptions reads the record at key. Objects are returned as
// map[string]any and arrays as []any.
//
// An unbounded read of a persisted cycle (built from explicit references)
// never terminates; pass a MaxDepth when the graph may contain one.
func (s *Store) GetWithOptions(ctx context.Context, key string, opts GetOptions) (any, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	v, found, err := s.inflate(ctx, token.Reference{Kind: opts.Kind, Key: key}, 0, opts.MaxDepth)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return v, nil
}

// Incr atomically adds amount to the numeric field named by a dotted key and
// returns the new value. Integral amounts use the backend's integer
// increment, others the float increment.
func (s *Store) Incr(ctx context.Context, key string, amount float64) (float64, error) {
	if amount == math.Trunc(amount) && math.Abs(amount) < 1<<63 {
		n, err := s.IncrBy(ctx, key, int64(amount))
		return float64(n), err
	}
	return s.IncrByFloat(ctx, key, amount)
}

// IncrBy atomically adds an integer amount to the field named by key.
func (s *Store) IncrBy(ctx context.Context, key string, amount int64) (int64, error) {
	parent, field, err := splitField(key)
	if err != nil {
		return 0, err
	}
	n, err := s.backend.HashIncrementInt(ctx, parent, field, amount)
	if err != nil {
		return 0, fmt.Errorf("incr %q: %w", key, err)
	}
	return n, nil
}

// IncrByFloat atomically adds a float amount to the field named by key.
func (s *Store) IncrByFloat(ctx context.Context, key string, amount float64) (float64, error) {
	parent, field, err := splitField(key)
	if err != nil {
		return 0, err
	}
	f, err := s.backend.HashIncrementFloat(ctx, parent, field, amount)
	if err != nil {
		return 0, fmt.Errorf("incr %q: %w", key, err)
	}
	return f, nil
}

// Keys returns the field names of the record at key.
func (s *Store) Keys(ctx context.Context, key string) ([]string, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	return s.backend.HashFieldNames(ctx, key)
}

// Size returns the number of fields of the record at key.
func (s *Store) Size(ctx context.Context, key string) (int64, error) {
	if err := validKey(key); err != nil {
		return 0, err
	}
	return s.backend.HashFieldCount(ctx, key)
}

// Exists reports whether a record is stored at key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	return s.backend.Exists(ctx, key)
}

// rootRef returns the reference to the record stored at key. Under ArraySet a
// root array is a set, so the backend is asked which kind it holds.
func (s *Store) rootRef(ctx context.Context, key string) (token.Reference, error) {
	if s.config.ArrayEncoding != ArraySet {
		return token.Ref(key), nil
	}
	isSet, err := s.backend.IsSet(ctx, key)
	if err != nil {
		return token.Reference{}, err
	}
	if isSet {
		return token.ArrayRef(key), nil
	}
	return token.Ref(key), nil
}

func validKey(key string) error {
	if !keypath.Valid(key) {
		return fmt.Errorf("%w: %q", ErrKeyParse, key)
	}
	return nil
}

// splitField splits a dotted key into the record key and field name.
func splitField(key string) (string, string, error) {
	if err := validKey(key); err != nil {
		return "", "", err
	}
	parent, field, ok := keypath.Split(key)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrNoFieldInKey, key)
	}
	return parent, field, nil
}
