// Package bolt provides a store.Backend persisted in a bbolt file.
//
// Hash records are msgpack-encoded maps in the "hashes" bucket, set records
// msgpack-encoded member lists in the "sets" bucket. Every operation runs in
// a single bbolt transaction, so batches and increments are atomic.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/appellation/rejects/store"
	"github.com/appellation/rejects/token"
)

// ErrWrongType is returned when a hash command targets a set or the reverse.
var ErrWrongType = errors.New("bolt: operation against a key holding the wrong kind of value")

var (
	hashesBucket  = []byte("hashes")
	setsBucket    = []byte("sets")
	expiresBucket = []byte("expires")
)

// Options configures Open.
type Options struct {
	// Timeout is how long Open waits for the file lock.
	Timeout time.Duration

	// IsTesting trades durability for speed.
	IsTesting bool

	// MmapSize is the initial mmap size in bytes. Zero picks a default.
	MmapSize int
}

// Backend stores records in a bbolt database.
type Backend struct {
	bdb *bbolt.DB

	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

var (
	_ store.Backend = (*Backend)(nil)
	_ store.Expirer = (*Backend)(nil)
)

// Open opens or creates the database at path.
func Open(path string, opt *Options) (*Backend, error) {
	if opt == nil {
		opt = &Options{}
	}
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = opt.Timeout
	if bopt.Timeout == 0 {
		bopt.Timeout = 10 * time.Second
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}

	err = bdb.Update(func(btx *bbolt.Tx) error {
		for _, name := range [][]byte{hashesBucket, setsBucket, expiresBucket} {
			if _, err := btx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("bolt: preparing buckets: %w", err)
	}

	return &Backend{bdb: bdb, Now: time.Now}, nil
}

// Bolt returns the underlying database.
func (b *Backend) Bolt() *bbolt.DB {
	return b.bdb
}

// Close closes the database file.
func (b *Backend) Close() error {
	return b.bdb.Close()
}

// tx wraps a bbolt transaction with record-level helpers.
type tx struct {
	btx     *bbolt.Tx
	hashes  *bbolt.Bucket
	sets    *bbolt.Bucket
	expires *bbolt.Bucket
	now     time.Time
}

func (b *Backend) view(ctx context.Context, f func(t *tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.bdb.View(func(btx *bbolt.Tx) error {
		return f(b.wrap(btx))
	})
}

func (b *Backend) update(ctx context.Context, f func(t *tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.bdb.Update(func(btx *bbolt.Tx) error {
		return f(b.wrap(btx))
	})
}

func (b *Backend) wrap(btx *bbolt.Tx) *tx {
	return &tx{
		btx:     btx,
		hashes:  btx.Bucket(hashesBucket),
		sets:    btx.Bucket(setsBucket),
		expires: btx.Bucket(expiresBucket),
		now:     b.Now(),
	}
}

// expired reports whether key has passed its deadline. Writable transactions
// also drop the key.
func (t *tx) expired(key []byte) (bool, error) {
	raw := t.expires.Get(key)
	if raw == nil {
		return false, nil
	}
	var deadline int64
	if err := msgpack.Unmarshal(raw, &deadline); err != nil {
		return false, fmt.Errorf("bolt: decoding expiry of %q: %w", key, err)
	}
	if t.now.UnixNano() < deadline {
		return false, nil
	}
	if t.btx.Writable() {
		return true, t.remove(key)
	}
	return true, nil
}

func (t *tx) remove(key []byte) error {
	if err := t.hashes.Delete(key); err != nil {
		return err
	}
	if err := t.sets.Delete(key); err != nil {
		return err
	}
	return t.expires.Delete(key)
}

func (t *tx) hash(key string) (map[string]string, error) {
	k := []byte(key)
	if gone, err := t.expired(k); gone || err != nil {
		return nil, err
	}
	if t.sets.Get(k) != nil {
		return nil, fmt.Errorf("%w: %q", ErrWrongType, key)
	}
	raw := t.hashes.Get(k)
	if raw == nil {
		return nil, nil
	}
	var fields map[string]string
	if err := msgpack.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("bolt: decoding %q: %w", key, err)
	}
	return fields, nil
}

func (t *tx) members(key string) ([]string, error) {
	k := []byte(key)
	if gone, err := t.expired(k); gone || err != nil {
		return nil, err
	}
	if t.hashes.Get(k) != nil {
		return nil, fmt.Errorf("%w: %q", ErrWrongType, key)
	}
	raw := t.sets.Get(k)
	if raw == nil {
		return nil, nil
	}
	var members []string
	if err := msgpack.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("bolt: decoding %q: %w", key, err)
	}
	return members, nil
}

func (t *tx) hashSet(key string, fields map[string]string) error {
	cur, err := t.hash(key)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	if cur == nil {
		cur = make(map[string]string, len(fields))
	}
	maps.Copy(cur, fields)
	raw, err := msgpack.Marshal(cur)
	if err != nil {
		return fmt.Errorf("bolt: encoding %q: %w", key, err)
	}
	return t.hashes.Put([]byte(key), raw)
}

func (t *tx) setAdd(key string, members []string) error {
	cur, err := t.members(key)
	if err != nil {
		return err
	}
	n := len(cur)
	for _, m := range members {
		if !slices.Contains(cur, m) {
			cur = append(cur, m)
		}
	}
	if len(cur) == n {
		return nil
	}
	raw, err := msgpack.Marshal(cur)
	if err != nil {
		return fmt.Errorf("bolt: encoding %q: %w", key, err)
	}
	return t.sets.Put([]byte(key), raw)
}

func (t *tx) exists(key string) (bool, error) {
	k := []byte(key)
	if gone, err := t.expired(k); gone || err != nil {
		return false, err
	}
	return t.hashes.Get(k) != nil || t.sets.Get(k) != nil, nil
}

func (b *Backend) HashSetFields(ctx context.Context, key string, fields map[string]string) error {
	return b.update(ctx, func(t *tx) error {
		return t.hashSet(key, fields)
	})
}

func (b *Backend) HashGetAll(ctx context.Context, key string) (fields map[string]string, err error) {
	err = b.view(ctx, func(t *tx) error {
		fields, err = t.hash(key)
		return err
	})
	return fields, err
}

func (b *Backend) HashFieldNames(ctx context.Context, key string) ([]string, error) {
	fields, err := b.HashGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(fields)), nil
}

func (b *Backend) HashFieldCount(ctx context.Context, key string) (int64, error) {
	fields, err := b.HashGetAll(ctx, key)
	if err != nil {
		return 0, err
	}
	return int64(len(fields)), nil
}

func (b *Backend) HashIncrementInt(ctx context.Context, key, field string, delta int64) (n int64, err error) {
	err = b.update(ctx, func(t *tx) error {
		fields, err := t.hash(key)
		if err != nil {
			return err
		}
		cur, exists := fields[field]
		var stored string
		stored, n, err = token.IncrementInt(cur, exists, delta)
		if err != nil {
			return err
		}
		return t.hashSet(key, map[string]string{field: stored})
	})
	return n, err
}

func (b *Backend) HashIncrementFloat(ctx context.Context, key, field string, delta float64) (f float64, err error) {
	err = b.update(ctx, func(t *tx) error {
		fields, err := t.hash(key)
		if err != nil {
			return err
		}
		cur, exists := fields[field]
		var stored string
		stored, f, err = token.IncrementFloat(cur, exists, delta)
		if err != nil {
			return err
		}
		return t.hashSet(key, map[string]string{field: stored})
	})
	return f, err
}

func (b *Backend) SetAdd(ctx context.Context, key string, members ...string) error {
	return b.update(ctx, func(t *tx) error {
		return t.setAdd(key, members)
	})
}

func (b *Backend) SetMembers(ctx context.Context, key string) (members []string, err error) {
	err = b.view(ctx, func(t *tx) error {
		members, err = t.members(key)
		return err
	})
	return members, err
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.update(ctx, func(t *tx) error {
		return t.remove([]byte(key))
	})
}

func (b *Backend) Exists(ctx context.Context, key string) (ok bool, err error) {
	err = b.view(ctx, func(t *tx) error {
		ok, err = t.exists(key)
		return err
	})
	return ok, err
}

func (b *Backend) IsSet(ctx context.Context, key string) (ok bool, err error) {
	err = b.view(ctx, func(t *tx) error {
		k := []byte(key)
		gone, err := t.expired(k)
		if gone || err != nil {
			return err
		}
		ok = t.sets.Get(k) != nil
		return nil
	})
	return ok, err
}

// Expire implements store.Expirer. Expired records are dropped by the next
// write that touches them and read as absent until then.
func (b *Backend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return b.update(ctx, func(t *tx) error {
		ok, err := t.exists(key)
		if err != nil || !ok {
			return err
		}
		raw, err := msgpack.Marshal(t.now.Add(ttl).UnixNano())
		if err != nil {
			return err
		}
		return t.expires.Put([]byte(key), raw)
	})
}

// Begin implements store.Backend.
func (b *Backend) Begin() store.Batch {
	return &batch{backend: b}
}

type op struct {
	key     string
	hash    bool
	fields  map[string]string
	members []string
	del     bool
}

type batch struct {
	backend *Backend
	ops     []op
}

func (q *batch) HashSetFields(key string, fields map[string]string) {
	q.ops = append(q.ops, op{key: key, hash: true, fields: maps.Clone(fields)})
}

func (q *batch) SetAdd(key string, members ...string) {
	q.ops = append(q.ops, op{key: key, members: slices.Clone(members)})
}

func (q *batch) Delete(key string) {
	q.ops = append(q.ops, op{key: key, del: true})
}

func (q *batch) Len() int {
	return len(q.ops)
}

// Exec applies every queued op in one read-write transaction.
func (q *batch) Exec(ctx context.Context) error {
	return q.backend.update(ctx, func(t *tx) error {
		for _, o := range q.ops {
			var err error
			switch {
			case o.del:
				err = t.remove([]byte(o.key))
			case o.hash:
				err = t.hashSet(o.key, o.fields)
			default:
				err = t.setAdd(o.key, o.members)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}
