// Package memory provides an in-process store.Backend.
//
// It is safe for concurrent use and is what the store tests run against.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/appellation/rejects/store"
	"github.com/appellation/rejects/token"
)

// ErrWrongType is returned when a hash command targets a set or the reverse.
var ErrWrongType = errors.New("memory: operation against a key holding the wrong kind of value")

type set struct {
	members []string
	index   map[string]struct{}
}

func (s *set) add(members ...string) {
	for _, m := range members {
		if _, ok := s.index[m]; ok {
			continue
		}
		s.index[m] = struct{}{}
		s.members = append(s.members, m)
	}
}

func (s *set) clone() *set {
	return &set{members: slices.Clone(s.members), index: maps.Clone(s.index)}
}

// Backend keeps records in process memory.
type Backend struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	sets    map[string]*set
	expires map[string]time.Time

	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

var (
	_ store.Backend = (*Backend)(nil)
	_ store.Expirer = (*Backend)(nil)
)

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]*set),
		expires: make(map[string]time.Time),
		Now:     time.Now,
	}
}

// purge drops key if its expiry has passed. Callers hold mu.
func (b *Backend) purge(key string) {
	deadline, ok := b.expires[key]
	if ok && !b.Now().Before(deadline) {
		b.remove(key)
	}
}

func (b *Backend) remove(key string) {
	delete(b.hashes, key)
	delete(b.sets, key)
	delete(b.expires, key)
}

func (b *Backend) hashSet(key string, fields map[string]string) error {
	b.purge(key)
	if _, ok := b.sets[key]; ok {
		return fmt.Errorf("%w: %q", ErrWrongType, key)
	}
	if len(fields) == 0 {
		return nil
	}
	h, ok := b.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		b.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (b *Backend) setAdd(key string, members []string) error {
	b.purge(key)
	if _, ok := b.hashes[key]; ok {
		return fmt.Errorf("%w: %q", ErrWrongType, key)
	}
	if len(members) == 0 {
		return nil
	}
	s, ok := b.sets[key]
	if !ok {
		s = &set{index: make(map[string]struct{})}
		b.sets[key] = s
	}
	s.add(members...)
	return nil
}

func (b *Backend) hash(key string) (map[string]string, error) {
	b.purge(key)
	if _, ok := b.sets[key]; ok {
		return nil, fmt.Errorf("%w: %q", ErrWrongType, key)
	}
	return b.hashes[key], nil
}

func (b *Backend) HashSetFields(ctx context.Context, key string, fields map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hashSet(key, fields)
}

func (b *Backend) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, err := b.hash(key)
	if err != nil {
		return nil, err
	}
	return maps.Clone(h), nil
}

func (b *Backend) HashFieldNames(ctx context.Context, key string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, err := b.hash(key)
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(h)), nil
}

func (b *Backend) HashFieldCount(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, err := b.hash(key)
	if err != nil {
		return 0, err
	}
	return int64(len(h)), nil
}

func (b *Backend) HashIncrementInt(ctx context.Context, key, field string, delta int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, err := b.hash(key)
	if err != nil {
		return 0, err
	}
	cur, exists := h[field]
	stored, n, err := token.IncrementInt(cur, exists, delta)
	if err != nil {
		return 0, err
	}
	return n, b.hashSet(key, map[string]string{field: stored})
}

func (b *Backend) HashIncrementFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, err := b.hash(key)
	if err != nil {
		return 0, err
	}
	cur, exists := h[field]
	stored, f, err := token.IncrementFloat(cur, exists, delta)
	if err != nil {
		return 0, err
	}
	return f, b.hashSet(key, map[string]string{field: stored})
}

func (b *Backend) SetAdd(ctx context.Context, key string, members ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setAdd(key, members)
}

func (b *Backend) SetMembers(ctx context.Context, key string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purge(key)
	if _, ok := b.hashes[key]; ok {
		return nil, fmt.Errorf("%w: %q", ErrWrongType, key)
	}
	s, ok := b.sets[key]
	if !ok {
		return nil, nil
	}
	return slices.Clone(s.members), nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(key)
	return nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purge(key)
	_, isHash := b.hashes[key]
	_, isSet := b.sets[key]
	return isHash || isSet, nil
}

func (b *Backend) IsSet(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purge(key)
	_, ok := b.sets[key]
	return ok, nil
}

// Expire implements store.Expirer.
func (b *Backend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purge(key)
	_, isHash := b.hashes[key]
	_, isSet := b.sets[key]
	if isHash || isSet {
		b.expires[key] = b.Now().Add(ttl)
	}
	return nil
}

// Len returns the number of live keys.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.expires {
		b.purge(key)
	}
	return len(b.hashes) + len(b.sets)
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

func (t *batch) HashSetFields(key string, fields map[string]string) {
	t.ops = append(t.ops, op{key: key, hash: true, fields: maps.Clone(fields)})
}

func (t *batch) SetAdd(key string, members ...string) {
	t.ops = append(t.ops, op{key: key, members: slices.Clone(members)})
}

func (t *batch) Delete(key string) {
	t.ops = append(t.ops, op{key: key, del: true})
}

func (t *batch) Len() int {
	return len(t.ops)
}

// Exec applies every queued op under the backend lock. If one fails, the
// keys touched so far are restored.
func (t *batch) Exec(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	type saved struct {
		hash    map[string]string
		set     *set
		expires time.Time
		hasExp  bool
	}
	undo := make(map[string]saved)
	for _, o := range t.ops {
		if _, ok := undo[o.key]; ok {
			continue
		}
		sv := saved{hash: maps.Clone(b.hashes[o.key])}
		if s, ok := b.sets[o.key]; ok {
			sv.set = s.clone()
		}
		sv.expires, sv.hasExp = b.expires[o.key]
		undo[o.key] = sv
	}

	for _, o := range t.ops {
		var err error
		switch {
		case o.del:
			b.remove(o.key)
		case o.hash:
			err = b.hashSet(o.key, o.fields)
		default:
			err = b.setAdd(o.key, o.members)
		}
		if err != nil {
			for key, sv := range undo {
				b.remove(key)
				if sv.hash != nil {
					b.hashes[key] = sv.hash
				}
				if sv.set != nil {
					b.sets[key] = sv.set
				}
				if sv.hasExp {
					b.expires[key] = sv.expires
				}
			}
			return err
		}
	}
	return nil
}
