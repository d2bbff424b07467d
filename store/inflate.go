package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/appellation/rejects/token"
)

// Unbounded disables the depth limit of a read.
const Unbounded = -1

// GetOptions configures a read.
type GetOptions struct {
	// Kind is the collection kind of the root record.
	Kind token.Kind

	// MaxDepth is the number of reference levels to resolve below the root.
	// References beyond it are returned verbatim as token strings. Zero
	// resolves nothing; Unbounded (any negative value) resolves everything.
	MaxDepth int
}

// entry is one decoded field (or set member) of a record.
type entry struct {
	name  string
	field token.Field
}

// readHash reads a hash record under the store's read limit.
func (s *Store) readHash(ctx context.Context, key string) (map[string]string, error) {
	if err := s.reads.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.reads.Release(1)
	return s.backend.HashGetAll(ctx, key)
}

// readSet reads set members under the store's read limit.
func (s *Store) readSet(ctx context.Context, key string) ([]string, error) {
	if err := s.reads.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.reads.Release(1)
	return s.backend.SetMembers(ctx, key)
}

// isSet reports whether records of the given kind are stored as sets.
func (s *Store) isSet(kind token.Kind) bool {
	return kind == token.Array && s.config.ArrayEncoding == ArraySet
}

// readEntries reads and decodes the record ref points at. Array entries come
// back in element order.
func (s *Store) readEntries(ctx context.Context, ref token.Reference) ([]entry, bool, error) {
	var entries []entry

	if s.isSet(ref.Kind) {
		members, err := s.readSet(ctx, ref.Key)
		if err != nil {
			return nil, false, fmt.Errorf("read %q: %w", ref.Key, err)
		}
		for i, m := range members {
			f, err := token.ParseField(m)
			if err != nil {
				return nil, false, fmt.Errorf("read %q member %d: %w", ref.Key, i, err)
			}
			entries = append(entries, entry{name: strconv.Itoa(i), field: f})
		}
		return entries, len(entries) > 0, nil
	}

	fields, err := s.readHash(ctx, ref.Key)
	if err != nil {
		return nil, false, fmt.Errorf("read %q: %w", ref.Key, err)
	}
	for name, raw := range fields {
		f, err := token.ParseField(raw)
		if err != nil {
			return nil, false, fmt.Errorf("read %q field %q: %w", ref.Key, name, err)
		}
		entries = append(entries, entry{name: name, field: f})
	}
	if ref.Kind == token.Array {
		sortByIndex(entries)
	}
	return entries, len(entries) > 0, nil
}

// inflate resolves the record ref points at into a nested value.
func (s *Store) inflate(ctx context.Context, ref token.Reference, depth, maxDepth int) (any, bool, error) {
	entries, found, err := s.readEntries(ctx, ref)
	if err != nil || !found {
		return nil, false, err
	}

	values := make([]any, len(entries))
	resolve := maxDepth < 0 || depth < maxDepth

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entries {
		child, isRef := e.field.Reference()
		if !isRef {
			values[i] = e.field.Value()
			continue
		}
		if !resolve {
			values[i] = e.field.String()
			continue
		}
		g.Go(func() error {
			v, found, err := s.inflate(gctx, child, depth+1, maxDepth)
			if err != nil {
				return err
			}
			if !found {
				v = empty(child.Kind)
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	return assemble(ref.Kind, entries, values), true, nil
}

func assemble(kind token.Kind, entries []entry, values []any) any {
	if kind == token.Array {
		return values
	}
	obj := make(map[string]any, len(entries))
	for i, e := range entries {
		obj[e.name] = values[i]
	}
	return obj
}

func empty(kind token.Kind) any {
	if kind == token.Array {
		return []any{}
	}
	return map[string]any{}
}

// sortByIndex orders entries by numeric field name. Names that are not
// indices sort after all indices, lexically.
func sortByIndex(entries []entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, aErr := strconv.Atoi(entries[i].name)
		b, bErr := strconv.Atoi(entries[j].name)
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		}
		return entries[i].name < entries[j].name
	})
}
