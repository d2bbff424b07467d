package store

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/appellation/rejects/token"
)

// Node is a record found by Discover.
type Node struct {
	token.Reference

	// Depth is the number of reference hops from the root.
	Depth int
}

// Discover walks the graph below ref breadth first and returns every existing
// record reachable from it, the root first. Records on one level are read
// concurrently; the next level starts once the whole level is read. Each key
// is visited once, so persisted cycles terminate.
func (s *Store) Discover(ctx context.Context, ref token.Reference) ([]Node, error) {
	var nodes []Node
	seen := map[string]bool{ref.Key: true}
	frontier := []token.Reference{ref}

	for depth := 0; len(frontier) > 0; depth++ {
		children := make([][]token.Reference, len(frontier))
		exists := make([]bool, len(frontier))

		g, gctx := errgroup.WithContext(ctx)
		for i, r := range frontier {
			g.Go(func() error {
				refs, found, err := s.children(gctx, r)
				children[i], exists[i] = refs, found
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nodes, err
		}

		var next []token.Reference
		for i, r := range frontier {
			if !exists[i] {
				continue
			}
			nodes = append(nodes, Node{Reference: r, Depth: depth})
			for _, c := range children[i] {
				if !seen[c.Key] {
					seen[c.Key] = true
					next = append(next, c)
				}
			}
		}
		frontier = next
	}

	return nodes, nil
}

// children returns the references held by the record ref points at. Values
// that are not reference tokens are ignored; malformed reference tokens are
// errors.
func (s *Store) children(ctx context.Context, ref token.Reference) ([]token.Reference, bool, error) {
	var values []string
	if s.isSet(ref.Kind) {
		members, err := s.readSet(ctx, ref.Key)
		if err != nil {
			return nil, false, fmt.Errorf("read %q: %w", ref.Key, err)
		}
		values = members
	} else {
		fields, err := s.readHash(ctx, ref.Key)
		if err != nil {
			return nil, false, fmt.Errorf("read %q: %w", ref.Key, err)
		}
		for _, v := range fields {
			values = append(values, v)
		}
	}

	var refs []token.Reference
	for _, v := range values {
		if !token.IsReference(v) {
			continue
		}
		r, err := token.DecodeReference(v)
		if err != nil {
			return nil, false, fmt.Errorf("read %q: %w", ref.Key, err)
		}
		refs = append(refs, r)
	}
	return refs, len(values) > 0, nil
}

// Delete removes the record at key and every record reachable from it, and
// returns the number of records removed.
func (s *Store) Delete(ctx context.Context, key string) (int, error) {
	if err := validKey(key); err != nil {
		return 0, err
	}
	root, err := s.rootRef(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("delete %q: %w", key, err)
	}
	return s.DeleteReference(ctx, root)
}

// DeleteReference is like Delete but starts from a record of any kind.
//
// Deletes are issued deepest level first. When the backend limits batch size
// the graph is removed in several batches, and a failure part way through
// leaves the upper levels in place with references to records that are gone
// (they read as empty collections). A writer racing with Delete can replace
// records between discovery and removal; nothing here serializes against it.
func (s *Store) DeleteReference(ctx context.Context, ref token.Reference) (int, error) {
	nodes, err := s.Discover(ctx, ref)
	if err != nil {
		s.logger.Warn("cascade delete aborted during discovery",
			"key", ref.Key,
			"discovered", len(nodes),
			"error", err,
		)
		return 0, fmt.Errorf("delete %q: %w", ref.Key, err)
	}
	if len(nodes) == 0 {
		return 0, nil
	}

	limit := len(nodes)
	if bl, ok := s.backend.(BatchLimiter); ok && bl.MaxBatchSize() > 0 {
		limit = bl.MaxBatchSize()
	}

	removed := 0
	batch := s.backend.Begin()
	for i := len(nodes) - 1; i >= 0; i-- {
		batch.Delete(nodes[i].Key)
		if batch.Len() < limit && i > 0 {
			continue
		}
		if err := batch.Exec(ctx); err != nil {
			s.logger.Warn("cascade delete left records behind",
				"key", ref.Key,
				"removed", removed,
				"remaining", len(nodes)-removed,
				"error", err,
			)
			return removed, fmt.Errorf("delete %q: %w", ref.Key, err)
		}
		removed += batch.Len()
		batch = s.backend.Begin()
	}

	s.logger.Debug("deleted", "key", ref.Key, "records", removed)
	return removed, nil
}
