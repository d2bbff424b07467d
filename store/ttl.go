package store

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Expire sets a time to live on the record at key and on every record
// reachable from it, and returns the number of records affected. Records
// written below key afterwards do not inherit the expiry.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (int, error) {
	exp, ok := s.backend.(Expirer)
	if !ok {
		return 0, ErrExpiryUnsupported
	}
	if err := validKey(key); err != nil {
		return 0, err
	}

	root, err := s.rootRef(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("expire %q: %w", key, err)
	}
	nodes, err := s.Discover(ctx, root)
	if err != nil {
		return 0, fmt.Errorf("expire %q: %w", key, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrency)
	for _, n := range nodes {
		g.Go(func() error {
			return exp.Expire(gctx, n.Key, ttl)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("expire %q: %w", key, err)
	}

	s.logger.Debug("expiry set", "key", key, "records", len(nodes), "ttl", ttl)
	return len(nodes), nil
}
