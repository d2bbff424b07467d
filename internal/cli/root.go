// Package cli implements the rejects command line tool.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"github.com/appellation/rejects/backend/bolt"
	"github.com/appellation/rejects/backend/dynamo"
	"github.com/appellation/rejects/backend/memory"
	"github.com/appellation/rejects/backend/redis"
	"github.com/appellation/rejects/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "yaml"
	Backend string // "memory" | "bolt" | "redis" | "dynamo"
	Path    string
	Addr    string
	Table   string
	Arrays  string // "hash" | "set"

	// backend overrides Backend when set.
	backend store.Backend
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"json", "yaml"}

// ValidBackends defines the allowed backends.
var ValidBackends = []string{"memory", "bolt", "redis", "dynamo"}

// NewRootCommand creates the root command for the rejects CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rejects",
		Short: "rejects - nested values over hash key-value stores",
		Long: `Read and write nested values stored as flat hash records.

Objects and arrays are split into one record per collection, linked by
reference tokens. Values are given as YAML or JSON.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !slices.Contains(ValidBackends, opts.Backend) {
				return fmt.Errorf("invalid backend %q: must be one of %v", opts.Backend, ValidBackends)
			}
			if opts.Arrays != "hash" && opts.Arrays != "set" {
				return fmt.Errorf("invalid array encoding %q: must be hash or set", opts.Arrays)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every backend operation to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "json", "output format (json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "bolt", "storage backend (memory|bolt|redis|dynamo)")
	cmd.PersistentFlags().StringVar(&opts.Path, "path", "rejects.db", "bolt database file")
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "localhost:6379", "redis address")
	cmd.PersistentFlags().StringVar(&opts.Table, "table", dynamo.DefaultConfig().Table, "dynamodb table")
	cmd.PersistentFlags().StringVar(&opts.Arrays, "arrays", "hash", "array encoding (hash|set)")

	// Add subcommands
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewUpsertCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewIncrCommand(opts))
	cmd.AddCommand(NewKeysCommand(opts))
	cmd.AddCommand(NewSizeCommand(opts))
	cmd.AddCommand(NewExpireCommand(opts))

	return cmd
}

// openStore opens the selected backend. The returned func releases it.
func openStore(ctx context.Context, opts *RootOptions, stderr io.Writer) (*store.Store, func() error, error) {
	cfg := store.DefaultConfig()
	if opts.Arrays == "set" {
		cfg.ArrayEncoding = store.ArraySet
	}
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	noop := func() error { return nil }
	if opts.backend != nil {
		return store.New(opts.backend, cfg), noop, nil
	}

	switch opts.Backend {
	case "memory":
		return store.New(memory.New(), cfg), noop, nil
	case "bolt":
		b, err := bolt.Open(opts.Path, nil)
		if err != nil {
			return nil, nil, err
		}
		return store.New(b, cfg), b.Close, nil
	case "redis":
		b, err := redis.Dial(ctx, opts.Addr)
		if err != nil {
			return nil, nil, err
		}
		return store.New(b, cfg), b.Close, nil
	case "dynamo":
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", err)
		}
		dcfg := dynamo.DefaultConfig()
		dcfg.Table = opts.Table
		return store.New(dynamo.New(dynamodb.NewFromConfig(awsCfg), dcfg), cfg), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", opts.Backend)
}

// withStore runs fn against an open store and releases it afterwards.
func withStore(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *store.Store) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, release, err := openStore(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := release(); err == nil {
			err = cerr
		}
	}()
	return fn(ctx, s)
}
