package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/appellation/rejects/store"
	"github.com/appellation/rejects/token"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Depth int
	Array bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read the value stored at a key",
		Long: `Read the value stored at a key with its references resolved.

References deeper than --depth are printed as reference tokens. A missing
key prints null.

Example:
  rejects get guild --depth 1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := token.Object
			if opts.Array {
				kind = token.Array
			}
			return withStore(cmd, rootOpts, func(ctx context.Context, s *store.Store) error {
				v, err := s.GetWithOptions(ctx, args[0], store.GetOptions{Kind: kind, MaxDepth: opts.Depth})
				if err != nil {
					return err
				}
				return writeValue(cmd.OutOrStdout(), opts.Format, v)
			})
		},
	}

	cmd.Flags().IntVar(&opts.Depth, "depth", store.Unbounded, "reference levels to resolve (negative for all)")
	cmd.Flags().BoolVar(&opts.Array, "array", false, "read the root record as an array")

	return cmd
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Replace the value stored at a key",
		Long: `Replace the value stored at a key, removing every record below it first.

Example:
  rejects set guild '{name: xd, members: {id: {nick: meme}}}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(args[1])
			if err != nil {
				return err
			}
			return withStore(cmd, rootOpts, func(ctx context.Context, s *store.Store) error {
				return s.Set(ctx, args[0], v)
			})
		},
	}
}

// NewUpsertCommand creates the upsert command.
func NewUpsertCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upsert <key> <value>",
		Short: "Merge a value into the value stored at a key",
		Long: `Merge a value into the value stored at a key. Fields not named in the
value are left untouched.

Example:
  rejects upsert guild.members '{other: {nick: pls}}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(args[1])
			if err != nil {
				return err
			}
			return withStore(cmd, rootOpts, func(ctx context.Context, s *store.Store) error {
				return s.Upsert(ctx, args[0], v)
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <key>",
		Short:         "Delete a key and every record below it",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, s *store.Store) error {
				n, err := s.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				return writeValue(cmd.OutOrStdout(), rootOpts.Format, n)
			})
		},
	}
}

// NewIncrCommand creates the incr command.
func NewIncrCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "incr <key.field> [amount]",
		Short: "Atomically add to a numeric field",
		Long: `Atomically add to a numeric field and print the new value. The amount
defaults to 1.

Example:
  rejects incr guild.members.id.count 2`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount := 1.0
			if len(args) == 2 {
				var err error
				if amount, err = strconv.ParseFloat(args[1], 64); err != nil {
					return fmt.Errorf("invalid amount %q: %w", args[1], err)
				}
			}
			return withStore(cmd, rootOpts, func(ctx context.Context, s *store.Store) error {
				n, err := s.Incr(ctx, args[0], amount)
				if err != nil {
					return err
				}
				return writeValue(cmd.OutOrStdout(), rootOpts.Format, n)
			})
		},
	}
}

// NewKeysCommand creates the keys command.
func NewKeysCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "keys <key>",
		Short:         "List the field names of a record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, s *store.Store) error {
				keys, err := s.Keys(ctx, args[0])
				if err != nil {
					return err
				}
				if keys == nil {
					keys = []string{}
				}
				return writeValue(cmd.OutOrStdout(), rootOpts.Format, keys)
			})
		},
	}
}

// NewSizeCommand creates the size command.
func NewSizeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "size <key>",
		Short:         "Count the fields of a record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(ctx context.Context, s *store.Store) error {
				n, err := s.Size(ctx, args[0])
				if err != nil {
					return err
				}
				return writeValue(cmd.OutOrStdout(), rootOpts.Format, n)
			})
		},
	}
}

// NewExpireCommand creates the expire command.
func NewExpireCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expire <key> <ttl>",
		Short: "Expire a key and every record below it",
		Long: `Expire a key and every record below it after a duration.

Example:
  rejects expire session 15m`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("invalid ttl %q: %w", args[1], err)
			}
			return withStore(cmd, rootOpts, func(ctx context.Context, s *store.Store) error {
				n, err := s.Expire(ctx, args[0], ttl)
				if err != nil {
					return err
				}
				return writeValue(cmd.OutOrStdout(), rootOpts.Format, n)
			})
		},
	}
}
