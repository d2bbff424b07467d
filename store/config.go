package store

import (
	"log/slog"

	"github.com/google/uuid"
)

// ArrayEncoding selects how array values are laid out in the backend.
type ArrayEncoding uint8

const (
	// ArrayHash stores an array as a record keyed by element index ("0",
	// "1", ...). Order and duplicates survive a round trip.
	ArrayHash ArrayEncoding = iota

	// ArraySet stores an array as a set of element tokens. Composite
	// elements are written under generated child keys. Order is lost and
	// duplicate primitives collapse.
	ArraySet
)

func (e ArrayEncoding) String() string {
	if e == ArraySet {
		return "set"
	}
	return "hash"
}

// Config holds configuration for the Store.
type Config struct {
	// ArrayEncoding is the array layout used for writes and reads.
	// Default: ArrayHash
	ArrayEncoding ArrayEncoding

	// IDGenerator names the child records of composite elements in
	// set-encoded arrays. The result must not contain the key separator.
	// Default: uuid.NewString
	IDGenerator func() string

	// MaxConcurrency bounds the number of backend reads in flight for one
	// Store across all Get, Delete and Discover calls.
	// Default: 16
	// Max: 1024
	MaxConcurrency int

	// Logger receives debug output for every operation.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ArrayEncoding:  ArrayHash,
		IDGenerator:    uuid.NewString,
		MaxConcurrency: 16,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.ArrayEncoding > ArraySet {
		c.ArrayEncoding = ArrayHash
	}
	if c.IDGenerator == nil {
		c.IDGenerator = uuid.NewString
	}
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 16
	}
	if c.MaxConcurrency > 1024 {
		c.MaxConcurrency = 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
