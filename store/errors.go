package store

import (
	"errors"

	"github.com/appellation/rejects/token"
)

var (
	// ErrCircularStructure is returned when a value written in one call
	// contains itself.
	ErrCircularStructure = errors.New("rejects: cannot store circular structure")

	// ErrUnrecognizedEntry is returned when a stored field value is neither a
	// primitive token, a reference token nor a bare number.
	ErrUnrecognizedEntry = token.ErrUnrecognized

	// ErrNoFieldInKey is returned by Incr when the key names a record rather
	// than a field inside one.
	ErrNoFieldInKey = errors.New("rejects: key does not name a field")

	// ErrKeyParse is returned for empty keys, keys with empty segments and
	// composite field names that cannot become a key segment.
	ErrKeyParse = errors.New("rejects: malformed key")

	// ErrNotComposite is returned when writing a primitive directly at a
	// root key. Only objects and arrays can form a record.
	ErrNotComposite = errors.New("rejects: root value must be an object or array")

	// ErrExpiryUnsupported is returned by Expire when the backend does not
	// implement Expirer.
	ErrExpiryUnsupported = errors.New("rejects: backend does not support expiry")
)
