package token

import (
	"fmt"
	"strings"

	"github.com/appellation/rejects/internal/keypath"
)

// Kind is the collection kind of a record.
type Kind uint8

const (
	// Object records are field maps. This is the zero value.
	Object Kind = iota
	// Array records hold the elements of a list.
	Array
)

const referencePrefix = "ref:"

func (k Kind) String() string {
	switch k {
	case Object:
		return "obj"
	case Array:
		return "arr"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind parses the wire name of a kind ("obj" or "arr").
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "obj":
		return Object, true
	case "arr":
		return Array, true
	}
	return 0, false
}

// Reference points at another record.
type Reference struct {
	Kind Kind
	Key  string
}

// Ref returns an object reference to key.
func Ref(key string) Reference {
	return Reference{Kind: Object, Key: key}
}

// ArrayRef returns an array reference to key.
func ArrayRef(key string) Reference {
	return Reference{Kind: Array, Key: key}
}

// String returns the wire form "ref:<kind>:<key>".
func (r Reference) String() string {
	return EncodeReference(r.Key, r.Kind)
}

// EncodeReference encodes a reference to key.
func EncodeReference(key string, kind Kind) string {
	return referencePrefix + kind.String() + ":" + key
}

// IsReference reports whether s is a reference token.
func IsReference(s string) bool {
	return strings.HasPrefix(s, referencePrefix)
}

// DecodeReference parses a reference token.
func DecodeReference(s string) (Reference, error) {
	rest, ok := strings.CutPrefix(s, referencePrefix)
	if !ok {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	kindName, key, ok := strings.Cut(rest, ":")
	if !ok {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	kind, ok := ParseKind(kindName)
	if !ok {
		return Reference{}, fmt.Errorf("%w: unknown kind in %q", ErrInvalidReference, s)
	}
	if !keypath.Valid(key) {
		return Reference{}, fmt.Errorf("%w: bad key in %q", ErrInvalidReference, s)
	}
	return Reference{Kind: kind, Key: key}, nil
}
