// Package keypath implements the dot-delimited key naming shared by records
// and their children.
//
// A key is either a root name ("guild") or a root followed by one segment per
// level of nesting ("guild.members.id").
package keypath

import "strings"

// Separator divides key segments.
const Separator = "."

// Join returns the key of field inside the record at parent.
func Join(parent, field string) string {
	return parent + Separator + field
}

// Split splits key into its parent key and the field name relative to that
// parent. ok is false for root keys.
func Split(key string) (parent, field string, ok bool) {
	i := strings.LastIndex(key, Separator)
	if i < 0 {
		return "", key, false
	}
	return key[:i], key[i+1:], true
}

// Segments returns the path segments of key.
func Segments(key string) []string {
	return strings.Split(key, Separator)
}

// Root returns the first segment of key.
func Root(key string) string {
	root, _, _ := strings.Cut(key, Separator)
	return root
}

// HasField reports whether key names a field inside an ancestor record.
func HasField(key string) bool {
	return strings.Contains(key, Separator)
}

// Valid reports whether key is non-empty and has no empty segments.
func Valid(key string) bool {
	if key == "" {
		return false
	}
	for _, seg := range Segments(key) {
		if seg == "" {
			return false
		}
	}
	return true
}

// Nest rewrites a write of v at a dotted key into the equivalent write at the
// key's root: "a.b.c" with v becomes "a" with {"b": {"c": v}}.
func Nest(key string, v any) (string, any) {
	segs := Segments(key)
	for i := len(segs) - 1; i > 0; i-- {
		v = map[string]any{segs[i]: v}
	}
	return segs[0], v
}
