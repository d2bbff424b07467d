package token

import (
	"fmt"
	"strconv"
)

// FieldKind identifies which variant a Field holds.
type FieldKind uint8

const (
	FieldPrimitive FieldKind = iota + 1
	FieldReference
	FieldScalar
)

func (k FieldKind) String() string {
	switch k {
	case FieldPrimitive:
		return "primitive"
	case FieldReference:
		return "reference"
	case FieldScalar:
		return "scalar"
	}
	return "invalid"
}

// Field is a decoded stored field value.
type Field struct {
	kind  FieldKind
	value any
	ref   Reference
	raw   string
}

// ParseField decodes a stored field value.
func ParseField(s string) (Field, error) {
	switch {
	case IsPrimitive(s):
		v, err := DecodePrimitive(s)
		if err != nil {
			return Field{}, err
		}
		return Field{kind: FieldPrimitive, value: v, raw: s}, nil
	case IsReference(s):
		r, err := DecodeReference(s)
		if err != nil {
			return Field{}, err
		}
		return Field{kind: FieldReference, ref: r, raw: s}, nil
	}
	if n, ok := parseBareNumber(s); ok {
		return Field{kind: FieldScalar, value: n, raw: s}, nil
	}
	return Field{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
}

// PrimitiveField returns the Field for an already decoded primitive value.
func PrimitiveField(v any) (Field, error) {
	s, err := EncodePrimitive(v)
	if err != nil {
		return Field{}, err
	}
	return ParseField(s)
}

// ReferenceField returns the Field for r.
func ReferenceField(r Reference) Field {
	return Field{kind: FieldReference, ref: r, raw: r.String()}
}

// Kind returns the variant held by f.
func (f Field) Kind() FieldKind { return f.kind }

// Value returns the decoded value of a primitive or scalar field.
func (f Field) Value() any { return f.value }

// Reference returns the reference held by a reference field.
func (f Field) Reference() (Reference, bool) {
	return f.ref, f.kind == FieldReference
}

// String returns the stored representation.
func (f Field) String() string { return f.raw }

func parseBareNumber(s string) (any, bool) {
	if s == "" || !isNumberStart(s[0]) {
		return nil, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return nil, false
}

func isNumberStart(c byte) bool {
	return c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9')
}
