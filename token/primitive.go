package token

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// PrimitiveType is the type tag of a primitive token.
type PrimitiveType string

const (
	TypeString    PrimitiveType = "string"
	TypeNumber    PrimitiveType = "number"
	TypeBoolean   PrimitiveType = "boolean"
	TypeNull      PrimitiveType = "null"
	TypeUndefined PrimitiveType = "undefined"
	TypeSymbol    PrimitiveType = "symbol"
)

const primitivePrefix = "raw:"

// Valid reports whether t is one of the six recognized types.
func (t PrimitiveType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeNull, TypeUndefined, TypeSymbol:
		return true
	}
	return false
}

// UndefinedType is the type of Undefined.
type UndefinedType struct{}

func (UndefinedType) String() string { return "undefined" }

// Undefined is a value that is present but carries no value. It is distinct
// from nil, which encodes as null.
var Undefined = UndefinedType{}

// Symbol is a named atom. Every *Symbol is unique; two symbols with the same
// name are not equal.
type Symbol struct {
	Name string
}

// NewSymbol returns a fresh symbol with the given name.
func NewSymbol(name string) *Symbol {
	return &Symbol{Name: name}
}

func (s *Symbol) String() string { return "Symbol(" + s.Name + ")" }

// IsPrimitive reports whether s is a primitive token.
func IsPrimitive(s string) bool {
	return strings.HasPrefix(s, primitivePrefix)
}

// IsPrimitiveValue reports whether v can be encoded by EncodePrimitive.
func IsPrimitiveValue(v any) bool {
	_, _, err := primitiveParts(v)
	return err == nil
}

// EncodePrimitive encodes v as "raw:<type>:<payload>".
func EncodePrimitive(v any) (string, error) {
	typ, payload, err := primitiveParts(v)
	if err != nil {
		return "", err
	}
	return primitivePrefix + string(typ) + ":" + payload, nil
}

// MustEncodePrimitive is like EncodePrimitive but panics on error.
func MustEncodePrimitive(v any) string {
	s, err := EncodePrimitive(v)
	if err != nil {
		panic(err)
	}
	return s
}

func primitiveParts(v any) (PrimitiveType, string, error) {
	switch x := v.(type) {
	case nil:
		return TypeNull, "null", nil
	case UndefinedType:
		return TypeUndefined, "undefined", nil
	case *Symbol:
		if x == nil {
			return TypeNull, "null", nil
		}
		return TypeSymbol, x.Name, nil
	case string:
		return TypeString, x, nil
	case bool:
		return TypeBoolean, strconv.FormatBool(x), nil
	case json.Number:
		if _, err := ParseNumber(x.String()); err != nil {
			return "", "", fmt.Errorf("%w: number %q", ErrInvalidPrimitiveType, x.String())
		}
		return TypeNumber, x.String(), nil
	case int:
		return TypeNumber, strconv.FormatInt(int64(x), 10), nil
	case int64:
		return TypeNumber, strconv.FormatInt(x, 10), nil
	case float64:
		return TypeNumber, FormatFloat(x), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return TypeString, rv.String(), nil
	case reflect.Bool:
		return TypeBoolean, strconv.FormatBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return TypeNumber, strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return TypeNumber, strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return TypeNumber, formatFloat(rv.Float(), 32), nil
	case reflect.Float64:
		return TypeNumber, FormatFloat(rv.Float()), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return TypeNull, "null", nil
		}
		return primitiveParts(rv.Elem().Interface())
	}
	return "", "", fmt.Errorf("%w: %T", ErrNonPrimitiveValue, v)
}

// FormatFloat formats f so that the result always contains a '.', which is
// how decoders tell floats from integers.
func FormatFloat(f float64) string {
	return formatFloat(f, 64)
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// DecodePrimitive decodes a primitive token back into a Go value.
//
// Numbers decode to int64 unless the payload contains a '.', in which case
// they decode to float64.
func DecodePrimitive(s string) (any, error) {
	typ, payload, err := splitPrimitive(s)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeString:
		return payload, nil
	case TypeBoolean:
		return payload == "true", nil
	case TypeNull:
		return nil, nil
	case TypeUndefined:
		return Undefined, nil
	case TypeSymbol:
		return NewSymbol(payload), nil
	case TypeNumber:
		n, err := ParseNumber(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPrimitiveType, s)
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidPrimitiveType, s)
}

// PrimitiveTypeOf returns the type tag of a primitive token without decoding it.
func PrimitiveTypeOf(s string) (PrimitiveType, error) {
	typ, _, err := splitPrimitive(s)
	return typ, err
}

func splitPrimitive(s string) (PrimitiveType, string, error) {
	rest, ok := strings.CutPrefix(s, primitivePrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPrimitiveType, s)
	}
	typ, payload, ok := strings.Cut(rest, ":")
	if !ok || !PrimitiveType(typ).Valid() {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPrimitiveType, s)
	}
	return PrimitiveType(typ), payload, nil
}

// ParseNumber parses a number payload. Payloads containing '.' parse as
// float64, others as int64, falling back to float64 for NaN, infinities and
// integers that overflow int64.
func ParseNumber(s string) (any, error) {
	if strings.Contains(s, ".") {
		return strconv.ParseFloat(s, 64)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	return strconv.ParseFloat(s, 64)
}
