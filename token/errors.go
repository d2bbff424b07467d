package token

import "errors"

var (
	// ErrNonPrimitiveValue is returned when encoding a value that is not a primitive.
	ErrNonPrimitiveValue = errors.New("rejects: value is not a primitive")

	// ErrInvalidPrimitiveType is returned when a primitive token is malformed
	// or names an unknown type.
	ErrInvalidPrimitiveType = errors.New("rejects: invalid primitive type")

	// ErrInvalidReference is returned when a reference token is malformed.
	ErrInvalidReference = errors.New("rejects: invalid reference")

	// ErrUnrecognized is returned by ParseField for strings that match neither
	// token grammar nor a bare number.
	ErrUnrecognized = errors.New("rejects: unrecognized field value")

	// ErrNotNumeric is returned when incrementing a field that does not hold a number.
	ErrNotNumeric = errors.New("rejects: field value is not numeric")

	// ErrNotInteger is returned when an integer increment targets a float field.
	ErrNotInteger = errors.New("rejects: field value is not an integer")
)
