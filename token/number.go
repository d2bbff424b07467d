package token

import (
	"fmt"
	"math"
	"strconv"
)

// storedNumber reads the numeric value of a stored field. A missing field
// counts as integer zero.
func storedNumber(stored string, exists bool) (any, error) {
	if !exists {
		return int64(0), nil
	}
	if IsPrimitive(stored) {
		typ, err := PrimitiveTypeOf(stored)
		if err != nil {
			return nil, err
		}
		if typ != TypeNumber {
			return nil, fmt.Errorf("%w: %q", ErrNotNumeric, stored)
		}
		return DecodePrimitive(stored)
	}
	if n, ok := parseBareNumber(stored); ok {
		return n, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotNumeric, stored)
}

// IncrementInt adds delta to a stored integer field and returns the new
// stored representation along with the new value. Backends call it inside
// whatever atomic section they use for field increments.
func IncrementInt(stored string, exists bool, delta int64) (string, int64, error) {
	cur, err := storedNumber(stored, exists)
	if err != nil {
		return "", 0, err
	}
	n, ok := cur.(int64)
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", ErrNotInteger, stored)
	}
	sum := n + delta
	if (delta > 0 && sum < n) || (delta < 0 && sum > n) {
		return "", 0, fmt.Errorf("%w: increment overflows", ErrNotInteger)
	}
	return primitivePrefix + string(TypeNumber) + ":" + strconv.FormatInt(sum, 10), sum, nil
}

// IncrementFloat adds delta to a stored numeric field. The result is always
// stored as a float.
func IncrementFloat(stored string, exists bool, delta float64) (string, float64, error) {
	cur, err := storedNumber(stored, exists)
	if err != nil {
		return "", 0, err
	}
	var f float64
	switch x := cur.(type) {
	case int64:
		f = float64(x)
	case float64:
		f = x
	}
	sum := f + delta
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return "", 0, fmt.Errorf("%w: increment would produce %v", ErrNotNumeric, sum)
	}
	return primitivePrefix + string(TypeNumber) + ":" + FormatFloat(sum), sum, nil
}
