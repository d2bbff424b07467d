// Package token implements the wire encoding used for every field value
// persisted by rejects.
//
// A stored field holds exactly one of:
//
//   - a primitive token, "raw:<type>:<payload>", where type is one of
//     string, number, boolean, null, undefined or symbol
//   - a reference token, "ref:<arr|obj>:<key>", naming another record
//   - a bare numeric value, written by a foreign client using the backend's
//     native increment
//
// Both token grammars are bit-exact contracts shared with every other reader
// and writer of the same backend.
//
// # Decoding
//
// Use [ParseField] to decode a stored string once into a [Field]. Code that
// consumes a Field switches on [Field.Kind] and never inspects the raw string
// again.
//
// # Known non-round-trip cases
//
// Decoding a symbol token yields a fresh [*Symbol] with the stored name. It is
// never identical to the symbol that was encoded.
package token
