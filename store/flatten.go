package store

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/appellation/rejects/internal/keypath"
	"github.com/appellation/rejects/token"
)

// writePlan is the full set of record writes produced by one upsert.
type writePlan struct {
	hashes map[string]map[string]string
	sets   map[string][]string
	order  []string
}

func newWritePlan() *writePlan {
	return &writePlan{
		hashes: make(map[string]map[string]string),
		sets:   make(map[string][]string),
	}
}

func (p *writePlan) touch(key string) {
	_, inHash := p.hashes[key]
	_, inSet := p.sets[key]
	if !inHash && !inSet {
		p.order = append(p.order, key)
	}
}

func (p *writePlan) hashSet(key, field, value string) {
	p.touch(key)
	fields, ok := p.hashes[key]
	if !ok {
		fields = make(map[string]string)
		p.hashes[key] = fields
	}
	fields[field] = value
}

func (p *writePlan) setAdd(key string, member string) {
	p.touch(key)
	p.sets[key] = append(p.sets[key], member)
}

// records returns the number of records the plan writes.
func (p *writePlan) records() int {
	return len(p.order)
}

// queue adds one command per record to b.
func (p *writePlan) queue(b Batch) {
	for _, key := range p.order {
		if fields, ok := p.hashes[key]; ok {
			b.HashSetFields(key, fields)
		}
		if members, ok := p.sets[key]; ok {
			b.SetAdd(key, members...)
		}
	}
}

// handle identifies a map or slice by the memory it refers to.
type handle struct {
	kind reflect.Kind
	ptr  uintptr
	len  int
}

// flattener decomposes one value into a writePlan.
type flattener struct {
	plan   *writePlan
	arrays ArrayEncoding
	newID  func() string

	// path holds the containers entered along the current recursion path.
	path []handle
}

// flatten builds the write plan for storing value at key. Dotted keys are
// rewritten into a nested write at their root.
func (s *Store) flatten(key string, value any) (*writePlan, error) {
	if !keypath.Valid(key) {
		return nil, fmt.Errorf("%w: %q", ErrKeyParse, key)
	}
	root, value := keypath.Nest(key, value)

	rv, kind, ok := composite(value)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotComposite, key)
	}

	f := &flattener{
		plan:   newWritePlan(),
		arrays: s.config.ArrayEncoding,
		newID:  s.config.IDGenerator,
	}
	if err := f.record(root, rv, kind); err != nil {
		return nil, err
	}
	return f.plan, nil
}

func (f *flattener) enter(key string, rv reflect.Value) (bool, error) {
	h, ok := identity(rv)
	if !ok {
		return false, nil
	}
	for _, seen := range f.path {
		if seen == h {
			return false, fmt.Errorf("%w at %q", ErrCircularStructure, key)
		}
	}
	f.path = append(f.path, h)
	return true, nil
}

func (f *flattener) leave() {
	f.path = f.path[:len(f.path)-1]
}

// record writes the container rv as the record at key.
func (f *flattener) record(key string, rv reflect.Value, kind token.Kind) error {
	entered, err := f.enter(key, rv)
	if err != nil {
		return err
	}
	if entered {
		defer f.leave()
	}

	if kind == token.Array && f.arrays == ArraySet {
		return f.setRecord(key, rv)
	}

	return each(rv, func(name string, elem reflect.Value) error {
		enc, err := f.field(key, name, elem)
		if err != nil {
			return err
		}
		f.plan.hashSet(key, name, enc)
		return nil
	})
}

// setRecord writes an array as set members.
func (f *flattener) setRecord(key string, rv reflect.Value) error {
	for i := 0; i < rv.Len(); i++ {
		v := rv.Index(i).Interface()
		if _, _, ok := composite(v); !ok {
			member, err := encodeLeaf(v)
			if err != nil {
				return fmt.Errorf("%q[%d]: %w", key, i, err)
			}
			f.plan.setAdd(key, member)
			continue
		}
		member, err := f.field(key, f.newID(), rv.Index(i))
		if err != nil {
			return err
		}
		f.plan.setAdd(key, member)
	}
	return nil
}

// field encodes one field of the record at parent, recursing into composite
// values.
func (f *flattener) field(parent, name string, elem reflect.Value) (string, error) {
	v := elem.Interface()
	if ref, ok := asReference(v); ok {
		if err := validReference(ref); err != nil {
			return "", fmt.Errorf("%q field %q: %w", parent, name, err)
		}
		return ref.String(), nil
	}

	crv, kind, ok := composite(v)
	if !ok {
		enc, err := token.EncodePrimitive(v)
		if err != nil {
			return "", fmt.Errorf("%q field %q: %w", parent, name, err)
		}
		return enc, nil
	}

	if name == "" || strings.Contains(name, keypath.Separator) {
		return "", fmt.Errorf("%w: field %q of %q cannot hold a nested value", ErrKeyParse, name, parent)
	}
	child := keypath.Join(parent, name)
	if err := f.record(child, crv, kind); err != nil {
		return "", err
	}
	return token.EncodeReference(child, kind), nil
}

// encodeLeaf encodes a non-composite value: an explicit reference or a
// primitive.
func encodeLeaf(v any) (string, error) {
	if ref, ok := asReference(v); ok {
		if err := validReference(ref); err != nil {
			return "", err
		}
		return ref.String(), nil
	}
	return token.EncodePrimitive(v)
}

// validReference holds caller-supplied references to the rules
// token.DecodeReference applies on read.
func validReference(ref token.Reference) error {
	if ref.Kind != token.Object && ref.Kind != token.Array {
		return fmt.Errorf("%w: kind %d", token.ErrInvalidReference, ref.Kind)
	}
	if !keypath.Valid(ref.Key) {
		return fmt.Errorf("%w: bad key %q", token.ErrInvalidReference, ref.Key)
	}
	return nil
}

func asReference(v any) (token.Reference, bool) {
	switch r := v.(type) {
	case token.Reference:
		return r, true
	case *token.Reference:
		if r != nil {
			return *r, true
		}
	}
	return token.Reference{}, false
}

// composite reports whether v is an object or array and returns its
// dereferenced reflect value.
func composite(v any) (reflect.Value, token.Kind, bool) {
	switch v.(type) {
	case nil, *token.Symbol, token.UndefinedType, token.Reference, *token.Reference:
		return reflect.Value{}, 0, false
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}, 0, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		return rv, token.Object, true
	case reflect.Slice, reflect.Array:
		return rv, token.Array, true
	}
	return reflect.Value{}, 0, false
}

func identity(rv reflect.Value) (handle, bool) {
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return handle{}, false
		}
		return handle{kind: reflect.Map, ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.Len() == 0 {
			return handle{}, false
		}
		return handle{kind: reflect.Slice, ptr: rv.Pointer(), len: rv.Len()}, true
	}
	return handle{}, false
}

// each calls fn for every field of an object (in key order) or every element
// of an array (named by index).
func each(rv reflect.Value, fn func(name string, elem reflect.Value) error) error {
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: map key type %s", token.ErrNonPrimitiveValue, rv.Type().Key())
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			if err := fn(k.String(), rv.MapIndex(k)); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := fn(strconv.Itoa(i), rv.Index(i)); err != nil {
				return err
			}
		}
	}
	return nil
}
