package token

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

type namedInt int

func TestEncodePrimitive(t *testing.T) {
	i := 7
	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{"string", "hello", "raw:string:hello"},
		{"empty string", "", "raw:string:"},
		{"string with colons", "a:b:c", "raw:string:a:b:c"},
		{"int", 42, "raw:number:42"},
		{"negative int64", int64(-3), "raw:number:-3"},
		{"uint8", uint8(200), "raw:number:200"},
		{"named int", namedInt(5), "raw:number:5"},
		{"float", 1.5, "raw:number:1.5"},
		{"integral float", 2.0, "raw:number:2.0"},
		{"float32", float32(0.25), "raw:number:0.25"},
		{"json number", json.Number("12"), "raw:number:12"},
		{"true", true, "raw:boolean:true"},
		{"false", false, "raw:boolean:false"},
		{"nil", nil, "raw:null:null"},
		{"undefined", Undefined, "raw:undefined:undefined"},
		{"symbol", NewSymbol("tag"), "raw:symbol:tag"},
		{"pointer", &i, "raw:number:7"},
		{"nil pointer", (*int)(nil), "raw:null:null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EncodePrimitive(tt.value)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestEncodePrimitive_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"map", map[string]any{}},
		{"slice", []any{1}},
		{"func", func() {}},
		{"struct", struct{ A int }{1}},
		{"channel", make(chan int)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodePrimitive(tt.value)
			if !errors.Is(err, ErrNonPrimitiveValue) {
				t.Errorf("expected ErrNonPrimitiveValue, got %v", err)
			}
			if IsPrimitiveValue(tt.value) {
				t.Error("expected IsPrimitiveValue to be false")
			}
		})
	}
}

func TestEncodePrimitive_InvalidJSONNumber(t *testing.T) {
	for _, n := range []json.Number{"abc", "", "1e"} {
		t.Run(string(n), func(t *testing.T) {
			_, err := EncodePrimitive(n)
			if !errors.Is(err, ErrInvalidPrimitiveType) {
				t.Errorf("expected ErrInvalidPrimitiveType, got %v", err)
			}
		})
	}
}

func TestDecodePrimitive(t *testing.T) {
	tests := []struct {
		token    string
		expected any
	}{
		{"raw:string:hello", "hello"},
		{"raw:string:0", "0"},
		{"raw:string:", ""},
		{"raw:number:0", int64(0)},
		{"raw:number:-12", int64(-12)},
		{"raw:number:1.5", 1.5},
		{"raw:number:2.0", 2.0},
		{"raw:boolean:true", true},
		{"raw:boolean:false", false},
		{"raw:boolean:yes", false},
		{"raw:null:null", nil},
		{"raw:undefined:undefined", Undefined},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			result, err := DecodePrimitive(tt.token)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %#v, got %#v", tt.expected, result)
			}
		})
	}
}

func TestDecodePrimitive_DistinguishesZeroFromString(t *testing.T) {
	n, _ := DecodePrimitive(MustEncodePrimitive(0))
	s, _ := DecodePrimitive(MustEncodePrimitive("0"))
	if n == s {
		t.Errorf("expected 0 and \"0\" to decode differently, both gave %#v", n)
	}
}

func TestDecodePrimitive_NullVersusUndefined(t *testing.T) {
	null, _ := DecodePrimitive(MustEncodePrimitive(nil))
	undef, _ := DecodePrimitive(MustEncodePrimitive(Undefined))
	if null != nil {
		t.Errorf("expected nil, got %#v", null)
	}
	if undef != Undefined {
		t.Errorf("expected Undefined, got %#v", undef)
	}
}

func TestDecodePrimitive_Symbol(t *testing.T) {
	orig := NewSymbol("id")
	v, err := DecodePrimitive(MustEncodePrimitive(orig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sym, ok := v.(*Symbol)
	if !ok {
		t.Fatalf("expected *Symbol, got %T", v)
	}
	if sym.Name != "id" {
		t.Errorf("expected name 'id', got %q", sym.Name)
	}
	if sym == orig {
		t.Error("expected decoded symbol to be a fresh atom")
	}
}

func TestDecodePrimitive_SpecialFloats(t *testing.T) {
	v, err := DecodePrimitive(MustEncodePrimitive(math.Inf(-1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f, ok := v.(float64); !ok || !math.IsInf(f, -1) {
		t.Errorf("expected -Inf, got %#v", v)
	}

	v, err = DecodePrimitive(MustEncodePrimitive(math.NaN()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f, ok := v.(float64); !ok || !math.IsNaN(f) {
		t.Errorf("expected NaN, got %#v", v)
	}
}

func TestDecodePrimitive_Invalid(t *testing.T) {
	for _, s := range []string{
		"raw:bigint:1",
		"raw:string",
		"raw:",
		"string:hello",
		"raw:number:abc",
	} {
		t.Run(s, func(t *testing.T) {
			_, err := DecodePrimitive(s)
			if !errors.Is(err, ErrInvalidPrimitiveType) {
				t.Errorf("expected ErrInvalidPrimitiveType, got %v", err)
			}
		})
	}
}

func TestIsPrimitive(t *testing.T) {
	if !IsPrimitive("raw:string:x") {
		t.Error("expected raw token to be primitive")
	}
	if IsPrimitive("ref:obj:x") || IsPrimitive("hello") {
		t.Error("expected non-raw strings not to be primitive")
	}
}

func TestEncodeReference(t *testing.T) {
	if got := EncodeReference("guild.members", Object); got != "ref:obj:guild.members" {
		t.Errorf("unexpected token %q", got)
	}
	if got := ArrayRef("guild.list").String(); got != "ref:arr:guild.list" {
		t.Errorf("unexpected token %q", got)
	}
}

func TestDecodeReference(t *testing.T) {
	tests := []struct {
		token    string
		expected Reference
	}{
		{"ref:obj:guild", Reference{Kind: Object, Key: "guild"}},
		{"ref:arr:guild.list", Reference{Kind: Array, Key: "guild.list"}},
		{"ref:obj:ns:guild.a", Reference{Kind: Object, Key: "ns:guild.a"}},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			r, err := DecodeReference(tt.token)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, r)
			}
			if r.String() != tt.token {
				t.Errorf("expected round trip to %q, got %q", tt.token, r.String())
			}
		})
	}
}

func TestDecodeReference_Invalid(t *testing.T) {
	for _, s := range []string{
		"ref:obj:",
		"ref:set:key",
		"ref:obj",
		"raw:obj:key",
		"ref:obj:a..b",
	} {
		t.Run(s, func(t *testing.T) {
			_, err := DecodeReference(s)
			if !errors.Is(err, ErrInvalidReference) {
				t.Errorf("expected ErrInvalidReference, got %v", err)
			}
		})
	}
}

func TestParseField(t *testing.T) {
	f, err := ParseField("raw:number:5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind() != FieldPrimitive || f.Value() != int64(5) {
		t.Errorf("unexpected field %v %#v", f.Kind(), f.Value())
	}

	f, err = ParseField("ref:arr:a.b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, ok := f.Reference()
	if f.Kind() != FieldReference || !ok || r != ArrayRef("a.b") {
		t.Errorf("unexpected field %v %+v", f.Kind(), r)
	}

	f, err = ParseField("12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind() != FieldScalar || f.Value() != int64(12) {
		t.Errorf("unexpected field %v %#v", f.Kind(), f.Value())
	}
	if f.String() != "12" {
		t.Errorf("expected stored form to be kept, got %q", f.String())
	}
}

func TestParseField_Unrecognized(t *testing.T) {
	for _, s := range []string{"hello", "", "NaN", "true"} {
		_, err := ParseField(s)
		if !errors.Is(err, ErrUnrecognized) {
			t.Errorf("ParseField(%q): expected ErrUnrecognized, got %v", s, err)
		}
	}
}

func TestIncrementInt(t *testing.T) {
	tests := []struct {
		name     string
		stored   string
		exists   bool
		delta    int64
		expected int64
	}{
		{"missing field", "", false, 3, 3},
		{"token", "raw:number:5", true, 3, 8},
		{"bare", "10", true, -4, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, n, err := IncrementInt(tt.stored, tt.exists, tt.delta)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, n)
			}
			if stored != MustEncodePrimitive(tt.expected) {
				t.Errorf("unexpected stored value %q", stored)
			}
		})
	}
}

func TestIncrementInt_Errors(t *testing.T) {
	if _, _, err := IncrementInt("raw:number:1.5", true, 1); !errors.Is(err, ErrNotInteger) {
		t.Errorf("expected ErrNotInteger, got %v", err)
	}
	if _, _, err := IncrementInt("raw:string:5", true, 1); !errors.Is(err, ErrNotNumeric) {
		t.Errorf("expected ErrNotNumeric, got %v", err)
	}
	if _, _, err := IncrementInt("hello", true, 1); !errors.Is(err, ErrNotNumeric) {
		t.Errorf("expected ErrNotNumeric, got %v", err)
	}
	if _, _, err := IncrementInt("raw:number:9223372036854775807", true, 1); !errors.Is(err, ErrNotInteger) {
		t.Errorf("expected overflow to fail with ErrNotInteger, got %v", err)
	}
}

func TestIncrementFloat(t *testing.T) {
	stored, f, err := IncrementFloat("raw:number:5", true, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != 5.5 || stored != "raw:number:5.5" {
		t.Errorf("unexpected result %v %q", f, stored)
	}

	stored, f, err = IncrementFloat("raw:number:1.5", true, 1.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != 3 || stored != "raw:number:3.0" {
		t.Errorf("unexpected result %v %q", f, stored)
	}

	if _, _, err := IncrementFloat("raw:boolean:true", true, 1.5); !errors.Is(err, ErrNotNumeric) {
		t.Errorf("expected ErrNotNumeric, got %v", err)
	}
}
