package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/appellation/rejects/token"
)

// parseValue decodes a command line value. YAML is a superset of JSON, so
// both are accepted.
func parseValue(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	return normalize(v), nil
}

// normalize rewrites the non-string mapping keys YAML allows.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	}
	return v
}

// printable converts stored values into values the encoders understand.
// Undefined object fields are dropped and undefined array elements print as
// null.
func printable(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			if _, ok := e.(token.UndefinedType); ok {
				continue
			}
			out[k] = printable(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = printable(e)
		}
		return out
	case token.UndefinedType:
		return nil
	case *token.Symbol:
		return x.String()
	}
	return v
}

// writeValue prints v in the requested format.
func writeValue(w io.Writer, format string, v any) error {
	v = printable(v)
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
}
