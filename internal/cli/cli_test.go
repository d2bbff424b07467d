package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appellation/rejects/backend/memory"
	"github.com/appellation/rejects/store"
	"github.com/appellation/rejects/token"
)

// run executes the CLI against b and returns stdout.
func run(t *testing.T, b store.Backend, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(&RootOptions{backend: b})
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "rejects", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"get", "set", "upsert", "delete", "incr", "keys", "size", "expire"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	tests := map[string]string{
		"format":  "json",
		"backend": "bolt",
		"path":    "rejects.db",
		"table":   "rejects",
		"arrays":  "hash",
	}
	for name, def := range tests {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, def, flag.DefValue, name)
	}
}

func TestInvalidFlags(t *testing.T) {
	tests := [][]string{
		{"--format", "xml", "size", "a"},
		{"--backend", "sqlite", "size", "a"},
		{"--arrays", "list", "size", "a"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args[:2], "="), func(t *testing.T) {
			_, err := run(t, memory.New(), args...)
			assert.Error(t, err)
		})
	}
}

func TestSetGet(t *testing.T) {
	b := memory.New()

	_, err := run(t, b, "set", "guild", `{name: xd, n: 2, members: {id: {nick: meme}}, tags: [a, b]}`)
	require.NoError(t, err)

	out, err := run(t, b, "get", "guild")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"xd","n":2,"members":{"id":{"nick":"meme"}},"tags":["a","b"]}`, out)

	out, err = run(t, b, "get", "guild", "--depth", "0")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"xd","n":2,"members":"ref:obj:guild.members","tags":"ref:arr:guild.tags"}`, out)

	out, err = run(t, b, "get", "guild.tags", "--array")
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, out)
}

func TestGet_Missing(t *testing.T) {
	out, err := run(t, memory.New(), "get", "nope")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)
}

func TestGet_YAML(t *testing.T) {
	b := memory.New()
	_, err := run(t, b, "upsert", "a", `{"b": {"c": true}}`)
	require.NoError(t, err)

	out, err := run(t, b, "--format", "yaml", "get", "a")
	require.NoError(t, err)
	assert.Equal(t, "b:\n  c: true\n", out)
}

func TestUpsert_Merges(t *testing.T) {
	b := memory.New()
	_, err := run(t, b, "upsert", "a", `{x: 1}`)
	require.NoError(t, err)
	_, err = run(t, b, "upsert", "a.y", `{z: 2}`)
	require.NoError(t, err)

	out, err := run(t, b, "get", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1,"y":{"z":2}}`, out)
}

func TestUpsert_Errors(t *testing.T) {
	b := memory.New()

	_, err := run(t, b, "upsert", "a", `1`)
	assert.ErrorIs(t, err, store.ErrNotComposite)

	_, err = run(t, b, "upsert", "a", `{x: [`)
	assert.Error(t, err)
}

func TestIncr(t *testing.T) {
	b := memory.New()
	_, err := run(t, b, "set", "a", `{n: 2}`)
	require.NoError(t, err)

	out, err := run(t, b, "incr", "a.n")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, err = run(t, b, "incr", "a.n", "4")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)

	_, err = run(t, b, "incr", "a.n", "lots")
	assert.Error(t, err)

	_, err = run(t, b, "incr", "a")
	assert.ErrorIs(t, err, store.ErrNoFieldInKey)
}

func TestKeysSizeDelete(t *testing.T) {
	b := memory.New()
	_, err := run(t, b, "set", "a", `{x: 1, y: {z: 2}}`)
	require.NoError(t, err)

	out, err := run(t, b, "keys", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `["x","y"]`, out)

	out, err = run(t, b, "size", "a")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, err = run(t, b, "delete", "a")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, err = run(t, b, "keys", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestExpire(t *testing.T) {
	b := memory.New()
	_, err := run(t, b, "set", "a", `{y: {z: 2}}`)
	require.NoError(t, err)

	out, err := run(t, b, "expire", "a", "1h")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	_, err = run(t, b, "expire", "a", "soon")
	assert.Error(t, err)
}

func TestPrintable(t *testing.T) {
	v := printable(map[string]any{
		"u":    token.Undefined,
		"sym":  token.NewSymbol("x"),
		"list": []any{token.Undefined, "a"},
	})
	assert.Equal(t, map[string]any{
		"sym":  "Symbol(x)",
		"list": []any{nil, "a"},
	}, v)
}

func TestParseValue(t *testing.T) {
	v, err := parseValue(`{1: a, b: [true, null, 2.5]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"1": "a",
		"b": []any{true, nil, 2.5},
	}, v)
}
