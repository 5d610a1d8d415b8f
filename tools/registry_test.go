package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m4xw311/toolchat/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tools.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadSpecsMissingFile(t *testing.T) {
	specs, err := LoadSpecs(filepath.Join(t.TempDir(), "nope.yml"), nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, specs)

	specs, err = LoadSpecs("", []string{"x"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestLoadSpecsMapping(t *testing.T) {
	path := writeConfig(t, `
mcpServers:
  fetch:
    server:
      command: uvx
      args: [mcp-server-fetch]
      env: {LOG: debug}
  remote:
    type: http
    server:
      url: https://tools.example.com/mcp
      headers:
        Authorization: Bearer abc
  git:
    type: stdio
    server:
      command: git-mcp
`)
	specs, err := LoadSpecs(path, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []Spec{
		{Name: "fetch", Kind: KindStdio, Command: "uvx", Args: []string{"mcp-server-fetch"}, Env: map[string]string{"LOG": "debug"}},
		{Name: "remote", Kind: KindHTTP, URL: "https://tools.example.com/mcp", Headers: map[string]string{"Authorization": "Bearer abc"}},
		{Name: "git", Kind: KindStdio, Command: "git-mcp"},
	}, specs)
}

func TestLoadSpecsEnabledFilter(t *testing.T) {
	path := writeConfig(t, `
mcpServers:
  a: {server: {command: a}}
  b: {server: {command: b}}
  c: {server: {command: c}}
`)
	specs, err := LoadSpecs(path, []string{"c", "a", "zzz"}, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "a", specs[0].Name)
	assert.Equal(t, "c", specs[1].Name)

	specs, err = LoadSpecs(path, []string{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, specs, 3)
}

func TestParseSpecsAlternateShapes(t *testing.T) {
	specs, err := ParseSpecs([]byte(`
local: {server: {command: ./tool}}
`))
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "local", specs[0].Name)

	specs, err = ParseSpecs([]byte(`
- name: one
  server: {command: one}
- name: two
  type: http
  server: {url: http://localhost:9000/mcp}
`))
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, KindHTTP, specs[1].Kind)

	for _, empty := range []string{"", "mcpServers:\n", "{}"} {
		specs, err = ParseSpecs([]byte(empty))
		require.NoError(t, err, empty)
		assert.Empty(t, specs, empty)
	}
}

func TestLoadSpecsConfigErrors(t *testing.T) {
	cases := map[string]string{
		"missing server block": "mcpServers:\n  a: {type: stdio}\n",
		"unknown type":         "mcpServers:\n  a: {type: grpc, server: {command: x}}\n",
		"stdio without cmd":    "mcpServers:\n  a: {server: {args: [x]}}\n",
		"http without url":     "mcpServers:\n  a: {type: http, server: {headers: {A: b}}}\n",
		"unnamed sequence":     "- server: {command: x}\n",
		"duplicate names":      "- {name: a, server: {command: x}}\n- {name: a, server: {command: y}}\n",
		"scalar document":      "just text\n",
		"malformed yaml":       "mcpServers: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			specs, err := LoadSpecs(writeConfig(t, body), nil, zerolog.Nop())
			assert.Nil(t, specs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.KindConfig))
		})
	}
}

func TestMissingServerBlockNamesEntry(t *testing.T) {
	_, err := ParseSpecs([]byte("mcpServers:\n  broken: {type: http}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'broken' has no server block")
}
