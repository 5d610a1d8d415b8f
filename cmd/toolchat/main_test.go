package main

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/m4xw311/toolchat/errors"
	"github.com/m4xw311/toolchat/session"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

// isolate runs the command in an empty project with no user config.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	return dir
}

func execute(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEchoSession(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "chat.json")

	out, err := execute(t, "hello\n/save\n"+path+"\n/quit\n", "--model", "echo:test", "--no-markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "ToolChat - Ctrl-D or /quit to quit")
	assert.Contains(t, out, "You said: hello")

	h, err := session.Load(path)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "hello", h[0].Content)
}

func TestResumeHistory(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "prior.json")
	require.NoError(t, session.Save(path, session.History{
		{Role: session.RoleUser, Content: "before"},
		{Role: session.RoleAssistant, Content: "You said: before"},
	}))
	saved := filepath.Join(dir, "after.json")

	_, err := execute(t, "again\n/save\n"+saved+"\n", "--llm", "echo", "--markdown=false", "--history", path)
	require.NoError(t, err)

	h, err := session.Load(saved)
	require.NoError(t, err)
	assert.Len(t, h, 4)
}

func TestMalformedHistoryIsFatal(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"messages":[{"role":"robot"}]}`), 0644))

	_, err := execute(t, "", "--llm", "echo", "--history", path)
	require.Error(t, err)
	assert.True(t, errors.Fatal(err))
}

func TestBadToolConfigIsFatal(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tools.yml"), []byte("mcpServers:\n  broken:\n    type: stdio\n"), 0644))

	_, err := execute(t, "hi\n", "--llm", "echo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindConfig))
}

func TestUnknownProvider(t *testing.T) {
	isolate(t)
	_, err := execute(t, "", "--model", "nope:model")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindConfig))
}

func TestDotenvIsLoaded(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.env"), []byte("TOOLCHAT_LLM=echo\n"), 0644))
	t.Setenv("TOOLCHAT_LLM", "")
	os.Unsetenv("TOOLCHAT_LLM")

	out, err := execute(t, "ping\n", "-e", "custom.env", "--model", "m", "--no-markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "You said: ping")
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
}

func TestLoadConfigFlags(t *testing.T) {
	isolate(t)
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"-s", "be brief, and kind", "-s", "answer in English",
		"--enable-tool-server", "fetch", "--enable-tool-server", "git",
		"--tools", "servers.yml",
		"--markdown=false",
	}))

	// The command's viper instance is internal; rebuild one bound to the same flags.
	v := viper.New()
	require.NoError(t, v.BindPFlags(cmd.Flags()))
	cfg, err := loadConfig(v, cmd.Flags())
	require.NoError(t, err)

	assert.Equal(t, []string{"be brief, and kind", "answer in English"}, cfg.SystemPrompts)
	assert.Equal(t, []string{"fetch", "git"}, cfg.EnabledServers)
	assert.Equal(t, "servers.yml", cfg.ToolsFile)
	assert.False(t, cfg.MarkdownEnabled())
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"none", nil, 0, ""},
		{"config", errors.Mark(stderrors.New("bad tools file"), errors.KindConfig), 1, "Error (config): bad tools file"},
		{"connection", errors.Mark(stderrors.New("handshake"), errors.KindConnection), 1, "Error (connection): handshake"},
		{"persistence", errors.Mark(stderrors.New("corrupt"), errors.KindPersistence), 1, "Error (persistence): corrupt"},
		{"unclassified", stderrors.New("read failed"), 2, "Error: read failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, exitCode(tc.err))
			if tc.err != nil {
				assert.Equal(t, tc.msg, errorMessage(tc.err))
			}
		})
	}
}

func TestStartupErrorsExitWithOne(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"role":"user"}] trailing`), 0644))

	_, err := execute(t, "", "--llm", "echo", "--history", path)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, errorMessage(err), "Error (persistence)")
}
