package terminal

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/m4xw311/toolchat/agent"
	"github.com/m4xw311/toolchat/attachment"
	"github.com/m4xw311/toolchat/llm"
	"github.com/m4xw311/toolchat/render"
	"github.com/m4xw311/toolchat/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

// recordingClient answers "ok" and remembers the prompt of each turn.
type recordingClient struct {
	prompts []session.Message
	fail    map[int]error
}

func (c *recordingClient) Stream(ctx context.Context, req llm.Request, onText func(string)) (*session.Message, error) {
	c.prompts = append(c.prompts, req.Messages[len(req.Messages)-1])
	if err := c.fail[len(c.prompts)]; err != nil {
		return nil, err
	}
	onText("ok")
	return &session.Message{Role: session.RoleAssistant, Content: "ok"}, nil
}

type harness struct {
	client *recordingClient
	out    *bytes.Buffer
	ctrl   *Controller
}

func newHarness(lines ...string) *harness {
	client := &recordingClient{fail: map[int]error{}}
	out := &bytes.Buffer{}
	input := strings.Join(lines, "\n")
	if len(lines) > 0 {
		input += "\n"
	}
	return &harness{
		client: client,
		out:    out,
		ctrl: &Controller{
			In:       NewScannerReader(strings.NewReader(input), nil),
			Out:      render.NewPlain(out),
			Agent:    &agent.Runner{Client: client, Log: zerolog.Nop()},
			Resolver: &attachment.Resolver{Log: zerolog.Nop()},
			Log:      zerolog.Nop(),
		},
	}
}

func (h *harness) run(t *testing.T) session.History {
	t.Helper()
	hist, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)
	return hist
}

func TestPromptThenQuit(t *testing.T) {
	h := newHarness("hello", "/quit", "never sent")
	hist := h.run(t)

	require.Len(t, h.client.prompts, 1)
	assert.Equal(t, session.Message{Role: session.RoleUser, Content: "hello"}, h.client.prompts[0])
	require.Len(t, hist, 2)
	assert.Equal(t, "ok", hist[1].Content)
}

func TestHelpThenPrompt(t *testing.T) {
	h := newHarness("/help", "hi", "/quit")
	h.run(t)

	for _, cmd := range commands {
		assert.Contains(t, h.out.String(), cmd.token+" - "+cmd.help)
	}
	require.Len(t, h.client.prompts, 1)
	assert.Equal(t, "hi", h.client.prompts[0].Content)
}

func TestLinesAreNotTrimmed(t *testing.T) {
	h := newHarness("  spaced out\t", "/Quit")
	h.run(t)

	require.Len(t, h.client.prompts, 2)
	assert.Equal(t, "  spaced out\t", h.client.prompts[0].Content)
	// Tokens are case-sensitive.
	assert.Equal(t, "/Quit", h.client.prompts[1].Content)
}

func TestMultiline(t *testing.T) {
	h := newHarness("/multi", "a", "b", "/multi", "/quit")
	h.run(t)

	require.Len(t, h.client.prompts, 1)
	assert.Equal(t, "a\nb", h.client.prompts[0].Content)
}

func TestMultilineRejectsOtherCommands(t *testing.T) {
	h := newHarness("/multi", "a", "/image", "b", "/quit", "/multi")
	h.run(t)

	require.Len(t, h.client.prompts, 1)
	assert.Equal(t, "a\nb", h.client.prompts[0].Content)
	assert.Contains(t, h.out.String(), "/image is not available in multiline mode")
	assert.Contains(t, h.out.String(), "/quit is not available in multiline mode")
}

func TestEOFInsideMultilineDropsPending(t *testing.T) {
	h := newHarness("/multi", "a", "b")
	hist := h.run(t)

	assert.Empty(t, h.client.prompts)
	assert.Empty(t, hist)
}

func TestEOFTerminatesSilently(t *testing.T) {
	h := newHarness("one")
	hist, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, hist, 2)
	assert.NotContains(t, h.out.String(), "Error")
}

func TestAttachmentsAccumulateUntilText(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("notes.json", []byte(`{"milk":true}`), 0644))

	h := newHarness(
		"/image", "https://example.com/cat.png",
		"/audio", "https://example.com/a.mp3",
		"/document", "https://example.com/d.pdf",
		"/file", "notes.json",
		"what are these?",
		"/quit",
	)
	h.run(t)

	require.Len(t, h.client.prompts, 1)
	assert.Equal(t, []session.PromptPart{
		session.ImageRef("https://example.com/cat.png"),
		session.AudioRef("https://example.com/a.mp3"),
		session.DocumentRef("https://example.com/d.pdf"),
		session.Binary([]byte(`{"milk":true}`), "application/json"),
		session.Text("what are these?"),
	}, h.client.prompts[0].Parts)
}

func TestFailedFileAttachmentAddsNothing(t *testing.T) {
	t.Chdir(t.TempDir())
	h := newHarness("/file", "missing.bin", "hi", "/quit")
	h.run(t)

	require.Len(t, h.client.prompts, 1)
	assert.Equal(t, "hi", h.client.prompts[0].Content)
	assert.Empty(t, h.client.prompts[0].Parts)
	assert.Contains(t, h.out.String(), "missing.bin")
}

func TestTurnErrorKeepsHistory(t *testing.T) {
	h := newHarness("first", "second", "third", "/quit")
	h.client.fail[2] = stderrors.New(strings.Repeat("x", 2000))
	hist := h.run(t)

	require.Len(t, h.client.prompts, 3)
	require.Len(t, hist, 4)
	assert.Equal(t, "first", hist[0].Content)
	assert.Equal(t, "third", hist[2].Content)

	// The second turn saw the first turn's history; the failure left it intact.
	assert.Contains(t, h.out.String(), "Error: ")
	assert.NotContains(t, h.out.String(), strings.Repeat("x", errorWidth+1))
}

func TestPreloadedHistoryIsSent(t *testing.T) {
	h := newHarness("again", "/quit")
	h.ctrl.History = session.History{
		{Role: session.RoleUser, Content: "before"},
		{Role: session.RoleAssistant, Content: "earlier answer"},
	}
	hist := h.run(t)

	require.Len(t, hist, 4)
	assert.Equal(t, "before", hist[0].Content)
	assert.Equal(t, "again", hist[2].Content)
}

func TestSaveHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.json")
	h := newHarness("hello", "/save", path, "/quit")
	hist := h.run(t)

	loaded, err := session.Load(path)
	require.NoError(t, err)
	assert.Equal(t, hist, loaded)
}

func TestSaveErrorsAreReported(t *testing.T) {
	h := newHarness("/save", "", "/save", filepath.Join(t.TempDir(), "missing", "dir", "chat.json"), "hi", "/quit")
	hist := h.run(t)

	assert.Contains(t, h.out.String(), "Enter a file path to save history to")
	assert.Contains(t, h.out.String(), "Failed to save")
	assert.Len(t, hist, 2)
}

func TestToolEventsAreRendered(t *testing.T) {
	client := &toolClient{}
	h := newHarness("use a tool", "/quit")
	h.ctrl.Agent = &agent.Runner{Client: client, Log: zerolog.Nop()}
	h.run(t)

	assert.Contains(t, h.out.String(), "Tool lookup {\"q\":\"x\"}")
	assert.Contains(t, h.out.String(), "done")
}

type toolClient struct{ calls int }

func (c *toolClient) Stream(ctx context.Context, req llm.Request, onText func(string)) (*session.Message, error) {
	c.calls++
	if c.calls == 1 {
		return &session.Message{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{
			{ToolCallID: "c1", Name: "lookup", Args: map[string]any{"q": "x"}},
		}}, nil
	}
	onText("done")
	return &session.Message{Role: session.RoleAssistant, Content: "done"}, nil
}

func TestEveryCommandIsInLookup(t *testing.T) {
	assert.Len(t, lookup, len(commands))
	for _, tok := range []string{"/multi", "/image", "/audio", "/document", "/file", "/save", "/help", "/quit"} {
		assert.Contains(t, lookup, tok)
	}
}
