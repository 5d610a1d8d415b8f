// Package render draws streamed model output in the terminal.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/m4xw311/toolchat/agent"
	"golang.org/x/term"
)

// Renderer consumes the text of one reply as it streams in.
type Renderer interface {
	// Write appends a chunk of reply text and updates the display.
	Write(chunk string)
	// ToolCall prints a tool invocation line below the text so far.
	ToolCall(name, args string)
	// Finish ends the reply and returns all text written since the last Finish.
	Finish() string

	Info(format string, a ...any)
	Warn(format string, a ...any)
	Error(format string, a ...any)
}

var (
	dim    = color.New(color.Faint).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

// Drain renders one turn: text chunks and tool events in the order they
// arrive, until both channels are closed. A nil channel counts as closed.
// It returns r.Finish().
func Drain(r Renderer, text <-chan string, calls <-chan agent.ToolEvent) string {
	for text != nil || calls != nil {
		select {
		case s, ok := <-text:
			if !ok {
				text = nil
				continue
			}
			r.Write(s)
		case ev, ok := <-calls:
			if !ok {
				calls = nil
				continue
			}
			r.ToolCall(ev.Name, ev.Args)
		}
	}
	return r.Finish()
}

// New returns a markdown renderer when markdown is set, a plain one otherwise.
func New(out io.Writer, markdown bool) Renderer {
	if markdown {
		w, h := Size()
		return NewMarkdown(out, w, h)
	}
	return NewPlain(out)
}

// Size is the terminal width and height, or 80x0 when stdout is not a
// terminal. A height of 0 means unbounded.
func Size() (width, height int) {
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w, h
	}
	return 80, 0
}

// status writes the tool and diagnostic lines shared by both renderers.
type status struct {
	out io.Writer
}

func (s status) toolLine(name, args string) {
	fmt.Fprintln(s.out, dim(fmt.Sprintf("Tool %s %s", name, args)))
}

func (s status) Info(format string, a ...any) {
	fmt.Fprintln(s.out, cyan(fmt.Sprintf(format, a...)))
}

func (s status) Warn(format string, a ...any) {
	fmt.Fprintln(s.out, yellow(fmt.Sprintf(format, a...)))
}

func (s status) Error(format string, a ...any) {
	fmt.Fprintln(s.out, red(fmt.Sprintf(format, a...)))
}

// Plain prints chunks verbatim as they arrive.
type Plain struct {
	status
	buf     strings.Builder
	pending bool // text written since the last newline
}

func NewPlain(out io.Writer) *Plain {
	return &Plain{status: status{out: out}}
}

func (p *Plain) Write(chunk string) {
	if chunk == "" {
		return
	}
	io.WriteString(p.out, chunk)
	p.buf.WriteString(chunk)
	p.pending = !strings.HasSuffix(chunk, "\n")
}

func (p *Plain) ToolCall(name, args string) {
	p.endLine()
	p.toolLine(name, args)
}

func (p *Plain) Finish() string {
	p.endLine()
	s := p.buf.String()
	p.buf.Reset()
	return s
}

func (p *Plain) endLine() {
	if p.pending {
		io.WriteString(p.out, "\n")
		p.pending = false
	}
}
