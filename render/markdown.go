package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Markdown re-renders the reply as markdown on every chunk, redrawing the
// lines it printed last time in place.
type Markdown struct {
	status
	md *glamour.TermRenderer

	height int // terminal rows; 0 means unbounded

	all    strings.Builder // every chunk since the last Finish
	region strings.Builder // text of the live region
	lines  int             // lines the live region occupies on screen
	// frozen is set once the region is taller than the terminal. Rows that
	// scrolled off cannot be reached by the cursor, so only the tail is
	// redrawn from then on.
	frozen bool
}

// NewMarkdown returns a Markdown renderer wrapping at width columns on a
// terminal height rows tall.
func NewMarkdown(out io.Writer, width, height int) *Markdown {
	m := &Markdown{status: status{out: out}, height: height}
	if width > 120 {
		width = 120
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err == nil {
		m.md = r
	}
	return m
}

func (m *Markdown) Write(chunk string) {
	if chunk == "" {
		return
	}
	m.all.WriteString(chunk)
	m.region.WriteString(chunk)
	m.redraw()
}

func (m *Markdown) redraw() {
	out := m.render(m.region.String())
	n := strings.Count(out, "\n")

	if m.frozen {
		// The last printed line may still be growing; rewrite it and append.
		rows := strings.SplitAfter(out, "\n")
		start := min(max(m.lines-1, 0), n)
		if m.lines > 0 {
			io.WriteString(m.out, "\x1b[1F\x1b[J")
		}
		io.WriteString(m.out, strings.Join(rows[start:], ""))
		m.lines = max(n, m.lines)
		return
	}

	if m.lines > 0 {
		// Move to the start of the live region and clear to end of screen.
		fmt.Fprintf(m.out, "\x1b[%dF\x1b[J", m.lines)
	}
	io.WriteString(m.out, out)
	m.lines = n
	if m.height > 0 && m.lines >= m.height {
		m.frozen = true
	}
}

func (m *Markdown) render(text string) string {
	var out string
	if m.md != nil {
		if r, err := m.md.Render(text); err == nil {
			out = r
		}
	}
	if out == "" {
		out = text
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

// ToolCall freezes the live region and prints the tool line under it.
func (m *Markdown) ToolCall(name, args string) {
	m.closeRegion()
	m.toolLine(name, args)
}

func (m *Markdown) Finish() string {
	m.closeRegion()
	s := m.all.String()
	m.all.Reset()
	return s
}

func (m *Markdown) closeRegion() {
	m.region.Reset()
	m.lines = 0
	m.frozen = false
}
