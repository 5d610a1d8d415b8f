package terminal

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
)

// ErrInterrupt is returned by a LineReader when the user presses Ctrl-C at
// a prompt. The current line is discarded.
var ErrInterrupt = errors.New("interrupt")

// LineReader reads one line of input after showing prompt. It returns
// io.EOF when input is exhausted.
type LineReader interface {
	ReadLine(prompt string) (string, error)
}

// ReadlineReader reads from an interactive terminal with line editing and
// persistent input history.
type ReadlineReader struct {
	rl *readline.Instance
}

// NewReadlineReader opens the terminal. historyFile may be empty.
func NewReadlineReader(historyFile string) (*ReadlineReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, err
	}
	return &ReadlineReader{rl: rl}, nil
}

func (r *ReadlineReader) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupt
	}
	return line, err
}

func (r *ReadlineReader) Close() error { return r.rl.Close() }

// ScannerReader reads lines from a plain stream such as a pipe.
type ScannerReader struct {
	sc  *bufio.Scanner
	out io.Writer
}

// NewScannerReader reads from in. Prompts are written to out when it is
// not nil.
func NewScannerReader(in io.Reader, out io.Writer) *ScannerReader {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(scanRawLines)
	return &ScannerReader{sc: sc, out: out}
}

// scanRawLines splits on '\n' only and keeps everything else, including a
// trailing '\r', as part of the line.
func scanRawLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (r *ScannerReader) ReadLine(prompt string) (string, error) {
	if r.out != nil {
		fmt.Fprint(r.out, prompt)
	}
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.sc.Text(), nil
}
