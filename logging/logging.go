// Package logging configures the zerolog logger shared by the chat session.
//
// Diagnostics go to stderr (or a file) and default to warn level so they do
// not interleave with streamed model output on stdout.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/m4xw311/toolchat/errors"
	"github.com/rs/zerolog"
)

// Options holds logger configuration.
type Options struct {
	Level string // debug, info, warn, error
	File  string // optional log file path; stderr when empty
}

// Logger is a zerolog.Logger plus the file it may own.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New builds a logger from opts. An unknown level falls back to warn.
func New(opts Options) (*Logger, error) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.WarnLevel
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create log directory")
		}
		file, err = os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open log file")
		}
		w = file
	}

	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &Logger{Logger: l, file: file}, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
