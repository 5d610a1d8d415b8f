package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
	"unicode/utf8"
)

// Kind classifies an error by how far it is allowed to propagate.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig is a malformed or incomplete configuration. Fatal.
	KindConfig
	// KindConnection is a tool provider that could not be reached. Fatal at startup.
	KindConnection
	// KindAttachment is an unreadable file or a failed fetch. Reported, part omitted.
	KindAttachment
	// KindTurn is any failure inside one model/tool turn. Reported, session continues.
	KindTurn
	// KindPersistence is a history save or load failure.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnection:
		return "connection"
	case KindAttachment:
		return "attachment"
	case KindTurn:
		return "turn"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// KindError tags an underlying error with a Kind.
type KindError struct {
	Kind Kind
	Err  error
}

func (e *KindError) Error() string { return e.Err.Error() }
func (e *KindError) Unwrap() error { return e.Err }

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

// Mark attaches kind to err. A nil err stays nil.
func Mark(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// KindOf returns the outermost kind attached to err, or KindUnknown.
func KindOf(err error) Kind {
	var ke *KindError
	if stderrors.As(err, &ke) {
		return ke.Kind
	}
	return KindUnknown
}

// Is reports whether err carries kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var ke *KindError
		if !stderrors.As(err, &ke) {
			return false
		}
		if ke.Kind == kind {
			return true
		}
		err = ke.Err
	}
	return false
}

// Fatal reports whether err must end the process: configuration,
// connection and persistence errors are fatal at startup.
func Fatal(err error) bool {
	switch KindOf(err) {
	case KindConfig, KindConnection, KindPersistence:
		return true
	}
	return false
}

// Join is errors.Join, re-exported so callers need a single errors import.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// Truncate bounds msg to max runes, appending an ellipsis when cut.
func Truncate(msg string, max int) string {
	if max <= 0 || utf8.RuneCountInString(msg) <= max {
		return msg
	}
	r := []rune(msg)
	return string(r[:max]) + "…"
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
