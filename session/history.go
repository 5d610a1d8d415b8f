package session

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/m4xw311/toolchat/errors"
)

// FormatVersion is written into every saved history file.
const FormatVersion = 1

type historyFile struct {
	Version  int     `json:"version"`
	Messages History `json:"messages"`
}

// Save writes history to path as indented JSON.
func Save(path string, history History) error {
	if history == nil {
		history = History{}
	}
	data, err := json.MarshalIndent(historyFile{Version: FormatVersion, Messages: history}, "", "  ")
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to serialize history"), errors.KindPersistence)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Mark(errors.Wrapf(err, "could not write history file %s", path), errors.KindPersistence)
	}
	return nil
}

// Load reads a history file written by Save. A bare JSON array of
// messages is accepted as well.
func Load(path string) (History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "could not read history file %s", path), errors.KindPersistence)
	}
	h, err := Decode(data)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "could not parse history file %s", path), errors.KindPersistence)
	}
	return h, nil
}

// Decode parses serialized history and validates its shape. Both the
// envelope and the bare array are decoded strictly: unknown fields and
// trailing content are errors.
func Decode(data []byte) (History, error) {
	trimmed := bytes.TrimSpace(data)
	var h History
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := decodeStrict(trimmed, &h); err != nil {
			return nil, err
		}
	default:
		var f historyFile
		if err := decodeStrict(trimmed, &f); err != nil {
			return nil, err
		}
		if f.Version != FormatVersion {
			return nil, errors.New("unsupported history version %d", f.Version)
		}
		h = f.Messages
	}
	if h == nil {
		h = History{}
	}
	for i, m := range h {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleTool:
		default:
			return nil, errors.New("message %d has invalid role %q", i, m.Role)
		}
		if m.Role == RoleTool && len(m.ToolCalls) != 1 {
			return nil, errors.New("tool message %d must reference exactly one tool call", i)
		}
	}
	return h, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected content after history document")
	}
	return nil
}
