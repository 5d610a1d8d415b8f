package tools

import (
	"context"
	"maps"
)

// Definition is one callable tool as exposed to the model.
type Definition struct {
	Name        string
	Description string
	// Schema is the JSON schema object describing the tool's arguments.
	Schema map[string]any
	// Provider is the name of the tool server that owns the tool.
	Provider string
}

// Provider is a live connection to one tool server.
type Provider interface {
	Name() string
	ListTools(ctx context.Context) ([]Definition, error)
	Call(ctx context.Context, tool string, args map[string]any) (string, error)
	Close() error
}

// Normalize wraps p so that every listed tool schema is free of the
// "$schema" meta-key, which some model APIs reject.
func Normalize(p Provider) Provider {
	if _, ok := p.(normalized); ok {
		return p
	}
	return normalized{p}
}

type normalized struct {
	Provider
}

func (n normalized) ListTools(ctx context.Context) ([]Definition, error) {
	defs, err := n.Provider.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Definition, len(defs))
	for i, d := range defs {
		d.Schema = StripSchemaKey(d.Schema)
		out[i] = d
	}
	return out, nil
}

// StripSchemaKey returns a copy of schema without its top-level "$schema"
// key. All other keys are carried over unchanged.
func StripSchemaKey(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := maps.Clone(schema)
	delete(out, "$schema")
	return out
}
