package tools

import (
	"context"
	"slices"
	"sync"

	"github.com/m4xw311/toolchat/errors"
	"github.com/rs/zerolog"
)

// Dialer opens a provider for one spec.
type Dialer func(ctx context.Context, spec Spec) (Provider, error)

// ToolSet is the aggregated tool list of every connected provider. It owns
// the provider connections and closes them in reverse order of acquisition.
//
// Tool names are not deduplicated: when two providers expose the same name
// both definitions are listed and calls route to the provider connected
// last. Keeping names unique is the providers' responsibility.
type ToolSet struct {
	mu        sync.Mutex
	providers []Provider
	defs      []Definition
	routes    map[string]Provider
	closed    bool
	log       zerolog.Logger
}

// NewToolSet returns an empty tool set.
func NewToolSet(log zerolog.Logger) *ToolSet {
	return &ToolSet{routes: make(map[string]Provider), log: log}
}

// Connect dials every spec in order and collects its tools. Schemas are
// normalized as they are listed. If any provider fails, the ones already
// opened are closed and the error is returned.
func Connect(ctx context.Context, specs []Spec, dial Dialer, log zerolog.Logger) (*ToolSet, error) {
	ts := NewToolSet(log)
	for _, spec := range specs {
		p, err := dial(ctx, spec)
		if err != nil {
			return nil, ts.abort(errors.Wrapf(err, "failed to connect to tool server '%s'", spec.Name))
		}
		if err := ts.Add(ctx, p); err != nil {
			return nil, ts.abort(errors.Wrapf(err, "failed to list tools of '%s'", spec.Name))
		}
	}
	return ts, nil
}

func (ts *ToolSet) abort(err error) error {
	if cerr := ts.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return errors.Mark(err, errors.KindConnection)
}

// Add takes ownership of p, lists its tools and registers them. p is closed
// with the set even when listing fails.
func (ts *ToolSet) Add(ctx context.Context, p Provider) error {
	p = Normalize(p)

	ts.mu.Lock()
	if ts.closed {
		ts.mu.Unlock()
		return errors.Join(errors.New("tool set is closed"), p.Close())
	}
	ts.providers = append(ts.providers, p)
	ts.mu.Unlock()

	defs, err := p.ListTools(ctx)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, d := range defs {
		if d.Provider == "" {
			d.Provider = p.Name()
		}
		if prev, ok := ts.routes[d.Name]; ok {
			ts.log.Warn().Str("tool", d.Name).Str("previous", prev.Name()).Str("provider", p.Name()).Msg("tool name collision, last provider wins")
		}
		ts.routes[d.Name] = p
		ts.defs = append(ts.defs, d)
	}
	ts.log.Info().Str("server", p.Name()).Int("tools", len(defs)).Msg("tool server connected")
	return nil
}

// Definitions returns the tools of every provider, in provider order.
func (ts *ToolSet) Definitions() []Definition {
	if ts == nil {
		return nil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return slices.Clone(ts.defs)
}

// Call invokes a tool by name on the provider that registered it.
func (ts *ToolSet) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	if ts == nil {
		return "", errors.New("unknown tool '%s'", name)
	}
	ts.mu.Lock()
	p, ok := ts.routes[name]
	ts.mu.Unlock()
	if !ok {
		return "", errors.New("unknown tool '%s'", name)
	}
	return p.Call(ctx, name, args)
}

// Close releases every provider in reverse order of acquisition. It is safe
// to call more than once.
func (ts *ToolSet) Close() error {
	if ts == nil {
		return nil
	}
	ts.mu.Lock()
	if ts.closed {
		ts.mu.Unlock()
		return nil
	}
	ts.closed = true
	providers := ts.providers
	ts.providers = nil
	ts.mu.Unlock()

	var errs []error
	for i := len(providers) - 1; i >= 0; i-- {
		if err := providers[i].Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to close tool server '%s'", providers[i].Name()))
		}
	}
	return errors.Join(errs...)
}
