package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m4xw311/toolchat/errors"
	"github.com/m4xw311/toolchat/llm"
	"github.com/m4xw311/toolchat/session"
	"github.com/m4xw311/toolchat/tools"
	"github.com/rs/zerolog"
)

// DefaultMaxSteps bounds how many model calls one turn may make.
const DefaultMaxSteps = 20

// ToolCaller executes tools by name. *tools.ToolSet satisfies it.
type ToolCaller interface {
	Definitions() []tools.Definition
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

// ToolEvent announces a tool invocation.
type ToolEvent struct {
	Name string
	Args string // arguments as compact JSON
}

// TurnRequest is the input of one turn.
type TurnRequest struct {
	Prompt  []session.PromptPart
	History session.History
	Tools   ToolCaller
}

// Runner starts turns against a model client.
type Runner struct {
	Client   llm.Client
	System   []string
	MaxSteps int
	Log      zerolog.Logger
}

// Turn is a running turn.
type Turn struct {
	text  chan string
	calls chan ToolEvent
	done  chan struct{}

	history session.History
	err     error
}

// Text returns the stream of reply text deltas.
func (t *Turn) Text() <-chan string { return t.text }

// ToolCalls returns the stream of tool invocations.
func (t *Turn) ToolCalls() <-chan ToolEvent { return t.calls }

// Wait blocks until the turn finishes and returns the full message log.
// Both streams must be drained, or Wait blocks forever.
func (t *Turn) Wait() (session.History, error) {
	<-t.done
	return t.history, t.err
}

// Start begins a turn. Cancelling ctx aborts it.
func (r *Runner) Start(ctx context.Context, req TurnRequest) *Turn {
	t := &Turn{
		text:  make(chan string),
		calls: make(chan ToolEvent),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		h, err := r.run(ctx, t, req)
		close(t.text)
		close(t.calls)
		if err != nil {
			t.err = errors.Mark(err, errors.KindTurn)
			return
		}
		t.history = h
	}()
	return t
}

func (r *Runner) run(ctx context.Context, t *Turn, req TurnRequest) (session.History, error) {
	if r.Client == nil {
		return nil, errors.New("no model client configured")
	}
	maxSteps := r.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	h := req.History.Clone()
	h = append(h, userMessage(req.Prompt))

	var defs []tools.Definition
	if req.Tools != nil {
		defs = req.Tools.Definitions()
	}

	for step := 0; step < maxSteps; step++ {
		var sendErr error
		reply, err := r.Client.Stream(ctx, llm.Request{System: r.System, Messages: h, Tools: defs}, func(delta string) {
			if sendErr != nil {
				return
			}
			select {
			case t.text <- delta:
			case <-ctx.Done():
				sendErr = ctx.Err()
			}
		})
		if err == nil {
			err = sendErr
		}
		if err != nil {
			return nil, err
		}
		reply.Role = session.RoleAssistant
		h = append(h, *reply)

		if len(reply.ToolCalls) == 0 {
			return h, nil
		}

		for _, tc := range reply.ToolCalls {
			select {
			case t.calls <- ToolEvent{Name: tc.Name, Args: argsJSON(tc.Args)}:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			h = append(h, r.callTool(ctx, req.Tools, tc))
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	return nil, errors.New("model did not finish after %d steps", maxSteps)
}

// callTool runs one tool call. Failures are reported to the model as the
// tool's result rather than ending the turn.
func (r *Runner) callTool(ctx context.Context, tc ToolCaller, call session.ToolCall) session.Message {
	msg := session.Message{
		Role:      session.RoleTool,
		ToolCalls: []session.ToolCall{{ToolCallID: call.ToolCallID, Name: call.Name}},
	}
	if tc == nil {
		msg.Content = fmt.Sprintf("Error: unknown tool '%s'", call.Name)
		msg.IsError = true
		return msg
	}
	out, err := tc.Call(ctx, call.Name, call.Args)
	if err != nil {
		r.Log.Warn().Err(err).Str("tool", call.Name).Msg("tool call failed")
		msg.Content = "Error: " + err.Error()
		msg.IsError = true
		return msg
	}
	r.Log.Debug().Str("tool", call.Name).Int("bytes", len(out)).Msg("tool call finished")
	msg.Content = out
	return msg
}

func userMessage(parts []session.PromptPart) session.Message {
	msg := session.Message{Role: session.RoleUser}
	if len(parts) == 1 && parts[0].Kind == session.PartText {
		msg.Content = parts[0].Text
		return msg
	}
	msg.Parts = append([]session.PromptPart(nil), parts...)
	return msg
}

func argsJSON(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(b)
}
