package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/m4xw311/toolchat/errors"
	"github.com/m4xw311/toolchat/session"
	"github.com/m4xw311/toolchat/tools"
)

// Request is one model invocation.
type Request struct {
	System   []string
	Messages session.History
	Tools    []tools.Definition
}

// Client streams one model response. onText receives text deltas as they
// arrive; the returned message is the complete assistant message, with any
// tool calls the model requested.
type Client interface {
	Stream(ctx context.Context, req Request, onText func(delta string)) (*session.Message, error)
}

// ParseModel splits "provider:model". A bare model name uses fallback as
// the provider.
func ParseModel(s, fallback string) (provider, model string) {
	if p, m, ok := strings.Cut(s, ":"); ok && p != "" && !strings.Contains(p, "/") {
		return p, m
	}
	return fallback, s
}

// New creates the client for provider.
func New(ctx context.Context, provider, model string, maxTokens int64) (Client, error) {
	switch provider {
	case "openai":
		return NewOpenAILLMClient(ctx, model)
	case "anthropic":
		return NewAnthropicLLMClient(ctx, model, maxTokens)
	case "gemini", "google":
		return NewGeminiLLMClient(ctx, model)
	case "bedrock":
		return NewBedrockLLMClient(ctx, model, maxTokens)
	case "echo", "mock":
		return &EchoClient{}, nil
	default:
		return nil, errors.Mark(errors.New("unknown llm provider '%s'", provider), errors.KindConfig)
	}
}

// EchoClient answers without a network. It repeats the last user message
// back in word-sized chunks, which is enough to exercise streaming.
type EchoClient struct{}

func (e *EchoClient) Stream(ctx context.Context, req Request, onText func(string)) (*session.Message, error) {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == session.RoleUser {
			last = describeUser(req.Messages[i])
			break
		}
	}
	reply := fmt.Sprintf("You said: %s", last)
	for _, chunk := range splitKeepSpace(reply) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		onText(chunk)
	}
	return &session.Message{Role: session.RoleAssistant, Content: reply}, nil
}

func describeUser(m session.Message) string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var parts []string
	for _, p := range m.Parts {
		parts = append(parts, PartText(p))
	}
	return strings.Join(parts, "\n")
}

func splitKeepSpace(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if unicode.IsSpace(r) && i > start {
			out = append(out, s[start:i])
			start = i
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
