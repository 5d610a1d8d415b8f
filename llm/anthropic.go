package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m4xw311/toolchat/errors"
	"github.com/m4xw311/toolchat/session"
	"github.com/m4xw311/toolchat/tools"
)

// AnthropicLLMClient is a client for the Anthropic API.
type AnthropicLLMClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicLLMClient creates a new AnthropicLLMClient.
// It requires the ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicLLMClient(ctx context.Context, modelName string, maxTokens int64) (*AnthropicLLMClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.Mark(errors.New("ANTHROPIC_API_KEY environment variable not set"), errors.KindConfig)
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicLLMClient{
		client:    &client,
		model:     modelName,
		maxTokens: maxTokens,
	}, nil
}

// Stream sends the conversation to Anthropic and streams the reply.
func (a *AnthropicLLMClient) Stream(ctx context.Context, req Request, onText func(string)) (*session.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  convertMessagesToAnthropicMessages(req.Messages),
	}
	if system := strings.Join(req.System, "\n\n"); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, toolParam := range convertToolsToAnthropicTools(req.Tools) {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, errors.Wrapf(err, "failed to accumulate Anthropic stream")
		}
		if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				onText(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to stream message from Anthropic")
	}

	return processAnthropicResponse(&message)
}

// convertMessagesToAnthropicMessages converts our internal message format to Anthropic's format.
func convertMessagesToAnthropicMessages(history session.History) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	toolResultGroups(history, func(msg session.Message, results []session.Message) {
		switch msg.Role {
		case session.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropicUserBlocks(msg)...))
		case session.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Args
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ToolCallID, args, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case session.RoleTool:
			// All results answering one assistant turn travel in a single user message.
			var blocks []anthropic.ContentBlockParamUnion
			for _, r := range results {
				blocks = append(blocks, anthropic.NewToolResultBlock(toolCallID(r), r.Content, r.IsError))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	})
	return out
}

func anthropicUserBlocks(msg session.Message) []anthropic.ContentBlockParamUnion {
	if len(msg.Parts) == 0 {
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}
	}
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range msg.Parts {
		switch {
		case p.Kind == session.PartImageURL:
			blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: p.URL}))
		case p.Kind == session.PartDocURL:
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.URLPDFSourceParam{URL: p.URL}))
		case p.Kind == session.PartBinary && isImage(p.MediaType):
			blocks = append(blocks, anthropic.NewImageBlockBase64(baseMediaType(p.MediaType), base64.StdEncoding.EncodeToString(p.Data)))
		case p.Kind == session.PartBinary && isPDF(p.MediaType):
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: base64.StdEncoding.EncodeToString(p.Data)}))
		default:
			blocks = append(blocks, anthropic.NewTextBlock(PartText(p)))
		}
	}
	return blocks
}

// convertToolsToAnthropicTools converts tool definitions to Anthropic's tool format.
func convertToolsToAnthropicTools(defs []tools.Definition) []anthropic.ToolParam {
	if len(defs) == 0 {
		return nil
	}

	var anthropicTools []anthropic.ToolParam
	for _, d := range defs {
		schema := anthropic.ToolInputSchemaParam{Properties: d.Schema["properties"]}
		if schema.Properties == nil {
			schema.Properties = map[string]any{}
		}
		extra := map[string]any{}
		for k, v := range d.Schema {
			if k != "type" && k != "properties" {
				extra[k] = v
			}
		}
		if len(extra) > 0 {
			schema.ExtraFields = extra
		}
		anthropicTools = append(anthropicTools, anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: schema,
		})
	}
	return anthropicTools
}

// processAnthropicResponse converts an Anthropic API response into our internal session.Message format.
func processAnthropicResponse(resp *anthropic.Message) (*session.Message, error) {
	var responseContent string
	var toolCalls []session.ToolCall

	for _, content := range resp.Content {
		switch c := content.AsAny().(type) {
		case anthropic.TextBlock:
			responseContent += c.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			if len(c.Input) > 0 {
				if err := json.Unmarshal(c.Input, &args); err != nil {
					return nil, errors.Wrapf(err, "failed to unmarshal tool call input")
				}
			}
			toolCalls = append(toolCalls, session.ToolCall{
				ToolCallID: c.ID,
				Name:       c.Name,
				Args:       args,
			})
		}
	}

	return &session.Message{
		Role:      session.RoleAssistant,
		Content:   responseContent,
		ToolCalls: toolCalls,
	}, nil
}
