package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/m4xw311/toolchat/errors"
	"github.com/m4xw311/toolchat/session"
)

// BedrockLLMClient is a client for the Anthropic models on AWS Bedrock.
type BedrockLLMClient struct {
	client    *bedrockruntime.Client
	modelID   string
	maxTokens int64
}

// NewBedrockLLMClient creates a new BedrockLLMClient.
// It requires AWS credentials to be configured in the environment.
func NewBedrockLLMClient(ctx context.Context, modelID string, maxTokens int64) (*BedrockLLMClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to load AWS config"), errors.KindConfig)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &BedrockLLMClient{
		client:    bedrockruntime.NewFromConfig(cfg),
		modelID:   modelID,
		maxTokens: maxTokens,
	}, nil
}

// Stream sends the conversation to the Anthropic model via Bedrock and streams the reply.
func (b *BedrockLLMClient) Stream(ctx context.Context, req Request, onText func(string)) (*session.Message, error) {
	body, err := createAnthropicRequest(req, b.maxTokens)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Anthropic request")
	}

	resp, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}
	stream := resp.GetStream()
	defer stream.Close()

	acc := &bedrockAccumulator{onText: onText}
	for event := range stream.Events() {
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		if err := acc.add(chunk.Value.Bytes); err != nil {
			return nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to stream message from Bedrock")
	}
	return acc.message()
}

// bedrockEvent is the subset of the Anthropic streaming event we read.
type bedrockEvent struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
		Text string `json:"text"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type bedrockBlock struct {
	kind  string
	id    string
	name  string
	text  strings.Builder
	input strings.Builder
}

// bedrockAccumulator rebuilds a message from Anthropic stream events.
type bedrockAccumulator struct {
	onText func(string)
	blocks []*bedrockBlock
}

func (a *bedrockAccumulator) block(i int) *bedrockBlock {
	for len(a.blocks) <= i {
		a.blocks = append(a.blocks, &bedrockBlock{})
	}
	return a.blocks[i]
}

func (a *bedrockAccumulator) add(data []byte) error {
	var ev bedrockEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return errors.Wrapf(err, "failed to unmarshal Bedrock event")
	}
	switch ev.Type {
	case "content_block_start":
		blk := a.block(ev.Index)
		blk.kind = ev.ContentBlock.Type
		blk.id = ev.ContentBlock.ID
		blk.name = ev.ContentBlock.Name
		if ev.ContentBlock.Text != "" {
			blk.text.WriteString(ev.ContentBlock.Text)
			a.onText(ev.ContentBlock.Text)
		}
	case "content_block_delta":
		blk := a.block(ev.Index)
		switch ev.Delta.Type {
		case "text_delta":
			if blk.kind == "" {
				blk.kind = "text"
			}
			blk.text.WriteString(ev.Delta.Text)
			if ev.Delta.Text != "" {
				a.onText(ev.Delta.Text)
			}
		case "input_json_delta":
			blk.input.WriteString(ev.Delta.PartialJSON)
		}
	case "error":
		if ev.Error != nil {
			return errors.New("Bedrock API error: %s: %s", ev.Error.Type, ev.Error.Message)
		}
		return errors.New("Bedrock API error")
	}
	return nil
}

func (a *bedrockAccumulator) message() (*session.Message, error) {
	msg := &session.Message{Role: session.RoleAssistant}
	for i, blk := range a.blocks {
		switch blk.kind {
		case "text":
			msg.Content += blk.text.String()
		case "tool_use":
			args := map[string]any{}
			if raw := blk.input.String(); raw != "" {
				if err := json.Unmarshal([]byte(raw), &args); err != nil {
					return nil, errors.Wrapf(err, "failed to decode arguments for tool %s", blk.name)
				}
			}
			id := blk.id
			if id == "" {
				id = fmt.Sprintf("call_%d_%s", i, blk.name)
			}
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{ToolCallID: id, Name: blk.name, Args: args})
		}
	}
	return msg, nil
}

// createAnthropicRequest creates the request body for Anthropic models on Bedrock.
func createAnthropicRequest(req Request, maxTokens int64) ([]byte, error) {
	request := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"messages":          convertMessagesToAnthropicFormat(req.Messages),
	}
	if system := strings.Join(req.System, "\n\n"); system != "" {
		request["system"] = system
	}
	if len(req.Tools) > 0 {
		var defs []map[string]any
		for _, d := range req.Tools {
			schema := d.Schema
			if schema == nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			defs = append(defs, map[string]any{
				"name":         d.Name,
				"description":  d.Description,
				"input_schema": schema,
			})
		}
		request["tools"] = defs
	}
	return json.Marshal(request)
}

// convertMessagesToAnthropicFormat converts our internal message format to
// the raw Anthropic messages JSON shape.
func convertMessagesToAnthropicFormat(history session.History) []map[string]any {
	var out []map[string]any
	toolResultGroups(history, func(msg session.Message, results []session.Message) {
		switch msg.Role {
		case session.RoleAssistant:
			var content []map[string]any
			if msg.Content != "" {
				content = append(content, map[string]any{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Args
				if args == nil {
					args = map[string]any{}
				}
				content = append(content, map[string]any{
					"type":  "tool_use",
					"id":    tc.ToolCallID,
					"name":  tc.Name,
					"input": args,
				})
			}
			if len(content) > 0 {
				out = append(out, map[string]any{"role": "assistant", "content": content})
			}
		case session.RoleTool:
			var content []map[string]any
			for _, r := range results {
				content = append(content, map[string]any{
					"type":        "tool_result",
					"tool_use_id": toolCallID(r),
					"content":     r.Content,
					"is_error":    r.IsError,
				})
			}
			out = append(out, map[string]any{"role": "user", "content": content})
		default:
			out = append(out, map[string]any{"role": "user", "content": bedrockUserContent(msg)})
		}
	})
	return out
}

func bedrockUserContent(msg session.Message) []map[string]any {
	if len(msg.Parts) == 0 {
		return []map[string]any{{"type": "text", "text": msg.Content}}
	}
	var content []map[string]any
	for _, p := range msg.Parts {
		switch {
		case p.Kind == session.PartBinary && isImage(p.MediaType):
			content = append(content, map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": baseMediaType(p.MediaType),
					"data":       base64.StdEncoding.EncodeToString(p.Data),
				},
			})
		case p.Kind == session.PartBinary && isPDF(p.MediaType):
			content = append(content, map[string]any{
				"type": "document",
				"source": map[string]any{
					"type":       "base64",
					"media_type": "application/pdf",
					"data":       base64.StdEncoding.EncodeToString(p.Data),
				},
			})
		default:
			// Bedrock does not fetch URLs itself.
			content = append(content, map[string]any{"type": "text", "text": PartText(p)})
		}
	}
	return content
}
