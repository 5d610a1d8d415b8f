package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/m4xw311/toolchat/errors"
	"github.com/m4xw311/toolchat/session"
	"github.com/m4xw311/toolchat/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAILLMClient is a client for the OpenAI Chat Completion API.
type OpenAILLMClient struct {
	client *openai.Client
	model  string
}

// NewOpenAILLMClient creates a new OpenAILLMClient. It requires the OPENAI_API_KEY environment variable to be set.
// It also supports OPENAI_BASE_URL for custom API endpoints.
func NewOpenAILLMClient(ctx context.Context, modelName string) (*OpenAILLMClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.Mark(errors.New("OPENAI_API_KEY environment variable not set"), errors.KindConfig)
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	// The &c is required, do not replace and just use c
	c := openai.NewClient(options...)
	return &OpenAILLMClient{client: &c, model: modelName}, nil
}

// Stream sends the conversation to OpenAI and streams the reply.
func (o *OpenAILLMClient) Stream(ctx context.Context, req Request, onText func(string)) (*session.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertMessagesToOpenaiContent(req.System, req.Messages),
		Tools:    convertToolsToOpenAITools(req.Tools),
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onText(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to stream completion from OpenAI")
	}

	return processOpenaiResponse(&acc.ChatCompletion)
}

// processOpenaiResponse converts an OpenAI API response into our internal session.Message format.
func processOpenaiResponse(resp *openai.ChatCompletion) (*session.Message, error) {
	if len(resp.Choices) == 0 {
		return &session.Message{Role: session.RoleAssistant}, nil
	}

	choice := resp.Choices[0].Message
	msg := &session.Message{Role: session.RoleAssistant, Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		var toolArgs map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &toolArgs); err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal function call arguments from OpenAI")
			}
		}
		msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
			ToolCallID: tc.ID,
			Name:       tc.Function.Name,
			Args:       toolArgs,
		})
	}
	return msg, nil
}

// convertMessagesToOpenaiContent converts our internal message format to OpenAI's.
func convertMessagesToOpenaiContent(system []string, history session.History) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	if s := strings.Join(system, "\n\n"); s != "" {
		chatMessages = append(chatMessages, openai.SystemMessage(s))
	}
	for _, msg := range history {
		switch msg.Role {
		case session.RoleAssistant:
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				argsBytes, err := json.Marshal(tc.Args)
				if err != nil || tc.Args == nil {
					argsBytes = []byte("{}")
				}
				assistantMessage.ToolCalls = append(assistantMessage.ToolCalls, openai.ChatCompletionMessageToolCallUnion{
					ID:   tc.ToolCallID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      tc.Name,
						Arguments: string(argsBytes),
					},
				})
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case session.RoleTool:
			chatMessages = append(chatMessages, openai.ToolMessage(msg.Content, toolCallID(msg)))
		default:
			if len(msg.Parts) == 0 {
				chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
				continue
			}
			chatMessages = append(chatMessages, openai.UserMessage(openaiUserParts(msg.Parts)))
		}
	}
	return chatMessages
}

func openaiUserParts(parts []session.PromptPart) []openai.ChatCompletionContentPartUnionParam {
	var out []openai.ChatCompletionContentPartUnionParam
	for i, p := range parts {
		switch {
		case p.Kind == session.PartImageURL:
			out = append(out, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: p.URL}))
		case p.Kind == session.PartBinary && isImage(p.MediaType):
			out = append(out, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL(p)}))
		case p.Kind == session.PartBinary && isAudio(p.MediaType) && audioFormat(p.MediaType) != "":
			out = append(out, openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
				Data:   base64.StdEncoding.EncodeToString(p.Data),
				Format: audioFormat(p.MediaType),
			}))
		case p.Kind == session.PartBinary && isPDF(p.MediaType):
			out = append(out, openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
				FileData: openai.String(dataURL(p)),
				Filename: openai.String(fmt.Sprintf("attachment-%d.pdf", i+1)),
			}))
		default:
			out = append(out, openai.TextContentPart(PartText(p)))
		}
	}
	return out
}

func audioFormat(mediaType string) string {
	switch baseMediaType(mediaType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	}
	return ""
}

// convertToolsToOpenAITools converts tool definitions to the OpenAI Tool format.
func convertToolsToOpenAITools(defs []tools.Definition) []openai.ChatCompletionToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, d := range defs {
		params := openai.FunctionParameters(d.Schema)
		if params == nil {
			params = openai.FunctionParameters{"type": "object", "properties": map[string]any{}}
		}
		openAITools = append(openAITools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        d.Name,
			Description: openai.String(d.Description),
			Parameters:  params,
		}))
	}
	return openAITools
}
