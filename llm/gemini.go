package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/toolchat/errors"
	"github.com/m4xw311/toolchat/session"
	"github.com/m4xw311/toolchat/tools"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	client *genai.Client
	name   string
}

// NewGeminiLLMClient creates a new GeminiLLMClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiLLMClient(ctx context.Context, modelName string) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.Mark(errors.New("GEMINI_API_KEY environment variable not set"), errors.KindConfig)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiLLMClient{client: client, name: modelName}, nil
}

// Close releases the underlying gRPC connection.
func (g *GeminiLLMClient) Close() error { return g.client.Close() }

// Stream sends the conversation to Gemini and streams the reply.
func (g *GeminiLLMClient) Stream(ctx context.Context, req Request, onText func(string)) (*session.Message, error) {
	history := convertMessagesToGeminiContent(req.Messages)
	if len(history) == 0 {
		return nil, errors.New("no messages to send to Gemini")
	}

	model := g.client.GenerativeModel(g.name)
	model.Tools = convertToolsToGeminiTools(req.Tools)
	if s := strings.Join(req.System, "\n\n"); s != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(s)}}
	}

	// The last content is the new prompt.
	last := history[len(history)-1]
	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]

	msg := &session.Message{Role: session.RoleAssistant}
	iter := chatSession.SendMessageStream(ctx, last.Parts...)
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to stream message from Gemini")
		}
		if err := accumulateGeminiResponse(resp, msg, onText); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// accumulateGeminiResponse folds one streamed response into msg.
func accumulateGeminiResponse(resp *genai.GenerateContentResponse, msg *session.Message, onText func(string)) error {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			if v != "" {
				msg.Content += string(v)
				onText(string(v))
			}
		case genai.FunctionCall:
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
				// Gemini does not assign call IDs; synthesize stable ones.
				ToolCallID: fmt.Sprintf("call_%d_%s", len(msg.ToolCalls), v.Name),
				Name:       v.Name,
				Args:       v.Args,
			})
		default:
			return errors.New("unsupported part type in Gemini response: %T", v)
		}
	}
	return nil
}

// convertMessagesToGeminiContent converts our internal message format to Gemini's.
func convertMessagesToGeminiContent(history session.History) []*genai.Content {
	var contents []*genai.Content
	toolResultGroups(history, func(msg session.Message, results []session.Message) {
		switch msg.Role {
		case session.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			}
		case session.RoleTool:
			var parts []genai.Part
			for _, r := range results {
				key := "result"
				if r.IsError {
					key = "error"
				}
				parts = append(parts, genai.FunctionResponse{
					Name:     toolCallName(r),
					Response: map[string]any{key: r.Content},
				})
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: geminiUserParts(msg)})
		}
	})
	return contents
}

func geminiUserParts(msg session.Message) []genai.Part {
	if len(msg.Parts) == 0 {
		return []genai.Part{genai.Text(msg.Content)}
	}
	var parts []genai.Part
	for _, p := range msg.Parts {
		switch p.Kind {
		case session.PartText:
			parts = append(parts, genai.Text(p.Text))
		case session.PartBinary:
			parts = append(parts, genai.Blob{MIMEType: baseMediaType(p.MediaType), Data: p.Data})
		default:
			// Gemini only dereferences its own file URIs; pass other URLs as text.
			if strings.HasPrefix(p.URL, "https://generativelanguage.googleapis.com/") {
				parts = append(parts, genai.FileData{URI: p.URL})
			} else {
				parts = append(parts, genai.Text(PartText(p)))
			}
		}
	}
	return parts
}

// convertToolsToGeminiTools converts tool definitions to Gemini's FunctionDeclaration format.
func convertToolsToGeminiTools(defs []tools.Definition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, d := range defs {
		fd := &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
		}
		if props, ok := d.Schema["properties"].(map[string]any); ok && len(props) > 0 {
			fd.Parameters = convertSchemaToGemini(d.Schema)
		}
		funcDecls = append(funcDecls, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

// convertSchemaToGemini maps the JSON schema subset Gemini understands.
func convertSchemaToGemini(schema map[string]any) *genai.Schema {
	s := &genai.Schema{}
	switch t := schemaType(schema); t {
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
		if items, ok := schema["items"].(map[string]any); ok {
			s.Items = convertSchemaToGemini(items)
		} else {
			s.Items = &genai.Schema{Type: genai.TypeString}
		}
	default:
		s.Type = genai.TypeObject
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if format, ok := schema["format"].(string); ok && (format == "enum" || format == "date-time") {
		s.Format = format
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, e := range enum {
			if str, ok := e.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				s.Properties[name] = convertSchemaToGemini(pm)
			}
		}
	}
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if str, ok := r.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}
	return s
}

// schemaType reads "type", which may also be a list such as ["string","null"].
func schemaType(schema map[string]any) string {
	switch t := schema["type"].(type) {
	case string:
		return t
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	}
	return ""
}
