package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/toolchat/session"
	"github.com/m4xw311/toolchat/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolTurn() session.History {
	return session.History{
		{Role: session.RoleUser, Content: "weather?"},
		{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{
			{ToolCallID: "c1", Name: "forecast", Args: map[string]any{"city": "Oslo"}},
			{ToolCallID: "c2", Name: "alerts"},
		}},
		{Role: session.RoleTool, Content: "rain", ToolCalls: []session.ToolCall{{ToolCallID: "c1", Name: "forecast"}}},
		{Role: session.RoleTool, Content: "Error: down", IsError: true, ToolCalls: []session.ToolCall{{ToolCallID: "c2", Name: "alerts"}}},
		{Role: session.RoleAssistant, Content: "Rain in Oslo."},
	}
}

func TestConvertMessagesToAnthropicMessages(t *testing.T) {
	out := convertMessagesToAnthropicMessages(toolTurn())
	require.Len(t, out, 4)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Len(t, out[1].Content, 2)
	assert.Equal(t, "user", string(out[2].Role))
	require.Len(t, out[2].Content, 2)
	require.NotNil(t, out[2].Content[0].OfToolResult)
	assert.Equal(t, "c1", out[2].Content[0].OfToolResult.ToolUseID)
	assert.Equal(t, "c2", out[2].Content[1].OfToolResult.ToolUseID)
}

func TestAnthropicUserBlocks(t *testing.T) {
	blocks := anthropicUserBlocks(session.Message{Role: session.RoleUser, Parts: []session.PromptPart{
		session.Text("describe"),
		session.ImageRef("https://example.com/a.png"),
		session.DocumentRef("https://example.com/a.pdf"),
		session.AudioRef("https://example.com/a.mp3"),
	}})
	require.Len(t, blocks, 4)
	assert.NotNil(t, blocks[0].OfText)
	assert.NotNil(t, blocks[1].OfImage)
	assert.NotNil(t, blocks[2].OfDocument)
	require.NotNil(t, blocks[3].OfText)
	assert.Equal(t, "[audio: https://example.com/a.mp3]", blocks[3].OfText.Text)
}

func TestConvertToolsToAnthropicTools(t *testing.T) {
	assert.Nil(t, convertToolsToAnthropicTools(nil))

	out := convertToolsToAnthropicTools([]tools.Definition{{
		Name:        "fetch",
		Description: "get",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"url": map[string]any{"type": "string"}},
			"required":   []any{"url"},
		},
	}, {Name: "noop"}})
	require.Len(t, out, 2)
	assert.Equal(t, "fetch", out[0].Name)
	assert.Equal(t, []any{"url"}, out[0].InputSchema.ExtraFields["required"])
	assert.Equal(t, map[string]any{}, out[1].InputSchema.Properties)
}

func TestConvertMessagesToOpenaiContent(t *testing.T) {
	out := convertMessagesToOpenaiContent([]string{"be brief"}, toolTurn())
	require.Len(t, out, 6)
	assert.NotNil(t, out[0].OfSystem)
	assert.NotNil(t, out[1].OfUser)
	require.NotNil(t, out[2].OfAssistant)
	assert.Len(t, out[2].OfAssistant.ToolCalls, 2)
	require.NotNil(t, out[3].OfTool)
	assert.Equal(t, "c1", out[3].OfTool.ToolCallID)
	assert.Equal(t, "c2", out[4].OfTool.ToolCallID)
}

func TestOpenaiUserParts(t *testing.T) {
	parts := openaiUserParts([]session.PromptPart{
		session.Text("hi"),
		session.ImageRef("https://example.com/a.png"),
		session.Binary([]byte("RIFF"), "audio/wav"),
		session.Binary([]byte("%PDF"), "application/pdf"),
		session.Binary([]byte("ogg"), "audio/ogg"),
	})
	require.Len(t, parts, 5)
	assert.NotNil(t, parts[0].OfText)
	assert.NotNil(t, parts[1].OfImageURL)
	assert.NotNil(t, parts[2].OfInputAudio)
	assert.NotNil(t, parts[3].OfFile)
	assert.NotNil(t, parts[4].OfText)
}

func TestAudioFormat(t *testing.T) {
	assert.Equal(t, "wav", audioFormat("audio/x-wav"))
	assert.Equal(t, "mp3", audioFormat("audio/mpeg; rate=44100"))
	assert.Equal(t, "", audioFormat("audio/ogg"))
}

func TestConvertToolsToOpenAITools(t *testing.T) {
	assert.Nil(t, convertToolsToOpenAITools(nil))
	out := convertToolsToOpenAITools([]tools.Definition{{Name: "noop"}})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfFunction)
	fn := out[0].OfFunction.Function
	assert.Equal(t, "noop", fn.Name)
	assert.Equal(t, "object", fn.Parameters["type"])
}

func TestConvertMessagesToGeminiContent(t *testing.T) {
	out := convertMessagesToGeminiContent(toolTurn())
	require.Len(t, out, 4)
	assert.Equal(t, "user", out[0].Role)
	assert.Equal(t, "model", out[1].Role)
	require.Len(t, out[1].Parts, 2)
	assert.Equal(t, genai.FunctionCall{Name: "forecast", Args: map[string]any{"city": "Oslo"}}, out[1].Parts[0])

	require.Len(t, out[2].Parts, 2)
	assert.Equal(t, genai.FunctionResponse{Name: "forecast", Response: map[string]any{"result": "rain"}}, out[2].Parts[0])
	assert.Equal(t, genai.FunctionResponse{Name: "alerts", Response: map[string]any{"error": "Error: down"}}, out[2].Parts[1])
	assert.Equal(t, genai.Text("Rain in Oslo."), out[3].Parts[0])
}

func TestAccumulateGeminiResponse(t *testing.T) {
	var streamed []string
	msg := &session.Message{Role: session.RoleAssistant}
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{
		genai.Text("Checking"),
		genai.FunctionCall{Name: "forecast", Args: map[string]any{"city": "Oslo"}},
	}}}}}
	require.NoError(t, accumulateGeminiResponse(resp, msg, func(s string) { streamed = append(streamed, s) }))
	require.NoError(t, accumulateGeminiResponse(&genai.GenerateContentResponse{}, msg, func(string) {}))

	assert.Equal(t, []string{"Checking"}, streamed)
	assert.Equal(t, "Checking", msg.Content)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_0_forecast", msg.ToolCalls[0].ToolCallID)
}

func TestConvertSchemaToGemini(t *testing.T) {
	s := convertSchemaToGemini(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"limit": map[string]any{"type": []any{"integer", "null"}, "description": "max"},
			"mode":  map[string]any{"type": "string", "enum": []any{"a", "b"}},
		},
		"required": []any{"tags"},
	})
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"tags"}, s.Required)
	assert.Equal(t, genai.TypeArray, s.Properties["tags"].Type)
	assert.Equal(t, genai.TypeString, s.Properties["tags"].Items.Type)
	assert.Equal(t, genai.TypeInteger, s.Properties["limit"].Type)
	assert.Equal(t, "max", s.Properties["limit"].Description)
	assert.Equal(t, []string{"a", "b"}, s.Properties["mode"].Enum)

	assert.Nil(t, convertToolsToGeminiTools(nil))
	gt := convertToolsToGeminiTools([]tools.Definition{{Name: "noop"}})
	require.Len(t, gt, 1)
	assert.Nil(t, gt[0].FunctionDeclarations[0].Parameters)
}
