package session

import "maps"

// PartKind identifies the variant of a PromptPart.
type PartKind string

const (
	PartText     PartKind = "text"
	PartImageURL PartKind = "image_url"
	PartAudioURL PartKind = "audio_url"
	PartDocURL   PartKind = "document_url"
	PartBinary   PartKind = "binary"
)

// PromptPart is one piece of user-composed input for the next turn.
type PromptPart struct {
	Kind      PartKind `json:"kind"`
	Text      string   `json:"text,omitempty"`
	URL       string   `json:"url,omitempty"`
	Data      []byte   `json:"data,omitempty"`
	MediaType string   `json:"media_type,omitempty"`
}

func Text(s string) PromptPart          { return PromptPart{Kind: PartText, Text: s} }
func ImageRef(url string) PromptPart    { return PromptPart{Kind: PartImageURL, URL: url} }
func AudioRef(url string) PromptPart    { return PromptPart{Kind: PartAudioURL, URL: url} }
func DocumentRef(url string) PromptPart { return PromptPart{Kind: PartDocURL, URL: url} }

// Binary wraps raw bytes with their media type.
func Binary(data []byte, mediaType string) PromptPart {
	return PromptPart{Kind: PartBinary, Data: data, MediaType: mediaType}
}

type ToolCall struct {
	ToolCallID string         `json:"tool_call_id"`
	Name       string         `json:"name"`
	Args       map[string]any `json:"args,omitempty"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one record of the conversation log. User messages carry the
// submitted prompt parts; assistant messages carry text and tool calls;
// tool messages carry a result in Content and the originating call in
// ToolCalls[0].
type Message struct {
	Role      string       `json:"role"`
	Content   string       `json:"content,omitempty"`
	Parts     []PromptPart `json:"parts,omitempty"`
	ToolCalls []ToolCall   `json:"tool_calls,omitempty"`
	IsError   bool         `json:"is_error,omitempty"`
}

// History is the ordered conversation log.
type History []Message

// Clone returns a copy that shares no slices or maps with h.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	for i, m := range h {
		c := m
		if m.Parts != nil {
			c.Parts = make([]PromptPart, len(m.Parts))
			for j, p := range m.Parts {
				if p.Data != nil {
					p.Data = append([]byte(nil), p.Data...)
				}
				c.Parts[j] = p
			}
		}
		if m.ToolCalls != nil {
			c.ToolCalls = make([]ToolCall, len(m.ToolCalls))
			for j, tc := range m.ToolCalls {
				tc.Args = maps.Clone(tc.Args)
				c.ToolCalls[j] = tc
			}
		}
		out[i] = c
	}
	return out
}
