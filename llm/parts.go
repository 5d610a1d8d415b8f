package llm

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/m4xw311/toolchat/session"
)

// PartText is the textual stand-in for a prompt part, used when a
// provider has no native representation for it.
func PartText(p session.PromptPart) string {
	switch p.Kind {
	case session.PartText:
		return p.Text
	case session.PartImageURL:
		return fmt.Sprintf("[image: %s]", p.URL)
	case session.PartAudioURL:
		return fmt.Sprintf("[audio: %s]", p.URL)
	case session.PartDocURL:
		return fmt.Sprintf("[document: %s]", p.URL)
	case session.PartBinary:
		if isText(p.MediaType) {
			return string(p.Data)
		}
		return fmt.Sprintf("[attachment: %s, %d bytes]", p.MediaType, len(p.Data))
	}
	return ""
}

func isText(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/") ||
		strings.HasPrefix(mediaType, "application/json") ||
		strings.HasPrefix(mediaType, "application/yaml") ||
		strings.HasPrefix(mediaType, "application/xml")
}

func isImage(mediaType string) bool { return strings.HasPrefix(mediaType, "image/") }
func isAudio(mediaType string) bool { return strings.HasPrefix(mediaType, "audio/") }
func isPDF(mediaType string) bool   { return strings.HasPrefix(mediaType, "application/pdf") }

// baseMediaType drops parameters such as "; charset=utf-8".
func baseMediaType(mediaType string) string {
	t, _, _ := strings.Cut(mediaType, ";")
	return strings.TrimSpace(t)
}

func dataURL(p session.PromptPart) string {
	return fmt.Sprintf("data:%s;base64,%s", baseMediaType(p.MediaType), base64.StdEncoding.EncodeToString(p.Data))
}

// toolResultGroups walks history and yields each message, grouping runs of
// consecutive tool messages so providers that need all results of one
// assistant turn in a single message can emit them together.
func toolResultGroups(h session.History, fn func(msg session.Message, results []session.Message)) {
	for i := 0; i < len(h); i++ {
		if h[i].Role != session.RoleTool {
			fn(h[i], nil)
			continue
		}
		j := i
		for j < len(h) && h[j].Role == session.RoleTool {
			j++
		}
		fn(session.Message{Role: session.RoleTool}, h[i:j])
		i = j - 1
	}
}

func toolCallID(m session.Message) string {
	if len(m.ToolCalls) == 0 {
		return ""
	}
	return m.ToolCalls[0].ToolCallID
}

func toolCallName(m session.Message) string {
	if len(m.ToolCalls) == 0 {
		return ""
	}
	return m.ToolCalls[0].Name
}
