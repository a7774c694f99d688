package prompt

import (
	"strings"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// Value is the result of rendering a Template.
type Value struct {
	messages []llm.Message
}

// ToMessages returns the rendered messages in order.
func (v *Value) ToMessages() []llm.Message {
	return append([]llm.Message(nil), v.messages...)
}

// Len returns the number of rendered messages.
func (v *Value) Len() int { return len(v.messages) }

// Prompt converts the value into a provider request.
func (v *Value) Prompt() *llm.Prompt {
	return &llm.Prompt{Messages: v.ToMessages()}
}

// String renders the messages as a transcript for text-only models.
func (v *Value) String() string {
	lines := make([]string, len(v.messages))
	for i, m := range v.messages {
		lines[i] = speaker(m.Role) + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

func speaker(r llm.Role) string {
	switch r {
	case llm.RoleSystem:
		return "System"
	case llm.RoleUser:
		return "Human"
	case llm.RoleAssistant:
		return "AI"
	default:
		return string(r)
	}
}
