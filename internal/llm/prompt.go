package llm

import (
	"fmt"
	"strings"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ParseRole maps a role name to a Role. "human" and "ai" are accepted as
// aliases for user and assistant.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system":
		return RoleSystem, nil
	case "user", "human":
		return RoleUser, nil
	case "assistant", "ai":
		return RoleAssistant, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is the full input to an LLM completion call.
type Prompt struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
}

// TextPrompt wraps plain text as a single user message.
func TextPrompt(text string) *Prompt {
	return &Prompt{Messages: []Message{{Role: RoleUser, Content: text}}}
}

// SplitSystem returns the combined system text (SystemPrompt plus any
// system-role messages) and the remaining conversation turns. Providers that
// take the system prompt out of band use this.
func (p *Prompt) SplitSystem() (string, []Message) {
	var parts []string
	if p.SystemPrompt != "" {
		parts = append(parts, p.SystemPrompt)
	}
	turns := make([]Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		if m.Role == RoleSystem {
			parts = append(parts, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(parts, "\n\n"), turns
}
