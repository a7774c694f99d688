// Package prompt builds chat-model inputs from role-tagged message templates.
//
// A Template is an ordered list of MessageTemplates. Rendering substitutes
// {name} placeholders from a set of Bindings and yields a Value whose messages
// keep the roles and order of the templates that produced them.
package prompt

import (
	"sort"
	"strings"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// Bindings maps placeholder names to their text values.
type Bindings map[string]string

// MessageTemplate pairs a role with content that may contain placeholders.
// A MessageTemplate created by Placeholder instead expands to a list of
// messages supplied at render time.
type MessageTemplate struct {
	Role    llm.Role `json:"role" yaml:"role"`
	Content string   `json:"content" yaml:"content"`

	slot     string
	optional bool
}

// System returns a system-role message template.
func System(content string) MessageTemplate {
	return MessageTemplate{Role: llm.RoleSystem, Content: content}
}

// User returns a user-role message template.
func User(content string) MessageTemplate {
	return MessageTemplate{Role: llm.RoleUser, Content: content}
}

// Assistant returns an assistant-role message template.
func Assistant(content string) MessageTemplate {
	return MessageTemplate{Role: llm.RoleAssistant, Content: content}
}

// Placeholder returns a slot that expands to the messages passed with
// WithMessages(name, ...). A required slot with no messages fails to render.
func Placeholder(name string, optional bool) MessageTemplate {
	return MessageTemplate{slot: name, optional: optional}
}

// Slot reports the slot name for placeholder templates, or "" otherwise.
func (m MessageTemplate) Slot() string { return m.slot }

// Template is an immutable, ordered list of message templates.
type Template struct {
	messages []MessageTemplate
	partials Bindings
}

// New stores msgs verbatim. It fails with *ConfigurationError when msgs is
// empty.
func New(msgs ...MessageTemplate) (*Template, error) {
	if len(msgs) == 0 {
		return nil, &ConfigurationError{Reason: "at least one message template is required"}
	}
	return &Template{messages: append([]MessageTemplate(nil), msgs...)}, nil
}

// FromString returns a template holding a single user message.
func FromString(content string) *Template {
	return &Template{messages: []MessageTemplate{User(content)}}
}

// Messages returns a copy of the declared message templates.
func (t *Template) Messages() []MessageTemplate {
	return append([]MessageTemplate(nil), t.messages...)
}

// InputVariables returns the sorted, de-duplicated placeholder names that are
// not already bound by Partial.
func (t *Template) InputVariables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range t.messages {
		if m.slot != "" {
			continue
		}
		for _, name := range variables(m.Content) {
			if _, bound := t.partials[name]; bound || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Slots returns the placeholder slot names in declaration order.
func (t *Template) Slots() []string {
	var out []string
	for _, m := range t.messages {
		if m.slot != "" {
			out = append(out, m.slot)
		}
	}
	return out
}

// Partial returns a new template with some variables pre-bound. Bindings
// passed to Render take precedence over partial values.
func (t *Template) Partial(b Bindings) *Template {
	merged := make(Bindings, len(t.partials)+len(b))
	for k, v := range t.partials {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return &Template{messages: t.messages, partials: merged}
}

// RenderOption configures a single Render call.
type RenderOption func(*renderOptions)

type renderOptions struct {
	slots map[string][]llm.Message
}

// WithMessages fills the placeholder slot name with msgs.
func WithMessages(name string, msgs []llm.Message) RenderOption {
	return func(o *renderOptions) {
		if o.slots == nil {
			o.slots = make(map[string][]llm.Message)
		}
		o.slots[name] = msgs
	}
}

// Render substitutes every placeholder in declaration order and returns a new
// Value. Bindings that no template references are ignored. The first
// placeholder without a binding fails the render with *MissingVariableError.
func (t *Template) Render(b Bindings, opts ...RenderOption) (*Value, error) {
	var o renderOptions
	for _, opt := range opts {
		opt(&o)
	}

	out := make([]llm.Message, 0, len(t.messages))
	for i, m := range t.messages {
		if m.slot != "" {
			msgs, ok := o.slots[m.slot]
			if !ok && !m.optional {
				return nil, &MissingVariableError{Name: m.slot, Index: i}
			}
			out = append(out, msgs...)
			continue
		}

		content, missing := t.substitute(m.Content, b)
		if missing != "" {
			return nil, &MissingVariableError{Name: missing, Role: m.Role, Index: i}
		}
		out = append(out, llm.Message{Role: m.Role, Content: content})
	}
	return &Value{messages: out}, nil
}

func (t *Template) substitute(content string, b Bindings) (string, string) {
	var sb strings.Builder
	for _, s := range parse(content) {
		if !s.variable {
			sb.WriteString(s.text)
			continue
		}
		v, ok := b[s.text]
		if !ok {
			v, ok = t.partials[s.text]
		}
		if !ok {
			return "", s.text
		}
		sb.WriteString(v)
	}
	return sb.String(), ""
}
