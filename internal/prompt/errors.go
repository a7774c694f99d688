package prompt

import (
	"fmt"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// ConfigurationError reports a template that cannot be constructed.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "prompt: invalid template: " + e.Reason
}

// MissingVariableError reports a placeholder with no binding at render time.
// Index is the position of the offending message template. Role is empty when
// the missing name is a placeholder slot.
type MissingVariableError struct {
	Name  string
	Role  llm.Role
	Index int
}

func (e *MissingVariableError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("prompt: missing messages for slot %q at position %d", e.Name, e.Index)
	}
	return fmt.Sprintf("prompt: missing variable %q in %s message %d", e.Name, e.Role, e.Index)
}
