package output

import (
	"regexp"
	"strings"
)

var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinkingTags removes <think>...</think> blocks emitted by reasoning
// models. An unterminated block at the start swallows the rest of the text.
func StripThinkingTags(s string) string {
	s = thinkRe.ReplaceAllString(s, "")
	if i := strings.Index(s, "<think>"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// StripMarkdownFences removes the outermost ``` fence pair, if present,
// after stripping thinking tags.
func StripMarkdownFences(s string) string {
	s = StripThinkingTags(s)
	lines := strings.Split(s, "\n")

	start := 0
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			start = i + 1
			break
		}
	}

	end := len(lines)
	for i := len(lines) - 1; i >= start; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
			end = i
			break
		}
	}

	if start == 0 && end == len(lines) {
		return s
	}
	return strings.Join(lines[start:end], "\n")
}
