// Package output turns model responses into application values.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
	"github.com/yuin/goldmark"
)

// ErrEmptyOutput is returned when a response has no usable content.
var ErrEmptyOutput = errors.New("output: empty response")

// Parser converts the text of a model response.
type Parser interface {
	Parse(text string) (any, error)
}

// StringParser returns the response text with thinking blocks removed.
type StringParser struct{}

func (StringParser) Parse(text string) (any, error) {
	return StripThinkingTags(text), nil
}

// JSONParser decodes a JSON value from the response. Malformed JSON is
// repaired first, then parsed as Hjson as a last resort.
type JSONParser struct{}

func (JSONParser) Parse(text string) (any, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("output: decode json: %w", err)
	}
	return v, nil
}

// ParseJSONInto decodes the response into dst using the same recovery steps
// as JSONParser.
func ParseJSONInto(text string, dst any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("output: decode json: %w", err)
	}
	return nil
}

// ExtractJSON returns a valid JSON document recovered from text.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(StripMarkdownFences(text))
	if s == "" {
		return "", ErrEmptyOutput
	}
	if json.Valid([]byte(s)) {
		return s, nil
	}

	if repaired, err := jsonrepair.RepairJSON(s); err == nil && repaired != "" && json.Valid([]byte(repaired)) {
		return repaired, nil
	}

	converted, err := hjsonToJSON(s)
	if err != nil {
		return "", fmt.Errorf("output: no json in response: %w", err)
	}
	return converted, nil
}

func hjsonToJSON(s string) (string, error) {
	var v any
	if err := hjson.Unmarshal([]byte(s), &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// MarkdownParser renders the response, read as Markdown, to HTML.
type MarkdownParser struct {
	md goldmark.Markdown
}

// NewMarkdownParser uses goldmark's CommonMark defaults.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{md: goldmark.New()}
}

func (p *MarkdownParser) Parse(text string) (any, error) {
	md := p.md
	if md == nil {
		md = goldmark.New()
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(StripThinkingTags(text)), &buf); err != nil {
		return nil, fmt.Errorf("output: render markdown: %w", err)
	}
	return buf.String(), nil
}

// ByName returns the parser registered under name: "string" (default),
// "json" or "markdown".
func ByName(name string) (Parser, error) {
	switch strings.ToLower(name) {
	case "", "string", "text":
		return StringParser{}, nil
	case "json":
		return JSONParser{}, nil
	case "markdown", "md", "html":
		return NewMarkdownParser(), nil
	default:
		return nil, fmt.Errorf("output: unknown parser %q", name)
	}
}
