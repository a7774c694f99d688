// Package fewshot selects worked examples to place in front of a request.
package fewshot

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/vector"
)

// Example is one input/output demonstration.
type Example struct {
	Input  string `json:"input" yaml:"input"`
	Output string `json:"output" yaml:"output"`
}

// LoadFile reads a YAML or JSON list of examples.
func LoadFile(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fewshot: %w", err)
	}
	var examples []Example
	if err := yaml.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("fewshot: parse %s: %w", path, err)
	}
	for i, ex := range examples {
		if ex.Input == "" {
			return nil, fmt.Errorf("fewshot: %s: example %d has no input", path, i)
		}
	}
	return examples, nil
}

// Messages renders examples as alternating user/assistant turns.
func Messages(examples []Example) []llm.Message {
	out := make([]llm.Message, 0, 2*len(examples))
	for _, ex := range examples {
		out = append(out,
			llm.Message{Role: llm.RoleUser, Content: ex.Input},
			llm.Message{Role: llm.RoleAssistant, Content: ex.Output},
		)
	}
	return out
}

// Selector picks examples for an input.
type Selector interface {
	Select(ctx context.Context, input string) ([]Example, error)
}

// StaticSelector always returns the same examples, the first K when K > 0.
type StaticSelector struct {
	Examples []Example
	K        int
}

func (s StaticSelector) Select(_ context.Context, _ string) ([]Example, error) {
	ex := s.Examples
	if s.K > 0 && len(ex) > s.K {
		ex = ex[:s.K]
	}
	return append([]Example(nil), ex...), nil
}

const (
	metaSet    = "set"
	metaOutput = "output"
)

// SemanticSelector returns the K examples whose inputs are most similar to
// the request input. Examples are scoped by set name so several selectors can
// share one repository.
type SemanticSelector struct {
	embedder *vector.Embedder
	set      string
	k        int
}

// NewSemanticSelector embeds with provider and stores vectors in repo.
func NewSemanticSelector(provider llm.Provider, repo vector.Repository, set string, k int) (*SemanticSelector, error) {
	if set == "" {
		return nil, errors.New("fewshot: example set name is required")
	}
	if k <= 0 {
		k = 2
	}
	return &SemanticSelector{embedder: vector.NewEmbedder(provider, repo), set: set, k: k}, nil
}

// Add indexes examples into the selector's set.
func (s *SemanticSelector) Add(ctx context.Context, examples ...Example) error {
	texts := make([]string, len(examples))
	meta := make([]map[string]string, len(examples))
	for i, ex := range examples {
		texts[i] = ex.Input
		meta[i] = map[string]string{metaSet: s.set, metaOutput: ex.Output}
	}
	if _, err := s.embedder.IndexTexts(ctx, texts, meta); err != nil {
		return fmt.Errorf("fewshot: index examples: %w", err)
	}
	return nil
}

// Select returns examples ordered from least to most similar, so the closest
// example sits next to the request.
func (s *SemanticSelector) Select(ctx context.Context, input string) ([]Example, error) {
	results, err := s.embedder.Search(ctx, input, s.k, map[string]string{metaSet: s.set})
	if err != nil {
		return nil, fmt.Errorf("fewshot: search: %w", err)
	}
	out := make([]Example, len(results))
	for i, r := range results {
		out[len(results)-1-i] = Example{Input: r.Content, Output: r.Metadata[metaOutput]}
	}
	return out, nil
}

var (
	_ Selector = StaticSelector{}
	_ Selector = (*SemanticSelector)(nil)
)
