// Package llmutil wires the built-in model providers into an llm.ProviderFactory.
package llmutil

import (
	"context"

	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/llm/anthropic"
	"github.com/efebarandurmaz/quill/internal/llm/gemini"
	"github.com/efebarandurmaz/quill/internal/llm/openai"
)

// compatPresets are OpenAI-compatible endpoints served by the openai client.
var compatPresets = []string{"groq", "huggingface", "ollama", "together", "deepseek", "custom"}

// RegisterDefaultProviders registers every built-in provider constructor
// into factory. Both cmd/quill and cmd/worker call this.
func RegisterDefaultProviders(factory *llm.ProviderFactory) {
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	factory.Register("gemini", func(c llm.ProviderConfig) (llm.Provider, error) {
		return gemini.New(context.Background(), c.APIKey, c.Model, c.BaseURL, c.EmbedModel)
	})

	for _, name := range compatPresets {
		name := name
		factory.Register(name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = llm.KnownProviders[name]
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel).WithName(name), nil
		})
	}
}
