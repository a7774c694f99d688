package llm

import "context"

// Provider is the interface all LLM backends must implement.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Stream sends a prompt and returns incremental text fragments. The
	// channel is closed after the final chunk.
	Stream(ctx context.Context, prompt *Prompt, opts *RequestOptions) (<-chan StreamChunk, error)
	// Embed returns embedding vectors for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}
