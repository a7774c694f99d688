// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// Provider replays canned responses and records every prompt it receives.
// When Responses is exhausted the last response is repeated; with no
// responses at all, Complete echoes the final message content.
type Provider struct {
	ProviderName string
	Responses    []*llm.Response
	Errors       []error // consumed one per call before Responses
	Embeddings   func(text string) []float32
	// StreamErr, when set, ends every stream after its first fragment with a
	// chunk carrying this error instead of a Done chunk.
	StreamErr error

	mu      sync.Mutex
	calls   int
	prompts []*llm.Prompt
}

// Name implements llm.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "fake"
	}
	return p.ProviderName
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, prompt *llm.Prompt, _ *llm.RequestOptions) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prompts = append(p.prompts, prompt)
	call := p.calls
	p.calls++

	if call < len(p.Errors) && p.Errors[call] != nil {
		return nil, p.Errors[call]
	}
	idx := call - len(p.Errors)
	if idx < 0 {
		idx = 0
	}
	switch {
	case len(p.Responses) == 0:
		content := ""
		if n := len(prompt.Messages); n > 0 {
			content = prompt.Messages[n-1].Content
		}
		return &llm.Response{Content: content, Model: "fake-model"}, nil
	case idx >= len(p.Responses):
		idx = len(p.Responses) - 1
	}
	resp := *p.Responses[idx]
	return &resp, nil
}

// Stream splits the Complete result into word-sized fragments.
func (p *Provider) Stream(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (<-chan llm.StreamChunk, error) {
	resp, err := p.Complete(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	words := strings.SplitAfter(resp.Content, " ")
	ch := make(chan llm.StreamChunk, len(words)+1)
	for _, w := range words {
		if w == "" {
			continue
		}
		ch <- llm.StreamChunk{Content: w, Model: resp.Model}
		if p.StreamErr != nil {
			ch <- llm.StreamChunk{Err: p.StreamErr}
			close(ch)
			return ch, nil
		}
	}
	ch <- llm.StreamChunk{
		Done:         true,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		StopReason:   resp.StopReason,
	}
	close(ch)
	return ch, nil
}

// Embed implements llm.Provider using the Embeddings func, or a bag-of-letters
// vector when it is nil.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if p.Embeddings != nil {
			out[i] = p.Embeddings(t)
			continue
		}
		out[i] = LetterVector(t)
	}
	return out, nil
}

// Calls returns the number of Complete/Stream invocations so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Prompts returns the prompts received so far.
func (p *Provider) Prompts() []*llm.Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.Prompt(nil), p.prompts...)
}

// LetterVector is a 26-dimension letter-frequency embedding.
func LetterVector(s string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

var _ llm.Provider = (*Provider)(nil)
