// Package gemini implements llm.Provider on top of the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/efebarandurmaz/quill/internal/llm"
)

const (
	defaultModel      = "gemini-2.0-flash"
	defaultEmbedModel = "text-embedding-004"
)

// Client wraps a genai.Client for one chat model and one embedding model.
type Client struct {
	client     *genai.Client
	model      string
	embedModel string
}

// New creates a Gemini provider. baseURL is optional and overrides the
// Gemini API endpoint (used by tests and proxies).
func New(ctx context.Context, apiKey, model, baseURL, embedModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{client: client, model: model, embedModel: embedModel}, nil
}

func (c *Client) Name() string { return "gemini" }

// contents maps chat messages onto Gemini's user/model turns. System messages
// become the SystemInstruction of the returned config.
func (c *Client) contents(prompt *llm.Prompt, opts *llm.RequestOptions) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, turns := prompt.SplitSystem()

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts != nil {
		if opts.Temperature != nil {
			config.Temperature = genai.Ptr(float32(*opts.Temperature))
		}
		if opts.TopP != nil {
			config.TopP = genai.Ptr(float32(*opts.TopP))
		}
		if opts.MaxTokens != nil {
			config.MaxOutputTokens = int32(*opts.MaxTokens)
		}
		if len(opts.StopSeqs) > 0 {
			config.StopSequences = opts.StopSeqs
		}
	}
	return contents, config
}

func (c *Client) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	contents, config := c.contents(prompt, opts)
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	resp := &llm.Response{Content: result.Text(), Model: result.ModelVersion}
	if resp.Model == "" {
		resp.Model = c.model
	}
	applyMetadata(result, &resp.InputTokens, &resp.OutputTokens, &resp.StopReason)
	return resp, nil
}

func (c *Client) Stream(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (<-chan llm.StreamChunk, error) {
	contents, config := c.contents(prompt, opts)

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)

		final := llm.StreamChunk{Done: true, Model: c.model}
		for result, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, config) {
			if err != nil {
				select {
				case ch <- llm.StreamChunk{Err: fmt.Errorf("gemini: stream: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			if result.ModelVersion != "" {
				final.Model = result.ModelVersion
			}
			applyMetadata(result, &final.InputTokens, &final.OutputTokens, &final.StopReason)

			text := result.Text()
			if text == "" {
				continue
			}
			select {
			case ch <- llm.StreamChunk{Content: text, Model: final.Model}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case ch <- final:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	result, err := c.client.Models.EmbedContent(ctx, c.embedModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed content: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

func applyMetadata(result *genai.GenerateContentResponse, in, out *int, stop *string) {
	if u := result.UsageMetadata; u != nil {
		if u.PromptTokenCount > 0 {
			*in = int(u.PromptTokenCount)
		}
		if u.CandidatesTokenCount > 0 {
			*out = int(u.CandidatesTokenCount)
		}
	}
	if len(result.Candidates) > 0 && result.Candidates[0].FinishReason != "" {
		*stop = string(result.Candidates[0].FinishReason)
	}
}

var _ llm.Provider = (*Client)(nil)
