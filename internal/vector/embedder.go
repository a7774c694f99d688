package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// Embedder wraps an LLM provider to produce and store embeddings.
type Embedder struct {
	provider llm.Provider
	repo     Repository
}

// NewEmbedder creates an Embedder.
func NewEmbedder(provider llm.Provider, repo Repository) *Embedder {
	return &Embedder{provider: provider, repo: repo}
}

// IndexTexts embeds texts and upserts them with the matching metadata.
// It returns the generated document IDs in input order.
func (e *Embedder) IndexTexts(ctx context.Context, texts []string, metadata []map[string]string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.provider.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	docs := make([]Document, len(texts))
	ids := make([]string, len(texts))
	for i := range texts {
		meta := map[string]string{}
		if i < len(metadata) && metadata[i] != nil {
			meta = metadata[i]
		}
		ids[i] = uuid.New().String()
		docs[i] = Document{
			ID:       ids[i],
			Content:  texts[i],
			Vector:   vectors[i],
			Metadata: meta,
		}
	}
	if err := e.repo.Upsert(ctx, docs); err != nil {
		return nil, err
	}
	return ids, nil
}

// Search embeds query and returns the topK closest documents.
func (e *Embedder) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]SearchResult, error) {
	vectors, err := e.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want 1", len(vectors))
	}
	return e.repo.Search(ctx, vectors[0], topK, filter)
}
