// Package vector stores embeddings and answers similarity queries.
package vector

import "context"

// Document is a text with its embedding and string metadata.
type Document struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]string
}

// Repository provides vector storage and similarity search.
type Repository interface {
	// Upsert inserts or updates documents by ID.
	Upsert(ctx context.Context, docs []Document) error
	// Search returns the topK documents most similar to vec whose metadata
	// matches every key/value in filter.
	Search(ctx context.Context, vec []float32, topK int, filter map[string]string) ([]SearchResult, error)
	// Close releases resources.
	Close() error
}
