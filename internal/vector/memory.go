package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryRepository is an in-process Repository using cosine similarity.
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]Document)}
}

func (r *MemoryRepository) Upsert(_ context.Context, docs []Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return nil
}

func (r *MemoryRepository) Search(_ context.Context, vec []float32, topK int, filter map[string]string) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]SearchResult, 0, len(r.docs))
	for _, d := range r.docs {
		if !matches(d.Metadata, filter) {
			continue
		}
		results = append(results, SearchResult{
			ID:       d.ID,
			Score:    Cosine(vec, d.Vector),
			Content:  d.Content,
			Metadata: d.Metadata,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (r *MemoryRepository) Close() error { return nil }

func matches(meta, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ Repository = (*MemoryRepository)(nil)
