package history

import (
	"context"
	"sort"
	"sync"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// MemoryStore keeps history in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	convs map[string][]llm.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string][]llm.Message)}
}

func (s *MemoryStore) Append(_ context.Context, id string, msgs ...llm.Message) error {
	if err := validate(id, msgs); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[id] = append(s.convs[id], msgs...)
	return nil
}

func (s *MemoryStore) Messages(_ context.Context, id string, limit int) ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.convs[id], limit), nil
}

func (s *MemoryStore) Conversations(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.convs, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
