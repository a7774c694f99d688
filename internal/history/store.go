// Package history persists conversation turns so templates can replay them
// through a placeholder slot.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// ErrConversationNotFound is returned when clearing an unknown conversation.
var ErrConversationNotFound = errors.New("history: conversation not found")

// Store defines conversation history persistence. Messages are returned
// oldest first; a positive limit keeps only the most recent messages.
type Store interface {
	Append(ctx context.Context, conversationID string, msgs ...llm.Message) error
	Messages(ctx context.Context, conversationID string, limit int) ([]llm.Message, error)
	Conversations(ctx context.Context) ([]string, error)
	Clear(ctx context.Context, conversationID string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend  string // memory (default), sqlite, neo4j
	DSN      string // sqlite path
	URI      string // neo4j bolt URI
	Username string
	Password string
}

// Open returns the Store for opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(ctx, opts.DSN)
	case "neo4j":
		return NewNeo4jStore(ctx, opts.URI, opts.Username, opts.Password)
	default:
		return nil, fmt.Errorf("history: unknown backend %q", opts.Backend)
	}
}

func validate(conversationID string, msgs []llm.Message) error {
	if conversationID == "" {
		return errors.New("history: conversation id is required")
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("history: message %d has invalid role %q", i, m.Role)
		}
	}
	return nil
}

// tail returns the last limit messages, or all when limit <= 0.
func tail(msgs []llm.Message, limit int) []llm.Message {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]llm.Message(nil), msgs...)
}
