package chain

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/quill/internal/history"
	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/prompt"
)

// Conversation runs a chain turn by turn, replaying stored history into a
// placeholder slot and recording each exchange.
type Conversation struct {
	chain    *Chain
	store    history.Store
	slot     string
	inputVar string
	limit    int
}

// NewConversation wraps c. slot names the history placeholder, inputVar the
// binding that carries the user's message, limit caps replayed messages
// (0 replays everything).
func NewConversation(c *Chain, store history.Store, slot, inputVar string, limit int) *Conversation {
	return &Conversation{chain: c, store: store, slot: slot, inputVar: inputVar, limit: limit}
}

// Send runs one turn in conversation id.
func (cv *Conversation) Send(ctx context.Context, id, input string, extra prompt.Bindings) (*Result, error) {
	past, err := cv.store.Messages(ctx, id, cv.limit)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: load history: %w", id, err)
	}

	b := make(prompt.Bindings, len(extra)+1)
	for k, v := range extra {
		b[k] = v
	}
	b[cv.inputVar] = input

	res, err := cv.chain.Invoke(ctx, b, prompt.WithMessages(cv.slot, past))
	if err != nil {
		return nil, err
	}

	if err := cv.store.Append(ctx, id,
		llm.Message{Role: llm.RoleUser, Content: input},
		llm.Message{Role: llm.RoleAssistant, Content: res.Response.Content},
	); err != nil {
		return nil, fmt.Errorf("conversation %s: save turn: %w", id, err)
	}
	return res, nil
}

// History returns the stored messages for id.
func (cv *Conversation) History(ctx context.Context, id string) ([]llm.Message, error) {
	return cv.store.Messages(ctx, id, 0)
}
