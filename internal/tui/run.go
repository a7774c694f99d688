package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// RunChat runs the chat screen until the user quits and returns the
// transcript shown on screen.
func RunChat(ctx context.Context, title string, send SendFunc, history []llm.Message) ([]llm.Message, error) {
	p := tea.NewProgram(NewChatModel(ctx, title, send, history), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("chat TUI: %w", err)
	}
	return final.(ChatModel).Transcript(), nil
}
