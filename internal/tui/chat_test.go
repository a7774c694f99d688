package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/quill/internal/llm"
)

func echo(_ context.Context, input string) (string, error) {
	return "echo: " + input, nil
}

func update(t *testing.T, m ChatModel, msg tea.Msg) (ChatModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	cm, ok := next.(ChatModel)
	require.True(t, ok)
	return cm, cmd
}

func TestNewChatModel_ShowsHistory(t *testing.T) {
	history := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello there"},
	}
	m := NewChatModel(context.Background(), "chat", echo, history)

	assert.Equal(t, history, m.Transcript())
	view := m.View()
	assert.Contains(t, view, "hello there")
	assert.Contains(t, view, "chat")
}

func TestChatModel_SendTurn(t *testing.T) {
	m := NewChatModel(context.Background(), "chat", echo, nil)
	m.input.SetValue("  ciao  ")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "thinking...")

	reply := cmd()
	m, _ = update(t, m, reply)
	assert.False(t, m.pending)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "ciao"},
		{Role: llm.RoleAssistant, Content: "echo: ciao"},
	}, m.Transcript())
}

func TestChatModel_IgnoresEmptyAndPending(t *testing.T) {
	m := NewChatModel(context.Background(), "chat", echo, nil)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, m.Transcript())

	m.input.SetValue("first")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m.input.SetValue("second")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Len(t, m.Transcript(), 1)
}

func TestChatModel_ErrorShown(t *testing.T) {
	fail := func(context.Context, string) (string, error) { return "", errors.New("rate limited") }
	m := NewChatModel(context.Background(), "chat", fail, nil)
	m.input.SetValue("hi")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, cmd())

	assert.Len(t, m.Transcript(), 1)
	assert.Contains(t, m.View(), "rate limited")
}

func TestChatModel_Quit(t *testing.T) {
	m := NewChatModel(context.Background(), "chat", echo, nil)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.quitting)
	assert.Equal(t, "", m.View())
}

func TestChatModel_Resize(t *testing.T) {
	m := NewChatModel(context.Background(), "chat", echo, []llm.Message{
		{Role: llm.RoleAssistant, Content: strings.Repeat("word ", 40)},
	})

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 40, Height: 20})
	assert.Equal(t, 36, m.viewport.Width)
	assert.Equal(t, 12, m.viewport.Height)
}
