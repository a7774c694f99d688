// Package tui is the terminal chat screen used by "quill chat --tui".
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// SendFunc runs one conversation turn and returns the assistant's reply.
type SendFunc func(ctx context.Context, input string) (string, error)

type replyMsg struct {
	content string
	err     error
}

type keyMap struct {
	Send key.Binding
	Up   key.Binding
	Down key.Binding
	Quit key.Binding
}

func (km keyMap) ShortHelp() []key.Binding {
	return []key.Binding{km.Send, km.Up, km.Down, km.Quit}
}

func (km keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{km.Send, km.Quit}, {km.Up, km.Down}}
}

func newKeyMap() keyMap {
	return keyMap{
		Send: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Up:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		Down: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		Quit: key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
	}
}

// ChatModel is the bubbletea model for an interactive conversation.
type ChatModel struct {
	ctx        context.Context
	send       SendFunc
	title      string
	styles     *Styles
	transcript []llm.Message
	viewport   viewport.Model
	input      textinput.Model
	help       help.Model
	keys       keyMap
	width      int
	height     int
	pending    bool
	err        error
	quitting   bool
}

// NewChatModel returns a model showing history and sending new turns with send.
func NewChatModel(ctx context.Context, title string, send SendFunc, history []llm.Message) ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Prompt = "> "
	ti.Width = 72
	ti.Focus()

	m := ChatModel{
		ctx:        ctx,
		send:       send,
		title:      title,
		styles:     DefaultStyles(),
		transcript: append([]llm.Message(nil), history...),
		viewport:   viewport.New(80, 16),
		input:      ti,
		help:       help.New(),
		keys:       newKeyMap(),
		width:      80,
		height:     24,
	}
	m.refresh()
	return m
}

// Transcript returns the messages shown so far, oldest first.
func (m ChatModel) Transcript() []llm.Message {
	return append([]llm.Message(nil), m.transcript...)
}

func (m ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = max(msg.Height-8, 3)
		m.input.Width = max(msg.Width-6, 10)
		m.refresh()
		return m, nil

	case replyMsg:
		m.pending = false
		m.err = msg.err
		if msg.err == nil {
			m.transcript = append(m.transcript, llm.Message{Role: llm.RoleAssistant, Content: msg.content})
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Send):
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.pending {
				return m, nil
			}
			m.input.SetValue("")
			m.pending = true
			m.err = nil
			m.transcript = append(m.transcript, llm.Message{Role: llm.RoleUser, Content: text})
			m.refresh()
			return m, m.turn(text)
		case key.Matches(msg, m.keys.Up, m.keys.Down):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ChatModel) turn(text string) tea.Cmd {
	ctx, send := m.ctx, m.send
	return func() tea.Msg {
		content, err := send(ctx, text)
		return replyMsg{content: content, err: err}
	}
}

func (m *ChatModel) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m ChatModel) renderTranscript() string {
	var b strings.Builder
	for i, msg := range m.transcript {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.label(msg.Role))
		b.WriteString("\n")
		b.WriteString(m.styles.Body.Width(max(m.viewport.Width-2, 10)).Render(msg.Content))
		b.WriteString("\n")
	}
	return b.String()
}

func (m ChatModel) label(r llm.Role) string {
	switch r {
	case llm.RoleUser:
		return m.styles.User.Render("You")
	case llm.RoleAssistant:
		return m.styles.Assistant.Render("Assistant")
	default:
		return m.styles.System.Render("System")
	}
}

func (m ChatModel) View() string {
	if m.quitting {
		return ""
	}

	status := ""
	switch {
	case m.pending:
		status = m.styles.Status.Render("thinking...")
	case m.err != nil:
		status = m.styles.Error.Render("error") + " " + m.err.Error()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Title.Render(m.title),
		m.styles.Border.Render(m.viewport.View()),
		status,
		m.input.View(),
		m.styles.Help.Render(m.help.ShortHelpView(m.keys.ShortHelp())),
	)
}
