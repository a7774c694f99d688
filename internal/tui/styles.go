package tui

import "github.com/charmbracelet/lipgloss"

// Color constants for the dark terminal theme
const (
	ColorBg     = "#0d1117"
	ColorBorder = "#30363d"
	ColorBlue   = "#58a6ff"
	ColorGreen  = "#3fb950"
	ColorRed    = "#f85149"
	ColorYellow = "#d29922"
	ColorGray   = "#8b949e"
	ColorText   = "#c9d1d9"
	ColorBright = "#f0f6fc"
)

// Styles holds the lipgloss styles used by the chat screen.
type Styles struct {
	Title  lipgloss.Style
	Help   lipgloss.Style
	Status lipgloss.Style
	Error  lipgloss.Style

	// Speaker labels
	System    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style

	Body   lipgloss.Style
	Border lipgloss.Style
}

// DefaultStyles creates the default style set.
func DefaultStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorBright)),

		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Italic(true),

		Status: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorYellow)),

		Error: lipgloss.NewStyle().
			Background(lipgloss.Color(ColorRed)).
			Foreground(lipgloss.Color(ColorBg)).
			Padding(0, 1).
			Bold(true),

		System: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Bold(true),

		User: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue)).
			Bold(true),

		Assistant: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGreen)).
			Bold(true),

		Body: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorText)).
			PaddingLeft(2),

		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1),
	}
}
