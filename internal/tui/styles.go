package tui

import "github.com/charmbracelet/lipgloss"

var (
	// WhatsApp-like palette
	Green    = lipgloss.Color("#25d366")
	Teal     = lipgloss.Color("#128c7e")
	OffWhite = lipgloss.Color("#ece5dd")
	Muted    = lipgloss.Color("#8696a0")
	Red      = lipgloss.Color("#ea4335")

	StatusBarStyle = lipgloss.NewStyle().
			Background(Teal).
			Foreground(OffWhite).
			Bold(true).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Teal).
			Padding(1)

	ChatPanelStyle   = panelStyle
	StatusPanelStyle = panelStyle.BorderForeground(Muted)
	EventsPanelStyle = panelStyle.BorderForeground(Muted)

	InputBarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Green).
			Padding(0, 1)

	PromptStyle = lipgloss.NewStyle().Foreground(Green).Bold(true)

	UserMessageStyle = lipgloss.NewStyle().
				Foreground(OffWhite).
				Bold(true)

	AssistantMessageStyle = lipgloss.NewStyle().
				Foreground(Green)

	EventStyle = lipgloss.NewStyle().
			Foreground(Muted)

	MutedStyle = lipgloss.NewStyle().Foreground(Muted)

	BoldStyle = lipgloss.NewStyle().Bold(true)
)
