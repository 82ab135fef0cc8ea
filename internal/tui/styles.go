package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorPrimary = "#2563EB"
	colorRecord  = "#EA580C"
	colorPlay    = "#059669"
	colorText    = "#F8FAFC"
	colorMuted   = "#64748B"
	colorError   = "#DC2626"
	colorBorder  = "#334155"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorText)).
			Background(lipgloss.Color(colorPrimary)).
			Padding(0, 1)

	recordingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorRecord)).
			Bold(true)

	playingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorPlay))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorText)).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorMuted))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorError))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorBorder)).
			Padding(0, 1)
)
