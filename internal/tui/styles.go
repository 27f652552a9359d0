package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	Primary   = lipgloss.Color("#7C3AED") // Purple
	Secondary = lipgloss.Color("#06B6D4") // Cyan
	Success   = lipgloss.Color("#10B981") // Green
	Warning   = lipgloss.Color("#F59E0B") // Amber
	Error     = lipgloss.Color("#EF4444") // Red
	Muted     = lipgloss.Color("#6B7280") // Gray

	colorPaper = lipgloss.Color("#FAFAF9") // Stone 50
	colorInk   = lipgloss.Color("#1C1917") // Stone 900
)

// Styles
var (
	// Paper is the receipt roll in terminal previews
	PaperStyle = lipgloss.NewStyle().
			Background(colorPaper).
			Foreground(colorInk).
			Padding(1, 2)

	PaperBoldStyle = lipgloss.NewStyle().
			Background(colorPaper).
			Foreground(colorInk).
			Bold(true)

	// Double-size text is shown bold and underlined since terminals cannot scale
	PaperLargeStyle = PaperBoldStyle.
			Underline(true)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F8FAFC")).
			Background(Primary).
			Padding(0, 2).
			MarginBottom(1)

	HelpStyle = lipgloss.NewStyle().
			Foreground(Muted)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(Primary)

	StatusOnline = lipgloss.NewStyle().
			Foreground(Success).
			SetString("●")

	StatusOffline = lipgloss.NewStyle().
			Foreground(Error).
			SetString("●")

	StatusPending = lipgloss.NewStyle().
			Foreground(Warning).
			SetString("●")
)

func RenderHelp(key, desc string) string {
	return HelpKeyStyle.Render(key) + HelpStyle.Render(" "+desc)
}

// StatusIcon maps a printer state name to a colored dot
func StatusIcon(state string) string {
	switch state {
	case "connected":
		return StatusOnline.String()
	case "disconnected":
		return StatusOffline.String()
	default:
		return StatusPending.String()
	}
}
