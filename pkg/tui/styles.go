package tui

import "github.com/charmbracelet/lipgloss"

// Palette shared by the phase rows, the activity log and the status bar.
const (
	colorText    = lipgloss.Color("#FAFAFA")
	colorAccent  = lipgloss.Color("#7D56F4")
	colorBorder  = lipgloss.Color("#874BFD")
	colorMuted   = lipgloss.Color("241")
	colorOK      = lipgloss.Color("#04B575")
	colorWarn    = lipgloss.Color("#E5C07B")
	colorError   = lipgloss.Color("#E06C75")
	colorUpcoming = lipgloss.Color("#61AFEF")
)

var (
	subtleStyle      = lipgloss.NewStyle().Foreground(colorMuted)
	infoStyle        = lipgloss.NewStyle().Foreground(colorOK)
	warnStyle        = lipgloss.NewStyle().Foreground(colorWarn)
	errStyle         = lipgloss.NewStyle().Foreground(colorError)
	titleStyle       = lipgloss.NewStyle().Foreground(colorText).Background(colorAccent).Padding(0, 1).Bold(true)
	tableHeaderStyle = lipgloss.NewStyle().Foreground(colorText).Bold(true).Padding(0, 1)
	boxStyle         = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)

	// phase rows
	pastStyle    = subtleStyle.Strikethrough(true)
	currentStyle = infoStyle.Bold(true)
	futureStyle  = lipgloss.NewStyle().Foreground(colorUpcoming)
)
