package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	accent  = lipgloss.Color("#C51A4A") // raspberry
	leaf    = lipgloss.Color("#75A928")
	amber   = lipgloss.Color("#F2A93B")
	alarm   = lipgloss.Color("#E5484D")
	slate   = lipgloss.Color("#7A869A")
	ink     = lipgloss.Color("#101418")
	paper   = lipgloss.Color("#F4F5F7")
	skyBlue = lipgloss.Color("#4FA3D9")

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			MarginBottom(1)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(slate).
			Padding(0, 1)

	CardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(skyBlue)

	StatusHealthy      = badge(leaf, ink).Bold(true)
	StatusDegraded     = badge(amber, ink).Bold(true)
	StatusUnhealthy    = badge(alarm, paper).Bold(true)
	StatusDisconnected = badge(slate, paper)

	LogStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(slate)

	LogInfoStyle    = lipgloss.NewStyle().Foreground(skyBlue)
	LogWarningStyle = lipgloss.NewStyle().Foreground(amber)
	LogErrorStyle   = lipgloss.NewStyle().Foreground(alarm)

	MutedStyle = lipgloss.NewStyle().Foreground(slate)

	HelpStyle = lipgloss.NewStyle().
			Foreground(slate).
			MarginTop(1)
)

func badge(bg, fg lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Background(bg).Foreground(fg).Padding(0, 1)
}
