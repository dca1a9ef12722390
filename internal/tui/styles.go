package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorNavy   = lipgloss.Color("#1B2A41")
	ColorBlue   = lipgloss.Color("#4FA3F7")
	ColorGreen  = lipgloss.Color("#49E209")
	ColorYellow = lipgloss.Color("#FFD75F")
	ColorOrange = lipgloss.Color("#FFAA00")
	ColorRed    = lipgloss.Color("#FF6666")
	ColorGray   = lipgloss.Color("#808080")
	ColorWhite  = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(ColorWhite).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(ColorGray)
	errorStyle = lipgloss.NewStyle().Foreground(ColorRed)

	noticeStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	badgeStyle  = lipgloss.NewStyle().Foreground(ColorOrange).Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorNavy).
			Padding(0, 1)
	activeSectionStyle = sectionStyle.BorderForeground(ColorBlue)

	tabStyle       = lipgloss.NewStyle().Foreground(ColorGray).Padding(0, 1)
	activeTabStyle = lipgloss.NewStyle().Foreground(ColorWhite).Background(ColorBlue).Bold(true).Padding(0, 1)

	headerCellStyle = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
	counterStyle    = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)

	statusLineStyle = lipgloss.NewStyle().Background(ColorNavy).Foreground(ColorWhite)
)
