package tui

import "github.com/charmbracelet/lipgloss"

// renderLoadingPlaceholder renders a centered loading indicator.
func renderLoadingPlaceholder(frame string, width, height int) string {
	loadingStyle := lipgloss.NewStyle().
		Foreground(ColorGray).
		Italic(true)

	text := loadingStyle.Render(frame + " Loading...")

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, text)
}
