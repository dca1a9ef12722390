package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
)

// renderModalFrame renders a centered modal with a header, a body and a
// status bar of key hints.
func renderModalFrame(title, body string, hints []string, width, height int) string {
	modalWidth := min(max(width-8, 20), 90)

	header := lipgloss.NewStyle().
		Foreground(ColorBlue).
		Bold(true).
		Render(title)

	statusBar := renderModalStatusBar(hints)

	modal := lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", statusBar)

	finalModal := lipgloss.NewStyle().
		Width(modalWidth).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlue).
		Padding(0, 1).
		Render(modal)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, finalModal)
}

// renderScrollModal renders a scrollable modal with the given content.
func renderScrollModal(vp *viewport.Model, title, content string, width, height int) string {
	// Calculate dimensions
	modalWidth := width - 8   // 4 chars margin on each side
	modalHeight := height - 6 // 3 lines margin top and bottom

	// Account for borders and headers
	contentWidth := max(modalWidth-4, 10)
	contentHeight := max(modalHeight-4, 3)

	vp.Width = contentWidth
	vp.Height = contentHeight
	vp.SetContent(content)

	contentPane := lipgloss.NewStyle().
		Width(contentWidth).
		Height(contentHeight).
		Border(lipgloss.NormalBorder()).
		BorderForeground(ColorGray).
		Render(vp.View())

	header := lipgloss.NewStyle().
		Width(contentWidth).
		Foreground(ColorBlue).
		Bold(true).
		Render(title)

	statusBar := renderModalStatusBar([]string{"up/down: Scroll", "PgUp/PgDn: Page", "ESC: Close"})

	modal := lipgloss.JoinVertical(lipgloss.Left, header, contentPane, statusBar)

	finalModal := lipgloss.NewStyle().
		Width(modalWidth).
		Height(modalHeight).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlue).
		Render(modal)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, finalModal)
}

// renderModalStatusBar renders the status bar for modals
func renderModalStatusBar(items []string) string {
	return mutedStyle.Render(strings.Join(items, " | "))
}
