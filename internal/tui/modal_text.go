package tui

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// TextModal displays read-only scrollable content such as help or an embed URL.
type TextModal struct {
	id       string
	title    string
	content  string
	viewport viewport.Model
}

func NewTextModal(id, title, content string) *TextModal {
	return &TextModal{
		id:       id,
		title:    title,
		content:  content,
		viewport: viewport.New(80, 20),
	}
}

func (d *TextModal) ID() string { return d.id }

func (d *TextModal) Update(msg tea.Msg) (bool, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return false, nil
	}
	switch km.String() {
	case "up", "k":
		d.viewport.ScrollUp(1)
		return false, nil
	case "down", "j":
		d.viewport.ScrollDown(1)
		return false, nil
	case "pgup":
		d.viewport.HalfPageUp()
		return false, nil
	case "pgdown":
		d.viewport.HalfPageDown()
		return false, nil
	case "escape", "esc", "q", "enter", "?":
		return true, nil
	}
	return false, nil
}

func (d *TextModal) View(width, height int) string {
	return renderScrollModal(&d.viewport, d.title, d.content, width, height)
}
