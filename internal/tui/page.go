package tui

import tea "github.com/charmbracelet/bubbletea"

// Page represents a top-level screen in the TUI (query list, query view).
type Page interface {
	ID() string
	Init() tea.Cmd
	Update(msg tea.Msg) (tea.Cmd, *PageNav)
	View(width, height int) string
}

// Enterer is implemented by pages that take navigation params, such as the
// query id to show.
type Enterer interface {
	Enter(params interface{}) tea.Cmd
}

// PageNav is returned from Update to request a page switch.
type PageNav struct {
	PageID string
	Params interface{}
}
