package tui

import tea "github.com/charmbracelet/bubbletea"

// ConfirmModal asks a yes/no question.
type ConfirmModal struct {
	id        string
	question  string
	onConfirm func() tea.Cmd
}

func NewConfirmModal(id, question string, onConfirm func() tea.Cmd) *ConfirmModal {
	return &ConfirmModal{id: id, question: question, onConfirm: onConfirm}
}

func (m *ConfirmModal) ID() string { return m.id }

func (m *ConfirmModal) Update(msg tea.Msg) (bool, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return false, nil
	}
	switch km.String() {
	case "y", "Y", "enter":
		return true, m.onConfirm()
	case "n", "N", "esc", "escape":
		return true, nil
	}
	return false, nil
}

func (m *ConfirmModal) View(width, height int) string {
	return renderModalFrame("Confirm", m.question, []string{"y/Enter: Yes", "n/ESC: No"}, width, height)
}
