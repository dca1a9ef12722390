package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// InputModal asks for a single line of text.
type InputModal struct {
	id       string
	title    string
	label    string
	input    textinput.Model
	validate func(string) error
	onSubmit func(string) tea.Cmd
	onCancel func()
	err      string
}

// NewInputModal creates a prompt prefilled with value. validate may be nil.
func NewInputModal(id, title, label, value string, validate func(string) error, onSubmit func(string) tea.Cmd) *InputModal {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 500
	ti.Width = 60
	ti.SetValue(value)
	ti.Focus()
	return &InputModal{
		id:       id,
		title:    title,
		label:    label,
		input:    ti,
		validate: validate,
		onSubmit: onSubmit,
	}
}

// OnCancel registers fn to run when the prompt is dismissed.
func (m *InputModal) OnCancel(fn func()) *InputModal {
	m.onCancel = fn
	return m
}

func (m *InputModal) ID() string { return m.id }

// Value returns the current text.
func (m *InputModal) Value() string { return m.input.Value() }

func (m *InputModal) Update(msg tea.Msg) (bool, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "esc", "escape":
			if m.onCancel != nil {
				m.onCancel()
			}
			return true, nil
		case "enter":
			value := m.input.Value()
			if m.validate != nil {
				if err := m.validate(value); err != nil {
					m.err = err.Error()
					return false, nil
				}
			}
			if m.onSubmit == nil {
				return true, nil
			}
			return true, m.onSubmit(value)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.err = ""
	return false, cmd
}

func (m *InputModal) View(width, height int) string {
	body := m.label + "\n" + m.input.View()
	if m.err != "" {
		body += "\n" + errorStyle.Render(m.err)
	}
	return renderModalFrame(m.title, body, []string{"Enter: Save", "ESC: Cancel"}, width, height)
}
