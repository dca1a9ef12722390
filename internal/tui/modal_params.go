package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/queryview/internal/model"
	"github.com/tinytelemetry/queryview/internal/queryview"
)

type paramField struct {
	view   queryview.ParameterView
	input  textinput.Model
	option int
}

func (f *paramField) value() string {
	if f.view.Type == model.ParamEnum && len(f.view.EnumOptions) > 0 {
		return f.view.EnumOptions[f.option]
	}
	return f.input.Value()
}

// ParamsModal edits parameter values. Every edit is recorded as pending;
// Enter applies the batch and Ctrl+X discards it.
type ParamsModal struct {
	fields   []*paramField
	focus    int
	onChange func(values map[string]any)
	onApply  func() tea.Cmd
	onReset  func()
}

func NewParamsModal(views []queryview.ParameterView, onChange func(map[string]any), onApply func() tea.Cmd, onReset func()) *ParamsModal {
	m := &ParamsModal{onChange: onChange, onApply: onApply, onReset: onReset}
	for _, v := range views {
		current := v.Value
		if v.HasPending {
			current = v.Pending
		}
		ti := textinput.New()
		ti.Prompt = ""
		ti.Width = 40
		ti.SetValue(formatValue(current))
		f := &paramField{view: v, input: ti}
		for i, opt := range v.EnumOptions {
			if opt == formatValue(current) {
				f.option = i
			}
		}
		m.fields = append(m.fields, f)
	}
	m.setFocus(0)
	return m
}

func (m *ParamsModal) ID() string { return "parameters" }

func (m *ParamsModal) setFocus(i int) {
	if len(m.fields) == 0 {
		return
	}
	m.focus = (i + len(m.fields)) % len(m.fields)
	for j, f := range m.fields {
		if j == m.focus {
			f.input.Focus()
		} else {
			f.input.Blur()
		}
	}
}

func (m *ParamsModal) changed(f *paramField) {
	if m.onChange != nil {
		m.onChange(map[string]any{f.view.Name: f.value()})
	}
}

func (m *ParamsModal) Update(msg tea.Msg) (bool, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return false, nil
	}
	if len(m.fields) == 0 {
		return true, nil
	}
	f := m.fields[m.focus]
	switch km.String() {
	case "esc", "escape":
		return true, nil
	case "enter":
		if m.onApply == nil {
			return true, nil
		}
		return true, m.onApply()
	case "ctrl+x":
		if m.onReset != nil {
			m.onReset()
		}
		return true, nil
	case "tab", "down":
		m.setFocus(m.focus + 1)
		return false, nil
	case "shift+tab", "up":
		m.setFocus(m.focus - 1)
		return false, nil
	}

	if f.view.Type == model.ParamEnum && len(f.view.EnumOptions) > 0 {
		switch km.String() {
		case "left", "h":
			f.option = (f.option - 1 + len(f.view.EnumOptions)) % len(f.view.EnumOptions)
			m.changed(f)
		case "right", "l", " ":
			f.option = (f.option + 1) % len(f.view.EnumOptions)
			m.changed(f)
		}
		return false, nil
	}

	before := f.input.Value()
	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	if f.input.Value() != before {
		m.changed(f)
	}
	return false, cmd
}

func (m *ParamsModal) View(width, height int) string {
	if len(m.fields) == 0 {
		return renderModalFrame("Parameters", mutedStyle.Render("This query has no parameters."), []string{"ESC: Close"}, width, height)
	}
	labelWidth := 0
	for _, f := range m.fields {
		labelWidth = max(labelWidth, lipgloss.Width(f.view.Title))
	}
	var rows []string
	for i, f := range m.fields {
		label := fmt.Sprintf("%-*s", labelWidth, f.view.Title)
		if i == m.focus {
			label = headerCellStyle.Render(label)
		}
		var field string
		if f.view.Type == model.ParamEnum && len(f.view.EnumOptions) > 0 {
			field = "‹ " + f.value() + " ›"
		} else {
			field = f.input.View()
		}
		hint := mutedStyle.Render(typeHint(f.view.Type))
		rows = append(rows, label+"  "+field+"  "+hint)
	}
	hints := []string{"Tab: Next", "←/→: Option", "Enter: Apply", "Ctrl+X: Discard", "ESC: Close"}
	return renderModalFrame("Parameters", strings.Join(rows, "\n"), hints, width, height)
}

func typeHint(t model.ParameterType) string {
	switch t {
	case model.ParamDate:
		return "YYYY-MM-DD"
	case model.ParamDateTime:
		return "YYYY-MM-DD HH:MM"
	case model.ParamNumber:
		return "number"
	default:
		return ""
	}
}
