package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/queryview/internal/model"
)

var visualizationTypes = []model.VisualizationType{
	model.VisualizationTable,
	model.VisualizationChart,
	model.VisualizationCounter,
}

// VisualizationModal edits a visualization's type, name and columns.
type VisualizationModal struct {
	id       string
	title    string
	base     model.Visualization
	typeIdx  int
	name     textinput.Model
	columns  textinput.Model
	focus    int
	onSubmit func(model.Visualization) tea.Cmd
}

// NewVisualizationModal edits v; a zero id means a new visualization.
func NewVisualizationModal(v model.Visualization, onSubmit func(model.Visualization) tea.Cmd) *VisualizationModal {
	title := "New visualization"
	if v.ID != 0 {
		title = "Edit visualization"
	}
	name := textinput.New()
	name.Prompt = ""
	name.Width = 40
	name.SetValue(v.Name)

	columns := textinput.New()
	columns.Prompt = ""
	columns.Width = 40
	columns.Placeholder = "x,y for charts; value column for counters"
	columns.SetValue(columnsOption(v))

	m := &VisualizationModal{
		id:       "visualization",
		title:    title,
		base:     v,
		name:     name,
		columns:  columns,
		onSubmit: onSubmit,
	}
	for i, t := range visualizationTypes {
		if t == v.Type {
			m.typeIdx = i
		}
	}
	m.setFocus(0)
	return m
}

func (m *VisualizationModal) ID() string { return m.id }

func (m *VisualizationModal) setFocus(i int) {
	m.focus = (i + 3) % 3
	m.name.Blur()
	m.columns.Blur()
	switch m.focus {
	case 1:
		m.name.Focus()
	case 2:
		m.columns.Focus()
	}
}

// Visualization returns the edited visualization.
func (m *VisualizationModal) Visualization() model.Visualization {
	v := m.base
	v.Type = visualizationTypes[m.typeIdx]
	v.Name = strings.TrimSpace(m.name.Value())
	v.Options = nil

	parts := strings.Split(m.columns.Value(), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch v.Type {
	case model.VisualizationChart:
		v.Options = map[string]any{}
		if parts[0] != "" {
			v.Options["x"] = parts[0]
		}
		if len(parts) > 1 && parts[1] != "" {
			v.Options["y"] = parts[1]
		}
	case model.VisualizationCounter:
		if parts[0] != "" {
			v.Options = map[string]any{"column": parts[0]}
		}
	}
	if len(v.Options) == 0 {
		v.Options = nil
	}
	return v
}

func (m *VisualizationModal) Update(msg tea.Msg) (bool, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return false, nil
	}
	switch km.String() {
	case "esc", "escape":
		return true, nil
	case "enter":
		if m.onSubmit == nil {
			return true, nil
		}
		return true, m.onSubmit(m.Visualization())
	case "tab", "down":
		m.setFocus(m.focus + 1)
		return false, nil
	case "shift+tab", "up":
		m.setFocus(m.focus - 1)
		return false, nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case 0:
		switch km.String() {
		case "left", "h":
			m.typeIdx = (m.typeIdx - 1 + len(visualizationTypes)) % len(visualizationTypes)
		case "right", "l", " ":
			m.typeIdx = (m.typeIdx + 1) % len(visualizationTypes)
		}
	case 1:
		m.name, cmd = m.name.Update(msg)
	case 2:
		m.columns, cmd = m.columns.Update(msg)
	}
	return false, cmd
}

func (m *VisualizationModal) View(width, height int) string {
	labels := []string{"Type   ", "Name   ", "Columns"}
	for i := range labels {
		if i == m.focus {
			labels[i] = headerCellStyle.Render(labels[i])
		}
	}
	body := strings.Join([]string{
		labels[0] + "  ‹ " + string(visualizationTypes[m.typeIdx]) + " ›",
		labels[1] + "  " + m.name.View(),
		labels[2] + "  " + m.columns.View(),
	}, "\n")
	return renderModalFrame(m.title, body, []string{"Tab: Next", "←/→: Type", "Enter: Save", "ESC: Cancel"}, width, height)
}

func columnsOption(v model.Visualization) string {
	switch v.Type {
	case model.VisualizationChart:
		x, y := optionString(v.Options, "x"), optionString(v.Options, "y")
		if x == "" && y == "" {
			return ""
		}
		return x + "," + y
	case model.VisualizationCounter:
		return optionString(v.Options, "column")
	}
	return ""
}

func optionString(opts map[string]any, key string) string {
	if s, ok := opts[key].(string); ok {
		return s
	}
	return ""
}
