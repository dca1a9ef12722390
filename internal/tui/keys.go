package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings with built-in help text.
type KeyMap struct {
	// Global
	Quit      key.Binding
	ForceQuit key.Binding
	Help      key.Binding
	Escape    key.Binding
	Back      key.Binding

	// Navigation
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Enter    key.Binding
	NextTab  key.Binding
	PrevTab  key.Binding

	// Execution
	Refresh    key.Binding
	Cancel     key.Binding
	Parameters key.Binding
	Fullscreen key.Binding
	Reload     key.Binding

	// Dialogs
	Description         key.Binding
	Schedule            key.Binding
	NewVisualization    key.Binding
	EditVisualization   key.Binding
	DeleteVisualization key.Binding
	AddToDashboard      key.Binding
	Embed               key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Escape: key.NewBinding(
			key.WithKeys("escape", "esc"),
			key.WithHelp("esc", "clear/close"),
		),
		Back: key.NewBinding(
			key.WithKeys("b", "backspace"),
			key.WithHelp("b", "back to queries"),
		),

		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "pagedown"),
			key.WithHelp("pgdn", "page down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		NextTab: key.NewBinding(
			key.WithKeys("]", "tab"),
			key.WithHelp("]/tab", "next visualization"),
		),
		PrevTab: key.NewBinding(
			key.WithKeys("[", "shift+tab"),
			key.WithHelp("[/shift+tab", "prev visualization"),
		),

		Refresh: key.NewBinding(
			key.WithKeys("alt+enter", "ctrl+r", "r"),
			key.WithHelp("alt+enter/r", "refresh"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "cancel execution"),
		),
		Parameters: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "edit parameters"),
		),
		Fullscreen: key.NewBinding(
			key.WithKeys("alt+f", "f"),
			key.WithHelp("alt+f/f", "fullscreen"),
		),
		Reload: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reload"),
		),

		Description: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "edit description"),
		),
		Schedule: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "refresh schedule"),
		),
		NewVisualization: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new visualization"),
		),
		EditVisualization: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit visualization"),
		),
		DeleteVisualization: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "delete visualization"),
		),
		AddToDashboard: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add to dashboard"),
		),
		Embed: key.NewBinding(
			key.WithKeys("E"),
			key.WithHelp("E", "embed"),
		),
	}
}

// QueryHelp lists the bindings shown in the query page help modal.
func (k KeyMap) QueryHelp() []key.Binding {
	return []key.Binding{
		k.Refresh, k.Cancel, k.Parameters, k.Fullscreen,
		k.NextTab, k.PrevTab, k.Up, k.Down, k.PageUp, k.PageDown,
		k.Description, k.Schedule, k.NewVisualization, k.EditVisualization,
		k.DeleteVisualization, k.AddToDashboard, k.Embed,
		k.Back, k.Escape, k.Help, k.Quit,
	}
}
