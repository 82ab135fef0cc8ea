package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Record  key.Binding
	Play    key.Binding
	Toggle  key.Binding
	Unload  key.Binding
	Refresh key.Binding
	Up      key.Binding
	Down    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Record, k.Play, k.Toggle, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Record, k.Play, k.Toggle, k.Unload},
		{k.Up, k.Down, k.Refresh},
		{k.Help, k.Quit},
	}
}

var keys = keyMap{
	Record: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "record/stop"),
	),
	Play: key.NewBinding(
		key.WithKeys("enter", "p"),
		key.WithHelp("enter", "play/stop clip"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "play/stop loaded clip"),
	),
	Unload: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "unload clip"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
