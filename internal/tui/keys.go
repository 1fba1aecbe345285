package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap 定义全局快捷键绑定
// KeyMap defines global keybindings
type KeyMap struct {
	Quit          key.Binding
	Submit        key.Binding
	ToggleSidebar key.Binding
	NewSession    key.Binding
	ToggleQuota   key.Binding
	PrevSession   key.Binding
	NextSession   key.Binding
	PageUp        key.Binding
	PageDown      key.Binding
}

// DefaultKeyMap 默认快捷键
// DefaultKeyMap returns default keybindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		ToggleSidebar: key.NewBinding(
			key.WithKeys("ctrl+b"),
			key.WithHelp("ctrl+b", "sessions"),
		),
		NewSession: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "new chat"),
		),
		ToggleQuota: key.NewBinding(
			key.WithKeys("ctrl+q"),
			key.WithHelp("ctrl+q", "quota"),
		),
		PrevSession: key.NewBinding(
			key.WithKeys("ctrl+up", "alt+up"),
			key.WithHelp("ctrl+↑", "previous chat"),
		),
		NextSession: key.NewBinding(
			key.WithKeys("ctrl+down", "alt+down"),
			key.WithHelp("ctrl+↓", "next chat"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "page down"),
		),
	}
}
