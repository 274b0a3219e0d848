package keys

import "github.com/charmbracelet/bubbles/key"

// WatchKeys are the bindings for the watch TUI: stream navigation,
// display toggles, sending and filtering
type WatchKeys struct {
	CommonKeys
	Enter          key.Binding
	Clear          key.Binding
	ToggleHex      key.Binding
	ToggleASCII    key.Binding
	ToggleSendMode key.Binding
	ToggleOverview key.Binding
	Filter         key.Binding
	Up             key.Binding
	Down           key.Binding
}

func NewWatchKeys() WatchKeys {
	return WatchKeys{
		CommonKeys: NewCommonKeys(),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send message"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear buffer"),
		),
		ToggleHex: key.NewBinding(
			key.WithKeys("h"),
			key.WithHelp("h", "toggle hex"),
		),
		ToggleASCII: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "toggle ascii"),
		),
		ToggleSendMode: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "toggle send mode"),
		),
		ToggleOverview: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "sessions overview"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter stream"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
	}
}

func (k WatchKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.InsertMode, k.Filter, k.ToggleOverview, k.Quit}
}

func (k WatchKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.InsertMode, k.Escape, k.Clear, k.Filter},
		{k.ToggleHex, k.ToggleASCII, k.ToggleSendMode, k.ToggleOverview},
		{k.Up, k.Down, k.Enter},
		{k.Help, k.Quit},
	}
}
