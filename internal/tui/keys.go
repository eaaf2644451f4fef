package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the viewer key bindings.
type KeyMap struct {
	Down      key.Binding
	Up        key.Binding
	NextPage  key.Binding
	PrevPage  key.Binding
	FirstPage key.Binding
	LastPage  key.Binding
	ZoomIn    key.Binding
	ZoomOut   key.Binding
	ZoomFit   key.Binding
	Search    key.Binding
	NextMatch key.Binding
	PrevMatch key.Binding
	Retry     key.Binding
	Help      key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Down:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "scroll down")),
		Up:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "scroll up")),
		NextPage:  key.NewBinding(key.WithKeys("pgdown", "right", "l", " "), key.WithHelp("pgdn/→", "next page")),
		PrevPage:  key.NewBinding(key.WithKeys("pgup", "left", "h"), key.WithHelp("pgup/←", "previous page")),
		FirstPage: key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "first page")),
		LastPage:  key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "last page")),
		ZoomIn:    key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "zoom in")),
		ZoomOut:   key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "zoom out")),
		ZoomFit:   key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "fit width")),
		Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		NextMatch: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next match")),
		PrevMatch: key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "previous match")),
		Retry:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry failed pages")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextPage, k.PrevPage, k.ZoomIn, k.ZoomOut, k.Search, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Down, k.Up, k.NextPage, k.PrevPage, k.FirstPage, k.LastPage},
		{k.ZoomIn, k.ZoomOut, k.ZoomFit},
		{k.Search, k.NextMatch, k.PrevMatch, k.Retry},
		{k.Help, k.Quit},
	}
}
