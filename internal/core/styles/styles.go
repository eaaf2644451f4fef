// Package styles provides the lipgloss palettes and styles shared by the
// terminal hosts.
package styles

import (
	"image/color"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

// Palette defines a minimal semantic theme palette. Colors are hex strings.
type Palette struct {
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Foreground lipgloss.Color
	Muted      lipgloss.Color
	Background lipgloss.Color
	Surface    lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
}

// DefaultTheme is the name of the default theme.
const DefaultTheme = "tokyo-night"

// themes holds the built-in named palettes.
var themes = map[string]Palette{
	"tokyo-night": {
		Primary:    "#7aa2f7",
		Secondary:  "#7dcfff",
		Foreground: "#c0caf5",
		Muted:      "#565f89",
		Background: "#1a1b26",
		Surface:    "#3b4261",
		Success:    "#9ece6a",
		Warning:    "#e0af68",
		Error:      "#f7768e",
	},
	"gruvbox": {
		Primary:    "#83a598",
		Secondary:  "#8ec07c",
		Foreground: "#ebdbb2",
		Muted:      "#665c54",
		Background: "#282828",
		Surface:    "#3c3836",
		Success:    "#b8bb26",
		Warning:    "#fabd2f",
		Error:      "#fb4934",
	},
	"catppuccin": {
		Primary:    "#89b4fa", // Blue
		Secondary:  "#94e2d5", // Teal
		Foreground: "#cdd6f4", // Text
		Muted:      "#6c7086", // Overlay0
		Background: "#1e1e2e", // Base
		Surface:    "#313244", // Surface0
		Success:    "#a6e3a1", // Green
		Warning:    "#f9e2af", // Yellow
		Error:      "#f38ba8", // Red
	},
	"onedark": {
		Primary:    "#61afef",
		Secondary:  "#56b6c2",
		Foreground: "#abb2bf",
		Muted:      "#5c6370",
		Background: "#282c34",
		Surface:    "#3e4452",
		Success:    "#98c379",
		Warning:    "#e5c07b",
		Error:      "#e06c75",
	},
}

// ThemeNames returns sorted names of all built-in themes.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPalette returns the palette for the given theme name.
func GetPalette(name string) (Palette, bool) {
	p, ok := themes[name]
	return p, ok
}

// RGBA converts a palette color for image composition. Invalid hex yields
// opaque black.
func RGBA(c lipgloss.Color) color.RGBA {
	cc, err := colorful.Hex(string(c))
	if err != nil {
		return color.RGBA{A: 255}
	}
	r, g, b := cc.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Styles are the rendered styles of a palette.
type Styles struct {
	Palette Palette

	StatusBar    lipgloss.Style
	StatusKey    lipgloss.Style
	StatusValue  lipgloss.Style
	StatusMuted  lipgloss.Style
	SearchPrompt lipgloss.Style
	Help         lipgloss.Style

	NoticeInfo    lipgloss.Style
	NoticeWarning lipgloss.Style
	NoticeError   lipgloss.Style

	// Canvas fills the space around and between pages.
	Canvas color.RGBA
	// Placeholder fills pages that have not been painted yet.
	Placeholder color.RGBA
}

// New builds the styles for p.
func New(p Palette) Styles {
	bar := lipgloss.NewStyle().Background(p.Surface).Foreground(p.Foreground)

	return Styles{
		Palette: p,

		StatusBar:    bar.Padding(0, 1),
		StatusKey:    bar.Foreground(p.Primary).Bold(true),
		StatusValue:  bar,
		StatusMuted:  bar.Foreground(p.Muted),
		SearchPrompt: lipgloss.NewStyle().Foreground(p.Secondary).Bold(true),
		Help:         lipgloss.NewStyle().Foreground(p.Muted),

		NoticeInfo:    bar.Foreground(p.Success),
		NoticeWarning: bar.Foreground(p.Warning),
		NoticeError:   bar.Foreground(p.Error).Bold(true),

		Canvas:      RGBA(p.Background),
		Placeholder: RGBA(p.Muted),
	}
}

// Default returns the styles of DefaultTheme.
func Default() Styles {
	p, _ := GetPalette(DefaultTheme)
	return New(p)
}
