package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// BaseColors defines global UI colors.
type BaseColors struct {
	Background string
	Foreground string
	Muted      string
	Accent     string
	Border     string
}

// SenderColors colors transcript lines by author.
type SenderColors struct {
	User     string
	Bot      string
	Operator string
}

// StateColors colors status, mode and connectivity badges.
type StateColors struct {
	Pending    string
	InProgress string
	Closed     string
	Online     string
	Offline    string
	Warning    string
	Error      string
}

// Theme is a named palette of ANSI-256 colors.
type Theme struct {
	Name     string
	Base     BaseColors
	Sender   SenderColors
	State    StateColors
	Selected string
}

// DefaultTheme is the baseline dark palette.
var DefaultTheme = Theme{
	Name: "default",
	Base: BaseColors{
		Background: "234",
		Foreground: "252",
		Muted:      "245",
		Accent:     "75",
		Border:     "240",
	},
	Sender: SenderColors{
		User:     "147",
		Bot:      "214",
		Operator: "81",
	},
	State: StateColors{
		Pending:    "220",
		InProgress: "75",
		Closed:     "243",
		Online:     "41",
		Offline:    "203",
		Warning:    "214",
		Error:      "203",
	},
	Selected: "237",
}

// HighContrastTheme favors legibility on low-quality terminals.
var HighContrastTheme = Theme{
	Name: "high-contrast",
	Base: BaseColors{
		Background: "16",
		Foreground: "231",
		Muted:      "250",
		Accent:     "51",
		Border:     "231",
	},
	Sender: SenderColors{
		User:     "225",
		Bot:      "229",
		Operator: "87",
	},
	State: StateColors{
		Pending:    "226",
		InProgress: "51",
		Closed:     "250",
		Online:     "46",
		Offline:    "196",
		Warning:    "226",
		Error:      "196",
	},
	Selected: "238",
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	"default":       DefaultTheme,
	"high-contrast": HighContrastTheme,
}

// ResolveTheme maps a theme name to a palette. "auto" picks high contrast
// on light terminals.
func ResolveTheme(name string) (Theme, error) {
	switch name {
	case "", "default":
		return DefaultTheme, nil
	case "auto":
		if lipgloss.HasDarkBackground() {
			return DefaultTheme, nil
		}
		return HighContrastTheme, nil
	}
	theme, ok := Themes[name]
	if !ok {
		return Theme{}, fmt.Errorf("invalid theme %q", name)
	}
	return theme, nil
}

func (t Theme) fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func (t Theme) muted() lipgloss.Style  { return t.fg(t.Base.Muted) }
func (t Theme) accent() lipgloss.Style { return t.fg(t.Base.Accent).Bold(true) }

func (t Theme) panel(width, height int, active bool) lipgloss.Style {
	border := t.Base.Border
	if active {
		border = t.Base.Accent
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(border)).
		Width(maxInt(width-2, 0)).
		Height(maxInt(height-2, 0))
}
