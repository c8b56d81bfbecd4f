package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color tokens used by the TUI. Values are ANSI-256 codes.
type Theme struct {
	Foreground   string
	Muted        string
	Accent       string
	Own          string
	Other        string
	Unread       string
	Favorite     string
	Error        string
	ActivePane   string
	InactivePane string
	SelectedItem string
}

// DefaultTheme is the dark palette.
var DefaultTheme = Theme{
	Foreground:   "252",
	Muted:        "245",
	Accent:       "75",
	Own:          "81",
	Other:        "147",
	Unread:       "214",
	Favorite:     "220",
	Error:        "203",
	ActivePane:   "75",
	InactivePane: "240",
	SelectedItem: "75",
}

type styles struct {
	header   lipgloss.Style
	footer   lipgloss.Style
	muted    lipgloss.Style
	selected lipgloss.Style
	unread   lipgloss.Style
	favorite lipgloss.Style
	own      lipgloss.Style
	other    lipgloss.Style
	date     lipgloss.Style
	err      lipgloss.Style
	active   lipgloss.Style
	inactive lipgloss.Style
}

func newStyles(t Theme) styles {
	pane := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	return styles{
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(t.Accent)),
		footer:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(t.SelectedItem)),
		unread:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(t.Unread)),
		favorite: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Favorite)),
		own:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(t.Own)),
		other:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(t.Other)),
		date:     lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)).Italic(true),
		err:      lipgloss.NewStyle().Foreground(lipgloss.Color(t.Error)),
		active:   pane.BorderForeground(lipgloss.Color(t.ActivePane)),
		inactive: pane.BorderForeground(lipgloss.Color(t.InactivePane)),
	}
}
