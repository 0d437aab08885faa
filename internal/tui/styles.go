package tui

import "github.com/charmbracelet/lipgloss"

// Color constants matching the dark dashboard theme
const (
	ColorBg     = "#0d1117"
	ColorCard   = "#161b22"
	ColorBorder = "#30363d"
	ColorBlue   = "#58a6ff"
	ColorGreen  = "#3fb950"
	ColorRed    = "#f85149"
	ColorYellow = "#d29922"
	ColorGray   = "#8b949e"
	ColorText   = "#c9d1d9"
	ColorBright = "#f0f6fc"
)

// Styles holds all lipgloss styles for the TUI
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Help     lipgloss.Style

	// Status badges
	StatusAnswered lipgloss.Style
	StatusFailed   lipgloss.Style
	StatusNoInfo   lipgloss.Style
	StatusPending  lipgloss.Style

	Question lipgloss.Style
	Answer   lipgloss.Style
	Meta     lipgloss.Style

	Transcript lipgloss.Style
	Input      lipgloss.Style

	Spinner lipgloss.Style
}

func badge(bg string) lipgloss.Style {
	return lipgloss.NewStyle().
		Background(lipgloss.Color(bg)).
		Foreground(lipgloss.Color(ColorBg)).
		Padding(0, 1).
		Bold(true)
}

// DefaultStyles creates the default style set
func DefaultStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorBright)),

		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)),

		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Italic(true),

		StatusAnswered: badge(ColorGreen),
		StatusFailed:   badge(ColorRed),
		StatusNoInfo:   badge(ColorYellow),
		StatusPending:  badge(ColorGray),

		Question: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue)).
			Bold(true),

		Answer: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorText)).
			PaddingLeft(2),

		Meta: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			PaddingLeft(2),

		Transcript: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1),

		Input: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBlue)).
			Padding(0, 1),

		Spinner: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue)),
	}
}

// StatusBadge renders the badge for an exchange status.
func (s *Styles) StatusBadge(status ExchangeStatus) string {
	switch status {
	case StatusAnswered:
		return s.StatusAnswered.Render("answered")
	case StatusNoInfo:
		return s.StatusNoInfo.Render("no info")
	case StatusFailed:
		return s.StatusFailed.Render("error")
	default:
		return s.StatusPending.Render("asking")
	}
}
