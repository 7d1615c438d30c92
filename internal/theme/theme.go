// Package theme holds the terminal styles of the mailsync CLI.
package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the title of a status report.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// PanelStyle wraps one mailbox in a status report.
var PanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// NameStyle renders mailbox names.
var NameStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorWhite)

// LabelStyle renders field names.
var LabelStyle = lipgloss.NewStyle().Foreground(ColorGray)

// ValueStyle renders field values.
var ValueStyle = lipgloss.NewStyle().Foreground(ColorWhite)

// ErrorStyle renders error messages.
var ErrorStyle = lipgloss.NewStyle().Foreground(ColorRed)

// StateStyle returns the style for a sync state name ("idle", "running",
// "error" or a pass state such as "done").
func StateStyle(state string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch state {
	case "idle", "done":
		return base.Foreground(ColorGreen)
	case "running":
		return base.Foreground(ColorYellow)
	case "error", "failed":
		return base.Foreground(ColorRed)
	}
	return base.Foreground(ColorGray)
}
