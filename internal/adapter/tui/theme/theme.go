// Package theme holds the colors, styles and glyphs of the wingman console.
// Colors adapt to light and dark terminals; lipgloss drops them entirely
// when NO_COLOR is set.
package theme

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	Teal   = lipgloss.AdaptiveColor{Light: "#00796b", Dark: "#4db6ac"}
	Amber  = lipgloss.AdaptiveColor{Light: "#ff8f00", Dark: "#ffca28"}
	Red    = lipgloss.AdaptiveColor{Light: "#d32f2f", Dark: "#e57373"}
	Green  = lipgloss.AdaptiveColor{Light: "#388e3c", Dark: "#81c784"}
	Indigo = lipgloss.AdaptiveColor{Light: "#303f9f", Dark: "#9fa8da"}
	Grey   = lipgloss.AdaptiveColor{Light: "#616161", Dark: "#a0a0a0"}
	Faded  = lipgloss.AdaptiveColor{Light: "#a0a0a0", Dark: "#6e6e6e"}
	Shade  = lipgloss.AdaptiveColor{Light: "#eeeeee", Dark: "#262626"}
)

// Text.
var (
	Dim       = lipgloss.NewStyle().Faint(true)
	Muted     = lipgloss.NewStyle().Foreground(Grey)
	Info      = lipgloss.NewStyle().Foreground(Teal)
	Error     = lipgloss.NewStyle().Foreground(Red).Bold(true)
	Connected = lipgloss.NewStyle().Foreground(Green).Bold(true)
	Pending   = lipgloss.NewStyle().Foreground(Amber).Bold(true)
)

// Header is the product name at the top of the console.
var Header = lipgloss.NewStyle().Foreground(Teal).Bold(true).Padding(0, 1)

// Transcript.
var (
	UserLabel  = lipgloss.NewStyle().Foreground(Indigo).Bold(true)
	BotLabel   = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	Breadcrumb = lipgloss.NewStyle().Foreground(Grey).Faint(true)
	Timestamp  = lipgloss.NewStyle().Foreground(Faded).Faint(true)
)

// Status bar and input.
var (
	StatusBar        = lipgloss.NewStyle().Foreground(Faded).Background(Shade).Padding(0, 1)
	StatusKey        = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	InputPrompt      = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	InputPlaceholder = lipgloss.NewStyle().Foreground(Faded)
)

// StateStyle returns the style for a connection state label.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "CONNECTED":
		return Connected
	case "CONNECTING":
		return Pending
	default:
		return Muted
	}
}

// MaxContentWidth caps the width of transcript text.
const MaxContentWidth = 100

// Clamp returns v clamped to [lo, hi].
func Clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
