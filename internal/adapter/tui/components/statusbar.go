// Package components holds reusable console widgets.
package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"wingman/internal/adapter/tui/theme"
)

// KeyHint represents a single keybinding hint shown in the status bar.
type KeyHint struct {
	Key  string // e.g. "Enter"
	Desc string // e.g. "Send"
}

// StatusBarModel renders a bottom status bar with keybinding hints on the
// left and session facts on the right.
type StatusBarModel struct {
	Hints []KeyHint
	Facts []string // e.g. agent, codec, PTT mode
	Extra string   // transient status text (e.g. "Talking...")
	width int
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() StatusBarModel {
	return StatusBarModel{}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	var hints []string
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+": "+h.Desc)
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")

	var facts []string
	for _, f := range m.Facts {
		if f != "" {
			facts = append(facts, f)
		}
	}
	right := theme.Muted.Render(strings.Join(facts, " "+theme.Symbols.Bullet+" "))
	if m.Extra != "" {
		if len(facts) > 0 {
			right += "  "
		}
		right += theme.Info.Render(m.Extra)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	bar := left + strings.Repeat(" ", gap) + right
	return theme.StatusBar.Width(m.width).Render(bar)
}
