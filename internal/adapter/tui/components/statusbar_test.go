package components

import (
	"strings"
	"testing"
)

func TestStatusBarViewContainsHintsAndFacts(t *testing.T) {
	sb := NewStatusBar()
	sb.SetWidth(80)
	sb.Hints = []KeyHint{{Key: "Enter", Desc: "Send"}}
	sb.Facts = []string{"chatAgent", "", "pcm16"}
	sb.Extra = "Talking"

	view := sb.View()
	for _, want := range []string{"Enter", "Send", "chatAgent", "pcm16", "Talking"} {
		if !strings.Contains(view, want) {
			t.Errorf("status bar missing %q: %q", want, view)
		}
	}
}

func TestStatusBarNarrowWidth(t *testing.T) {
	sb := NewStatusBar()
	sb.SetWidth(5)
	sb.Hints = []KeyHint{{Key: "Ctrl+C", Desc: "Quit"}}
	if sb.View() == "" {
		t.Error("view should not be empty")
	}
}
