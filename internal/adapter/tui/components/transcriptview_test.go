package components

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"wingman/internal/domain"
)

func sampleItems() []domain.TranscriptItem {
	return []domain.TranscriptItem{
		{ItemID: "u1", Type: domain.ItemMessage, Role: domain.RoleUser, Title: "Met Acme today", Timestamp: "10:01:02", Status: domain.StatusDone},
		{ItemID: "h1", Type: domain.ItemMessage, Role: domain.RoleUser, Title: "secret trigger", IsHidden: true},
		{ItemID: "b1", Type: domain.ItemBreadcrumb, Title: "Agent: chatAgent", Data: json.RawMessage(`{"agent":"chatAgent"}`)},
		{ItemID: "a1", Type: domain.ItemMessage, Role: domain.RoleAssistant, Title: "Noted", Status: domain.StatusInProgress},
	}
}

func TestTranscriptViewContent(t *testing.T) {
	v := NewTranscriptView()
	v.SetSize(80, 20)
	v.SetItems(sampleItems())

	out := v.Content()
	assert.Contains(t, out, "Met Acme today")
	assert.Contains(t, out, "Agent: chatAgent")
	assert.Contains(t, out, "Noted")
	assert.NotContains(t, out, "secret trigger")
	assert.NotContains(t, out, `"agent"`, "collapsed breadcrumb hides data")
}

func TestTranscriptViewExpandedBreadcrumb(t *testing.T) {
	items := sampleItems()
	items[2].Expanded = true

	v := NewTranscriptView()
	v.SetSize(80, 20)
	v.SetItems(items)
	assert.Contains(t, v.Content(), `"agent"`)
}

func TestTranscriptViewEmpty(t *testing.T) {
	v := NewTranscriptView()
	assert.Equal(t, "  Initializing...", v.View())

	v.SetSize(80, 10)
	assert.Contains(t, v.Content(), "No messages yet")
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "short", wrapText("short", 20))

	wrapped := wrapText("one two three four five", 10)
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len([]rune(strings.TrimPrefix(line, "  "))), 10)
	}
	assert.Equal(t, "one two three four five", strings.Join(strings.Fields(wrapped), " "))
}

func TestContentWidth(t *testing.T) {
	assert.Equal(t, 40, ContentWidth(20))
	assert.Equal(t, 76, ContentWidth(80))
	assert.Equal(t, 100, ContentWidth(300))
}
