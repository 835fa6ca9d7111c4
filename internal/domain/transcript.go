package domain

import (
	"encoding/json"
	"strings"
)

// ItemType discriminates transcript items.
type ItemType string

const (
	ItemMessage    ItemType = "MESSAGE"
	ItemBreadcrumb ItemType = "BREADCRUMB"
)

// Role is the speaker of a MESSAGE item.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ItemStatus tracks streaming progress of a transcript item.
type ItemStatus string

const (
	StatusInProgress ItemStatus = "IN_PROGRESS"
	StatusDone       ItemStatus = "DONE"
)

// TranscriptItem is one entry of a conversation transcript. MESSAGE items
// carry Role and IsHidden; BREADCRUMB items carry Data.
type TranscriptItem struct {
	ItemID      string          `json:"itemId"`
	Type        ItemType        `json:"type"`
	Role        Role            `json:"role,omitempty"`
	Title       string          `json:"title,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Expanded    bool            `json:"expanded"`
	Timestamp   string          `json:"timestamp"`
	CreatedAtMs int64           `json:"createdAtMs"`
	Status      ItemStatus      `json:"status"`
	IsHidden    bool            `json:"isHidden"`
}

// Visible reports whether the item is a non-hidden message.
func (it TranscriptItem) Visible() bool {
	return it.Type == ItemMessage && !it.IsHidden
}

// Clone returns a deep copy of the item.
func (it TranscriptItem) Clone() TranscriptItem {
	if it.Data != nil {
		it.Data = append(json.RawMessage(nil), it.Data...)
	}
	return it
}

// CloneItems deep-copies a transcript so the result never aliases items.
func CloneItems(items []TranscriptItem) []TranscriptItem {
	out := make([]TranscriptItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// FirstUserText returns the whitespace-normalised text of the first visible
// user message with non-blank text, and false when there is none.
func FirstUserText(items []TranscriptItem) (string, bool) {
	for _, it := range items {
		if !it.Visible() || it.Role != RoleUser {
			continue
		}
		if text := NormalizeWhitespace(it.Title); text != "" {
			return text, true
		}
	}
	return "", false
}

// NormalizeWhitespace collapses runs of whitespace to single spaces and trims.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
