package domain

import "strings"

const (
	// FallbackSessionTitle is shown until a session has a visible user message.
	FallbackSessionTitle = "New Session"
	// MaxSessionTitleLength is the title length, in characters, before truncation.
	MaxSessionTitleLength = 32
	// SessionsKeyPrefix namespaces the persisted session collection per owner.
	SessionsKeyPrefix = "wingman.chat.sessions"
	// PreferencesKeyPrefix namespaces persisted audio preferences per owner.
	PreferencesKeyPrefix = "wingman.prefs"
	// DefaultOwner is used when the identity provider yields no user ID.
	DefaultOwner = "default"
)

// ChatSession is a named, timestamped conversation with its transcript snapshot.
type ChatSession struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	CreatedAt       int64            `json:"createdAt"` // ms since epoch
	TranscriptItems []TranscriptItem `json:"transcriptItems"`
}

// Clone returns a deep copy of the session.
func (s ChatSession) Clone() ChatSession {
	s.TranscriptItems = CloneItems(s.TranscriptItems)
	return s
}

// MessageCount returns the number of visible messages.
func (s ChatSession) MessageCount() int {
	n := 0
	for _, it := range s.TranscriptItems {
		if it.Visible() {
			n++
		}
	}
	return n
}

// SessionSummary is the sidebar view of a session.
type SessionSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CreatedAt    int64  `json:"createdAt"`
	MessageCount int    `json:"messageCount"`
	Active       bool   `json:"active"`
}

// DeriveTitle computes a session title from its transcript.
func DeriveTitle(items []TranscriptItem) string {
	text, ok := FirstUserText(items)
	if !ok {
		return FallbackSessionTitle
	}
	runes := []rune(text)
	if len(runes) <= MaxSessionTitleLength {
		return text
	}
	return strings.TrimRight(string(runes[:MaxSessionTitleLength]), " ") + "..."
}

// NextTitle returns the title a session should carry after its transcript
// changed. An established title never regresses to the fallback.
func NextTitle(current string, items []TranscriptItem) string {
	derived := DeriveTitle(items)
	if derived != FallbackSessionTitle || current == FallbackSessionTitle || current == "" {
		return derived
	}
	return current
}

// SessionsKey returns the persistence key of owner's session collection.
func SessionsKey(owner string) string {
	return SessionsKeyPrefix + "." + OwnerOrDefault(owner)
}

// PreferencesKey returns the persistence key of owner's audio preferences.
func PreferencesKey(owner string) string {
	return PreferencesKeyPrefix + "." + OwnerOrDefault(owner)
}

// OwnerOrDefault maps a blank owner to DefaultOwner.
func OwnerOrDefault(owner string) string {
	if strings.TrimSpace(owner) == "" {
		return DefaultOwner
	}
	return owner
}

// Preferences are the per-user audio settings that survive restarts.
type Preferences struct {
	PushToTalk bool `json:"pushToTalkUI"`
	Playback   bool `json:"audioPlaybackEnabled"`
}

// DefaultPreferences returns push-to-talk on and playback on.
func DefaultPreferences() Preferences {
	return Preferences{PushToTalk: true, Playback: true}
}
