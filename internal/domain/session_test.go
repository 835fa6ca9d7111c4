package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userMsg(id, text string) TranscriptItem {
	return TranscriptItem{ItemID: id, Type: ItemMessage, Role: RoleUser, Title: text, Status: StatusDone}
}

func TestDeriveTitleFallback(t *testing.T) {
	assert.Equal(t, FallbackSessionTitle, DeriveTitle(nil))

	items := []TranscriptItem{
		{ItemID: "h", Type: ItemMessage, Role: RoleUser, Title: "hi", IsHidden: true},
		{ItemID: "a", Type: ItemMessage, Role: RoleAssistant, Title: "Hello there"},
		{ItemID: "b", Type: ItemBreadcrumb, Title: "Agent: chatAgent"},
		userMsg("u", "   \t  "),
	}
	assert.Equal(t, FallbackSessionTitle, DeriveTitle(items))
}

func TestDeriveTitleShort(t *testing.T) {
	items := []TranscriptItem{userMsg("1", "  quick   update \n on Acme ")}
	assert.Equal(t, "quick update on Acme", DeriveTitle(items))
}

func TestDeriveTitleTruncates(t *testing.T) {
	text := "  Met   Acme  Corp today, they want a demo next week and are comparing us to Rival Co — need pricing guidance  "
	title := DeriveTitle([]TranscriptItem{userMsg("1", text)})
	assert.Equal(t, "Met Acme Corp today, they want a...", title)
	assert.Equal(t, title, DeriveTitle([]TranscriptItem{userMsg("1", text)}), "derivation is idempotent")
}

func TestDeriveTitleTrimsBeforeEllipsis(t *testing.T) {
	// 31 chars followed by a space at position 32.
	text := "abcdefghij abcdefghij abcdefghi jklmnop"
	title := DeriveTitle([]TranscriptItem{userMsg("1", text)})
	assert.Equal(t, "abcdefghij abcdefghij abcdefghi...", title)
}

func TestDeriveTitleCountsRunes(t *testing.T) {
	text := "ééééééééééééééééééééééééééééééééé" // 33 runes
	title := DeriveTitle([]TranscriptItem{userMsg("1", text)})
	assert.Equal(t, string([]rune(text)[:32])+"...", title)
}

func TestNextTitleNeverRegresses(t *testing.T) {
	items := []TranscriptItem{userMsg("1", "Renewal risk at Globex")}
	title := NextTitle(FallbackSessionTitle, items)
	require.Equal(t, "Renewal risk at Globex", title)

	// Replacing the transcript with one that only derives the fallback keeps the title.
	assert.Equal(t, title, NextTitle(title, []TranscriptItem{userMsg("2", "   ")}))
	assert.Equal(t, FallbackSessionTitle, NextTitle(FallbackSessionTitle, nil))
	assert.Equal(t, FallbackSessionTitle, NextTitle("", nil))
}

func TestChatSessionCloneIsDeep(t *testing.T) {
	s := ChatSession{
		ID:    "s1",
		Title: FallbackSessionTitle,
		TranscriptItems: []TranscriptItem{
			{ItemID: "b", Type: ItemBreadcrumb, Data: json.RawMessage(`{"a":1}`)},
		},
	}
	c := s.Clone()
	c.TranscriptItems[0].Title = "changed"
	c.TranscriptItems[0].Data[2] = 'z'

	assert.Equal(t, "", s.TranscriptItems[0].Title)
	assert.Equal(t, `{"a":1}`, string(s.TranscriptItems[0].Data))
}

func TestMessageCountSkipsHiddenAndBreadcrumbs(t *testing.T) {
	s := ChatSession{TranscriptItems: []TranscriptItem{
		{Type: ItemMessage, Role: RoleUser, IsHidden: true},
		{Type: ItemMessage, Role: RoleAssistant},
		{Type: ItemBreadcrumb},
		{Type: ItemMessage, Role: RoleUser},
	}}
	assert.Equal(t, 2, s.MessageCount())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "wingman.chat.sessions.user-1", SessionsKey("user-1"))
	assert.Equal(t, "wingman.chat.sessions.default", SessionsKey(""))
	assert.Equal(t, "wingman.prefs.default", PreferencesKey(" "))
}

func TestSessionJSONShape(t *testing.T) {
	s := ChatSession{ID: "id-1", Title: "t", CreatedAt: 42, TranscriptItems: []TranscriptItem{userMsg("m", "x")}}
	data, err := json.Marshal([]ChatSession{s})
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	for _, key := range []string{"id", "title", "createdAt", "transcriptItems"} {
		assert.Contains(t, raw[0], key)
	}
	item := raw[0]["transcriptItems"].([]any)[0].(map[string]any)
	assert.Equal(t, "m", item["itemId"])
	assert.Equal(t, "MESSAGE", item["type"])
}
