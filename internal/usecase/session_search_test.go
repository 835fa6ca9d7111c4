package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingman/internal/domain"
)

func searchSessions(t *testing.T, ss *SessionStore, query any) []sessionMatch {
	t.Helper()
	out, err := SessionSearchExecutor(ss)(context.Background(), map[string]any{"query": query})
	require.NoError(t, err)
	return out.(map[string]any)["matches"].([]sessionMatch)
}

func TestSessionSearchSkipsActiveAndInvisible(t *testing.T) {
	kv := newMockKV()
	ss, ts := newTestSessions(kv)
	ctx := context.Background()
	require.NoError(t, ss.Hydrate(ctx, "ae-1"))

	ts.AddMessage("hidden", domain.RoleUser, "acme greeting", true)
	ts.AddMessage("u1", domain.RoleUser, "Met Acme Corp today, they want a discount", false)
	ts.AddBreadcrumb("acme breadcrumb", nil)
	ts.AddMessage("a1", domain.RoleAssistant, "Noted the discount request.", false)

	ss.Create(ctx)
	ts.AddMessage("u2", domain.RoleUser, "Acme again in the active session", false)

	matches := searchSessions(t, ss, "ACME")
	require.Len(t, matches, 1)
	assert.Equal(t, "Met Acme Corp today, they want a discount", matches[0].Text)
	assert.Equal(t, string(domain.RoleUser), matches[0].Role)
	assert.Equal(t, "Met Acme Corp today, they want a...", matches[0].Session)

	assert.Len(t, searchSessions(t, ss, "discount"), 2)
}

func TestSessionSearchEmptyQuery(t *testing.T) {
	ss, _ := newTestSessions(newMockKV())
	require.NoError(t, ss.Hydrate(context.Background(), "ae-1"))

	assert.Empty(t, searchSessions(t, ss, "   "))
	assert.Empty(t, searchSessions(t, ss, 42), "non-string query is treated as empty")
}

func TestSessionSearchLimit(t *testing.T) {
	ss, ts := newTestSessions(newMockKV())
	ctx := context.Background()
	require.NoError(t, ss.Hydrate(ctx, "ae-1"))

	for i := 0; i < sessionSearchLimit+5; i++ {
		ts.AddMessage(fmt.Sprintf("u%d", i), domain.RoleUser, fmt.Sprintf("pipeline review %d", i), false)
	}
	ss.Create(ctx)

	assert.Len(t, searchSessions(t, ss, "pipeline"), sessionSearchLimit)
}

func TestSessionSearchDefinition(t *testing.T) {
	def := SessionSearchDefinition()
	assert.Equal(t, SessionSearchTool, def.Name)
	assert.Contains(t, string(def.Parameters), `"query"`)
}
