package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingman/internal/domain"
	"wingman/internal/usecase"
)

func TestHubAcquireIsLazyAndShared(t *testing.T) {
	hub := newTestHub(&testBus{}, &fakeDialer{})
	t.Cleanup(hub.CloseAll)

	a, err := hub.Acquire(context.Background(), "ae-1")
	require.NoError(t, err)
	b, err := hub.Acquire(context.Background(), "ae-1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 2, hub.Clients("ae-1"))
	assert.True(t, a.Sessions().Hydrated())

	c, err := hub.Acquire(context.Background(), "ae-2")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, []string{"ae-1", "ae-2"}, hub.Owners())
}

func TestHubBlankOwnerIsDefault(t *testing.T) {
	hub := newTestHub(&testBus{}, &fakeDialer{})
	t.Cleanup(hub.CloseAll)

	o, err := hub.Acquire(context.Background(), " ")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultOwner, o.Owner())

	got, err := hub.Get("")
	require.NoError(t, err)
	assert.Same(t, o, got)
}

func TestHubLastReleaseDisconnects(t *testing.T) {
	hub := newTestHub(&testBus{}, &fakeDialer{})
	t.Cleanup(hub.CloseAll)

	o, err := hub.Acquire(context.Background(), "ae-1")
	require.NoError(t, err)
	_, err = hub.Acquire(context.Background(), "ae-1")
	require.NoError(t, err)
	require.NoError(t, o.Connect(context.Background()))
	assert.Equal(t, 1, hub.Connected())

	hub.Release("ae-1")
	assert.Equal(t, domain.StateConnected, o.Status().State, "another client is still attached")

	hub.Release("ae-1")
	assert.Equal(t, domain.StateDisconnected, o.Status().State)
	assert.Equal(t, 0, hub.Connected())

	hub.Release("ae-1")
	assert.Equal(t, 0, hub.Clients("ae-1"))
	hub.Release("nobody")
}

func TestHubFactoryError(t *testing.T) {
	boom := errors.New("no store")
	hub := NewHub(func(context.Context, string) (*usecase.Orchestrator, error) {
		return nil, boom
	}, discard)

	_, err := hub.Acquire(context.Background(), "ae-1")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, hub.Owners())

	_, err = hub.Get("ae-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHubSlowCreationBlocksOnlyItsOwner(t *testing.T) {
	base := newTestHub(&testBus{}, &fakeDialer{})
	entered := make(chan struct{})
	release := make(chan struct{})
	hub := NewHub(func(ctx context.Context, owner string) (*usecase.Orchestrator, error) {
		if owner == "ae-1" {
			close(entered)
			<-release
		}
		return base.factory(ctx, owner)
	}, discard)
	t.Cleanup(hub.CloseAll)

	type result struct {
		orch *usecase.Orchestrator
		err  error
	}
	first := make(chan result, 1)
	go func() {
		o, err := hub.Acquire(context.Background(), "ae-1")
		first <- result{o, err}
	}()
	<-entered

	other, err := hub.Acquire(context.Background(), "ae-2")
	require.NoError(t, err)
	assert.True(t, other.Sessions().Hydrated())
	assert.Equal(t, 1, hub.Clients("ae-1"))
	_, err = hub.Get("ae-1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "not served before it is hydrated")

	second := make(chan result, 1)
	go func() {
		o, err := hub.Acquire(context.Background(), "ae-1")
		second <- result{o, err}
	}()
	assert.Eventually(t, func() bool { return hub.Clients("ae-1") == 2 }, time.Second, 5*time.Millisecond)

	close(release)
	a, b := <-first, <-second
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Same(t, a.orch, b.orch)
	assert.True(t, a.orch.Sessions().Hydrated())
}

func TestHubWaiterGivesUpOnCancel(t *testing.T) {
	base := newTestHub(&testBus{}, &fakeDialer{})
	entered := make(chan struct{})
	release := make(chan struct{})
	hub := NewHub(func(ctx context.Context, owner string) (*usecase.Orchestrator, error) {
		close(entered)
		<-release
		return base.factory(ctx, owner)
	}, discard)
	t.Cleanup(hub.CloseAll)

	done := make(chan error, 1)
	go func() {
		_, err := hub.Acquire(context.Background(), "ae-1")
		done <- err
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := hub.Acquire(ctx, "ae-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, hub.Clients("ae-1"))

	close(release)
	require.NoError(t, <-done)
}

func TestHubCloseAll(t *testing.T) {
	hub := newTestHub(&testBus{}, &fakeDialer{})

	o, err := hub.Acquire(context.Background(), "ae-1")
	require.NoError(t, err)
	require.NoError(t, o.Connect(context.Background()))

	hub.CloseAll()
	assert.Empty(t, hub.Owners())
	assert.Equal(t, domain.StateDisconnected, o.Status().State)
}

func TestHubReapIdle(t *testing.T) {
	hub := newTestHub(&testBus{}, &fakeDialer{})
	t.Cleanup(hub.CloseAll)
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	hub.now = func() time.Time { return now }

	_, err := hub.Acquire(context.Background(), "ae-1")
	require.NoError(t, err)
	_, err = hub.Acquire(context.Background(), "ae-2")
	require.NoError(t, err)

	hub.Release("ae-1")
	assert.Equal(t, 0, hub.ReapIdle(30*time.Minute), "ae-1 only just left")

	now = now.Add(31 * time.Minute)
	assert.Equal(t, 1, hub.ReapIdle(30*time.Minute))
	assert.Equal(t, []string{"ae-2"}, hub.Owners(), "attached owners are kept")

	// A returning user gets a fresh, hydrated orchestrator.
	o, err := hub.Acquire(context.Background(), "ae-1")
	require.NoError(t, err)
	assert.True(t, o.Sessions().Hydrated())
}

func TestHubReacquireClearsIdle(t *testing.T) {
	hub := newTestHub(&testBus{}, &fakeDialer{})
	t.Cleanup(hub.CloseAll)
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	hub.now = func() time.Time { return now }

	_, err := hub.Acquire(context.Background(), "ae-1")
	require.NoError(t, err)
	hub.Release("ae-1")
	_, err = hub.Acquire(context.Background(), "ae-1")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	assert.Equal(t, 0, hub.ReapIdle(time.Minute))
}
