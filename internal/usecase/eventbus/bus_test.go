package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingman/internal/domain"
	"wingman/internal/infra/logger"
)

func newTestBus() *Bus {
	return New(logger.Discard())
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventConnectionChanged, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventConnectionChanged {
			got.Add(1)
		}
	})
	bus.Subscribe(domain.EventAgentChanged, func(_ context.Context, _ domain.Event) {
		t.Error("typed subscriber received a foreign event")
	})

	bus.Publish(context.Background(), domain.Event{Type: domain.EventConnectionChanged})
	bus.Close()
	assert.Equal(t, int32(1), got.Load())
}

func TestPublishStampsIDAndTimestamp(t *testing.T) {
	bus := newTestBus()

	events := make(chan domain.Event, 1)
	bus.SubscribeAll(func(_ context.Context, e domain.Event) { events <- e })
	bus.Publish(context.Background(), NewEvent(domain.EventSessionCreated, "user-1", "s1", map[string]string{"title": "New Session"}))
	bus.Close()

	e := <-events
	assert.Len(t, e.ID, 26, "ULID string")
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "user-1", e.Owner)
	assert.JSONEq(t, `{"title":"New Session"}`, string(e.Payload))
}

func TestSubscriberSeesPublishOrder(t *testing.T) {
	bus := newTestBus()

	var mu sync.Mutex
	var seen []string
	bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		mu.Lock()
		seen = append(seen, e.SessionID)
		mu.Unlock()
	})

	want := make([]string, 50)
	for i := range want {
		want[i] = string(rune('a' + i%26))
		bus.Publish(context.Background(), domain.Event{Type: domain.EventTranscriptChanged, SessionID: want[i]})
	}
	bus.Close()

	assert.Equal(t, want, seen)
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	unsub := bus.Subscribe(domain.EventConnectionChanged, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})
	unsub()
	unsub()

	bus.Publish(context.Background(), domain.Event{Type: domain.EventConnectionChanged})
	bus.Close()
	assert.Equal(t, int32(0), got.Load())
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventServerEvent, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), domain.Event{Type: domain.EventServerEvent})
		}()
	}
	wg.Wait()
	bus.Close()

	assert.Equal(t, int32(100), got.Load())
}

func TestFullQueueDrops(t *testing.T) {
	bus := NewWithQueue(logger.Discard(), 1)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	bus.Publish(context.Background(), domain.Event{Type: domain.EventAudioOutput})
	<-started
	bus.Publish(context.Background(), domain.Event{Type: domain.EventAudioOutput}) // queued
	bus.Publish(context.Background(), domain.Event{Type: domain.EventAudioOutput}) // dropped
	close(release)
	bus.Close()

	assert.Equal(t, uint64(1), bus.Dropped())
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) { panic("boom") })
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) { got.Add(1) })

	bus.Publish(context.Background(), domain.Event{Type: domain.EventAgentChanged})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventAgentChanged})
	bus.Close()
	assert.Equal(t, int32(2), got.Load())
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		time.Sleep(20 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), domain.Event{Type: domain.EventAgentChanged})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventAgentChanged})
	bus.Close()
	require.Equal(t, int32(2), got.Load())

	bus.Publish(context.Background(), domain.Event{Type: domain.EventAgentChanged})
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(2), got.Load())
	bus.Close()
}
