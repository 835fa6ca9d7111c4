package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"wingman/internal/domain"
)

// DefaultQueueSize is the per-subscriber buffer used by New.
const DefaultQueueSize = 256

type delivery struct {
	ctx   context.Context
	event domain.Event
}

type subscription struct {
	id        uint64
	eventType domain.EventType // empty for all-event subscribers
	handler   domain.EventHandler
	queue     chan delivery
	quit      chan struct{}
	once      sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.quit) })
}

// Bus is an in-process, goroutine-safe event bus. Every subscriber has its
// own queue and worker, so a subscriber sees events in publish order and a
// slow subscriber never delays the publisher or other subscribers.
type Bus struct {
	mu        sync.RWMutex
	subs      map[uint64]*subscription
	nextID    atomic.Uint64
	logger    *slog.Logger
	wg        sync.WaitGroup
	closed    atomic.Bool
	queueSize int
	dropped   atomic.Uint64
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return NewWithQueue(logger, DefaultQueueSize)
}

// NewWithQueue creates an event bus whose subscribers buffer up to size events.
func NewWithQueue(logger *slog.Logger, size int) *Bus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Bus{
		subs:      make(map[uint64]*subscription),
		logger:    logger,
		queueSize: size,
	}
}

// NewEvent builds an event envelope with a JSON-encoded payload.
func NewEvent(eventType domain.EventType, owner, sessionID string, payload any) domain.Event {
	ev := domain.Event{Type: eventType, Owner: owner, SessionID: sessionID}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	return ev
}

// Publish stamps the event with an ID and timestamp and queues it for every
// matching subscriber. Events for a full subscriber queue are dropped.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.eventType == "" || s.eventType == event.Type {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	d := delivery{ctx: context.WithoutCancel(ctx), event: event}
	for _, s := range targets {
		select {
		case s.queue <- d:
		case <-s.quit:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber queue full",
				"event", string(event.Type),
				"subscription", s.id,
			)
		}
	}
}

// Dropped returns the number of events dropped because a queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add("", handler)
}

func (b *Bus) add(eventType domain.EventType, handler domain.EventHandler) func() {
	s := &subscription{
		id:        b.nextID.Add(1),
		eventType: eventType,
		handler:   handler,
		queue:     make(chan delivery, b.queueSize),
		quit:      make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run(s)

	return func() {
		b.mu.Lock()
		delete(b.subs, s.id)
		b.mu.Unlock()
		s.stop()
	}
}

func (b *Bus) run(s *subscription) {
	defer b.wg.Done()
	for {
		select {
		case d := <-s.queue:
			b.invoke(s, d)
		case <-s.quit:
			// Deliver what was queued before the stop.
			for {
				select {
				case d := <-s.queue:
					b.invoke(s, d)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) invoke(s *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	s.handler(d.ctx, d.event)
}

// Close prevents new publishes and waits for queued events to be handled.
// Close is idempotent and safe to call multiple times.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	for _, s := range b.subs {
		s.stop()
	}
	b.mu.Unlock()
	b.wg.Wait()
}
