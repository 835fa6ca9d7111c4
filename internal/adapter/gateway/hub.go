package gateway

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"wingman/internal/domain"
	"wingman/internal/usecase"
)

// OrchestratorFactory builds the orchestrator of one user. The hub hydrates
// it before first use.
type OrchestratorFactory func(ctx context.Context, owner string) (*usecase.Orchestrator, error)

type hubEntry struct {
	orch      *usecase.Orchestrator // nil until ready is closed
	refs      int
	idleSince time.Time
	ready     chan struct{}
	err       error
}

// Hub owns one orchestrator per user and counts the gateway clients
// attached to it. Orchestrators outlive their clients so a reconnecting
// browser tab finds its transcript; the transport is dropped when the last
// client leaves.
type Hub struct {
	mu      sync.Mutex
	factory OrchestratorFactory
	entries map[string]*hubEntry
	logger  *slog.Logger
	now     func() time.Time
}

// NewHub creates an empty hub.
func NewHub(factory OrchestratorFactory, logger *slog.Logger) *Hub {
	return &Hub{
		factory: factory,
		entries: make(map[string]*hubEntry),
		logger:  logger,
		now:     time.Now,
	}
}

// Acquire returns owner's orchestrator, creating and hydrating it on first
// use, and registers one more attached client. Creation runs outside the hub
// lock; concurrent callers for the same owner wait for it.
func (h *Hub) Acquire(ctx context.Context, owner string) (*usecase.Orchestrator, error) {
	owner = domain.OwnerOrDefault(owner)

	h.mu.Lock()
	if e, ok := h.entries[owner]; ok {
		e.refs++
		e.idleSince = time.Time{}
		h.mu.Unlock()
		return h.await(ctx, e)
	}
	e := &hubEntry{refs: 1, ready: make(chan struct{})}
	h.entries[owner] = e
	h.mu.Unlock()

	orch, err := h.create(ctx, owner)

	h.mu.Lock()
	defer h.mu.Unlock()
	defer close(e.ready)
	if err == nil && h.entries[owner] != e {
		orch.Close()
		err = domain.NewDomainError("Hub.Acquire", domain.ErrNotFound, "hub closed during creation")
	}
	if err != nil {
		if h.entries[owner] == e {
			delete(h.entries, owner)
		}
		e.err = err
		return nil, err
	}
	e.orch = orch
	h.logger.Info("orchestrator created", "owner", owner)
	return orch, nil
}

func (h *Hub) create(ctx context.Context, owner string) (*usecase.Orchestrator, error) {
	orch, err := h.factory(ctx, owner)
	if err != nil {
		return nil, domain.WrapOp("Hub.Acquire", err)
	}
	if err := orch.Hydrate(ctx); err != nil {
		orch.Close()
		return nil, domain.WrapOp("Hub.Acquire", err)
	}
	return orch, nil
}

// await waits for an entry another caller is creating.
func (h *Hub) await(ctx context.Context, e *hubEntry) (*usecase.Orchestrator, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		h.mu.Lock()
		e.refs--
		h.mu.Unlock()
		return nil, domain.WrapOp("Hub.Acquire", ctx.Err())
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.orch, nil
}

// Get returns owner's orchestrator without attaching a client.
func (h *Hub) Get(owner string) (*usecase.Orchestrator, error) {
	owner = domain.OwnerOrDefault(owner)

	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[owner]
	if !ok || e.orch == nil {
		return nil, domain.NewDomainError("Hub.Get", domain.ErrNotFound, owner)
	}
	return e.orch, nil
}

// Release detaches one client. The last release disconnects the transport.
func (h *Hub) Release(owner string) {
	owner = domain.OwnerOrDefault(owner)

	h.mu.Lock()
	e, ok := h.entries[owner]
	if !ok {
		h.mu.Unlock()
		return
	}
	e.refs--
	idle := e.refs <= 0 && e.orch != nil
	if idle {
		e.refs = 0
		e.idleSince = h.now()
	}
	h.mu.Unlock()

	if idle {
		h.logger.Debug("last client left, disconnecting", "owner", owner)
		e.orch.Disconnect()
	}
}

// Clients reports how many clients are attached to owner.
func (h *Hub) Clients(owner string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.entries[domain.OwnerOrDefault(owner)]; ok {
		return e.refs
	}
	return 0
}

// Owners lists the users with an orchestrator, sorted.
func (h *Hub) Owners() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	owners := make([]string, 0, len(h.entries))
	for o := range h.entries {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners
}

// Connected counts orchestrators whose transport is not disconnected.
func (h *Hub) Connected() int {
	h.mu.Lock()
	orchs := make([]*usecase.Orchestrator, 0, len(h.entries))
	for _, e := range h.entries {
		if e.orch != nil {
			orchs = append(orchs, e.orch)
		}
	}
	h.mu.Unlock()

	n := 0
	for _, o := range orchs {
		if o.Status().State != domain.StateDisconnected {
			n++
		}
	}
	return n
}

// ReapIdle closes the orchestrators without clients for longer than maxIdle
// and returns how many were closed. Their sessions stay persisted; the next
// Acquire hydrates a fresh orchestrator.
func (h *Hub) ReapIdle(maxIdle time.Duration) int {
	cutoff := h.now().Add(-maxIdle)

	h.mu.Lock()
	var reaped []*usecase.Orchestrator
	for owner, e := range h.entries {
		if e.orch != nil && e.refs == 0 && !e.idleSince.IsZero() && !e.idleSince.After(cutoff) {
			reaped = append(reaped, e.orch)
			delete(h.entries, owner)
			h.logger.Debug("reaping idle orchestrator", "owner", owner)
		}
	}
	h.mu.Unlock()

	for _, o := range reaped {
		o.Close()
	}
	return len(reaped)
}

// CloseAll closes every orchestrator and empties the hub.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	entries := h.entries
	h.entries = make(map[string]*hubEntry)
	h.mu.Unlock()

	for owner, e := range entries {
		if e.orch == nil {
			continue
		}
		e.orch.Close()
		h.logger.Debug("orchestrator closed", "owner", owner)
	}
}
