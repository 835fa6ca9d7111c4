package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"wingman/internal/adapter/store"
	"wingman/internal/domain"
	"wingman/internal/infra/logger"
	"wingman/internal/usecase"
	"wingman/internal/usecase/multiagent"
)

var discard = logger.Discard()

// --- test doubles ---

type testBus struct {
	mu       sync.Mutex
	handlers []domain.EventHandler
	typed    map[domain.EventType][]domain.EventHandler
}

func (b *testBus) Publish(ctx context.Context, event domain.Event) {
	b.mu.Lock()
	hs := make([]domain.EventHandler, 0, len(b.handlers)+len(b.typed[event.Type]))
	hs = append(hs, b.handlers...)
	hs = append(hs, b.typed[event.Type]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(ctx, event)
	}
}

func (b *testBus) Subscribe(t domain.EventType, handler domain.EventHandler) func() {
	b.mu.Lock()
	if b.typed == nil {
		b.typed = make(map[domain.EventType][]domain.EventHandler)
	}
	b.typed[t] = append(b.typed[t], handler)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.typed, t)
		b.mu.Unlock()
	}
}

func (b *testBus) SubscribeAll(handler domain.EventHandler) func() {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.handlers = nil
		b.mu.Unlock()
	}
}

func (b *testBus) Close() {}

type fakeCredentials struct{}

func (fakeCredentials) FetchCredential(context.Context) (string, error) { return "ek_test", nil }

type fakeConn struct {
	mu     sync.Mutex
	sent   []domain.ClientEvent
	closed bool
}

func (c *fakeConn) Send(_ context.Context, ev domain.ClientEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrTransportClosed
	}
	c.sent = append(c.sent, ev)
	return nil
}

func (c *fakeConn) Mute(bool)                       {}
func (c *fakeConn) Interrupt(context.Context) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, ev := range c.sent {
		out[i] = ev.Type
	}
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Dial(context.Context, domain.DialOptions) (domain.RealtimeConnection, error) {
	c := &fakeConn{}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// newTestHub builds a hub whose orchestrators share dialer and an
// in-memory store.
func newTestHub(bus domain.EventBus, dialer *fakeDialer) *Hub {
	kv := store.NewMemoryStore()
	agents := multiagent.NewDefaultRegistry(discard)
	return NewHub(func(_ context.Context, owner string) (*usecase.Orchestrator, error) {
		return usecase.NewOrchestrator(usecase.OrchestratorDeps{
			Owner:       owner,
			Store:       kv,
			Credentials: fakeCredentials{},
			Dialer:      dialer,
			Agents:      agents,
			Bus:         bus,
			Logger:      discard,
		}, usecase.OrchestratorOptions{AgentSet: multiagent.ChatSupervisorKey}), nil
	}, discard)
}

func newTestAuth() Authenticator {
	return NewStaticTokenAuth([]TokenEntry{
		{Token: "test-token", Name: "tester", UserID: "ae-1"},
		{Token: "other-token", Name: "other", UserID: "ae-2"},
	})
}

func startTestServer(t *testing.T, bus domain.EventBus, hub *Hub) *Server {
	t.Helper()
	srv := NewServer(bus, newTestAuth(), hub, "127.0.0.1:0", discard)
	return runServer(t, srv)
}

func runServer(t *testing.T, srv *Server) *Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		_ = srv.Start(ctx)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for srv.BoundAddr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Cleanup(func() {
		srv.Stop(context.Background())
	})
	return srv
}

func dialWS(t *testing.T, addr, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
