package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wingman/internal/domain"
	"wingman/internal/infra/logger"
)

// --- Mocks ---

type mockKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	sets   int
	getErr error
	setErr error
}

func newMockKV() *mockKV { return &mockKV{data: make(map[string][]byte)} }

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *mockKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *mockKV) Name() string { return "mock" }

func (m *mockKV) raw(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

func (m *mockKV) setCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// mockCredentials returns cred, or blocks on gate when set.
type mockCredentials struct {
	mu    sync.Mutex
	cred  string
	err   error
	gate  chan struct{}
	calls int
}

func (m *mockCredentials) FetchCredential(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return m.cred, m.err
}

type mockConn struct {
	mu          sync.Mutex
	sent        []domain.ClientEvent
	muted       bool
	muteCalls   int
	interrupted int
	closed      bool
	sendErr     error
	handler     domain.TransportHandler
}

func (c *mockConn) Send(_ context.Context, ev domain.ClientEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, ev)
	return nil
}

func (c *mockConn) Mute(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.muteCalls++
	c.mu.Unlock()
}

func (c *mockConn) Interrupt(context.Context) error {
	c.mu.Lock()
	c.interrupted++
	c.mu.Unlock()
	return nil
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *mockConn) events() []domain.ClientEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ClientEvent(nil), c.sent...)
}

func (c *mockConn) types() []string {
	var out []string
	for _, ev := range c.events() {
		out = append(out, ev.Type)
	}
	return out
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *mockConn) isMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// mockDialer hands out a new mockConn per Dial, optionally blocking on gate.
type mockDialer struct {
	mu    sync.Mutex
	conns []*mockConn
	opts  []domain.DialOptions
	err   error
	gate  chan struct{}
}

func (d *mockDialer) Dial(ctx context.Context, opts domain.DialOptions) (domain.RealtimeConnection, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts = append(d.opts, opts)
	if d.err != nil {
		return nil, d.err
	}
	c := &mockConn{handler: opts.Handler}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *mockDialer) last() *mockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *mockDialer) lastOpts() domain.DialOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opts[len(d.opts)-1]
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.opts)
}

type mockSink struct {
	mu     sync.Mutex
	frames int
	muted  bool
	paused bool
}

func (s *mockSink) Write([]byte) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

func (s *mockSink) SetMuted(m bool) {
	s.mu.Lock()
	s.muted = m
	s.mu.Unlock()
}

func (s *mockSink) SetPaused(p bool) {
	s.mu.Lock()
	s.paused = p
	s.mu.Unlock()
}

type mockRecorder struct {
	mu     sync.Mutex
	active bool
	codec  domain.Codec
	frames int
	starts int
}

func (r *mockRecorder) Start(codec domain.Codec) {
	r.mu.Lock()
	r.active = true
	r.codec = codec
	r.starts++
	r.mu.Unlock()
}

func (r *mockRecorder) Write([]byte) {
	r.mu.Lock()
	if r.active {
		r.frames++
	}
	r.mu.Unlock()
}

func (r *mockRecorder) Stop() {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
}

func (r *mockRecorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *mockRecorder) Export(context.Context, string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frames == 0 {
		return "", domain.ErrRecorderInactive
	}
	return "/tmp/recording.wav", nil
}

// mockResponder replays responses in order.
type mockResponder struct {
	mu        sync.Mutex
	responses []*domain.ResponsesResponse
	err       error
	requests  []domain.ResponsesRequest
}

func (m *mockResponder) Create(_ context.Context, req domain.ResponsesRequest) (*domain.ResponsesResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	return r, nil
}

func (m *mockResponder) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// --- Helpers ---

var discard = logger.Discard()

func fixedClock() domain.Clock {
	t := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return t }
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
