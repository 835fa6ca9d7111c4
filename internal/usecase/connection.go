package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"wingman/internal/domain"
	"wingman/internal/infra/tracer"
)

// ConnectionListener observes state transitions of the controller. Listeners
// run in transition order and must not call Connect or Disconnect.
type ConnectionListener func(tr domain.Transition)

// ConnectRequest carries what one connection attempt is scoped to.
type ConnectRequest struct {
	Codec    domain.Codec
	AgentSet domain.AgentSet
	Tools    []domain.ToolDefinition
	Handler  domain.TransportHandler
}

// ConnectionControllerOptions tunes a ConnectionController.
type ConnectionControllerOptions struct {
	CredentialTimeout time.Duration // default 10s
	DialTimeout       time.Duration // default 15s
}

// ConnectionController is the DISCONNECTED / CONNECTING / CONNECTED state
// machine around the realtime transport. Every attempt gets a generation;
// results that arrive for an older generation are discarded.
type ConnectionController struct {
	mu          sync.Mutex
	notifyMu    sync.Mutex
	notified    uint64 // generation of the last delivered transition, guarded by notifyMu
	state       domain.ConnectionState
	gen         uint64
	conn        domain.RealtimeConnection
	cancel      context.CancelFunc
	muted       bool
	listeners   []ConnectionListener
	credentials domain.CredentialProvider
	dialer      domain.RealtimeDialer
	logger      *slog.Logger
	credTimeout time.Duration
	dialTimeout time.Duration
}

// NewConnectionController creates a controller in the DISCONNECTED state.
func NewConnectionController(credentials domain.CredentialProvider, dialer domain.RealtimeDialer, logger *slog.Logger, opts ConnectionControllerOptions) *ConnectionController {
	if opts.CredentialTimeout <= 0 {
		opts.CredentialTimeout = 10 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 15 * time.Second
	}
	return &ConnectionController{
		state:       domain.StateDisconnected,
		credentials: credentials,
		dialer:      dialer,
		logger:      logger,
		credTimeout: opts.CredentialTimeout,
		dialTimeout: opts.DialTimeout,
	}
}

// OnTransition registers a listener for state transitions.
func (c *ConnectionController) OnTransition(fn ConnectionListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *ConnectionController) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation returns the generation of the current or last attempt.
func (c *ConnectionController) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// IsCurrent reports whether gen is still the live attempt in state.
func (c *ConnectionController) IsCurrent(gen uint64, state domain.ConnectionState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.state == state
}

// Connect runs one connection attempt. It is a no-op unless the controller is
// DISCONNECTED. It blocks until the attempt is connected, failed or superseded
// by Disconnect; a superseded attempt returns domain.ErrStaleConnection.
func (c *ConnectionController) Connect(ctx context.Context, req ConnectRequest) error {
	c.mu.Lock()
	if c.state != domain.StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	attemptCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	tr := c.setStateLocked(domain.StateConnecting, "connect")
	c.mu.Unlock()
	defer cancel()
	c.notify(tr)

	cred, err := c.fetchCredential(attemptCtx)
	if err != nil {
		if c.abort(gen, "credential failed") {
			c.logger.Error("credential fetch failed", "generation", gen, "error", err)
			return err
		}
		return domain.NewDomainError("ConnectionController.Connect", domain.ErrStaleConnection, "credential")
	}
	if !c.IsCurrent(gen, domain.StateConnecting) {
		c.logger.Debug("discarding credential for superseded attempt", "generation", gen)
		return domain.NewDomainError("ConnectionController.Connect", domain.ErrStaleConnection, "credential")
	}

	conn, err := c.dial(attemptCtx, gen, cred, req)
	if err != nil {
		if c.abort(gen, "handshake failed") {
			c.logger.Error("realtime handshake failed", "generation", gen, "error", err)
			return err
		}
		return domain.NewDomainError("ConnectionController.Connect", domain.ErrStaleConnection, "handshake")
	}

	c.mu.Lock()
	if c.gen != gen || c.state != domain.StateConnecting {
		c.mu.Unlock()
		_ = conn.Close()
		c.logger.Debug("closing connection of superseded attempt", "generation", gen)
		return domain.NewDomainError("ConnectionController.Connect", domain.ErrStaleConnection, "handshake")
	}
	c.conn = conn
	c.cancel = nil
	conn.Mute(c.muted)
	tr = c.setStateLocked(domain.StateConnected, "handshake ok")
	c.mu.Unlock()

	c.logger.Info("realtime connected", "generation", gen, "codec", string(req.Codec))
	c.notify(tr)
	return nil
}

func (c *ConnectionController) fetchCredential(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.credTimeout)
	defer cancel()
	ctx, span := tracer.StartSpan(ctx, "connection.credential")

	cred, err := c.credentials.FetchCredential(ctx)
	if err == nil && cred == "" {
		err = domain.NewSubSystemError("credential", "ConnectionController.fetchCredential", domain.ErrNoCredential, "")
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = domain.NewSubSystemError("credential", "ConnectionController.fetchCredential", domain.ErrTimeout, err.Error())
	}
	tracer.End(span, err)
	return cred, err
}

func (c *ConnectionController) dial(ctx context.Context, gen uint64, cred string, req ConnectRequest) (domain.RealtimeConnection, error) {
	ctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	ctx, span := tracer.StartSpan(ctx, "connection.dial",
		trace.WithAttributes(tracer.StringAttr("codec", string(req.Codec))),
	)

	inner := req.Handler
	if inner == nil {
		inner = noopTransportHandler{}
	}
	conn, err := c.dialer.Dial(ctx, domain.DialOptions{
		Credential: cred,
		Codec:      req.Codec,
		AgentSet:   req.AgentSet,
		Tools:      req.Tools,
		Handler:    &generationHandler{ctrl: c, gen: gen, inner: inner},
	})
	if err != nil {
		err = domain.NewSubSystemError("transport", "ConnectionController.dial", domain.ErrProviderError, err.Error())
	}
	tracer.End(span, err)
	return conn, err
}

// abort returns a CONNECTING attempt to DISCONNECTED. It reports false when
// the attempt was already superseded.
func (c *ConnectionController) abort(gen uint64, reason string) bool {
	c.mu.Lock()
	if c.gen != gen || c.state != domain.StateConnecting {
		c.mu.Unlock()
		return false
	}
	c.cancel = nil
	tr := c.setStateLocked(domain.StateDisconnected, reason)
	c.mu.Unlock()
	c.notify(tr)
	return true
}

// Disconnect tears down the connection or abandons a pending attempt.
func (c *ConnectionController) Disconnect() {
	c.mu.Lock()
	c.gen++
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	var tr domain.Transition
	changed := c.state != domain.StateDisconnected
	if changed {
		tr = c.setStateLocked(domain.StateDisconnected, "disconnect")
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug("closing realtime connection", "error", err)
		}
	}
	if changed {
		c.logger.Info("realtime disconnected", "from", string(tr.From))
		c.notify(tr)
	}
}

// handleClosed moves a live generation to DISCONNECTED when the transport
// goes away on its own.
func (c *ConnectionController) handleClosed(gen uint64, err error) bool {
	c.mu.Lock()
	if c.gen != gen || c.state != domain.StateConnected {
		c.mu.Unlock()
		return false
	}
	c.gen++
	c.conn = nil
	tr := c.setStateLocked(domain.StateDisconnected, "transport closed")
	c.mu.Unlock()

	c.logger.Warn("realtime transport closed", "generation", gen, "error", err)
	c.notify(tr)
	return true
}

// Send forwards a client event to the live connection.
func (c *ConnectionController) Send(ctx context.Context, ev domain.ClientEvent) error {
	conn, err := c.live("ConnectionController.Send")
	if err != nil {
		return err
	}
	return conn.Send(ctx, ev)
}

// Interrupt cancels in-progress assistant output.
func (c *ConnectionController) Interrupt(ctx context.Context) error {
	conn, err := c.live("ConnectionController.Interrupt")
	if err != nil {
		return err
	}
	return conn.Interrupt(ctx)
}

// Mute sets the transport mute state, now and for future connections.
func (c *ConnectionController) Mute(muted bool) {
	c.mu.Lock()
	c.muted = muted
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Mute(muted)
	}
}

func (c *ConnectionController) live(op string) (domain.RealtimeConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.state != domain.StateConnected {
		return nil, domain.NewDomainError(op, domain.ErrNotConnected, string(c.state))
	}
	return c.conn, nil
}

func (c *ConnectionController) setStateLocked(next domain.ConnectionState, reason string) domain.Transition {
	if !c.state.CanTransitionTo(next) {
		// All callers check the state first; reaching here is a bug.
		panic(fmt.Sprintf("connection: invalid transition %s -> %s", c.state, next))
	}
	tr := domain.Transition{From: c.state, To: next, Generation: c.gen, Reason: reason}
	c.state = next
	return tr
}

func (c *ConnectionController) notify(tr domain.Transition) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	// A transition overtaken by a newer generation is not delivered, so
	// listeners never see CONNECTED after the DISCONNECTED that ended it.
	stale := tr.Generation < c.notified || (tr.To != domain.StateDisconnected && tr.Generation != c.gen)
	if stale {
		c.mu.Unlock()
		c.logger.Debug("skipping superseded transition", "to", string(tr.To), "generation", tr.Generation)
		return
	}
	c.notified = tr.Generation
	listeners := make([]ConnectionListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()
	for _, l := range listeners {
		l(tr)
	}
}

// generationHandler drops transport callbacks of superseded connections.
type generationHandler struct {
	ctrl  *ConnectionController
	gen   uint64
	inner domain.TransportHandler
}

func (h *generationHandler) current() bool {
	h.ctrl.mu.Lock()
	defer h.ctrl.mu.Unlock()
	return h.ctrl.gen == h.gen && h.ctrl.state != domain.StateDisconnected
}

func (h *generationHandler) OnServerEvent(ev domain.ServerEvent) {
	if h.current() {
		h.inner.OnServerEvent(ev)
	}
}

func (h *generationHandler) OnAgentHandoff(agentName string) {
	if h.current() {
		h.inner.OnAgentHandoff(agentName)
	}
}

func (h *generationHandler) OnAudio(frame []byte) {
	if h.current() {
		h.inner.OnAudio(frame)
	}
}

func (h *generationHandler) OnTransportClosed(err error) {
	if h.ctrl.handleClosed(h.gen, err) {
		h.inner.OnTransportClosed(err)
	}
}

type noopTransportHandler struct{}

func (noopTransportHandler) OnServerEvent(domain.ServerEvent) {}
func (noopTransportHandler) OnAgentHandoff(string)            {}
func (noopTransportHandler) OnAudio([]byte)                   {}
func (noopTransportHandler) OnTransportClosed(error)          {}
