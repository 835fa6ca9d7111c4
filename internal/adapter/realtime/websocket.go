package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"wingman/internal/domain"
)

const (
	defaultReadLimit    = 4 << 20
	defaultWriteTimeout = 10 * time.Second
)

// Config holds the dialer settings.
type Config struct {
	URL             string // e.g. "wss://api.openai.com/v1/realtime"
	Model           string
	TranscribeModel string
	WriteTimeout    time.Duration
	HTTPClient      *http.Client
}

// Dialer opens realtime connections over WebSocket.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewDialer creates a Dialer.
func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Dialer{cfg: cfg, logger: logger}
}

func (d *Dialer) endpoint() (string, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return "", domain.NewDomainError("Dialer.endpoint", domain.ErrInvalidInput, err.Error())
	}
	if d.cfg.Model != "" {
		q := u.Query()
		q.Set("model", d.cfg.Model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Dial performs the handshake and sends the configuring session.update for
// the root agent of opts.AgentSet. ctx bounds the handshake only.
func (d *Dialer) Dial(ctx context.Context, opts domain.DialOptions) (domain.RealtimeConnection, error) {
	root, ok := opts.AgentSet.Root()
	if !ok {
		return nil, domain.NewDomainError("Dialer.Dial", domain.ErrAgentSetNotFound, opts.AgentSet.Key)
	}
	wsURL, err := d.endpoint()
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: d.cfg.HTTPClient,
		HTTPHeader: http.Header{
			"Authorization": {"Bearer " + opts.Credential},
			"OpenAI-Beta":   {"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime websocket connect: %w", err)
	}
	ws.SetReadLimit(defaultReadLimit)

	handler := opts.Handler
	if handler == nil {
		handler = nopHandler{}
	}
	connCtx, cancel := context.WithCancel(context.Background())
	c := &connection{
		ws:           ws,
		handler:      handler,
		set:          opts.AgentSet,
		catalogue:    opts.Tools,
		codec:        opts.Codec,
		transcribe:   d.cfg.TranscribeModel,
		writeTimeout: d.cfg.WriteTimeout,
		ctx:          connCtx,
		cancel:       cancel,
		done:         make(chan struct{}),
		logger:       d.logger.With("component", "realtime"),
	}

	if err := c.Send(ctx, sessionUpdate(root, c.set, c.catalogue, c.codec, c.transcribe)); err != nil {
		c.Close()
		return nil, fmt.Errorf("send session config: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// connection is one live realtime WebSocket.
type connection struct {
	ws           *websocket.Conn
	handler      domain.TransportHandler
	set          domain.AgentSet
	catalogue    []domain.ToolDefinition
	codec        domain.Codec
	transcribe   string
	writeTimeout time.Duration

	muted   atomic.Bool
	closing atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func (c *connection) Send(ctx context.Context, ev domain.ClientEvent) error {
	if c.closing.Load() {
		return domain.NewDomainError("connection.Send", domain.ErrTransportClosed, ev.Type)
	}
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, ev); err != nil {
		return domain.NewDomainError("connection.Send", domain.ErrTransportClosed, err.Error())
	}
	return nil
}

func (c *connection) Mute(muted bool) { c.muted.Store(muted) }

func (c *connection) Interrupt(ctx context.Context) error {
	return c.Send(ctx, domain.Simple(domain.ClientResponseCancel))
}

func (c *connection) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.ws.Close(websocket.StatusNormalClosure, "session ended")
		c.cancel()
	})
	return nil
}

// Done is closed when the read loop exits.
func (c *connection) Done() <-chan struct{} { return c.done }

// readLoop delivers inbound events to the handler in arrival order.
func (c *connection) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			if c.closing.Load() {
				return
			}
			c.closing.Store(true)
			c.cancel()
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				err = domain.ErrTransportClosed
			}
			c.logger.Info("realtime transport closed", "error", err)
			c.handler.OnTransportClosed(err)
			return
		}

		ev, err := domain.ParseServerEvent(data)
		if err != nil {
			c.logger.Warn("dropping malformed server event", "error", err)
			continue
		}

		switch ev.Type {
		case domain.ServerAudioDelta, domain.ServerOutputAudioDelta:
			if c.muted.Load() {
				continue
			}
			frame, err := base64.StdEncoding.DecodeString(ev.Delta)
			if err != nil {
				c.logger.Warn("dropping undecodable audio delta", "error", err)
				continue
			}
			c.handler.OnAudio(frame)
			continue
		case domain.ServerResponseDone:
			if target, stripped, ok := c.handoff(ev); ok {
				c.handler.OnServerEvent(stripped)
				c.handler.OnAgentHandoff(target)
				continue
			}
		case domain.ServerError:
			if ev.Error != nil {
				c.logger.Warn("realtime server error", "type", ev.Error.Type, "code", ev.Error.Code, "message", ev.Error.Message)
			}
		}
		c.handler.OnServerEvent(ev)
	}
}

// handoff detects a transfer_to_<agent> call in a response.done. It
// reconfigures the session for the target, answers the call and returns
// the event without the transfer call.
func (c *connection) handoff(ev domain.ServerEvent) (string, domain.ServerEvent, bool) {
	if ev.Response == nil {
		return "", ev, false
	}
	var (
		target string
		callID string
		kept   = make([]json.RawMessage, 0, len(ev.Response.Output))
	)
	for _, raw := range ev.Response.Output {
		var call domain.FunctionCallItem
		if target == "" && json.Unmarshal(raw, &call) == nil && call.Type == domain.ItemTypeFunctionCall {
			if name, ok := transferTarget(call.Name); ok {
				if _, known := c.set.Find(name); known {
					target, callID = name, call.CallID
					continue
				}
			}
		}
		kept = append(kept, raw)
	}
	if target == "" {
		return "", ev, false
	}

	agent, _ := c.set.Find(target)
	ctx := c.ctx
	if err := c.Send(ctx, sessionUpdate(agent, c.set, c.catalogue, c.codec, c.transcribe)); err != nil {
		c.logger.Warn("handoff session update failed", "agent", target, "error", err)
	}
	output, _ := json.Marshal(map[string]any{"destination_agent": target, "success": true})
	if err := c.Send(ctx, domain.NewFunctionCallOutput(callID, string(output))); err != nil {
		c.logger.Warn("handoff output failed", "agent", target, "error", err)
	}
	if err := c.Send(ctx, domain.Simple(domain.ClientResponseCreate)); err != nil {
		c.logger.Warn("handoff response request failed", "agent", target, "error", err)
	}

	stripped := ev
	resp := *ev.Response
	resp.Output = kept
	stripped.Response = &resp
	if raw, err := replaceOutput(ev.Raw, kept); err == nil {
		stripped.Raw = raw
	}
	return target, stripped, true
}

// replaceOutput rewrites response.output inside a raw server event.
func replaceOutput(raw json.RawMessage, output []json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty event")
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, err
	}
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(top["response"], &resp); err != nil {
		return nil, err
	}
	out, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	resp["output"] = out
	if top["response"], err = json.Marshal(resp); err != nil {
		return nil, err
	}
	return json.Marshal(top)
}

type nopHandler struct{}

func (nopHandler) OnServerEvent(domain.ServerEvent) {}
func (nopHandler) OnAgentHandoff(string)            {}
func (nopHandler) OnAudio([]byte)                   {}
func (nopHandler) OnTransportClosed(error)          {}
