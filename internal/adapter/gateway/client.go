package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"wingman/internal/domain"
)

// clientReadLimit bounds one inbound frame; transcript.get may return a
// long conversation.
const clientReadLimit = 8 << 20

// RPCError is a failed call as reported by the server.
type RPCError struct {
	Method  string
	Message string
	Code    domain.ErrorCode
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// ErrorCode returns the code the server classified the failure with.
func (e *RPCError) ErrorCode() domain.ErrorCode { return e.Code }

// Client speaks the gateway protocol from the other end of the socket.
// Calls may run concurrently; events are delivered on Events.
type Client struct {
	ws     *websocket.Conn
	logger *slog.Logger
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Frame
	err     error

	events    chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to a gateway at url (ws://host:port/ws) with a bearer token.
func Dial(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, domain.WrapOp("gateway.Dial", err)
	}
	ws.SetReadLimit(clientReadLimit)

	c := &Client{
		ws:      ws,
		logger:  logger,
		pending: make(map[uint64]chan Frame),
		events:  make(chan domain.Event, 256),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events returns the bus events forwarded to this user. The channel is
// closed when the connection ends.
func (c *Client) Events() <-chan domain.Event { return c.events }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Call invokes method with params and decodes the result into result
// (which may be nil).
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	req := Frame{Type: FrameTypeRequest, ID: c.nextID.Add(1), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return domain.NewDomainError("Client.Call", domain.ErrInvalidInput, err.Error())
		}
		req.Payload = raw
	}

	ch := make(chan Frame, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	if err := wsjson.Write(ctx, c.ws, req); err != nil {
		return domain.WrapOp("Client.Call", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.closedErr()
	case resp := <-ch:
		if resp.Error != "" {
			return &RPCError{Method: method, Message: resp.Error, Code: domain.ErrorCode(resp.Code)}
		}
		if result == nil || len(resp.Payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Payload, result); err != nil {
			return domain.NewDomainError("Client.Call", domain.ErrCorruptData, err.Error())
		}
		return nil
	}
}

// Close ends the connection.
func (c *Client) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return domain.ErrTransportClosed
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		var frame Frame
		if err := wsjson.Read(context.Background(), c.ws, &frame); err != nil {
			c.mu.Lock()
			c.err = domain.NewDomainError("Client.read", domain.ErrTransportClosed, err.Error())
			c.mu.Unlock()
			return
		}

		switch frame.Type {
		case FrameTypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[frame.ID]
			c.mu.Unlock()
			if ok {
				ch <- frame
			}
		case FrameTypeEvent:
			var ev domain.Event
			if err := json.Unmarshal(frame.Payload, &ev); err != nil {
				c.logger.Debug("malformed event frame", "error", err)
				continue
			}
			select {
			case c.events <- ev:
			default:
				c.logger.Warn("gateway client: dropped event", "event", string(ev.Type))
			}
		}
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.err == nil {
			c.err = domain.ErrTransportClosed
		}
		c.mu.Unlock()
		close(c.done)
		close(c.events)
	})
}
