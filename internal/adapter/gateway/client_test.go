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
	"wingman/internal/usecase/eventbus"
)

func startClientTestServer(t *testing.T, bus domain.EventBus) *Server {
	t.Helper()
	hub := newTestHub(bus, &fakeDialer{})
	t.Cleanup(hub.CloseAll)
	srv := NewServer(bus, newTestAuth(), hub, "127.0.0.1:0", discard)
	RegisterDefaultHandlers(srv, HandlerDeps{Hub: hub, Bus: bus, Logger: discard})
	return runServer(t, srv)
}

func dialClient(t *testing.T, srv *Server, token string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws://"+srv.BoundAddr()+"/ws", token, discard)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientCall(t *testing.T) {
	srv := startClientTestServer(t, &testBus{})
	c := dialClient(t, srv, "test-token")
	ctx := context.Background()

	var st usecase.Status
	require.NoError(t, c.Call(ctx, "connection.connect", nil, &st))
	assert.Equal(t, domain.StateConnected, st.State)

	var sessions []domain.SessionSummary
	require.NoError(t, c.Call(ctx, "session.list", nil, &sessions))
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Active)

	require.NoError(t, c.Call(ctx, "text.send", map[string]string{"text": "hello"}, nil))
}

func TestClientCallError(t *testing.T) {
	srv := startClientTestServer(t, &testBus{})
	c := dialClient(t, srv, "test-token")

	err := c.Call(context.Background(), "session.select", map[string]string{"id": "missing"}, nil)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "session.select", rpcErr.Method)
	assert.Equal(t, domain.CodeSessionNotFound, rpcErr.Code)

	err = c.Call(context.Background(), "no.such.method", nil, nil)
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, domain.CodeRPCMethodNotFound, rpcErr.Code)
}

func TestClientDialUnauthorized(t *testing.T) {
	srv := startClientTestServer(t, &testBus{})
	_, err := Dial(context.Background(), "ws://"+srv.BoundAddr()+"/ws", "bad-token", discard)
	assert.Error(t, err)
}

func TestClientEvents(t *testing.T) {
	bus := &testBus{}
	srv := startClientTestServer(t, bus)
	c := dialClient(t, srv, "test-token")

	// A round trip guarantees the server registered the connection.
	require.NoError(t, c.Call(context.Background(), "connection.status", nil, nil))
	bus.Publish(context.Background(), eventbus.NewEvent(domain.EventRecordingSaved, "ae-2", "", map[string]string{"path": "x"}))
	bus.Publish(context.Background(), eventbus.NewEvent(domain.EventRecordingSaved, "ae-1", "s-1", map[string]string{"path": "y"}))

	select {
	case ev := <-c.Events():
		assert.Equal(t, domain.EventRecordingSaved, ev.Type)
		assert.Equal(t, "ae-1", ev.Owner)
		assert.JSONEq(t, `{"path":"y"}`, string(ev.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestClientClosedByServer(t *testing.T) {
	srv := startClientTestServer(t, &testBus{})
	c := dialClient(t, srv, "test-token")
	require.NoError(t, c.Call(context.Background(), "connection.status", nil, nil))

	srv.Stop(context.Background())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the close")
	}
	err := c.Call(context.Background(), "connection.status", nil, nil)
	assert.ErrorIs(t, err, domain.ErrTransportClosed)
	_, open := <-c.Events()
	assert.False(t, open)
}
