package domain

import (
	"context"
	"time"
)

// KVStore is the persistence port. Get returns ErrNotFound when key is absent.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Name() string
}

// CredentialProvider fetches an ephemeral realtime credential from the token service.
type CredentialProvider interface {
	FetchCredential(ctx context.Context) (string, error)
}

// DialOptions are fixed for the lifetime of one connection.
type DialOptions struct {
	Credential string
	Codec      Codec
	AgentSet   AgentSet
	Tools      []ToolDefinition
	Handler    TransportHandler
}

// RealtimeDialer opens realtime connections.
type RealtimeDialer interface {
	Dial(ctx context.Context, opts DialOptions) (RealtimeConnection, error)
}

// RealtimeConnection is a handle to one live transport session. Closing a
// handle never affects connections dialed later.
type RealtimeConnection interface {
	Send(ctx context.Context, ev ClientEvent) error
	// Mute suppresses inbound audio frames when true.
	Mute(muted bool)
	// Interrupt cancels in-progress assistant output.
	Interrupt(ctx context.Context) error
	Close() error
}

// TransportHandler receives inbound transport callbacks in delivery order.
type TransportHandler interface {
	OnServerEvent(ev ServerEvent)
	OnAgentHandoff(agentName string)
	OnAudio(frame []byte)
	OnTransportClosed(err error)
}

// AudioSink is the local playback output.
type AudioSink interface {
	Write(frame []byte)
	SetMuted(muted bool)
	SetPaused(paused bool)
}

// Recorder taps output audio for local export. Implementations never block.
type Recorder interface {
	Start(codec Codec)
	Write(frame []byte)
	Stop()
	Active() bool
	// Export writes the captured audio as a WAV file and returns its path.
	Export(ctx context.Context, name string) (string, error)
}

// Responder submits a Responses API request to the supervisor model.
type Responder interface {
	Create(ctx context.Context, req ResponsesRequest) (*ResponsesResponse, error)
}

// Clock returns the current time; tests substitute a fixed clock.
type Clock func() time.Time
