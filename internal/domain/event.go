package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published on the bus.
type EventType string

const (
	EventConnectionChanged EventType = "connection.changed"
	EventAgentChanged      EventType = "agent.changed"
	EventTranscriptChanged EventType = "transcript.changed"
	EventSessionCreated    EventType = "session.created"
	EventSessionSelected   EventType = "session.selected"
	EventSessionsHydrated  EventType = "session.hydrated"
	EventClientEvent       EventType = "transport.client_event"
	EventServerEvent       EventType = "transport.server_event"
	EventToolCallStarted   EventType = "tool.call.started"
	EventToolCallCompleted EventType = "tool.call.completed"
	EventSupervisorCalled  EventType = "supervisor.called"
	EventAudioOutput       EventType = "audio.output"
	EventPreferences       EventType = "preferences.changed"
	EventRecordingSaved    EventType = "recording.saved"
)

// Event is the envelope published on the event bus.
type Event struct {
	ID        string          `json:"id,omitempty"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Owner     string          `json:"owner,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// Realtime client event types.
const (
	ClientSessionUpdate      = "session.update"
	ClientItemCreate         = "conversation.item.create"
	ClientResponseCreate     = "response.create"
	ClientResponseCancel     = "response.cancel"
	ClientInputAudioClear    = "input_audio_buffer.clear"
	ClientInputAudioCommit   = "input_audio_buffer.commit"
	ClientInputAudioAppend   = "input_audio_buffer.append"
	ClientOutputAudioClear   = "output_audio_buffer.clear"
	ServerSessionCreated     = "session.created"
	ServerItemCreated        = "conversation.item.created"
	ServerTranscriptionDone  = "conversation.item.input_audio_transcription.completed"
	ServerTranscriptionDelta = "conversation.item.input_audio_transcription.delta"
	ServerAudioTranscript    = "response.audio_transcript.delta"
	ServerOutputTranscript   = "response.output_audio_transcript.delta"
	ServerTextDelta          = "response.text.delta"
	ServerOutputTextDelta    = "response.output_text.delta"
	ServerOutputItemDone     = "response.output_item.done"
	ServerResponseDone       = "response.done"
	ServerAudioDelta         = "response.audio.delta"
	ServerOutputAudioDelta   = "response.output_audio.delta"
	ServerError              = "error"
)

// TurnDetection is the server-side voice activity detection policy.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

// ServerVAD returns the fixed voice activity detection parameters.
func ServerVAD() *TurnDetection {
	return &TurnDetection{
		Type:              "server_vad",
		Threshold:         0.9,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 500,
		CreateResponse:    true,
	}
}

// TurnDetectionFor returns nil under push-to-talk and server VAD otherwise.
func TurnDetectionFor(pushToTalk bool) *TurnDetection {
	if pushToTalk {
		return nil
	}
	return ServerVAD()
}

// TurnDetectionSession is the session payload of a turn-detection update.
// TurnDetection marshals as null when push-to-talk disables server VAD.
type TurnDetectionSession struct {
	TurnDetection *TurnDetection `json:"turn_detection"`
}

// ContentPart is one piece of message content.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// ConversationItem is an item sent to or received from the transport.
type ConversationItem struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type"`
	Role      string        `json:"role,omitempty"`
	Status    string        `json:"status,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
	Name      string        `json:"name,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
}

// Text returns the concatenated text or transcript of the item's content.
func (it ConversationItem) Text() string {
	var s string
	for _, c := range it.Content {
		if c.Text != "" {
			s += c.Text
		} else {
			s += c.Transcript
		}
	}
	return s
}

// ClientEvent is an event sent to the realtime transport.
type ClientEvent struct {
	Type    string            `json:"type"`
	EventID string            `json:"event_id,omitempty"`
	Session any               `json:"session,omitempty"`
	Item    *ConversationItem `json:"item,omitempty"`
	Audio   string            `json:"audio,omitempty"`
}

// NewTurnDetectionUpdate builds the session.update carrying the turn policy.
func NewTurnDetectionUpdate(pushToTalk bool) ClientEvent {
	return ClientEvent{
		Type:    ClientSessionUpdate,
		Session: TurnDetectionSession{TurnDetection: TurnDetectionFor(pushToTalk)},
	}
}

// NewUserText builds a conversation.item.create for a user text message.
func NewUserText(id, text string) ClientEvent {
	return ClientEvent{
		Type: ClientItemCreate,
		Item: &ConversationItem{
			ID:      id,
			Type:    ItemTypeMessage,
			Role:    string(RoleUser),
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

// NewFunctionCallOutput builds a conversation.item.create carrying a tool result.
func NewFunctionCallOutput(callID, output string) ClientEvent {
	return ClientEvent{
		Type: ClientItemCreate,
		Item: &ConversationItem{Type: ItemTypeFunctionCallOutput, CallID: callID, Output: output},
	}
}

// NewInputAudioAppend builds an input_audio_buffer.append with base64 audio.
func NewInputAudioAppend(b64 string) ClientEvent {
	return ClientEvent{Type: ClientInputAudioAppend, Audio: b64}
}

// Simple builds an event that carries only its type.
func Simple(eventType string) ClientEvent {
	return ClientEvent{Type: eventType}
}

// ServerResponse is the response object of response.* server events.
type ServerResponse struct {
	ID     string            `json:"id"`
	Status string            `json:"status,omitempty"`
	Output []json.RawMessage `json:"output,omitempty"`
}

// ServerErrorDetail is the payload of an error server event.
type ServerErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ServerEvent is an event delivered by the realtime transport.
type ServerEvent struct {
	Type       string             `json:"type"`
	EventID    string             `json:"event_id,omitempty"`
	ItemID     string             `json:"item_id,omitempty"`
	Delta      string             `json:"delta,omitempty"`
	Transcript string             `json:"transcript,omitempty"`
	Item       *ConversationItem  `json:"item,omitempty"`
	Response   *ServerResponse    `json:"response,omitempty"`
	Error      *ServerErrorDetail `json:"error,omitempty"`
	Raw        json.RawMessage    `json:"-"`
}

// ParseServerEvent decodes a server event and keeps the raw bytes.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ServerEvent{}, NewDomainError("ParseServerEvent", ErrInvalidInput, err.Error())
	}
	ev.Raw = append(json.RawMessage(nil), data...)
	return ev, nil
}
