package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wingman/internal/domain"
	"wingman/internal/usecase/eventbus"
)

const (
	greetingText        = "hi"
	transcribingText    = "[Transcribing...]"
	inaudibleTranscript = "[inaudible]"
)

// AgentResolver picks the agent set a connection starts with.
type AgentResolver interface {
	Resolve(key, agentName string) (domain.AgentSet, domain.AgentDescriptor, error)
}

// OrchestratorDeps are the collaborators of one user's orchestrator.
type OrchestratorDeps struct {
	Owner       string
	Store       domain.KVStore
	Credentials domain.CredentialProvider
	Dialer      domain.RealtimeDialer
	Agents      AgentResolver
	Tools       ToolResolver
	// Transcript is created when nil; pass one to share it with a Supervisor.
	Transcript *TranscriptStore
	Sink       domain.AudioSink
	Recorder   domain.Recorder
	Bus        domain.EventBus
	Logger     *slog.Logger
}

// OrchestratorOptions are the per-user defaults.
type OrchestratorOptions struct {
	AgentSet          string
	Agent             string
	Codec             domain.Codec
	CredentialTimeout time.Duration
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	// Preferences apply until the owner stores their own; nil keeps
	// push-to-talk and playback on.
	Preferences *domain.Preferences
}

// Status is a snapshot of the orchestrator for clients.
type Status struct {
	State           domain.ConnectionState `json:"state"`
	AgentSet        string                 `json:"agentSet"`
	Agent           string                 `json:"agent"`
	Codec           domain.Codec           `json:"codec"`
	PushToTalk      bool                   `json:"pushToTalk"`
	Playback        bool                   `json:"playback"`
	Speaking        bool                   `json:"speaking"`
	ActiveSessionID string                 `json:"activeSessionId"`
}

// agentActivation is one "agent became active" event. SuppressGreeting is
// set by a hand-off and consumed by activateAgent.
type agentActivation struct {
	Agent            string
	SuppressGreeting bool
}

// Orchestrator wires the connection controller, transcript, sessions, turn
// control and tool resolution of one user. It is the TransportHandler of
// every connection it opens.
type Orchestrator struct {
	mu sync.Mutex
	// switchMu serialises session switches with breadcrumbs of tool calls.
	switchMu    sync.Mutex
	owner       string
	agentSetKey string
	agentSet    domain.AgentSet
	agent       string
	codec       domain.Codec

	conn       *ConnectionController
	link       *EventLog
	transcript *TranscriptStore
	sessions   *SessionStore
	turn       *TurnControl
	agents     AgentResolver
	tools      ToolResolver
	recorder   domain.Recorder
	bus        domain.EventBus
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator assembles an orchestrator. Call Hydrate before use.
func NewOrchestrator(deps OrchestratorDeps, opts OrchestratorOptions) *Orchestrator {
	if deps.Owner == "" {
		deps.Owner = domain.DefaultOwner
	}
	if opts.Codec == "" {
		opts.Codec = domain.CodecOpus
	}
	logger := deps.Logger.With("owner", deps.Owner)
	transcript := deps.Transcript
	if transcript == nil {
		transcript = NewTranscriptStore()
	}

	conn := NewConnectionController(deps.Credentials, deps.Dialer, logger, ConnectionControllerOptions{
		CredentialTimeout: opts.CredentialTimeout,
		DialTimeout:       opts.DialTimeout,
	})
	link := NewEventLog(conn, deps.Owner, deps.Bus, logger)
	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		owner:       deps.Owner,
		agentSetKey: opts.AgentSet,
		agent:       opts.Agent,
		codec:       opts.Codec,
		conn:        conn,
		link:        link,
		transcript:  transcript,
		sessions: NewSessionStore(deps.Store, transcript, logger, SessionStoreOptions{
			WriteTimeout: opts.WriteTimeout,
			Bus:          deps.Bus,
		}),
		turn:     NewTurnControl(link, deps.Sink, deps.Recorder, deps.Store, logger),
		agents:   deps.Agents,
		tools:    deps.Tools,
		recorder: deps.Recorder,
		bus:      deps.Bus,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	if opts.Preferences != nil {
		o.turn.SetDefaultPreferences(*opts.Preferences)
	}
	conn.OnTransition(o.onConnectionChanged)
	transcript.Subscribe(o.onTranscriptMutated)
	return o
}

// Transcript returns the live transcript.
func (o *Orchestrator) Transcript() *TranscriptStore { return o.transcript }

// Sessions returns the session store.
func (o *Orchestrator) Sessions() *SessionStore { return o.sessions }

// ToolDefinitions lists the tools offered to the realtime agents.
func (o *Orchestrator) ToolDefinitions() []domain.ToolDefinition {
	if o.tools == nil {
		return []domain.ToolDefinition{}
	}
	return o.tools.Definitions()
}

// Owner returns the identity this orchestrator serves.
func (o *Orchestrator) Owner() string { return o.owner }

// Hydrate loads the owner's sessions and preferences.
func (o *Orchestrator) Hydrate(ctx context.Context) error {
	o.turn.LoadPreferences(ctx, o.owner)
	return o.sessions.Hydrate(ctx, o.owner)
}

// Status reports the current state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		AgentSet: o.agentSet.Key,
		Agent:    o.agent,
		Codec:    o.codec,
	}
	if st.AgentSet == "" {
		st.AgentSet = o.agentSetKey
	}
	o.mu.Unlock()

	prefs := o.turn.Preferences()
	st.State = o.conn.State()
	st.PushToTalk = prefs.PushToTalk
	st.Playback = prefs.Playback
	st.Speaking = o.turn.Speaking()
	st.ActiveSessionID = o.sessions.ActiveID()
	return st
}

// Connect opens a connection for the selected agent set and agent. It is a
// no-op unless disconnected.
func (o *Orchestrator) Connect(ctx context.Context) error {
	if o.conn.State() != domain.StateDisconnected {
		return nil
	}

	o.mu.Lock()
	key, agent, codec := o.agentSetKey, o.agent, o.codec
	o.mu.Unlock()

	set, root, err := o.agents.Resolve(key, agent)
	if err != nil {
		return domain.WrapOp("Orchestrator.Connect", err)
	}

	o.mu.Lock()
	o.agentSet = set
	o.agent = root.Name
	o.mu.Unlock()

	var tools []domain.ToolDefinition
	if o.tools != nil {
		tools = o.tools.Definitions()
	}
	return o.conn.Connect(ctx, ConnectRequest{
		Codec:    codec,
		AgentSet: set,
		Tools:    tools,
		Handler:  o,
	})
}

// Disconnect tears down the connection, or abandons a pending attempt.
func (o *Orchestrator) Disconnect() {
	o.conn.Disconnect()
}

// Toggle connects when disconnected and disconnects otherwise.
func (o *Orchestrator) Toggle(ctx context.Context) error {
	if o.conn.State() == domain.StateDisconnected {
		return o.Connect(ctx)
	}
	o.Disconnect()
	return nil
}

// SetCodec changes the audio codec. A live or pending connection is torn
// down and reconnected with the new codec.
func (o *Orchestrator) SetCodec(ctx context.Context, codec domain.Codec) error {
	if _, err := domain.ParseCodec(string(codec)); err != nil {
		return err
	}
	o.mu.Lock()
	if o.codec == codec {
		o.mu.Unlock()
		return nil
	}
	o.codec = codec
	o.mu.Unlock()

	if o.conn.State() == domain.StateDisconnected {
		return nil
	}
	o.logger.Info("codec changed, reconnecting", "codec", string(codec))
	o.Disconnect()
	return o.Connect(ctx)
}

// SelectSession disconnects and switches to session id. An unknown id
// leaves the connection alone.
func (o *Orchestrator) SelectSession(ctx context.Context, id string) error {
	if id == o.sessions.ActiveID() {
		return nil
	}
	if !o.sessions.Has(id) {
		return domain.NewDomainError("Orchestrator.SelectSession", domain.ErrSessionNotFound, id)
	}
	o.switchMu.Lock()
	defer o.switchMu.Unlock()
	o.Disconnect()
	return o.sessions.Select(ctx, id)
}

// CreateSession disconnects and starts a fresh session.
func (o *Orchestrator) CreateSession(ctx context.Context) domain.ChatSession {
	o.switchMu.Lock()
	defer o.switchMu.Unlock()
	o.Disconnect()
	return o.sessions.Create(ctx)
}

// SendText sends a typed user message and asks for a response. Blank text
// is ignored.
func (o *Orchestrator) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if o.conn.State() != domain.StateConnected {
		err := domain.NewDomainError("Orchestrator.SendText", domain.ErrNotConnected, "")
		o.logger.Warn("text not sent", "error", err)
		return err
	}
	if err := o.link.Interrupt(ctx); err != nil {
		o.logger.Debug("interrupt before text failed", "error", err)
	}
	if err := o.link.Send(ctx, domain.NewUserText("", text)); err != nil {
		return err
	}
	return o.link.Send(ctx, domain.Simple(domain.ClientResponseCreate))
}

// PressTalk starts a push-to-talk turn.
func (o *Orchestrator) PressTalk(ctx context.Context) error { return o.turn.PressTalk(ctx) }

// ReleaseTalk ends a push-to-talk turn.
func (o *Orchestrator) ReleaseTalk(ctx context.Context) error { return o.turn.ReleaseTalk(ctx) }

// SetPushToTalk switches between push-to-talk and voice activity detection.
func (o *Orchestrator) SetPushToTalk(ctx context.Context, on bool) error {
	err := o.turn.SetPushToTalk(ctx, on)
	o.publish(domain.EventPreferences, o.turn.Preferences())
	return err
}

// SetPlayback enables or disables audio playback.
func (o *Orchestrator) SetPlayback(on bool) {
	o.turn.SetPlayback(on)
	o.publish(domain.EventPreferences, o.turn.Preferences())
}

// AppendInputAudio forwards one captured microphone frame.
func (o *Orchestrator) AppendInputAudio(ctx context.Context, frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	return o.link.Send(ctx, domain.NewInputAudioAppend(base64.StdEncoding.EncodeToString(frame)))
}

// ExportRecording writes the captured assistant audio to a WAV file.
func (o *Orchestrator) ExportRecording(ctx context.Context) (string, error) {
	if o.recorder == nil {
		return "", domain.NewDomainError("Orchestrator.ExportRecording", domain.ErrRecorderInactive, "no recorder")
	}
	name := fmt.Sprintf("wingman-%s-%s", o.sessions.ActiveID(), time.Now().UTC().Format("20060102-150405"))
	path, err := o.recorder.Export(ctx, name)
	if err != nil {
		return "", domain.WrapOp("Orchestrator.ExportRecording", err)
	}
	o.logger.Info("recording exported", "path", path)
	o.publish(domain.EventRecordingSaved, map[string]string{"path": path})
	return path, nil
}

// ToggleTranscriptItem flips the expanded flag of a transcript item.
func (o *Orchestrator) ToggleTranscriptItem(id string) bool {
	return o.transcript.ToggleExpand(id)
}

// Close disconnects and waits for in-flight tool resolutions.
func (o *Orchestrator) Close() {
	o.cancel()
	o.Disconnect()
	o.wg.Wait()
}

// onConnectionChanged runs for every controller transition, in order.
func (o *Orchestrator) onConnectionChanged(tr domain.Transition) {
	switch tr.To {
	case domain.StateConnected:
		o.mu.Lock()
		codec, agent := o.codec, o.agent
		o.mu.Unlock()
		o.turn.OnConnected(codec)
		o.activateAgent(agentActivation{Agent: agent})
	case domain.StateDisconnected:
		o.turn.OnDisconnected()
	}
	o.publish(domain.EventConnectionChanged, tr)
}

// OnAgentResolved records the selected agent. While connected it activates
// the agent; handoff marks the activation as caused by a hand-off.
func (o *Orchestrator) OnAgentResolved(name string, handoff bool) {
	o.mu.Lock()
	changed := o.agent != name
	o.agent = name
	o.mu.Unlock()

	if !changed || o.conn.State() != domain.StateConnected {
		return
	}
	o.activateAgent(agentActivation{Agent: name, SuppressGreeting: handoff})
}

// activateAgent announces the active agent, applies the turn policy and,
// unless suppressed, greets on the user's behalf.
func (o *Orchestrator) activateAgent(act agentActivation) {
	o.mu.Lock()
	desc, _ := o.agentSet.Find(act.Agent)
	o.mu.Unlock()

	o.transcript.AddBreadcrumb("Agent: "+act.Agent, desc)
	o.publish(domain.EventAgentChanged, map[string]any{"agent": act.Agent, "handoff": act.SuppressGreeting})

	ctx := o.ctx
	if err := o.link.Send(ctx, o.turn.TurnDetectionUpdate()); err != nil {
		o.logger.Warn("session update failed", "agent", act.Agent, "error", err)
		return
	}
	if act.SuppressGreeting {
		return
	}
	o.sendSimulatedUserMessage(ctx, greetingText)
}

// sendSimulatedUserMessage adds a hidden user message and asks for a reply.
func (o *Orchestrator) sendSimulatedUserMessage(ctx context.Context, text string) {
	id := uuid.NewString()[:32]
	o.transcript.AddMessage(id, domain.RoleUser, text, true)
	if err := o.link.Send(ctx, domain.NewUserText(id, text)); err != nil {
		o.logger.Warn("simulated message not sent", "error", err)
		return
	}
	if err := o.link.Send(ctx, domain.Simple(domain.ClientResponseCreate)); err != nil {
		o.logger.Warn("response request not sent", "error", err)
	}
}

// onTranscriptMutated forwards transcript snapshots to clients.
func (o *Orchestrator) onTranscriptMutated(items []domain.TranscriptItem) {
	o.publish(domain.EventTranscriptChanged, items)
}

// OnServerEvent applies a transport event to the transcript and starts tool
// resolution when a response finishes with function calls.
func (o *Orchestrator) OnServerEvent(ev domain.ServerEvent) {
	o.logger.Debug("server event", "type", ev.Type, "item_id", ev.ItemID)
	if ev.Type != domain.ServerAudioDelta && ev.Type != domain.ServerOutputAudioDelta {
		o.publishRaw(domain.EventServerEvent, ev)
	}

	switch ev.Type {
	case domain.ServerItemCreated:
		o.onItemCreated(ev.Item)
	case domain.ServerTranscriptionDelta:
		o.appendTranscription(ev.ItemID, ev.Delta)
	case domain.ServerTranscriptionDone:
		text := ev.Transcript
		if strings.TrimSpace(text) == "" {
			text = inaudibleTranscript
		}
		o.transcript.UpdateMessage(ev.ItemID, text, false)
		o.transcript.UpdateStatus(ev.ItemID, domain.StatusDone)
	case domain.ServerAudioTranscript, domain.ServerOutputTranscript, domain.ServerTextDelta, domain.ServerOutputTextDelta:
		if !o.transcript.UpdateMessage(ev.ItemID, ev.Delta, true) {
			o.transcript.AddMessage(ev.ItemID, domain.RoleAssistant, ev.Delta, false)
		}
	case domain.ServerOutputItemDone:
		o.onItemDone(ev.Item)
	case domain.ServerResponseDone:
		o.onResponseDone(ev.Response)
	case domain.ServerError:
		if ev.Error != nil {
			o.logger.Warn("realtime error event", "code", ev.Error.Code, "message", ev.Error.Message)
		}
	}
}

func (o *Orchestrator) onItemCreated(item *domain.ConversationItem) {
	if item == nil || item.ID == "" || item.Type != domain.ItemTypeMessage {
		return
	}
	role := domain.Role(item.Role)
	if role != domain.RoleUser && role != domain.RoleAssistant {
		return
	}
	text := item.Text()
	if role == domain.RoleUser && text == "" {
		text = transcribingText
	}
	o.transcript.AddMessage(item.ID, role, text, false)
}

func (o *Orchestrator) appendTranscription(itemID, delta string) {
	it, ok := o.transcript.Get(itemID)
	if !ok {
		return
	}
	o.transcript.UpdateMessage(itemID, delta, it.Title != transcribingText)
}

func (o *Orchestrator) onItemDone(item *domain.ConversationItem) {
	if item == nil || item.ID == "" || item.Type != domain.ItemTypeMessage {
		return
	}
	if text := item.Text(); text != "" {
		o.transcript.UpdateMessage(item.ID, text, false)
	}
	o.transcript.UpdateStatus(item.ID, domain.StatusDone)
}

// onResponseDone resolves the response's function calls off the transport
// goroutine. Executors see the transcript as it is now; their breadcrumbs
// and results are kept only if the same connection is still live.
func (o *Orchestrator) onResponseDone(resp *domain.ServerResponse) {
	if resp == nil || o.tools == nil {
		return
	}
	rr := &domain.ResponsesResponse{ID: resp.ID, Output: resp.Output}
	if len(rr.FunctionCalls()) == 0 {
		return
	}
	gen := o.conn.Generation()
	scope := callScope{record: o.recorderFor(gen), history: o.transcript.Items()}
	o.wg.Add(1)
	go o.resolveToolCalls(gen, scope, rr)
}

func (o *Orchestrator) resolveToolCalls(gen uint64, scope callScope, resp *domain.ResponsesResponse) {
	defer o.wg.Done()

	body := &domain.ResponsesRequest{}
	if !o.tools.Resolve(withCallScope(o.ctx, scope), body, resp, scope.record) {
		return
	}
	if !o.conn.IsCurrent(gen, domain.StateConnected) {
		o.logger.Debug("discarding tool results of a closed connection", "generation", gen)
		return
	}
	for _, in := range body.Input {
		out, ok := in.(domain.FunctionCallOutputItem)
		if !ok {
			continue
		}
		if err := o.link.Send(o.ctx, domain.NewFunctionCallOutput(out.CallID, out.Output)); err != nil {
			o.logger.Warn("tool output not sent", "call_id", out.CallID, "error", err)
			return
		}
	}
	if err := o.link.Send(o.ctx, domain.Simple(domain.ClientResponseCreate)); err != nil {
		o.logger.Warn("response request not sent", "error", err)
	}
}

// recorderFor returns a breadcrumb recorder for tool calls of connection
// gen. Writes after that connection closed are dropped.
func (o *Orchestrator) recorderFor(gen uint64) domain.ToolCallRecorder {
	return func(title string, data any) {
		o.switchMu.Lock()
		defer o.switchMu.Unlock()
		if !o.conn.IsCurrent(gen, domain.StateConnected) {
			o.logger.Debug("dropping breadcrumb of a closed connection", "title", title, "generation", gen)
			return
		}
		o.transcript.AddBreadcrumb(title, data)
	}
}

// OnAgentHandoff is called by the transport when the model transfers to
// another agent.
func (o *Orchestrator) OnAgentHandoff(agentName string) {
	o.logger.Info("agent handoff", "agent", agentName)
	o.OnAgentResolved(agentName, true)
}

// OnAudio routes an assistant audio frame to playback and recording.
func (o *Orchestrator) OnAudio(frame []byte) {
	o.turn.OnAudio(frame)
}

// OnTransportClosed is called once when the live connection drops.
func (o *Orchestrator) OnTransportClosed(err error) {
	o.logger.Info("realtime transport closed", "error", err)
}

func (o *Orchestrator) publish(t domain.EventType, payload any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(context.Background(), eventbus.NewEvent(t, o.owner, o.sessions.ActiveID(), payload))
}

func (o *Orchestrator) publishRaw(t domain.EventType, ev domain.ServerEvent) {
	if o.bus == nil || len(ev.Raw) == 0 {
		return
	}
	e := eventbus.NewEvent(t, o.owner, o.sessions.ActiveID(), nil)
	e.Payload = ev.Raw
	o.bus.Publish(context.Background(), e)
}

// EventLog is the connection controller seen through a log of every client
// event sent on it.
type EventLog struct {
	*ConnectionController
	owner  string
	bus    domain.EventBus
	logger *slog.Logger
}

// NewEventLog wraps conn. bus may be nil.
func NewEventLog(conn *ConnectionController, owner string, bus domain.EventBus, logger *slog.Logger) *EventLog {
	return &EventLog{ConnectionController: conn, owner: owner, bus: bus, logger: logger}
}

// Send forwards ev and records it. Audio appends are not published.
func (l *EventLog) Send(ctx context.Context, ev domain.ClientEvent) error {
	err := l.ConnectionController.Send(ctx, ev)
	if ev.Type == domain.ClientInputAudioAppend {
		return err
	}
	if err != nil {
		l.logger.Warn("client event not sent", "type", ev.Type, "error", err)
		return err
	}
	l.logger.Debug("client event", "type", ev.Type)
	if l.bus != nil {
		l.bus.Publish(context.Background(), eventbus.NewEvent(domain.EventClientEvent, l.owner, "", ev))
	}
	return nil
}
