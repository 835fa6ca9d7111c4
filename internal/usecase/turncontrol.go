package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"wingman/internal/domain"
)

// realtimeLink is the part of the connection controller turn control drives.
type realtimeLink interface {
	State() domain.ConnectionState
	Send(ctx context.Context, ev domain.ClientEvent) error
	Interrupt(ctx context.Context) error
	Mute(muted bool)
}

// TurnControl implements push-to-talk and voice activity detection turn
// taking, playback muting and the recording tap.
type TurnControl struct {
	mu       sync.Mutex
	speaking bool
	prefs    domain.Preferences
	defaults domain.Preferences
	owner    string
	link     realtimeLink
	sink     domain.AudioSink
	recorder domain.Recorder
	store    domain.KVStore
	logger   *slog.Logger
}

// NewTurnControl creates turn control with default preferences. sink and
// recorder may be nil.
func NewTurnControl(link realtimeLink, sink domain.AudioSink, recorder domain.Recorder, store domain.KVStore, logger *slog.Logger) *TurnControl {
	return &TurnControl{
		prefs:    domain.DefaultPreferences(),
		defaults: domain.DefaultPreferences(),
		owner:    domain.DefaultOwner,
		link:     link,
		sink:     sink,
		recorder: recorder,
		store:    store,
		logger:   logger,
	}
}

// SetDefaultPreferences replaces the preferences used when none are stored.
func (tc *TurnControl) SetDefaultPreferences(p domain.Preferences) {
	tc.mu.Lock()
	tc.defaults = p
	tc.prefs = p
	tc.mu.Unlock()
}

// LoadPreferences restores owner's persisted preferences, falling back to
// defaults when none are stored or they cannot be read.
func (tc *TurnControl) LoadPreferences(ctx context.Context, owner string) domain.Preferences {
	tc.mu.Lock()
	defaults := tc.defaults
	tc.mu.Unlock()
	prefs := defaults
	if tc.store != nil {
		raw, err := tc.store.Get(ctx, domain.PreferencesKey(owner))
		switch {
		case err == nil:
			if jerr := json.Unmarshal(raw, &prefs); jerr != nil {
				tc.logger.Warn("discarding malformed preferences", "owner", owner, "error", jerr)
				prefs = defaults
			}
		case !errors.Is(err, domain.ErrNotFound):
			tc.logger.Warn("preferences load failed", "owner", owner, "error", err)
		}
	}

	tc.mu.Lock()
	tc.owner = owner
	tc.prefs = prefs
	tc.mu.Unlock()
	tc.applyPlayback(prefs.Playback)
	return prefs
}

// Preferences returns the current preferences.
func (tc *TurnControl) Preferences() domain.Preferences {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.prefs
}

// Speaking reports whether the push-to-talk button is held.
func (tc *TurnControl) Speaking() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.speaking
}

// TurnDetectionUpdate returns the session.update for the current mode.
func (tc *TurnControl) TurnDetectionUpdate() domain.ClientEvent {
	return domain.NewTurnDetectionUpdate(tc.Preferences().PushToTalk)
}

// PressTalk starts a push-to-talk turn: interrupt the assistant, drop any
// buffered input audio and mark the user as speaking. Ignored unless connected.
func (tc *TurnControl) PressTalk(ctx context.Context) error {
	if tc.link.State() != domain.StateConnected {
		return nil
	}
	if err := tc.link.Interrupt(ctx); err != nil {
		tc.logger.Warn("interrupt failed", "error", err)
	}
	tc.mu.Lock()
	tc.speaking = true
	tc.mu.Unlock()
	return tc.send(ctx, domain.Simple(domain.ClientInputAudioClear))
}

// ReleaseTalk ends a push-to-talk turn by committing the input audio and
// requesting a response. Without a prior press it does nothing.
func (tc *TurnControl) ReleaseTalk(ctx context.Context) error {
	if tc.link.State() != domain.StateConnected {
		return nil
	}
	tc.mu.Lock()
	if !tc.speaking {
		tc.mu.Unlock()
		return nil
	}
	tc.speaking = false
	tc.mu.Unlock()

	if err := tc.send(ctx, domain.Simple(domain.ClientInputAudioCommit)); err != nil {
		return err
	}
	return tc.send(ctx, domain.Simple(domain.ClientResponseCreate))
}

// SetPushToTalk switches the turn-taking mode, persists it and, when
// connected, re-issues the turn-detection session update.
func (tc *TurnControl) SetPushToTalk(ctx context.Context, on bool) error {
	tc.mu.Lock()
	tc.prefs.PushToTalk = on
	if !on {
		tc.speaking = false
	}
	tc.mu.Unlock()
	tc.savePreferences()

	if tc.link.State() != domain.StateConnected {
		return nil
	}
	return tc.send(ctx, domain.NewTurnDetectionUpdate(on))
}

// SetPlayback enables or disables local playback and inbound audio frames.
func (tc *TurnControl) SetPlayback(on bool) {
	tc.mu.Lock()
	tc.prefs.Playback = on
	tc.mu.Unlock()
	tc.savePreferences()
	tc.applyPlayback(on)
}

func (tc *TurnControl) applyPlayback(on bool) {
	if tc.sink != nil {
		tc.sink.SetMuted(!on)
		tc.sink.SetPaused(!on)
	}
	tc.link.Mute(!on)
}

// OnConnected re-applies the playback preference, which the transport resets
// per connection, and starts recording.
func (tc *TurnControl) OnConnected(codec domain.Codec) {
	tc.applyPlayback(tc.Preferences().Playback)
	if tc.recorder != nil && tc.sink != nil {
		tc.recorder.Start(codec)
	}
}

// OnDisconnected clears the speaking flag and stops recording.
func (tc *TurnControl) OnDisconnected() {
	tc.mu.Lock()
	tc.speaking = false
	tc.mu.Unlock()
	if tc.recorder != nil && tc.recorder.Active() {
		tc.recorder.Stop()
	}
}

// OnAudio routes one inbound audio frame to the sink and the recorder.
func (tc *TurnControl) OnAudio(frame []byte) {
	if tc.sink != nil {
		tc.sink.Write(frame)
	}
	if tc.recorder != nil {
		tc.recorder.Write(frame)
	}
}

func (tc *TurnControl) send(ctx context.Context, ev domain.ClientEvent) error {
	if err := tc.link.Send(ctx, ev); err != nil {
		tc.logger.Warn("send client event failed", "type", ev.Type, "error", err)
		return err
	}
	return nil
}

func (tc *TurnControl) savePreferences() {
	if tc.store == nil {
		return
	}
	tc.mu.Lock()
	owner, prefs := tc.owner, tc.prefs
	tc.mu.Unlock()

	data, err := json.Marshal(prefs)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tc.store.Set(ctx, domain.PreferencesKey(owner), data); err != nil {
		tc.logger.Warn("preferences persist failed", "owner", owner, "error", err)
	}
}
