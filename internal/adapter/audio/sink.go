package audio

import (
	"context"
	"encoding/base64"
	"sync"

	"wingman/internal/domain"
	"wingman/internal/usecase/eventbus"
)

// audioPayload is the payload of an audio.output event.
type audioPayload struct {
	Audio string `json:"audio"`
}

// BusSink plays assistant audio by publishing it to the owner's clients on
// the event bus. Muted or paused sinks drop frames.
type BusSink struct {
	bus   domain.EventBus
	owner string

	mu     sync.RWMutex
	muted  bool
	paused bool
}

// NewBusSink creates a sink publishing for owner.
func NewBusSink(bus domain.EventBus, owner string) *BusSink {
	return &BusSink{bus: bus, owner: owner}
}

func (s *BusSink) Write(frame []byte) {
	s.mu.RLock()
	silent := s.muted || s.paused
	s.mu.RUnlock()
	if silent || len(frame) == 0 {
		return
	}
	payload := audioPayload{Audio: base64.StdEncoding.EncodeToString(frame)}
	s.bus.Publish(context.Background(), eventbus.NewEvent(domain.EventAudioOutput, s.owner, "", payload))
}

func (s *BusSink) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

func (s *BusSink) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Muted reports the mute flag.
func (s *BusSink) Muted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted
}

// Paused reports the pause flag.
func (s *BusSink) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

var _ domain.AudioSink = (*BusSink)(nil)
