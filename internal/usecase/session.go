package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wingman/internal/domain"
	"wingman/internal/usecase/eventbus"
)

// SessionStore owns the collection of chat sessions of one identity. The
// active session mirrors the live TranscriptStore and every change is written
// through to the persistence port once hydration has completed.
type SessionStore struct {
	mu         sync.Mutex
	owner      string
	sessions   []domain.ChatSession
	activeID   string
	hydrated   bool
	version    uint64
	persistMu  sync.Mutex
	written    uint64
	store      domain.KVStore
	transcript *TranscriptStore
	bus        domain.EventBus
	logger     *slog.Logger
	timeout    time.Duration
	now        domain.Clock
	newID      func() string
}

// SessionStoreOptions tunes a SessionStore.
type SessionStoreOptions struct {
	// WriteTimeout bounds one write-through persist (default 5s).
	WriteTimeout time.Duration
	Bus          domain.EventBus
	Clock        domain.Clock
}

// NewSessionStore creates a store bound to the live transcript. Nothing is
// persisted until Hydrate has run.
func NewSessionStore(store domain.KVStore, transcript *TranscriptStore, logger *slog.Logger, opts SessionStoreOptions) *SessionStore {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &SessionStore{
		store:      store,
		transcript: transcript,
		bus:        opts.Bus,
		logger:     logger,
		timeout:    opts.WriteTimeout,
		now:        opts.Clock,
		newID:      uuid.NewString,
	}
	transcript.Subscribe(s.onTranscriptMutated)
	return s
}

func (s *SessionStore) newSession() domain.ChatSession {
	return domain.ChatSession{
		ID:              s.newID(),
		Title:           domain.FallbackSessionTitle,
		CreatedAt:       s.now().UnixMilli(),
		TranscriptItems: []domain.TranscriptItem{},
	}
}

// Hydrate loads owner's sessions and makes the first one active. Missing or
// malformed data yields a single empty session. Hydrating again (identity
// change) blocks writes until the new collection is in place.
func (s *SessionStore) Hydrate(ctx context.Context, owner string) error {
	if owner == "" {
		owner = domain.DefaultOwner
	}
	s.mu.Lock()
	s.hydrated = false
	s.owner = owner
	s.mu.Unlock()

	sessions := s.load(ctx, owner)

	s.mu.Lock()
	s.sessions = sessions
	s.activeID = sessions[0].ID
	items := domain.CloneItems(sessions[0].TranscriptItems)
	s.mu.Unlock()

	// Not yet hydrated, so this Replace is not written back by the listener.
	s.transcript.Replace(items)

	s.mu.Lock()
	s.hydrated = true
	ver, data, err := s.snapshotLocked()
	activeID := s.activeID
	count := len(s.sessions)
	s.mu.Unlock()

	if err == nil {
		s.persist(ver, owner, data)
	}
	s.logger.Info("sessions hydrated", "owner", owner, "sessions", count, "active", activeID)
	s.publish(domain.EventSessionsHydrated, activeID, map[string]int{"sessions": count})
	return err
}

func (s *SessionStore) load(ctx context.Context, owner string) []domain.ChatSession {
	raw, err := s.store.Get(ctx, domain.SessionsKey(owner))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return []domain.ChatSession{s.newSession()}
	case err != nil:
		s.logger.Warn("session load failed, starting fresh", "owner", owner, "backend", s.store.Name(), "error", err)
		return []domain.ChatSession{s.newSession()}
	}

	var stored []storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.Warn("discarding malformed session data", "owner", owner,
			"error", domain.NewDomainError("SessionStore.Hydrate", domain.ErrCorruptData, err.Error()))
		return []domain.ChatSession{s.newSession()}
	}
	if len(stored) == 0 {
		return []domain.ChatSession{s.newSession()}
	}

	sessions := make([]domain.ChatSession, 0, len(stored))
	for _, st := range stored {
		sessions = append(sessions, st.normalize(s))
	}
	return sessions
}

// storedSession tolerates records written with missing fields.
type storedSession struct {
	ID              string                  `json:"id"`
	Title           *string                 `json:"title"`
	CreatedAt       *int64                  `json:"createdAt"`
	TranscriptItems []domain.TranscriptItem `json:"transcriptItems"`
}

func (st storedSession) normalize(s *SessionStore) domain.ChatSession {
	out := domain.ChatSession{
		ID:              st.ID,
		Title:           domain.FallbackSessionTitle,
		CreatedAt:       s.now().UnixMilli(),
		TranscriptItems: st.TranscriptItems,
	}
	if out.ID == "" {
		out.ID = s.newID()
	}
	if st.Title != nil && *st.Title != "" {
		out.Title = *st.Title
	}
	if st.CreatedAt != nil {
		out.CreatedAt = *st.CreatedAt
	}
	if out.TranscriptItems == nil {
		out.TranscriptItems = []domain.TranscriptItem{}
	}
	return out
}

// onTranscriptMutated snapshots the live transcript into the active session
// and writes the collection through.
func (s *SessionStore) onTranscriptMutated(items []domain.TranscriptItem) {
	s.mu.Lock()
	if !s.hydrated {
		s.mu.Unlock()
		return
	}
	i := s.indexLocked(s.activeID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.sessions[i].TranscriptItems = items
	s.sessions[i].Title = domain.NextTitle(s.sessions[i].Title, items)
	owner := s.owner
	ver, data, err := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("session snapshot failed", "error", err)
		return
	}
	s.persist(ver, owner, data)
}

// Select makes id the active session and loads a copy of its transcript.
// Selecting the active session is a no-op.
func (s *SessionStore) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	if id == s.activeID {
		s.mu.Unlock()
		return nil
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return domain.NewDomainError("SessionStore.Select", domain.ErrSessionNotFound, id)
	}
	s.activeID = id
	items := domain.CloneItems(s.sessions[i].TranscriptItems)
	s.mu.Unlock()

	s.transcript.Replace(items)
	s.logger.Info("session selected", "session_id", id)
	s.publish(domain.EventSessionSelected, id, nil)
	return nil
}

// Has reports whether a session with id exists.
func (s *SessionStore) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id) >= 0
}

// Create prepends a fresh session, makes it active and clears the transcript.
func (s *SessionStore) Create(ctx context.Context) domain.ChatSession {
	sess := s.newSession()

	s.mu.Lock()
	s.sessions = append([]domain.ChatSession{sess}, s.sessions...)
	s.activeID = sess.ID
	s.mu.Unlock()

	s.transcript.Clear()
	s.logger.Info("session created", "session_id", sess.ID)
	s.publish(domain.EventSessionCreated, sess.ID, map[string]string{"title": sess.Title})
	return sess.Clone()
}

// List returns sidebar summaries in collection order.
func (s *SessionStore) List() []domain.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SessionSummary, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = domain.SessionSummary{
			ID:           sess.ID,
			Title:        sess.Title,
			CreatedAt:    sess.CreatedAt,
			MessageCount: sess.MessageCount(),
			Active:       sess.ID == s.activeID,
		}
	}
	return out
}

// Sessions returns deep copies of all sessions.
func (s *SessionStore) Sessions() []domain.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatSession, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	return out
}

// Active returns a copy of the active session.
func (s *SessionStore) Active() (domain.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.activeID)
	if i < 0 {
		return domain.ChatSession{}, false
	}
	return s.sessions[i].Clone(), true
}

// ActiveID returns the active session ID.
func (s *SessionStore) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Hydrated reports whether the collection has been loaded.
func (s *SessionStore) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// Owner returns the identity whose sessions are loaded.
func (s *SessionStore) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

func (s *SessionStore) indexLocked(id string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// snapshotLocked serialises the collection and tags it with a version.
func (s *SessionStore) snapshotLocked() (uint64, []byte, error) {
	data, err := json.Marshal(s.sessions)
	if err != nil {
		return 0, nil, err
	}
	s.version++
	return s.version, data, nil
}

// persist writes data unless a newer snapshot has already been written.
// Failures are logged and never surface to the mutation that caused them.
func (s *SessionStore) persist(ver uint64, owner string, data []byte) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if ver <= s.written {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.store.Set(ctx, domain.SessionsKey(owner), data); err != nil {
		s.logger.Warn("session persist failed", "owner", owner, "backend", s.store.Name(),
			"error", domain.WrapOp("SessionStore.persist", err))
		return
	}
	s.written = ver
}

func (s *SessionStore) publish(t domain.EventType, sessionID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(context.Background(), eventbus.NewEvent(t, s.Owner(), sessionID, payload))
}
