package usecase

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"wingman/internal/domain"
)

// TranscriptListener observes the live transcript after every mutation.
// It receives a deep copy and must not mutate the store it listens to.
type TranscriptListener func(items []domain.TranscriptItem)

// TranscriptStore holds the ordered items of the active session.
// Mutations and their notifications are serialised, so listeners observe
// snapshots in mutation order.
type TranscriptStore struct {
	notifyMu  sync.Mutex // serialises mutate + notify
	mu        sync.RWMutex
	items     []domain.TranscriptItem
	index     map[string]int
	listeners map[uint64]TranscriptListener
	nextID    uint64
	now       domain.Clock
}

// NewTranscriptStore creates an empty transcript.
func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{
		index:     make(map[string]int),
		listeners: make(map[uint64]TranscriptListener),
		now:       time.Now,
	}
}

// Subscribe registers a listener and returns an unsubscribe function.
func (t *TranscriptStore) Subscribe(fn TranscriptListener) func() {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.listeners[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// mutate applies fn under the lock and notifies listeners when fn reports a change.
func (t *TranscriptStore) mutate(fn func() bool) bool {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	changed := fn()
	if !changed {
		t.mu.Unlock()
		return false
	}
	snapshot := domain.CloneItems(t.items)
	listeners := make([]TranscriptListener, 0, len(t.listeners))
	for _, l := range t.listeners {
		listeners = append(listeners, l)
	}
	t.mu.Unlock()

	for _, l := range listeners {
		l(domain.CloneItems(snapshot))
	}
	return true
}

func (t *TranscriptStore) stamp() (string, int64) {
	now := t.now()
	return now.Format("15:04:05.000"), now.UnixMilli()
}

// AddMessage appends a MESSAGE item. An existing itemID is left untouched and
// AddMessage reports false.
func (t *TranscriptStore) AddMessage(itemID string, role domain.Role, text string, hidden bool) bool {
	return t.mutate(func() bool {
		if _, exists := t.index[itemID]; exists || itemID == "" {
			return false
		}
		ts, ms := t.stamp()
		t.append(domain.TranscriptItem{
			ItemID:      itemID,
			Type:        domain.ItemMessage,
			Role:        role,
			Title:       text,
			Timestamp:   ts,
			CreatedAtMs: ms,
			Status:      domain.StatusInProgress,
			IsHidden:    hidden,
		})
		return true
	})
}

// UpdateMessage replaces, or with appendText extends, a message's text.
func (t *TranscriptStore) UpdateMessage(itemID, text string, appendText bool) bool {
	return t.mutate(func() bool {
		i, ok := t.index[itemID]
		if !ok {
			return false
		}
		if appendText {
			t.items[i].Title += text
		} else {
			t.items[i].Title = text
		}
		return true
	})
}

// AddBreadcrumb appends a BREADCRUMB item with optional JSON-encodable data.
func (t *TranscriptStore) AddBreadcrumb(title string, data any) string {
	id := "breadcrumb-" + uuid.NewString()
	var raw json.RawMessage
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = b
		}
	}
	t.mutate(func() bool {
		ts, ms := t.stamp()
		t.append(domain.TranscriptItem{
			ItemID:      id,
			Type:        domain.ItemBreadcrumb,
			Title:       title,
			Data:        raw,
			Timestamp:   ts,
			CreatedAtMs: ms,
			Status:      domain.StatusDone,
		})
		return true
	})
	return id
}

// UpdateStatus sets the streaming status of an item.
func (t *TranscriptStore) UpdateStatus(itemID string, status domain.ItemStatus) bool {
	return t.mutate(func() bool {
		i, ok := t.index[itemID]
		if !ok || t.items[i].Status == status {
			return false
		}
		t.items[i].Status = status
		return true
	})
}

// ToggleExpand flips the expanded flag of an item.
func (t *TranscriptStore) ToggleExpand(itemID string) bool {
	return t.mutate(func() bool {
		i, ok := t.index[itemID]
		if !ok {
			return false
		}
		t.items[i].Expanded = !t.items[i].Expanded
		return true
	})
}

// Replace swaps the whole transcript for a deep copy of items.
func (t *TranscriptStore) Replace(items []domain.TranscriptItem) {
	t.mutate(func() bool {
		t.items = nil
		t.index = make(map[string]int, len(items))
		for _, it := range domain.CloneItems(items) {
			t.append(it)
		}
		return true
	})
}

// Clear empties the transcript.
func (t *TranscriptStore) Clear() {
	t.Replace(nil)
}

// Items returns a deep copy of the transcript.
func (t *TranscriptStore) Items() []domain.TranscriptItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return domain.CloneItems(t.items)
}

// Get returns a copy of one item.
func (t *TranscriptStore) Get(itemID string) (domain.TranscriptItem, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[itemID]
	if !ok {
		return domain.TranscriptItem{}, false
	}
	return t.items[i].Clone(), true
}

// Len returns the number of items.
func (t *TranscriptStore) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// append must be called with mu held.
func (t *TranscriptStore) append(it domain.TranscriptItem) {
	t.index[it.ItemID] = len(t.items)
	t.items = append(t.items, it)
}
