package memory

import (
	"context"
	"sync"

	id "voiceid/pkg/domain"
	audit "voiceid/pkg/platform/audit"
)

// InMemoryStore keeps the most recent events per user. A cap of zero keeps everything.
type InMemoryStore struct {
	mu      sync.RWMutex
	events  map[id.UserID][]audit.Event
	perUser int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.UserID][]audit.Event)}
}

// NewBoundedStore retains at most perUser events for each user, dropping the oldest.
func NewBoundedStore(perUser int) *InMemoryStore {
	s := NewInMemoryStore()
	s.perUser = perUser
	return s
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.UserID][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := append(s.events[event.UserID], event)
	if s.perUser > 0 && len(events) > s.perUser {
		events = append([]audit.Event(nil), events[len(events)-s.perUser:]...)
	}
	s.events[event.UserID] = events
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[userID]...), nil
}
