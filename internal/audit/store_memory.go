package audit

import (
	"context"
	"sync"

	id "saferide/pkg/domain"
)

// InMemoryStore keeps events per alert in arrival order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.AlertID][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.AlertID][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.AlertID] = append(s.events[event.AlertID], event)
	return nil
}

func (s *InMemoryStore) ListByAlert(_ context.Context, alertID id.AlertID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events[alertID]))
	copy(out, s.events[alertID])
	return out, nil
}
