package hub

import (
	"context"
	"sync"

	"saferide/internal/tracking/models"
	id "saferide/pkg/domain"
)

type subscriber struct {
	mu  sync.Mutex
	out chan *models.TrackingSession
}

// Memory is an in-process Hub for single-instance deployments and tests.
type Memory struct {
	mu   sync.Mutex
	subs map[id.SessionID]map[*subscriber]struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[id.SessionID]map[*subscriber]struct{})}
}

func (m *Memory) Publish(_ context.Context, snapshot *models.TrackingSession) error {
	m.mu.Lock()
	targets := make([]*subscriber, 0, len(m.subs[snapshot.ID]))
	for sub := range m.subs[snapshot.ID] {
		targets = append(targets, sub)
	}
	m.mu.Unlock()

	for _, sub := range targets {
		sub.mu.Lock()
		if sub.out != nil {
			OfferLatest(sub.out, snapshot.Clone())
		}
		sub.mu.Unlock()
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, sessionID id.SessionID) (<-chan *models.TrackingSession, func(), error) {
	sub := &subscriber{out: make(chan *models.TrackingSession, 1)}
	m.mu.Lock()
	if m.subs[sessionID] == nil {
		m.subs[sessionID] = make(map[*subscriber]struct{})
	}
	m.subs[sessionID][sub] = struct{}{}
	m.mu.Unlock()

	out := sub.out
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[sessionID], sub)
			if len(m.subs[sessionID]) == 0 {
				delete(m.subs, sessionID)
			}
			m.mu.Unlock()

			sub.mu.Lock()
			close(sub.out)
			sub.out = nil
			sub.mu.Unlock()
		})
	}
	return out, cancel, nil
}

// Subscribers reports the live subscriber count for a session.
func (m *Memory) Subscribers(sessionID id.SessionID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[sessionID])
}
