package store

import (
	"context"
	"sync"
	"time"

	"saferide/internal/tracking/models"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/sentinel"
)

// InMemory keeps sessions and an index of the active session per alert.
// The active index is updated under the same lock as the session, so the
// check-and-insert in Create is atomic.
type InMemory struct {
	mu       sync.Mutex
	sessions map[id.SessionID]*models.TrackingSession
	active   map[id.AlertID]id.SessionID
}

func NewInMemory() *InMemory {
	return &InMemory{
		sessions: make(map[id.SessionID]*models.TrackingSession),
		active:   make(map[id.AlertID]id.SessionID),
	}
}

// Create stores session unless its alert already has an active one, in which
// case sentinel.ErrConflict is returned.
func (s *InMemory) Create(_ context.Context, session *models.TrackingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[session.AlertID]; ok {
		return sentinel.ErrConflict
	}
	s.sessions[session.ID] = session.Clone()
	s.active[session.AlertID] = session.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, sessionID id.SessionID) (*models.TrackingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return session.Clone(), nil
}

func (s *InMemory) FindActiveByAlert(_ context.Context, alertID id.AlertID) (*models.TrackingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessionID, ok := s.active[alertID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.sessions[sessionID].Clone(), nil
}

// AppendLocation inserts sample into an active session. Closed sessions
// return sentinel.ErrClosed.
func (s *InMemory) AppendLocation(_ context.Context, sessionID id.SessionID, sample id.LocationSample) (*models.TrackingSession, models.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, models.AppendResult{}, sentinel.ErrNotFound
	}
	if !session.IsActive {
		return nil, models.AppendResult{}, sentinel.ErrClosed
	}
	res := session.InsertLocation(sample)
	return session.Clone(), res, nil
}

// Close ends the session. changed is false when it was already closed.
func (s *InMemory) Close(_ context.Context, sessionID id.SessionID, now time.Time) (*models.TrackingSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, sentinel.ErrNotFound
	}
	changed := session.End(now)
	if changed && s.active[session.AlertID] == sessionID {
		delete(s.active, session.AlertID)
	}
	return session.Clone(), changed, nil
}
