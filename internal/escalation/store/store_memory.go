package store

import (
	"context"
	"sync"

	"saferide/internal/escalation/models"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/sentinel"
)

// InMemory holds escalation calls indexed by ID. byAlert points at the most
// recent call for each alert.
type InMemory struct {
	mu      sync.Mutex
	calls   map[id.CallID]*models.EscalationCall
	byAlert map[id.AlertID]id.CallID
}

func NewInMemory() *InMemory {
	return &InMemory{
		calls:   make(map[id.CallID]*models.EscalationCall),
		byAlert: make(map[id.AlertID]id.CallID),
	}
}

// CreateIfAbsent stores call unless the alert already has a live call, in
// which case the existing call is returned and created is false.
func (s *InMemory) CreateIfAbsent(_ context.Context, call *models.EscalationCall) (*models.EscalationCall, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID, ok := s.byAlert[call.AlertID]; ok {
		if existing := s.calls[existingID]; !existing.Status.IsTerminal() {
			return existing.Clone(), false, nil
		}
	}
	s.calls[call.ID] = call.Clone()
	s.byAlert[call.AlertID] = call.ID
	return call.Clone(), true, nil
}

func (s *InMemory) FindByID(_ context.Context, callID id.CallID) (*models.EscalationCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[callID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return call.Clone(), nil
}

func (s *InMemory) FindByAlert(_ context.Context, alertID id.AlertID) (*models.EscalationCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	callID, ok := s.byAlert[alertID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.calls[callID].Clone(), nil
}

// Execute applies mutate to the stored call atomically. A mutate error leaves
// the call untouched. Reviving a terminal call while the alert has a newer
// live call is a conflict.
func (s *InMemory) Execute(_ context.Context, callID id.CallID, mutate func(*models.EscalationCall) error) (*models.EscalationCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.calls[callID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := stored.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	if latest := s.byAlert[working.AlertID]; latest != callID && !working.Status.IsTerminal() && !s.calls[latest].Status.IsTerminal() {
		return nil, sentinel.ErrConflict
	}
	s.calls[callID] = working
	return working.Clone(), nil
}
