package store

import (
	"context"
	"sync"

	"saferide/internal/alert/models"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded alert store. Execute holds the lock across
// validate and mutate, giving the same guarantee as SELECT ... FOR UPDATE.
type InMemory struct {
	mu     sync.Mutex
	alerts map[id.AlertID]*models.Alert
}

func NewInMemory() *InMemory {
	return &InMemory{alerts: make(map[id.AlertID]*models.Alert)}
}

func (s *InMemory) Create(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[alert.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.alerts[alert.ID] = alert.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, alertID id.AlertID) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[alertID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return alert.Clone(), nil
}

func (s *InMemory) Execute(ctx context.Context, alertID id.AlertID, validate func(*models.Alert) error, mutate func(*models.Alert)) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, ok := s.alerts[alertID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.alerts[alertID] = working
	return working.Clone(), nil
}
