package store

import (
	"context"
	"sync"

	"saferide/internal/verification/models"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/sentinel"
)

// record pairs a verification with the lock that serializes its updates.
type record struct {
	mu           sync.Mutex
	verification *models.AlertVerification
}

// InMemory keeps one verification per alert. Each alert has its own lock, so
// updates to different alerts never contend.
type InMemory struct {
	mu      sync.Mutex
	records map[id.AlertID]*record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[id.AlertID]*record)}
}

func (s *InMemory) recordFor(alertID id.AlertID, create bool) *record {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[alertID]
	if !ok && create {
		r = &record{}
		s.records[alertID] = r
	}
	return r
}

// CreateIfNoneActive stores v unless the alert has a verification that has
// not reached a terminal step. A terminal one is replaced.
func (s *InMemory) CreateIfNoneActive(_ context.Context, v *models.AlertVerification) error {
	r := s.recordFor(v.AlertID, true)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.verification != nil && !r.verification.CurrentStep.IsTerminal() {
		return sentinel.ErrConflict
	}
	r.verification = v.Clone()
	return nil
}

func (s *InMemory) FindByAlert(_ context.Context, alertID id.AlertID) (*models.AlertVerification, error) {
	r := s.recordFor(alertID, false)
	if r == nil {
		return nil, sentinel.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.verification == nil {
		return nil, sentinel.ErrNotFound
	}
	return r.verification.Clone(), nil
}

// Execute holds the alert's lock across validate and mutate. A validate error
// leaves the stored verification unchanged.
func (s *InMemory) Execute(_ context.Context, alertID id.AlertID, validate func(*models.AlertVerification) error, mutate func(*models.AlertVerification)) (*models.AlertVerification, error) {
	r := s.recordFor(alertID, false)
	if r == nil {
		return nil, sentinel.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.verification == nil {
		return nil, sentinel.ErrNotFound
	}
	working := r.verification.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	r.verification = working
	return working.Clone(), nil
}
