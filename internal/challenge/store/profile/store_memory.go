package profile

import (
	"context"
	"sync"

	"saferide/internal/challenge/models"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/sentinel"
)

// InMemory keeps one profile per driver.
type InMemory struct {
	mu       sync.RWMutex
	profiles map[id.DriverID]models.DriverChallengeProfile
}

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[id.DriverID]models.DriverChallengeProfile)}
}

// Upsert replaces the driver's profile wholesale, preserving the original CreatedAt.
func (s *InMemory) Upsert(_ context.Context, profile *models.DriverChallengeProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *profile
	if existing, ok := s.profiles[profile.DriverID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.profiles[profile.DriverID] = stored
	return nil
}

func (s *InMemory) FindByDriver(_ context.Context, driverID id.DriverID) (*models.DriverChallengeProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[driverID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}
