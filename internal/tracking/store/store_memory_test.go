package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"saferide/internal/tracking/models"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemorySuite) newSession(alertID id.AlertID) *models.TrackingSession {
	session, err := models.NewTrackingSession("driver-1", alertID, s.now)
	s.Require().NoError(err)
	return session
}

func (s *InMemorySuite) TestOneActiveSessionPerAlert() {
	first := s.newSession("alert-1")
	s.Require().NoError(s.store.Create(s.ctx, first))
	s.ErrorIs(s.store.Create(s.ctx, s.newSession("alert-1")), sentinel.ErrConflict)

	_, changed, err := s.store.Close(s.ctx, first.ID, s.now)
	s.Require().NoError(err)
	s.True(changed)

	s.NoError(s.store.Create(s.ctx, s.newSession("alert-1")), "a closed session frees the alert")
}

func (s *InMemorySuite) TestConcurrentCreateAdmitsOne() {
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.store.Create(s.ctx, s.newSession("alert-1")) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *InMemorySuite) TestAppendToClosedSession() {
	session := s.newSession("alert-1")
	s.Require().NoError(s.store.Create(s.ctx, session))
	_, _, err := s.store.Close(s.ctx, session.ID, s.now)
	s.Require().NoError(err)

	_, _, err = s.store.AppendLocation(s.ctx, session.ID, id.LocationSample{Latitude: 1, Longitude: 1, Timestamp: s.now})
	s.ErrorIs(err, sentinel.ErrClosed)

	_, changed, err := s.store.Close(s.ctx, session.ID, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.False(changed)
}

func (s *InMemorySuite) TestFindActiveByAlert() {
	_, err := s.store.FindActiveByAlert(s.ctx, "alert-1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	session := s.newSession("alert-1")
	s.Require().NoError(s.store.Create(s.ctx, session))
	found, err := s.store.FindActiveByAlert(s.ctx, "alert-1")
	s.Require().NoError(err)
	s.Equal(session.ID, found.ID)
}
