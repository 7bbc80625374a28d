package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"saferide/internal/alert/models"
	"saferide/internal/alert/store"
	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
	"saferide/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	service *Service
	ctx     context.Context
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.service = New(store.NewInMemory())
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) raise(alertID id.AlertID) {
	_, err := s.service.Raise(s.ctx, alertID, "driver-1")
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestRaise() {
	s.raise("alert-1")

	_, err := s.service.Raise(s.ctx, "alert-1", "driver-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.service.Raise(s.ctx, "", "driver-1")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestGetUnknown() {
	_, err := s.service.Get(s.ctx, "missing")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestTransitions() {
	s.raise("alert-1")

	s.Require().NoError(s.service.MarkAwaitingVerification(s.ctx, "alert-1"))
	s.Require().NoError(s.service.MarkAwaitingVerification(s.ctx, "alert-1"), "re-applying the same status succeeds")
	s.Require().NoError(s.service.MarkInvestigating(s.ctx, "alert-1"))

	err := s.service.MarkAwaitingVerification(s.ctx, "alert-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	got, err := s.service.Get(s.ctx, "alert-1")
	s.Require().NoError(err)
	s.Equal(models.StatusInvestigating, got.Status)
}

func (s *ServiceSuite) TestResolve() {
	s.raise("alert-1")
	s.Require().NoError(s.service.MarkAwaitingVerification(s.ctx, "alert-1"))

	s.Require().NoError(s.service.Resolve(s.ctx, "alert-1", "second-question mismatch"))
	s.Require().NoError(s.service.Resolve(s.ctx, "alert-1", "other note"))

	got, err := s.service.Get(s.ctx, "alert-1")
	s.Require().NoError(err)
	s.Equal(models.StatusResolved, got.Status)
	s.Equal("second-question mismatch", got.Resolution.Note, "second resolve is a no-op")
	s.Require().NotNil(got.Resolution.ResolvedAt)
	s.Equal(s.now, *got.Resolution.ResolvedAt)
}

func (s *ServiceSuite) TestReactivate() {
	s.raise("alert-1")
	err := s.service.Reactivate(s.ctx, "alert-1")
	s.Require().NoError(err, "already active")

	s.Require().NoError(s.service.MarkAwaitingVerification(s.ctx, "alert-1"))
	err = s.service.Reactivate(s.ctx, "alert-1")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "only resolved alerts reopen")

	s.Require().NoError(s.service.Resolve(s.ctx, "alert-1", "first-question mismatch"))
	s.Require().NoError(s.service.Reactivate(s.ctx, "alert-1"))
	got, err := s.service.Get(s.ctx, "alert-1")
	s.Require().NoError(err)
	s.Equal(models.StatusActive, got.Status)
}

func (s *ServiceSuite) TestRecordLocationKeepsNewest() {
	s.raise("alert-1")
	newer := id.LocationSample{Latitude: 9.93, Longitude: -84.08, Timestamp: s.now}
	older := id.LocationSample{Latitude: 9.90, Longitude: -84.10, Timestamp: s.now.Add(-time.Minute)}

	s.Require().NoError(s.service.RecordLocation(s.ctx, "alert-1", newer))
	s.Require().NoError(s.service.RecordLocation(s.ctx, "alert-1", older))

	got, err := s.service.Get(s.ctx, "alert-1")
	s.Require().NoError(err)
	s.Require().NotNil(got.CurrentLocation)
	s.Equal(newer.Latitude, got.CurrentLocation.Latitude)
}

func (s *ServiceSuite) TestLinkCall() {
	s.raise("alert-1")
	callID := id.NewCallID()
	s.Require().NoError(s.service.LinkCall(s.ctx, "alert-1", callID))

	got, err := s.service.Get(s.ctx, "alert-1")
	s.Require().NoError(err)
	s.Equal(callID, got.Resolution.Call911ID)

	err = s.service.LinkCall(s.ctx, "missing", callID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

type recordingCloser struct {
	closed []id.AlertID
	err    error
}

func (c *recordingCloser) CloseForAlert(_ context.Context, alertID id.AlertID) error {
	c.closed = append(c.closed, alertID)
	return c.err
}

func (s *ServiceSuite) TestConclude() {
	closer := &recordingCloser{err: dErrors.New(dErrors.CodeStoreUnavailable, "store unavailable")}
	s.service.AttachTracking(closer)
	s.raise("alert-1")
	s.Require().NoError(s.service.MarkAwaitingVerification(s.ctx, "alert-1"))
	s.Require().NoError(s.service.MarkInvestigating(s.ctx, "alert-1"))

	s.Run("close failure is reported after the alert resolves", func() {
		err := s.service.Conclude(s.ctx, "alert-1", "responders on scene")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeStoreUnavailable))

		got, err := s.service.Get(s.ctx, "alert-1")
		s.Require().NoError(err)
		s.Equal(models.StatusResolved, got.Status)
	})

	s.Run("retry closes tracking", func() {
		closer.err = nil
		s.Require().NoError(s.service.Conclude(s.ctx, "alert-1", "responders on scene"))
		s.Equal([]id.AlertID{"alert-1", "alert-1"}, closer.closed)
	})

	s.Run("unknown alert", func() {
		err := s.service.Conclude(s.ctx, "missing", "note")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
