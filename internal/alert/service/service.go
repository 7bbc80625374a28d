package service

import (
	"context"
	"errors"
	"log/slog"

	"saferide/internal/alert/models"
	"saferide/internal/storage"
	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
	"saferide/pkg/platform/sentinel"
	"saferide/pkg/requestcontext"
)

// Store is the persistence port for alerts.
type Store interface {
	Create(ctx context.Context, alert *models.Alert) error
	FindByID(ctx context.Context, alertID id.AlertID) (*models.Alert, error)
	Execute(ctx context.Context, alertID id.AlertID, validate func(*models.Alert) error, mutate func(*models.Alert)) (*models.Alert, error)
}

// SessionCloser ends an alert's tracking once the alert is resolved.
type SessionCloser interface {
	CloseForAlert(ctx context.Context, alertID id.AlertID) error
}

// Service applies this engine's side effects to the platform's alerts.
type Service struct {
	store    Store
	guard    storage.Guard
	logger   *slog.Logger
	sessions SessionCloser
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithGuard(g storage.Guard) Option {
	return func(s *Service) {
		s.guard = g
	}
}

// AttachTracking sets the closer Conclude uses. Tracking reads alerts, so it is
// attached after both are built.
func (s *Service) AttachTracking(c SessionCloser) {
	s.sessions = c
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Raise registers a new active alert. Raising is owned by the platform; this
// entry point exists for the platform adapter and for tests.
func (s *Service) Raise(ctx context.Context, alertID id.AlertID, driverID id.DriverID) (*models.Alert, error) {
	alert, err := models.NewAlert(alertID, driverID, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid alert")
	}
	err = s.guard.Once(ctx, "create alert", func(ctx context.Context) error {
		return s.store.Create(ctx, alert)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "alert already exists")
		}
		return nil, wrapAlertErr(err, "failed to create alert")
	}
	return alert, nil
}

func (s *Service) Get(ctx context.Context, alertID id.AlertID) (*models.Alert, error) {
	var alert *models.Alert
	err := s.guard.Retrying(ctx, "find alert", func(ctx context.Context) error {
		var err error
		alert, err = s.store.FindByID(ctx, alertID)
		return err
	})
	if err != nil {
		return nil, wrapAlertErr(err, "failed to load alert")
	}
	return alert, nil
}

// MarkAwaitingVerification moves an active alert into verification.
func (s *Service) MarkAwaitingVerification(ctx context.Context, alertID id.AlertID) error {
	return s.transition(ctx, alertID, models.StatusAwaitingVerification)
}

// MarkInvestigating records that the emergency was confirmed.
func (s *Service) MarkInvestigating(ctx context.Context, alertID id.AlertID) error {
	return s.transition(ctx, alertID, models.StatusInvestigating)
}

// Reactivate reopens a resolved alert, e.g. when the driver raises the same
// distress signal again. Verification may then start afresh.
func (s *Service) Reactivate(ctx context.Context, alertID id.AlertID) error {
	return s.transition(ctx, alertID, models.StatusActive)
}

// Resolve closes the alert as a non-emergency with an internal note. Resolving
// an already-resolved alert is a no-op.
func (s *Service) Resolve(ctx context.Context, alertID id.AlertID, note string) error {
	now := requestcontext.Now(ctx)
	var changed bool
	err := s.guard.Retrying(ctx, "resolve alert", func(ctx context.Context) error {
		_, err := s.store.Execute(ctx, alertID,
			func(a *models.Alert) error {
				changed = a.Status != models.StatusResolved
				return nil
			},
			func(a *models.Alert) {
				if changed {
					a.ApplyResolution(note, now)
				}
			},
		)
		return err
	})
	if err != nil {
		return wrapAlertErr(err, "failed to resolve alert")
	}
	if changed {
		s.logger.InfoContext(ctx, "alert resolved",
			"alert_id", alertID,
			"note", note,
		)
	}
	return nil
}

// Conclude resolves the alert with note and closes its tracking session. It
// ends a confirmed emergency; repeating it retries the close.
func (s *Service) Conclude(ctx context.Context, alertID id.AlertID, note string) error {
	if err := s.Resolve(ctx, alertID, note); err != nil {
		return err
	}
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.CloseForAlert(ctx, alertID); err != nil {
		s.logger.ErrorContext(ctx, "failed to close tracking for resolved alert",
			"alert_id", alertID,
			"error", err,
		)
		return err
	}
	return nil
}

// RecordLocation stores sample as the best-known position when it is the newest.
func (s *Service) RecordLocation(ctx context.Context, alertID id.AlertID, sample id.LocationSample) error {
	now := requestcontext.Now(ctx)
	err := s.guard.Retrying(ctx, "record alert location", func(ctx context.Context) error {
		_, err := s.store.Execute(ctx, alertID,
			func(*models.Alert) error { return nil },
			func(a *models.Alert) { a.ApplyLocation(sample, now) },
		)
		return err
	})
	return wrapAlertErr(err, "failed to record alert location")
}

// LinkCall stores the escalation call on the alert resolution.
func (s *Service) LinkCall(ctx context.Context, alertID id.AlertID, callID id.CallID) error {
	now := requestcontext.Now(ctx)
	err := s.guard.Retrying(ctx, "link escalation call", func(ctx context.Context) error {
		_, err := s.store.Execute(ctx, alertID,
			func(*models.Alert) error { return nil },
			func(a *models.Alert) { a.ApplyCallLink(callID, now) },
		)
		return err
	})
	return wrapAlertErr(err, "failed to link escalation call")
}

// transition is idempotent: re-applying the current status succeeds.
func (s *Service) transition(ctx context.Context, alertID id.AlertID, next models.Status) error {
	now := requestcontext.Now(ctx)
	err := s.guard.Retrying(ctx, "transition alert", func(ctx context.Context) error {
		_, err := s.store.Execute(ctx, alertID,
			func(a *models.Alert) error {
				if a.Status == next {
					return nil
				}
				return a.CanTransitionTo(next)
			},
			func(a *models.Alert) { a.ApplyStatus(next, now) },
		)
		return err
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "alert is not in a state that allows this change")
		}
		return wrapAlertErr(err, "failed to update alert status")
	}
	return nil
}

func wrapAlertErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if _, coded := dErrors.From(err); coded {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "alert not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
