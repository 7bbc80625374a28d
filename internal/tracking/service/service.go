// Package service manages the lifecycle of live location tracking sessions.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"saferide/internal/audit"
	"saferide/internal/storage"
	"saferide/internal/tracking/hub"
	"saferide/internal/tracking/metrics"
	"saferide/internal/tracking/models"
	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
	"saferide/pkg/platform/sentinel"
	"saferide/pkg/requestcontext"
)

var tracer = otel.Tracer("saferide/internal/tracking")

// Store persists sessions and their samples.
type Store interface {
	Create(ctx context.Context, session *models.TrackingSession) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.TrackingSession, error)
	FindActiveByAlert(ctx context.Context, alertID id.AlertID) (*models.TrackingSession, error)
	AppendLocation(ctx context.Context, sessionID id.SessionID, sample id.LocationSample) (*models.TrackingSession, models.AppendResult, error)
	Close(ctx context.Context, sessionID id.SessionID, now time.Time) (*models.TrackingSession, bool, error)
}

// AlertLocations receives the best-known position for an alert.
type AlertLocations interface {
	RecordLocation(ctx context.Context, alertID id.AlertID, sample id.LocationSample) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Manager opens, feeds and closes tracking sessions and streams snapshots.
type Manager struct {
	store   Store
	hub     hub.Hub
	alerts  AlertLocations
	auditor AuditPublisher
	metrics *metrics.Metrics
	guard   storage.Guard
	logger  *slog.Logger
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithGuard(g storage.Guard) Option {
	return func(m *Manager) {
		m.guard = g
	}
}

func WithHub(h hub.Hub) Option {
	return func(m *Manager) {
		m.hub = h
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(m *Manager) {
		m.auditor = p
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func New(store Store, alerts AlertLocations, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		alerts: alerts,
		hub:    hub.NewMemory(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a session for the alert. Fails with already_open when the alert
// has an active session.
func (m *Manager) Open(ctx context.Context, driverID id.DriverID, alertID id.AlertID) (id.SessionID, error) {
	ctx, span := tracer.Start(ctx, "tracking.Open")
	defer span.End()
	span.SetAttributes(attribute.String("alert_id", alertID.String()))

	session, err := models.NewTrackingSession(driverID, alertID, requestcontext.Now(ctx))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid tracking session")
	}
	err = m.guard.Once(ctx, "open tracking session", func(ctx context.Context) error {
		return m.store.Create(ctx, session)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return "", dErrors.New(dErrors.CodeAlreadyOpen, "alert already has an active tracking session")
		}
		return "", wrapSessionErr(err, "failed to open tracking session")
	}

	m.metrics.IncrementOpened()
	m.emitAudit(ctx, audit.Event{
		AlertID:  alertID,
		DriverID: driverID,
		Action:   audit.ActionTrackingOpened,
		Detail:   session.ID.String(),
	})
	m.logger.InfoContext(ctx, "tracking session opened",
		"session_id", session.ID,
		"alert_id", alertID,
		"driver_id", driverID,
	)
	return session.ID, nil
}

// AppendLocation stores a sample. Redelivered samples are accepted and
// ignored; samples for a closed session fail with session_closed.
func (m *Manager) AppendLocation(ctx context.Context, sessionID id.SessionID, sample id.LocationSample) error {
	if err := sample.Validate(); err != nil {
		return err
	}

	var (
		session *models.TrackingSession
		res     models.AppendResult
	)
	err := m.guard.Retrying(ctx, "append tracking location", func(ctx context.Context) error {
		var err error
		session, res, err = m.store.AppendLocation(ctx, sessionID, sample)
		return err
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrClosed) {
			m.metrics.IncrementLateSample()
			m.logger.WarnContext(ctx, "location sample for closed session rejected",
				"session_id", sessionID,
				"sample_time", sample.Timestamp,
			)
			return dErrors.New(dErrors.CodeSessionClosed, "tracking session is closed")
		}
		return wrapSessionErr(err, "failed to append location")
	}

	m.metrics.IncrementSample(res.Inserted)
	if !res.Inserted {
		return nil
	}
	m.publish(ctx, session)
	if res.Newest {
		if err := m.alerts.RecordLocation(ctx, session.AlertID, sample); err != nil {
			return err
		}
	}
	return nil
}

// Close ends a session. Closing a closed session succeeds without effect.
func (m *Manager) Close(ctx context.Context, sessionID id.SessionID) error {
	ctx, span := tracer.Start(ctx, "tracking.Close")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID.String()))

	now := requestcontext.Now(ctx)
	var (
		session *models.TrackingSession
		changed bool
	)
	err := m.guard.Retrying(ctx, "close tracking session", func(ctx context.Context) error {
		var err error
		session, changed, err = m.store.Close(ctx, sessionID, now)
		return err
	})
	if err != nil {
		return wrapSessionErr(err, "failed to close tracking session")
	}
	if !changed {
		return nil
	}

	m.publish(ctx, session)
	m.metrics.IncrementClosed()
	m.emitAudit(ctx, audit.Event{
		AlertID:  session.AlertID,
		DriverID: session.DriverID,
		Action:   audit.ActionTrackingClosed,
		Detail:   session.ID.String(),
	})
	m.logger.InfoContext(ctx, "tracking session closed",
		"session_id", session.ID,
		"alert_id", session.AlertID,
		"samples", len(session.Locations),
	)
	return nil
}

// CloseForAlert closes the alert's active session, if it has one.
func (m *Manager) CloseForAlert(ctx context.Context, alertID id.AlertID) error {
	session, err := m.ActiveForAlert(ctx, alertID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil
		}
		return err
	}
	return m.Close(ctx, session.ID)
}

// ActiveForAlert returns the alert's active session or not_found.
func (m *Manager) ActiveForAlert(ctx context.Context, alertID id.AlertID) (*models.TrackingSession, error) {
	var session *models.TrackingSession
	err := m.guard.Retrying(ctx, "find active tracking session", func(ctx context.Context) error {
		var err error
		session, err = m.store.FindActiveByAlert(ctx, alertID)
		return err
	})
	if err != nil {
		return nil, wrapSessionErr(err, "failed to load tracking session")
	}
	return session, nil
}

func (m *Manager) Get(ctx context.Context, sessionID id.SessionID) (*models.TrackingSession, error) {
	var session *models.TrackingSession
	err := m.guard.Retrying(ctx, "find tracking session", func(ctx context.Context) error {
		var err error
		session, err = m.store.FindByID(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, wrapSessionErr(err, "failed to load tracking session")
	}
	return session, nil
}

// Subscribe streams snapshots of a session. The first value is the current
// snapshot; later values are newer ones, skipping intermediates when the
// consumer lags. The channel closes after the closing snapshot or when ctx
// ends.
func (m *Manager) Subscribe(ctx context.Context, sessionID id.SessionID) (<-chan models.TrackingSession, error) {
	// Subscribe before loading so no change between the two is missed.
	updates, cancel, err := m.hub.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "tracking stream unavailable")
	}
	current, err := m.Get(ctx, sessionID)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan models.TrackingSession, 1)
	out <- *current
	m.metrics.AddSubscriber(1)
	go func() {
		defer m.metrics.AddSubscriber(-1)
		defer close(out)
		defer cancel()
		if !current.IsActive {
			return
		}
		version := current.Version
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if snap.Version <= version {
					continue
				}
				version = snap.Version
				hub.OfferLatest(out, *snap)
				if !snap.IsActive {
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *Manager) publish(ctx context.Context, session *models.TrackingSession) {
	if err := m.hub.Publish(ctx, session); err != nil {
		m.logger.WarnContext(ctx, "failed to publish tracking snapshot",
			"session_id", session.ID,
			"error", err,
		)
	}
}

func (m *Manager) emitAudit(ctx context.Context, event audit.Event) {
	if m.auditor == nil {
		return
	}
	if err := m.auditor.Emit(ctx, event); err != nil {
		m.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func wrapSessionErr(err error, msg string) error {
	if _, coded := dErrors.From(err); coded {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "tracking session not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
