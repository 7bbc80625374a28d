// Package service records emergency-dispatch intents and tracks their
// progress through the telephony integration.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	alertmodels "saferide/internal/alert/models"
	"saferide/internal/audit"
	"saferide/internal/escalation/metrics"
	"saferide/internal/escalation/models"
	"saferide/internal/escalation/publisher"
	"saferide/internal/platform/config"
	"saferide/internal/storage"
	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
	"saferide/pkg/platform/sentinel"
	"saferide/pkg/requestcontext"
)

var tracer = otel.Tracer("saferide/internal/escalation")

// Store persists escalation calls, at most one live call per alert.
type Store interface {
	CreateIfAbsent(ctx context.Context, call *models.EscalationCall) (*models.EscalationCall, bool, error)
	FindByID(ctx context.Context, callID id.CallID) (*models.EscalationCall, error)
	FindByAlert(ctx context.Context, alertID id.AlertID) (*models.EscalationCall, error)
	Execute(ctx context.Context, callID id.CallID, mutate func(*models.EscalationCall) error) (*models.EscalationCall, error)
}

// Alerts reads the alert's location, links the call onto its resolution and
// concludes the alert once its call is resolved.
type Alerts interface {
	Get(ctx context.Context, alertID id.AlertID) (*alertmodels.Alert, error)
	LinkCall(ctx context.Context, alertID id.AlertID, callID id.CallID) error
	Conclude(ctx context.Context, alertID id.AlertID, note string) error
}

// NoteCallResolved is the alert resolution note written when its emergency
// call is reported resolved.
const NoteCallResolved = "emergency call resolved"

type IntentPublisher interface {
	Publish(ctx context.Context, intent publisher.Intent) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Dispatcher owns escalation call records.
type Dispatcher struct {
	store    Store
	alerts   Alerts
	intents  IntentPublisher
	auditor  AuditPublisher
	metrics  *metrics.Metrics
	guard    storage.Guard
	logger   *slog.Logger
	fallback id.Coordinates
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithGuard(g storage.Guard) Option {
	return func(d *Dispatcher) {
		d.guard = g
	}
}

func WithIntentPublisher(p IntentPublisher) Option {
	return func(d *Dispatcher) {
		d.intents = p
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(d *Dispatcher) {
		d.auditor = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithFallbackLocation sets the position reported when an alert has none.
func WithFallbackLocation(loc id.Coordinates) Option {
	return func(d *Dispatcher) {
		d.fallback = loc
	}
}

func New(store Store, alerts Alerts, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		alerts:   alerts,
		intents:  publisher.Noop{},
		logger:   slog.Default(),
		fallback: id.Coordinates{Latitude: config.DefaultFallbackLatitude, Longitude: config.DefaultFallbackLongitude},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RecordCall creates the pending call for an alert. Repeating it while the
// alert's call is live returns the existing call ID without side effects; once
// that call is resolved or cancelled a new one is recorded.
func (d *Dispatcher) RecordCall(ctx context.Context, alertID id.AlertID, driverID id.DriverID, calledBy id.OperatorID, info models.DriverInfo) (id.CallID, error) {
	ctx, span := tracer.Start(ctx, "escalation.RecordCall")
	defer span.End()
	span.SetAttributes(attribute.String("alert_id", alertID.String()))

	alert, err := d.alerts.Get(ctx, alertID)
	if err != nil {
		span.SetStatus(codes.Error, "load alert")
		return "", err
	}
	if driverID.IsNil() {
		driverID = alert.DriverID
	}
	if driverID != alert.DriverID {
		return "", dErrors.New(dErrors.CodeInvalidInput, "driver does not own this alert")
	}

	loc, fallback := d.fallback, true
	if alert.CurrentLocation != nil {
		loc, fallback = alert.CurrentLocation.Coordinates(), false
	}
	candidate, err := models.NewEscalationCall(alertID, driverID, calledBy, loc, fallback, info, requestcontext.Now(ctx))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid escalation call")
	}

	var (
		call    *models.EscalationCall
		created bool
	)
	err = d.guard.Retrying(ctx, "record escalation call", func(ctx context.Context) error {
		var err error
		call, created, err = d.store.CreateIfAbsent(ctx, candidate)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, "store call")
		return "", wrapCallErr(err, "failed to record escalation call")
	}

	if err := d.alerts.LinkCall(ctx, alertID, call.ID); err != nil {
		span.SetStatus(codes.Error, "link call")
		return "", err
	}
	if !created {
		return call.ID, nil
	}

	d.metrics.IncrementCallRecorded(call.LocationIsFallback)
	d.publish(ctx, publisher.IntentCallRecorded, call)
	d.emitAudit(ctx, audit.Event{
		AlertID:  call.AlertID,
		DriverID: call.DriverID,
		Actor:    calledBy,
		Action:   audit.ActionCallRecorded,
		Outcome:  string(call.Status),
	})
	d.logger.InfoContext(ctx, "escalation call recorded",
		"call_id", call.ID,
		"alert_id", call.AlertID,
		"location_is_fallback", call.LocationIsFallback,
	)
	return call.ID, nil
}

// UpdateStatus applies a progress report. Any known status is accepted; notes
// accumulate. A resolved report for the alert's current call also resolves the
// alert and ends its tracking.
func (d *Dispatcher) UpdateStatus(ctx context.Context, callID id.CallID, update models.StatusUpdate) (*models.EscalationCall, error) {
	ctx, span := tracer.Start(ctx, "escalation.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("call_id", callID.String()))

	if !update.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown call status")
	}
	now := requestcontext.Now(ctx)

	var call *models.EscalationCall
	// Notes are appended, so a blind retry could duplicate them.
	err := d.guard.Once(ctx, "update escalation call", func(ctx context.Context) error {
		var err error
		call, err = d.store.Execute(ctx, callID, func(c *models.EscalationCall) error {
			c.ApplyUpdate(update, now)
			return nil
		})
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, "update call")
		return nil, wrapCallErr(err, "failed to update escalation call")
	}

	d.metrics.IncrementStatusUpdate(string(call.Status))
	d.publish(ctx, publisher.IntentStatusUpdated, call)
	d.emitAudit(ctx, audit.Event{
		AlertID:  call.AlertID,
		DriverID: call.DriverID,
		Action:   audit.ActionCallStatusUpdated,
		Outcome:  string(call.Status),
	})
	d.logger.InfoContext(ctx, "escalation call updated",
		"call_id", call.ID,
		"alert_id", call.AlertID,
		"status", call.Status,
	)
	if call.Status == models.CallStatusResolved {
		d.concludeAlert(ctx, call)
	}
	return call, nil
}

// concludeAlert is best effort: the call update is already committed, and the
// platform can still resolve the alert directly.
func (d *Dispatcher) concludeAlert(ctx context.Context, call *models.EscalationCall) {
	alert, err := d.alerts.Get(ctx, call.AlertID)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to load alert for resolved call",
			"call_id", call.ID,
			"alert_id", call.AlertID,
			"error", err,
		)
		return
	}
	if alert.Resolution.Call911ID != call.ID {
		return
	}
	if err := d.alerts.Conclude(ctx, call.AlertID, NoteCallResolved); err != nil {
		d.logger.ErrorContext(ctx, "failed to resolve alert for resolved call",
			"call_id", call.ID,
			"alert_id", call.AlertID,
			"error", err,
		)
	}
}

func (d *Dispatcher) GetCall(ctx context.Context, callID id.CallID) (*models.EscalationCall, error) {
	var call *models.EscalationCall
	err := d.guard.Retrying(ctx, "find escalation call", func(ctx context.Context) error {
		var err error
		call, err = d.store.FindByID(ctx, callID)
		return err
	})
	if err != nil {
		return nil, wrapCallErr(err, "failed to load escalation call")
	}
	return call, nil
}

func (d *Dispatcher) FindByAlert(ctx context.Context, alertID id.AlertID) (*models.EscalationCall, error) {
	var call *models.EscalationCall
	err := d.guard.Retrying(ctx, "find escalation call by alert", func(ctx context.Context) error {
		var err error
		call, err = d.store.FindByAlert(ctx, alertID)
		return err
	})
	if err != nil {
		return nil, wrapCallErr(err, "failed to load escalation call")
	}
	return call, nil
}

// publish is best effort: the stored call is authoritative and the telephony
// integration can always poll it.
func (d *Dispatcher) publish(ctx context.Context, t publisher.IntentType, call *models.EscalationCall) {
	if err := d.intents.Publish(ctx, publisher.NewIntent(t, call)); err != nil {
		d.metrics.IncrementPublishFailure()
		d.logger.WarnContext(ctx, "escalation intent not published",
			"call_id", call.ID,
			"type", t,
			"error", err,
		)
	}
}

func (d *Dispatcher) emitAudit(ctx context.Context, event audit.Event) {
	if d.auditor == nil {
		return
	}
	if err := d.auditor.Emit(ctx, event); err != nil {
		d.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func wrapCallErr(err error, msg string) error {
	if _, coded := dErrors.From(err); coded {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "escalation call not found")
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.New(dErrors.CodeConflict, "alert already has a live escalation call")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
