// Package service runs the two-step challenge exchange that decides whether a
// distress signal is a real emergency.
//
// A correct first answer opens a tracking session in the background and asks
// the second question. A correct second answer records an emergency call and
// moves the alert to investigating. A wrong answer at either step resolves the
// alert as a false alarm and, after the second step, closes any tracking
// session that was opened. Callers cannot tell which step a mismatch came from.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	alertmodels "saferide/internal/alert/models"
	"saferide/internal/audit"
	challengemodels "saferide/internal/challenge/models"
	escalationmodels "saferide/internal/escalation/models"
	"saferide/internal/storage"
	trackingmodels "saferide/internal/tracking/models"
	"saferide/internal/verification/metrics"
	"saferide/internal/verification/models"
	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
	"saferide/pkg/platform/sentinel"
	"saferide/pkg/requestcontext"
)

var tracer = otel.Tracer("saferide/internal/verification")

// DefaultTrackingOpenWait bounds both the background tracking open and how
// long a dismissal waits for it.
const DefaultTrackingOpenWait = 5 * time.Second

// Store persists one verification per alert.
type Store interface {
	CreateIfNoneActive(ctx context.Context, v *models.AlertVerification) error
	FindByAlert(ctx context.Context, alertID id.AlertID) (*models.AlertVerification, error)
	Execute(ctx context.Context, alertID id.AlertID, validate func(*models.AlertVerification) error, mutate func(*models.AlertVerification)) (*models.AlertVerification, error)
}

type Alerts interface {
	Get(ctx context.Context, alertID id.AlertID) (*alertmodels.Alert, error)
	MarkAwaitingVerification(ctx context.Context, alertID id.AlertID) error
	MarkInvestigating(ctx context.Context, alertID id.AlertID) error
	Resolve(ctx context.Context, alertID id.AlertID, note string) error
}

type Challenges interface {
	GetProfile(ctx context.Context, driverID id.DriverID) (*challengemodels.DriverChallengeProfile, error)
	CheckAnswer(profile *challengemodels.DriverChallengeProfile, category challengemodels.Category, submitted string) bool
}

type Tracking interface {
	Open(ctx context.Context, driverID id.DriverID, alertID id.AlertID) (id.SessionID, error)
	ActiveForAlert(ctx context.Context, alertID id.AlertID) (*trackingmodels.TrackingSession, error)
	Close(ctx context.Context, sessionID id.SessionID) error
	CloseForAlert(ctx context.Context, alertID id.AlertID) error
}

type Escalation interface {
	RecordCall(ctx context.Context, alertID id.AlertID, driverID id.DriverID, calledBy id.OperatorID, info escalationmodels.DriverInfo) (id.CallID, error)
	UpdateStatus(ctx context.Context, callID id.CallID, update escalationmodels.StatusUpdate) (*escalationmodels.EscalationCall, error)
}

// DriverDirectory supplies the driver details attached to an emergency call.
type DriverDirectory interface {
	Lookup(ctx context.Context, driverID id.DriverID) (escalationmodels.DriverInfo, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the verification state machine.
type Service struct {
	store      Store
	alerts     Alerts
	challenges Challenges
	tracking   Tracking
	escalation Escalation
	drivers    DriverDirectory
	auditor    AuditPublisher
	metrics    *metrics.Metrics
	guard      storage.Guard
	logger     *slog.Logger
	openWait   time.Duration

	mu      sync.Mutex
	pending map[id.AlertID]chan struct{}
	wg      sync.WaitGroup
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

func WithDriverDirectory(d DriverDirectory) Option {
	return func(s *Service) {
		s.drivers = d
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTrackingOpenWait overrides DefaultTrackingOpenWait.
func WithTrackingOpenWait(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.openWait = d
		}
	}
}

func New(store Store, alerts Alerts, challenges Challenges, tracking Tracking, escalation Escalation, opts ...Option) *Service {
	s := &Service{
		store:      store,
		alerts:     alerts,
		challenges: challenges,
		tracking:   tracking,
		escalation: escalation,
		logger:     slog.Default(),
		openWait:   DefaultTrackingOpenWait,
		pending:    make(map[id.AlertID]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins verification for an alert and returns the primary question.
// A verification that is still in progress blocks a new one; a finished one
// is replaced.
func (s *Service) Start(ctx context.Context, alertID id.AlertID, verifiedBy id.OperatorID) (challengemodels.ChallengeQuestion, error) {
	ctx, span := tracer.Start(ctx, "verification.Start")
	defer span.End()
	span.SetAttributes(attribute.String("alert_id", alertID.String()))

	alert, err := s.alerts.Get(ctx, alertID)
	if err != nil {
		return challengemodels.ChallengeQuestion{}, err
	}
	if alert.Status != alertmodels.StatusActive && alert.Status != alertmodels.StatusAwaitingVerification {
		return challengemodels.ChallengeQuestion{}, dErrors.New(dErrors.CodeConflict, "alert is not open for verification")
	}

	profile, err := s.profile(ctx, alert.DriverID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotConfigured) {
			s.metrics.IncrementStarted("not_configured")
			s.logger.WarnContext(ctx, "verification requested for driver without challenge profile",
				"alert_id", alertID,
				"driver_id", alert.DriverID,
			)
		}
		return challengemodels.ChallengeQuestion{}, err
	}

	if verifiedBy == "" {
		verifiedBy = requestcontext.Operator(ctx)
	}
	v, err := models.NewAlertVerification(alertID, alert.DriverID, verifiedBy, requestcontext.Now(ctx))
	if err != nil {
		return challengemodels.ChallengeQuestion{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid verification")
	}

	// The alert moves first so a failed create can be retried: awaiting
	// verification is itself a valid starting status.
	if err := s.alerts.MarkAwaitingVerification(ctx, alertID); err != nil {
		return challengemodels.ChallengeQuestion{}, err
	}
	err = s.guard.Once(ctx, "create verification", func(ctx context.Context) error {
		return s.store.CreateIfNoneActive(ctx, v)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncrementStarted("already_in_progress")
			return challengemodels.ChallengeQuestion{}, dErrors.New(dErrors.CodeAlreadyInProgress, "verification already in progress")
		}
		span.SetStatus(codes.Error, "create verification")
		return challengemodels.ChallengeQuestion{}, wrapVerificationErr(err, "failed to start verification")
	}

	s.metrics.IncrementStarted("started")
	s.emitAudit(ctx, audit.Event{
		AlertID:  alertID,
		DriverID: alert.DriverID,
		Actor:    verifiedBy,
		Action:   audit.ActionVerificationStarted,
	})
	s.logger.InfoContext(ctx, "verification started",
		"alert_id", alertID,
		"driver_id", alert.DriverID,
		"verified_by", verifiedBy,
	)
	return profile.Question(challengemodels.CategoryPrimary), nil
}

// SubmitFirstAnswer checks the primary answer. A mismatch is a result, not an
// error; it fails the verification and resolves the alert.
func (s *Service) SubmitFirstAnswer(ctx context.Context, alertID id.AlertID, answer string) (*models.FirstAnswerResult, error) {
	ctx, span := tracer.Start(ctx, "verification.SubmitFirstAnswer")
	defer span.End()
	span.SetAttributes(attribute.String("alert_id", alertID.String()))

	current, profile, err := s.load(ctx, alertID, models.StepFirstQuestion)
	if err != nil {
		return nil, err
	}
	correct := s.challenges.CheckAnswer(profile, challengemodels.CategoryPrimary, answer)
	now := requestcontext.Now(ctx)

	updated, err := s.advance(ctx, alertID, models.StepFirstQuestion, func(v *models.AlertVerification) {
		v.RecordFirstAnswer(answer, correct, now)
	})
	if err != nil {
		span.SetStatus(codes.Error, "advance verification")
		return nil, err
	}
	s.recordAnswer(ctx, updated, models.StepFirstQuestion, correct, now.Sub(current.FirstQuestionAskedAt), audit.ActionFirstAnswer)

	if !correct {
		if err := s.alerts.Resolve(ctx, alertID, models.NoteFirstMismatch); err != nil {
			s.logger.ErrorContext(ctx, "verification failed but alert was not resolved",
				"alert_id", alertID,
				"error", err,
			)
			return nil, err
		}
		return &models.FirstAnswerResult{Correct: false}, nil
	}

	s.openTracking(ctx, updated)
	next := profile.Question(challengemodels.CategorySecondary)
	return &models.FirstAnswerResult{Correct: true, NextQuestion: &next}, nil
}

// SubmitSecondAnswer checks the secondary answer. A match records the
// emergency call before the verification completes, so a failed completion
// can be retried without creating a second call. A mismatch closes tracking
// before the verification fails, so a false alarm never leaves a live session;
// if a concurrent match completes first, tracking is reopened for it.
func (s *Service) SubmitSecondAnswer(ctx context.Context, alertID id.AlertID, answer string) (*models.SecondAnswerResult, error) {
	ctx, span := tracer.Start(ctx, "verification.SubmitSecondAnswer")
	defer span.End()
	span.SetAttributes(attribute.String("alert_id", alertID.String()))

	current, profile, err := s.load(ctx, alertID, models.StepSecondQuestion)
	if err != nil {
		return nil, err
	}
	correct := s.challenges.CheckAnswer(profile, challengemodels.CategorySecondary, answer)
	now := requestcontext.Now(ctx)

	var result *models.SecondAnswerResult
	if correct {
		result, err = s.confirm(ctx, current, answer, now)
	} else {
		result, err = s.dismiss(ctx, current, answer, now)
	}
	if err != nil {
		span.SetStatus(codes.Error, "second answer")
		return nil, err
	}
	return result, nil
}

func (s *Service) confirm(ctx context.Context, current *models.AlertVerification, answer string, now time.Time) (*models.SecondAnswerResult, error) {
	calledBy := requestcontext.Operator(ctx)
	if calledBy == "" {
		calledBy = current.VerifiedBy
	}
	callID, err := s.escalation.RecordCall(ctx, current.AlertID, current.DriverID, calledBy, s.driverInfo(ctx, current.DriverID))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record escalation call",
			"alert_id", current.AlertID,
			"error", err,
		)
		return nil, err
	}

	updated, err := s.advance(ctx, current.AlertID, models.StepSecondQuestion, func(v *models.AlertVerification) {
		v.RecordSecondAnswer(answer, true, callID, now)
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidStep) {
			s.cancelOrphanCall(ctx, current.AlertID, callID)
		}
		return nil, err
	}
	s.recordAnswer(ctx, updated, models.StepSecondQuestion, true, askedSince(current, now), audit.ActionSecondAnswer)

	if err := s.alerts.MarkInvestigating(ctx, current.AlertID); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "emergency confirmed",
		"alert_id", current.AlertID,
		"call_id", callID,
		"tracking_session_id", updated.TrackingSessionID,
	)
	return &models.SecondAnswerResult{Correct: true, Action: models.OutcomeCall911}, nil
}

func (s *Service) dismiss(ctx context.Context, current *models.AlertVerification, answer string, now time.Time) (*models.SecondAnswerResult, error) {
	openSettled := s.waitForTracking(ctx, current.AlertID)
	if err := s.tracking.CloseForAlert(ctx, current.AlertID); err != nil {
		s.logger.ErrorContext(ctx, "failed to close tracking for dismissed alert",
			"alert_id", current.AlertID,
			"error", err,
		)
		return nil, err
	}

	updated, err := s.advance(ctx, current.AlertID, models.StepSecondQuestion, func(v *models.AlertVerification) {
		v.RecordSecondAnswer(answer, false, "", now)
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidStep) {
			s.reopenIfConfirmed(ctx, current.AlertID)
		}
		return nil, err
	}
	if !openSettled {
		// The background open may have linked a session between the close
		// above and the step change; the open itself closes anything later.
		if err := s.tracking.CloseForAlert(ctx, current.AlertID); err != nil {
			s.logger.ErrorContext(ctx, "failed to close late tracking session",
				"alert_id", current.AlertID,
				"error", err,
			)
		}
	}
	s.recordAnswer(ctx, updated, models.StepSecondQuestion, false, askedSince(current, now), audit.ActionSecondAnswer)

	if err := s.alerts.Resolve(ctx, current.AlertID, models.NoteSecondMismatch); err != nil {
		s.logger.ErrorContext(ctx, "verification failed but alert was not resolved",
			"alert_id", current.AlertID,
			"error", err,
		)
		return nil, err
	}
	return &models.SecondAnswerResult{Correct: false, Action: models.OutcomeDismissed}, nil
}

// GetStatus returns the alert's current verification.
func (s *Service) GetStatus(ctx context.Context, alertID id.AlertID) (*models.AlertVerification, error) {
	var v *models.AlertVerification
	err := s.guard.Retrying(ctx, "find verification", func(ctx context.Context) error {
		var err error
		v, err = s.store.FindByAlert(ctx, alertID)
		return err
	})
	if err != nil {
		return nil, wrapVerificationErr(err, "failed to load verification")
	}
	return v, nil
}

// Drain waits for background tracking opens to finish.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) load(ctx context.Context, alertID id.AlertID, step models.Step) (*models.AlertVerification, *challengemodels.DriverChallengeProfile, error) {
	v, err := s.GetStatus(ctx, alertID)
	if err != nil {
		return nil, nil, err
	}
	if err := v.ExpectStep(step); err != nil {
		s.logger.WarnContext(ctx, "answer submitted out of step",
			"alert_id", alertID,
			"current_step", v.CurrentStep,
			"expected_step", step,
		)
		if v.CurrentStep == models.StepFailed {
			s.settleFailed(ctx, v)
		}
		return nil, nil, err
	}
	profile, err := s.profile(ctx, v.DriverID)
	if err != nil {
		return nil, nil, err
	}
	return v, profile, nil
}

func (s *Service) profile(ctx context.Context, driverID id.DriverID) (*challengemodels.DriverChallengeProfile, error) {
	profile, err := s.challenges.GetProfile(ctx, driverID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeNotConfigured, "driver has no challenge profile")
		}
		return nil, err
	}
	return profile, nil
}

// advance applies mutate only while the verification is still at step. It is
// not retried: after an unknown commit a retry would report invalid_step.
func (s *Service) advance(ctx context.Context, alertID id.AlertID, step models.Step, mutate func(*models.AlertVerification)) (*models.AlertVerification, error) {
	var updated *models.AlertVerification
	err := s.guard.Once(ctx, "advance verification", func(ctx context.Context) error {
		var err error
		updated, err = s.store.Execute(ctx, alertID,
			func(v *models.AlertVerification) error { return v.ExpectStep(step) },
			mutate,
		)
		return err
	})
	if err != nil {
		return nil, wrapVerificationErr(err, "failed to update verification")
	}
	return updated, nil
}

// openTracking opens the session in the background, detached from the
// request's cancellation but bounded by openWait.
func (s *Service) openTracking(ctx context.Context, v *models.AlertVerification) {
	done := make(chan struct{})
	s.mu.Lock()
	s.pending[v.AlertID] = done
	s.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			if s.pending[v.AlertID] == done {
				delete(s.pending, v.AlertID)
			}
			s.mu.Unlock()
			close(done)
		}()

		sessionID, err := s.open(bg, v)
		if err != nil {
			s.metrics.IncrementTrackingOpenFailure()
			s.logger.ErrorContext(bg, "failed to open tracking session",
				"alert_id", v.AlertID,
				"driver_id", v.DriverID,
				"error", err,
			)
			return
		}
		// Linking gets its own deadline: an open that finished late must still
		// be linked or closed.
		ctx, cancel := context.WithTimeout(bg, s.openWait)
		defer cancel()
		s.linkSession(ctx, v.AlertID, sessionID)
	}()
}

func (s *Service) open(ctx context.Context, v *models.AlertVerification) (id.SessionID, error) {
	ctx, cancel := context.WithTimeout(ctx, s.openWait)
	defer cancel()

	sessionID, err := s.tracking.Open(ctx, v.DriverID, v.AlertID)
	if dErrors.HasCode(err, dErrors.CodeAlreadyOpen) {
		session, findErr := s.tracking.ActiveForAlert(ctx, v.AlertID)
		if findErr != nil {
			return "", findErr
		}
		return session.ID, nil
	}
	return sessionID, err
}

// linkSession records sessionID on the verification, or closes the session
// if the verification was dismissed while it was opening.
func (s *Service) linkSession(ctx context.Context, alertID id.AlertID, sessionID id.SessionID) {
	var wanted bool
	err := s.guard.Retrying(ctx, "link tracking session", func(ctx context.Context) error {
		_, err := s.store.Execute(ctx, alertID,
			func(v *models.AlertVerification) error {
				wanted = v.CurrentStep == models.StepSecondQuestion || v.CurrentStep == models.StepCompleted
				return nil
			},
			func(v *models.AlertVerification) {
				if wanted && v.TrackingSessionID != sessionID {
					v.LinkTrackingSession(sessionID)
				}
			},
		)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to link tracking session",
			"alert_id", alertID,
			"session_id", sessionID,
			"error", err,
		)
		return
	}
	if wanted {
		return
	}
	if err := s.tracking.Close(ctx, sessionID); err != nil {
		s.logger.ErrorContext(ctx, "failed to close tracking session opened after dismissal",
			"alert_id", alertID,
			"session_id", sessionID,
			"error", err,
		)
	}
}

// waitForTracking blocks until a pending background open for the alert has
// finished. Returns false if it was still running when the wait gave up.
func (s *Service) waitForTracking(ctx context.Context, alertID id.AlertID) bool {
	s.mu.Lock()
	done := s.pending[alertID]
	s.mu.Unlock()
	if done == nil {
		return true
	}

	timer := time.NewTimer(s.openWait)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	s.logger.WarnContext(ctx, "tracking open still pending at dismissal",
		"alert_id", alertID,
	)
	return false
}

// settleFailed resolves the alert of a failed verification when the resolve
// after the mismatch did not land, so a retried answer repairs the alert.
func (s *Service) settleFailed(ctx context.Context, v *models.AlertVerification) {
	alert, err := s.alerts.Get(ctx, v.AlertID)
	if err != nil || alert.Status != alertmodels.StatusAwaitingVerification {
		return
	}
	note := models.NoteFirstMismatch
	if v.SecondQuestionCorrect != nil {
		note = models.NoteSecondMismatch
	}
	s.logger.WarnContext(ctx, "resolving alert left open by a failed verification",
		"alert_id", v.AlertID,
	)
	if err := s.alerts.Resolve(ctx, v.AlertID, note); err != nil {
		s.logger.ErrorContext(ctx, "failed to resolve alert for failed verification",
			"alert_id", v.AlertID,
			"error", err,
		)
	}
}

// reopenIfConfirmed restores tracking when a concurrent confirmation won the
// race against a dismissal that had already closed the session.
func (s *Service) reopenIfConfirmed(ctx context.Context, alertID id.AlertID) {
	latest, err := s.GetStatus(ctx, alertID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to reload verification after lost dismissal",
			"alert_id", alertID,
			"error", err,
		)
		return
	}
	if latest.CurrentStep != models.StepCompleted {
		return
	}
	s.logger.WarnContext(ctx, "dismissal lost to a confirmation; reopening tracking",
		"alert_id", alertID,
		"closed_session_id", latest.TrackingSessionID,
	)
	s.openTracking(ctx, latest)
}

// cancelOrphanCall cancels a call recorded by an answer that lost a race to a
// concurrent answer for the same alert.
func (s *Service) cancelOrphanCall(ctx context.Context, alertID id.AlertID, callID id.CallID) {
	if current, err := s.GetStatus(ctx, alertID); err == nil && current.CallID == callID {
		return
	}
	_, err := s.escalation.UpdateStatus(ctx, callID, escalationmodels.StatusUpdate{
		Status: escalationmodels.CallStatusCancelled,
		Notes:  "verification was already decided",
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to cancel orphaned escalation call",
			"alert_id", alertID,
			"call_id", callID,
			"error", err,
		)
	}
}

func (s *Service) driverInfo(ctx context.Context, driverID id.DriverID) escalationmodels.DriverInfo {
	if s.drivers == nil {
		return escalationmodels.DriverInfo{}
	}
	info, err := s.drivers.Lookup(ctx, driverID)
	if err != nil {
		s.logger.WarnContext(ctx, "driver details unavailable for escalation call",
			"driver_id", driverID,
			"error", err,
		)
		return escalationmodels.DriverInfo{}
	}
	return info
}

func (s *Service) recordAnswer(ctx context.Context, v *models.AlertVerification, step models.Step, correct bool, delay time.Duration, action audit.Action) {
	s.metrics.IncrementAnswer(string(step), correct)
	s.metrics.ObserveAnswerDelay(string(step), delay)

	outcome := "match"
	if !correct {
		outcome = "mismatch"
	}
	s.emitAudit(ctx, audit.Event{
		AlertID:  v.AlertID,
		DriverID: v.DriverID,
		Action:   action,
		Outcome:  outcome,
		Detail:   string(v.CurrentStep),
	})
	s.logger.InfoContext(ctx, "challenge answer evaluated",
		"alert_id", v.AlertID,
		"step", step,
		"correct", correct,
		"current_step", v.CurrentStep,
	)
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func askedSince(v *models.AlertVerification, now time.Time) time.Duration {
	if v.SecondQuestionAskedAt == nil {
		return 0
	}
	return now.Sub(*v.SecondQuestionAskedAt)
}

func wrapVerificationErr(err error, msg string) error {
	if _, coded := dErrors.From(err); coded {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "verification not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
