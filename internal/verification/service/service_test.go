package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	alertmodels "saferide/internal/alert/models"
	alertservice "saferide/internal/alert/service"
	alertstore "saferide/internal/alert/store"
	"saferide/internal/audit"
	challengemodels "saferide/internal/challenge/models"
	challengeservice "saferide/internal/challenge/service"
	"saferide/internal/challenge/store/profile"
	"saferide/internal/driver"
	escalationmodels "saferide/internal/escalation/models"
	escalationservice "saferide/internal/escalation/service"
	escalationstore "saferide/internal/escalation/store"
	trackingservice "saferide/internal/tracking/service"
	trackingstore "saferide/internal/tracking/store"
	"saferide/internal/verification/metrics"
	"saferide/internal/verification/models"
	"saferide/internal/verification/store"
	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
	"saferide/pkg/requestcontext"
)

// VerificationSuite wires the state machine to real in-memory collaborators.
type VerificationSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	alerts     *alertservice.Service
	challenges *challengeservice.Service
	tracking   *trackingservice.Manager
	dispatcher *escalationservice.Dispatcher
	auditStore *audit.InMemoryStore
	metrics    *metrics.Metrics
	service    *Service
}

func TestVerificationSuite(t *testing.T) {
	suite.Run(t, new(VerificationSuite))
}

func (s *VerificationSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithOperator(s.ctx, "phone-tree")

	s.alerts = alertservice.New(alertstore.NewInMemory())
	s.challenges = challengeservice.New(profile.NewInMemory(), challengeservice.WithHashCost(bcrypt.MinCost))
	s.tracking = trackingservice.New(trackingstore.NewInMemory(), s.alerts)
	s.dispatcher = escalationservice.New(escalationstore.NewInMemory(), s.alerts)
	s.auditStore = audit.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())

	drivers := driver.NewInMemory()
	drivers.Put("driver-1", escalationmodels.DriverInfo{Name: "Ana Mora", Vehicle: "Toyota Yaris gris", Plate: "BCD-123"})

	s.service = New(store.NewInMemory(), s.alerts, s.challenges, s.tracking, s.dispatcher,
		WithDriverDirectory(drivers),
		WithAuditPublisher(audit.NewPublisher(s.auditStore)),
		WithMetrics(s.metrics),
	)

	_, err := s.challenges.SaveProfile(s.ctx, "driver-1",
		challengemodels.QuestionAnswer{Question: "El gato tiene atrapado al ratón", Answer: "Sí"},
		challengemodels.QuestionAnswer{Question: "Pura vida mae", Answer: "No"},
	)
	s.Require().NoError(err)
}

func (s *VerificationSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Require().NoError(s.service.Drain(ctx))
}

func (s *VerificationSuite) raise(alertID id.AlertID, driverID id.DriverID) {
	_, err := s.alerts.Raise(s.ctx, alertID, driverID)
	s.Require().NoError(err)
}

func (s *VerificationSuite) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Require().NoError(s.service.Drain(ctx))
}

func (s *VerificationSuite) startAndPassFirst(alertID id.AlertID) {
	s.raise(alertID, "driver-1")
	_, err := s.service.Start(s.ctx, alertID, "")
	s.Require().NoError(err)
	res, err := s.service.SubmitFirstAnswer(s.ctx, alertID, "sí")
	s.Require().NoError(err)
	s.Require().True(res.Correct)
	s.drain()
}

func (s *VerificationSuite) TestEmergencyConfirmed() {
	s.raise("A1", "driver-1")

	question, err := s.service.Start(s.ctx, "A1", "dispatcher-7")
	s.Require().NoError(err)
	s.Equal("El gato tiene atrapado al ratón", question.Text)
	s.Equal(challengemodels.CategoryPrimary, question.Category)

	alert, err := s.alerts.Get(s.ctx, "A1")
	s.Require().NoError(err)
	s.Equal(alertmodels.StatusAwaitingVerification, alert.Status)

	first, err := s.service.SubmitFirstAnswer(s.ctx, "A1", "sí")
	s.Require().NoError(err)
	s.True(first.Correct)
	s.Require().NotNil(first.NextQuestion)
	s.Equal("Pura vida mae", first.NextQuestion.Text)
	s.True(first.NextQuestion.CulturalContext)
	s.drain()

	session, err := s.tracking.ActiveForAlert(s.ctx, "A1")
	s.Require().NoError(err, "a session is opened after the first answer")

	status, err := s.service.GetStatus(s.ctx, "A1")
	s.Require().NoError(err)
	s.Equal(models.StepSecondQuestion, status.CurrentStep)
	s.Equal(models.ActionEnableTracking, status.ActionTaken)
	s.Equal(session.ID, status.TrackingSessionID)
	s.Require().NotNil(status.SecondQuestionAskedAt)

	second, err := s.service.SubmitSecondAnswer(s.ctx, "A1", "no")
	s.Require().NoError(err)
	s.Equal(models.SecondAnswerResult{Correct: true, Action: models.OutcomeCall911}, *second)

	status, err = s.service.GetStatus(s.ctx, "A1")
	s.Require().NoError(err)
	s.Equal(models.StepCompleted, status.CurrentStep)
	s.Equal(models.ActionCall911, status.ActionTaken)
	s.EqualValues("dispatcher-7", status.VerifiedBy)
	s.Equal("sí", status.FirstQuestionAnswer)
	s.Equal("no", status.SecondQuestionAnswer)

	alert, err = s.alerts.Get(s.ctx, "A1")
	s.Require().NoError(err)
	s.Equal(alertmodels.StatusInvestigating, alert.Status)

	call, err := s.dispatcher.FindByAlert(s.ctx, "A1")
	s.Require().NoError(err)
	s.Equal(status.CallID, call.ID)
	s.Equal(call.ID, alert.Resolution.Call911ID)
	s.Equal("BCD-123", call.DriverInfo.Plate)
	s.EqualValues("phone-tree", call.CalledBy)
	s.Equal(escalationmodels.CallStatusPending, call.Status)

	stillOpen, err := s.tracking.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.True(stillOpen.IsActive, "tracking continues while the emergency is investigated")
}

func (s *VerificationSuite) TestFirstMismatchResolvesAlert() {
	s.raise("A2", "driver-1")
	_, err := s.service.Start(s.ctx, "A2", "")
	s.Require().NoError(err)

	res, err := s.service.SubmitFirstAnswer(s.ctx, "A2", "no")
	s.Require().NoError(err)
	s.False(res.Correct)
	s.Nil(res.NextQuestion)
	s.drain()

	status, err := s.service.GetStatus(s.ctx, "A2")
	s.Require().NoError(err)
	s.Equal(models.StepFailed, status.CurrentStep)
	s.Require().NotNil(status.FirstQuestionCorrect)
	s.False(*status.FirstQuestionCorrect)

	alert, err := s.alerts.Get(s.ctx, "A2")
	s.Require().NoError(err)
	s.Equal(alertmodels.StatusResolved, alert.Status)
	s.Equal(models.NoteFirstMismatch, alert.Resolution.Note)

	_, err = s.tracking.ActiveForAlert(s.ctx, "A2")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "no tracking session")
	_, err = s.dispatcher.FindByAlert(s.ctx, "A2")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "no escalation call")
}

func (s *VerificationSuite) TestSecondMismatchClosesTracking() {
	s.startAndPassFirst("alert-3")
	session, err := s.tracking.ActiveForAlert(s.ctx, "alert-3")
	s.Require().NoError(err)

	res, err := s.service.SubmitSecondAnswer(s.ctx, "alert-3", "sí")
	s.Require().NoError(err)
	s.Equal(models.SecondAnswerResult{Correct: false, Action: models.OutcomeDismissed}, *res)

	closed, err := s.tracking.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.False(closed.IsActive)

	status, err := s.service.GetStatus(s.ctx, "alert-3")
	s.Require().NoError(err)
	s.Equal(models.StepFailed, status.CurrentStep)
	s.Require().NotNil(status.SecondQuestionCorrect)
	s.False(*status.SecondQuestionCorrect)

	alert, err := s.alerts.Get(s.ctx, "alert-3")
	s.Require().NoError(err)
	s.Equal(alertmodels.StatusResolved, alert.Status)
	s.Equal(models.NoteSecondMismatch, alert.Resolution.Note)

	_, err = s.dispatcher.FindByAlert(s.ctx, "alert-3")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.tracking.AppendLocation(s.ctx, session.ID, id.LocationSample{Latitude: 9.9, Longitude: -84.1, Timestamp: s.now})
	s.True(dErrors.HasCode(err, dErrors.CodeSessionClosed), "late samples fail fast")
}

func (s *VerificationSuite) TestAnswerNormalization() {
	for i, answer := range []string{" Sí ", "sí", "SÍ", "Sí"} {
		alertID := id.AlertID("norm-" + string(rune('a'+i)))
		s.raise(alertID, "driver-1")
		_, err := s.service.Start(s.ctx, alertID, "")
		s.Require().NoError(err)

		res, err := s.service.SubmitFirstAnswer(s.ctx, alertID, answer)
		s.Require().NoError(err)
		s.True(res.Correct, "answer %q", answer)
	}
	s.drain()
}

func (s *VerificationSuite) TestOutOfStepAnswers() {
	s.raise("alert-4", "driver-1")
	_, err := s.service.Start(s.ctx, "alert-4", "")
	s.Require().NoError(err)

	_, err = s.service.SubmitSecondAnswer(s.ctx, "alert-4", "no")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidStep), "second answer before the first")

	_, err = s.service.SubmitFirstAnswer(s.ctx, "alert-4", "sí")
	s.Require().NoError(err)
	_, err = s.service.SubmitFirstAnswer(s.ctx, "alert-4", "sí")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidStep), "first answer replayed")
	s.drain()

	_, err = s.service.SubmitSecondAnswer(s.ctx, "alert-4", "no")
	s.Require().NoError(err)
	_, err = s.service.SubmitSecondAnswer(s.ctx, "alert-4", "no")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidStep), "second answer replayed")

	call, err := s.dispatcher.FindByAlert(s.ctx, "alert-4")
	s.Require().NoError(err)
	status, err := s.service.GetStatus(s.ctx, "alert-4")
	s.Require().NoError(err)
	s.Equal(call.ID, status.CallID)
}

func (s *VerificationSuite) TestStartWithoutProfile() {
	s.raise("alert-5", "driver-without-profile")

	_, err := s.service.Start(s.ctx, "alert-5", "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotConfigured))

	alert, err := s.alerts.Get(s.ctx, "alert-5")
	s.Require().NoError(err)
	s.Equal(alertmodels.StatusActive, alert.Status, "nothing changes when verification cannot start")
	_, err = s.service.GetStatus(s.ctx, "alert-5")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Started.WithLabelValues("not_configured")))
}

func (s *VerificationSuite) TestStartTwice() {
	s.raise("alert-6", "driver-1")
	_, err := s.service.Start(s.ctx, "alert-6", "")
	s.Require().NoError(err)

	_, err = s.service.Start(s.ctx, "alert-6", "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyInProgress))
}

func (s *VerificationSuite) TestStartUnknownAlert() {
	_, err := s.service.Start(s.ctx, "missing", "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *VerificationSuite) TestRestartAfterReactivation() {
	s.raise("alert-7", "driver-1")
	_, err := s.service.Start(s.ctx, "alert-7", "")
	s.Require().NoError(err)
	_, err = s.service.SubmitFirstAnswer(s.ctx, "alert-7", "tal vez")
	s.Require().NoError(err)

	_, err = s.service.Start(s.ctx, "alert-7", "")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "resolved alerts are not verified again")

	s.Require().NoError(s.alerts.Reactivate(s.ctx, "alert-7"))
	_, err = s.service.Start(s.ctx, "alert-7", "")
	s.Require().NoError(err)

	status, err := s.service.GetStatus(s.ctx, "alert-7")
	s.Require().NoError(err)
	s.Equal(models.StepFirstQuestion, status.CurrentStep)
	s.Nil(status.FirstQuestionCorrect)
}

func (s *VerificationSuite) TestConcurrentFirstAnswersAdvanceOnce() {
	s.raise("alert-8", "driver-1")
	_, err := s.service.Start(s.ctx, "alert-8", "")
	s.Require().NoError(err)

	const callers = 8
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.SubmitFirstAnswer(s.ctx, "alert-8", "sí")
			results <- err
		}()
	}
	wg.Wait()
	close(results)
	s.drain()

	var ok, invalid int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case dErrors.HasCode(err, dErrors.CodeInvalidStep):
			invalid++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, ok)
	s.Equal(callers-1, invalid)

	status, err := s.service.GetStatus(s.ctx, "alert-8")
	s.Require().NoError(err)
	s.Equal(int64(3), status.Version, "one answer plus one session link")
}

func (s *VerificationSuite) TestAuditTrailOmitsAnswers() {
	s.startAndPassFirst("alert-9")
	_, err := s.service.SubmitSecondAnswer(s.ctx, "alert-9", "no")
	s.Require().NoError(err)

	events, err := s.auditStore.ListByAlert(s.ctx, "alert-9")
	s.Require().NoError(err)
	var actions []audit.Action
	for _, e := range events {
		actions = append(actions, e.Action)
		s.NotEqual("sí", e.Detail)
		s.NotEqual("no", e.Detail)
	}
	s.Contains(actions, audit.ActionVerificationStarted)
	s.Contains(actions, audit.ActionFirstAnswer)
	s.Contains(actions, audit.ActionSecondAnswer)
}

// closeHookTracking runs beforeClose once, ahead of the first CloseForAlert.
type closeHookTracking struct {
	*trackingservice.Manager
	once        sync.Once
	beforeClose func(ctx context.Context, alertID id.AlertID)
}

func (t *closeHookTracking) CloseForAlert(ctx context.Context, alertID id.AlertID) error {
	t.once.Do(func() { t.beforeClose(ctx, alertID) })
	return t.Manager.CloseForAlert(ctx, alertID)
}

// recordHookEscalation runs afterRecord once, after the first call is stored
// and before RecordCall returns.
type recordHookEscalation struct {
	*escalationservice.Dispatcher
	once        sync.Once
	afterRecord func(ctx context.Context, alertID id.AlertID)
}

func (e *recordHookEscalation) RecordCall(ctx context.Context, alertID id.AlertID, driverID id.DriverID, calledBy id.OperatorID, info escalationmodels.DriverInfo) (id.CallID, error) {
	callID, err := e.Dispatcher.RecordCall(ctx, alertID, driverID, calledBy, info)
	if err == nil {
		e.once.Do(func() { e.afterRecord(ctx, alertID) })
	}
	return callID, err
}

func (s *VerificationSuite) serviceWith(tracking Tracking, escalation Escalation) *Service {
	svc := New(store.NewInMemory(), s.alerts, s.challenges, tracking, escalation)
	s.T().Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.NoError(svc.Drain(ctx))
	})
	return svc
}

func (s *VerificationSuite) drainService(svc *Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Require().NoError(svc.Drain(ctx))
}

func (s *VerificationSuite) TestConfirmationWinningOverDismissalKeepsTracking() {
	tracking := &closeHookTracking{Manager: s.tracking}
	svc := s.serviceWith(tracking, s.dispatcher)
	tracking.beforeClose = func(ctx context.Context, alertID id.AlertID) {
		res, err := svc.SubmitSecondAnswer(ctx, alertID, "no")
		s.Require().NoError(err)
		s.Require().Equal(models.OutcomeCall911, res.Action)
	}

	s.raise("race-1", "driver-1")
	_, err := svc.Start(s.ctx, "race-1", "")
	s.Require().NoError(err)
	_, err = svc.SubmitFirstAnswer(s.ctx, "race-1", "sí")
	s.Require().NoError(err)
	s.drainService(svc)

	_, err = svc.SubmitSecondAnswer(s.ctx, "race-1", "tal vez")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidStep))
	s.drainService(svc)

	session, err := s.tracking.ActiveForAlert(s.ctx, "race-1")
	s.Require().NoError(err, "a confirmed emergency keeps a live session")

	status, err := svc.GetStatus(s.ctx, "race-1")
	s.Require().NoError(err)
	s.Equal(models.StepCompleted, status.CurrentStep)
	s.Equal(models.ActionCall911, status.ActionTaken)
	s.Equal(session.ID, status.TrackingSessionID)

	alert, err := s.alerts.Get(s.ctx, "race-1")
	s.Require().NoError(err)
	s.Equal(alertmodels.StatusInvestigating, alert.Status)
}

func (s *VerificationSuite) TestReactivatedAlertGetsFreshCallAfterCancelledOne() {
	escalation := &recordHookEscalation{Dispatcher: s.dispatcher}
	svc := s.serviceWith(s.tracking, escalation)
	escalation.afterRecord = func(ctx context.Context, alertID id.AlertID) {
		res, err := svc.SubmitSecondAnswer(ctx, alertID, "tal vez")
		s.Require().NoError(err)
		s.Require().Equal(models.OutcomeDismissed, res.Action)
	}

	s.raise("race-2", "driver-1")
	_, err := svc.Start(s.ctx, "race-2", "")
	s.Require().NoError(err)
	_, err = svc.SubmitFirstAnswer(s.ctx, "race-2", "sí")
	s.Require().NoError(err)
	s.drainService(svc)

	_, err = svc.SubmitSecondAnswer(s.ctx, "race-2", "no")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidStep), "the confirmation lost to the dismissal")
	cancelled, err := s.dispatcher.FindByAlert(s.ctx, "race-2")
	s.Require().NoError(err)
	s.Equal(escalationmodels.CallStatusCancelled, cancelled.Status)

	s.Require().NoError(s.alerts.Reactivate(s.ctx, "race-2"))
	_, err = svc.Start(s.ctx, "race-2", "")
	s.Require().NoError(err)
	_, err = svc.SubmitFirstAnswer(s.ctx, "race-2", "sí")
	s.Require().NoError(err)
	s.drainService(svc)
	res, err := svc.SubmitSecondAnswer(s.ctx, "race-2", "no")
	s.Require().NoError(err)
	s.Equal(models.OutcomeCall911, res.Action)

	call, err := s.dispatcher.FindByAlert(s.ctx, "race-2")
	s.Require().NoError(err)
	s.NotEqual(cancelled.ID, call.ID)
	s.Equal(escalationmodels.CallStatusPending, call.Status)

	status, err := svc.GetStatus(s.ctx, "race-2")
	s.Require().NoError(err)
	s.Equal(call.ID, status.CallID)
	alert, err := s.alerts.Get(s.ctx, "race-2")
	s.Require().NoError(err)
	s.Equal(call.ID, alert.Resolution.Call911ID)
}

// resolveFailingAlerts fails the next failures Resolve calls.
type resolveFailingAlerts struct {
	*alertservice.Service
	failures int
}

func (a *resolveFailingAlerts) Resolve(ctx context.Context, alertID id.AlertID, note string) error {
	if a.failures > 0 {
		a.failures--
		return dErrors.New(dErrors.CodeStoreUnavailable, "resolve alert: store unavailable")
	}
	return a.Service.Resolve(ctx, alertID, note)
}

func (s *VerificationSuite) TestRetriedMismatchResolvesAlertLeftOpen() {
	alerts := &resolveFailingAlerts{Service: s.alerts, failures: 1}
	svc := New(store.NewInMemory(), alerts, s.challenges, s.tracking, s.dispatcher)

	s.raise("stuck-1", "driver-1")
	_, err := svc.Start(s.ctx, "stuck-1", "")
	s.Require().NoError(err)

	_, err = svc.SubmitFirstAnswer(s.ctx, "stuck-1", "tal vez")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStoreUnavailable))
	alert, err := s.alerts.Get(s.ctx, "stuck-1")
	s.Require().NoError(err)
	s.Equal(alertmodels.StatusAwaitingVerification, alert.Status)

	_, err = svc.SubmitFirstAnswer(s.ctx, "stuck-1", "tal vez")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidStep))

	alert, err = s.alerts.Get(s.ctx, "stuck-1")
	s.Require().NoError(err)
	s.Equal(alertmodels.StatusResolved, alert.Status)
	s.Equal(models.NoteFirstMismatch, alert.Resolution.Note)
}
