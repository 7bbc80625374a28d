package models

import (
	"time"

	challengemodels "saferide/internal/challenge/models"
	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
)

// Step is the position of a verification in the challenge exchange.
type Step string

const (
	StepFirstQuestion  Step = "first_question"
	StepSecondQuestion Step = "second_question"
	StepCompleted      Step = "completed"
	StepFailed         Step = "failed"
)

var stepTransitions = map[Step][]Step{
	StepFirstQuestion:  {StepSecondQuestion, StepFailed},
	StepSecondQuestion: {StepCompleted, StepFailed},
	StepCompleted:      nil,
	StepFailed:         nil,
}

func (s Step) IsValid() bool {
	_, ok := stepTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Step) IsTerminal() bool {
	return s.IsValid() && len(stepTransitions[s]) == 0
}

func (s Step) CanTransitionTo(next Step) bool {
	for _, allowed := range stepTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Action is the escalation taken as a result of the exchange.
type Action string

const (
	ActionNone           Action = "none"
	ActionEnableTracking Action = "enable_tracking"
	ActionCall911        Action = "call_911"
)

// Outcome is what a second answer led to, as reported to the caller.
type Outcome string

const (
	OutcomeCall911   Outcome = "call_911"
	OutcomeDismissed Outcome = "dismissed"
)

// Resolution notes written on the alert when an answer does not match.
const (
	NoteFirstMismatch  = "first-question mismatch"
	NoteSecondMismatch = "second-question mismatch"
)

// AlertVerification is the challenge exchange for one activation of an alert.
// Steps only move forward; completed and failed are terminal. Submitted
// answers are kept for investigation and never serialized to callers.
type AlertVerification struct {
	AlertID               id.AlertID    `json:"alert_id"`
	DriverID              id.DriverID   `json:"driver_id"`
	CurrentStep           Step          `json:"current_step"`
	FirstQuestionAskedAt  time.Time     `json:"first_question_asked_at"`
	FirstQuestionAnswer   string        `json:"-"`
	FirstQuestionCorrect  *bool         `json:"first_question_correct,omitempty"`
	SecondQuestionAskedAt *time.Time    `json:"second_question_asked_at,omitempty"`
	SecondQuestionAnswer  string        `json:"-"`
	SecondQuestionCorrect *bool         `json:"second_question_correct,omitempty"`
	CompletedAt           *time.Time    `json:"completed_at,omitempty"`
	ActionTaken           Action        `json:"action_taken"`
	VerifiedBy            id.OperatorID `json:"verified_by"`
	TrackingSessionID     id.SessionID  `json:"tracking_session_id,omitempty"`
	CallID                id.CallID     `json:"call_id,omitempty"`
	Version               int64         `json:"version"`
}

// NewAlertVerification starts an exchange at the first question.
func NewAlertVerification(alertID id.AlertID, driverID id.DriverID, verifiedBy id.OperatorID, now time.Time) (*AlertVerification, error) {
	if alertID.IsNil() || driverID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "alert and driver IDs are required")
	}
	return &AlertVerification{
		AlertID:              alertID,
		DriverID:             driverID,
		CurrentStep:          StepFirstQuestion,
		FirstQuestionAskedAt: now,
		ActionTaken:          ActionNone,
		VerifiedBy:           verifiedBy,
		Version:              1,
	}, nil
}

// ExpectStep rejects an answer submitted outside its step.
func (v *AlertVerification) ExpectStep(step Step) error {
	if v.CurrentStep != step {
		return dErrors.New(dErrors.CodeInvalidStep,
			"verification is at "+string(v.CurrentStep)+", not "+string(step))
	}
	return nil
}

// RecordFirstAnswer applies the first answer. Call ExpectStep(StepFirstQuestion) first.
func (v *AlertVerification) RecordFirstAnswer(answer string, correct bool, now time.Time) {
	v.FirstQuestionAnswer = answer
	v.FirstQuestionCorrect = &correct
	if correct {
		v.moveTo(StepSecondQuestion)
		v.SecondQuestionAskedAt = &now
		v.ActionTaken = ActionEnableTracking
	} else {
		v.moveTo(StepFailed)
		v.CompletedAt = &now
	}
	v.Version++
}

// RecordSecondAnswer applies the second answer. callID links the escalation
// call recorded for a correct answer. Call ExpectStep(StepSecondQuestion) first.
func (v *AlertVerification) RecordSecondAnswer(answer string, correct bool, callID id.CallID, now time.Time) {
	v.SecondQuestionAnswer = answer
	v.SecondQuestionCorrect = &correct
	if correct {
		v.moveTo(StepCompleted)
		v.ActionTaken = ActionCall911
		v.CallID = callID
	} else {
		v.moveTo(StepFailed)
	}
	v.CompletedAt = &now
	v.Version++
}

// LinkTrackingSession records the session opened after the first answer.
func (v *AlertVerification) LinkTrackingSession(sessionID id.SessionID) {
	v.TrackingSessionID = sessionID
	v.Version++
}

func (v *AlertVerification) moveTo(next Step) {
	if !v.CurrentStep.CanTransitionTo(next) {
		panic("verification: illegal step transition " + string(v.CurrentStep) + " -> " + string(next))
	}
	v.CurrentStep = next
}

func (v *AlertVerification) Clone() *AlertVerification {
	if v == nil {
		return nil
	}
	c := *v
	c.FirstQuestionCorrect = cloneBool(v.FirstQuestionCorrect)
	c.SecondQuestionCorrect = cloneBool(v.SecondQuestionCorrect)
	c.SecondQuestionAskedAt = cloneTime(v.SecondQuestionAskedAt)
	c.CompletedAt = cloneTime(v.CompletedAt)
	return &c
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// FirstAnswerResult is returned to the caller after the first answer.
// A mismatch carries no further detail.
type FirstAnswerResult struct {
	Correct      bool                               `json:"correct"`
	NextQuestion *challengemodels.ChallengeQuestion `json:"next_question,omitempty"`
}

// SecondAnswerResult is returned to the caller after the second answer.
type SecondAnswerResult struct {
	Correct bool    `json:"correct"`
	Action  Outcome `json:"action"`
}
