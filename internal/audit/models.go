package audit

import (
	"time"

	id "saferide/pkg/domain"
)

// Action names an auditable step in the verification and escalation flow.
type Action string

const (
	ActionVerificationStarted Action = "verification_started"
	ActionFirstAnswer         Action = "first_answer_submitted"
	ActionSecondAnswer        Action = "second_answer_submitted"
	ActionTrackingOpened      Action = "tracking_opened"
	ActionTrackingClosed      Action = "tracking_closed"
	ActionCallRecorded        Action = "escalation_call_recorded"
	ActionCallStatusUpdated   Action = "escalation_call_status_updated"
	ActionProfileSaved        Action = "challenge_profile_saved"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out. Submitted answers are
// never part of an event.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	AlertID   id.AlertID    `json:"alert_id,omitempty"`
	DriverID  id.DriverID   `json:"driver_id,omitempty"`
	Actor     id.OperatorID `json:"actor,omitempty"`
	Action    Action        `json:"action"`
	Outcome   string        `json:"outcome,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	Client    string        `json:"client,omitempty"`
}
