// Package publisher hands escalation intents to the telephony integration.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"saferide/internal/escalation/models"
	id "saferide/pkg/domain"
)

// IntentType names the escalation change being announced.
type IntentType string

const (
	IntentCallRecorded  IntentType = "call_recorded"
	IntentStatusUpdated IntentType = "status_updated"
)

// Intent is the wire payload consumed by the telephony collaborator.
type Intent struct {
	Type               IntentType        `json:"type"`
	CallID             id.CallID         `json:"call_id"`
	AlertID            id.AlertID        `json:"alert_id"`
	DriverID           id.DriverID       `json:"driver_id"`
	Status             models.CallStatus `json:"status"`
	Location           id.Coordinates    `json:"location"`
	LocationIsFallback bool              `json:"location_is_fallback"`
	DriverInfo         models.DriverInfo `json:"driver_info"`
	DispatchNumber     string            `json:"dispatch_number,omitempty"`
	OccurredAt         time.Time         `json:"occurred_at"`
}

// NewIntent snapshots call into an intent of the given type.
func NewIntent(t IntentType, call *models.EscalationCall) Intent {
	return Intent{
		Type:               t,
		CallID:             call.ID,
		AlertID:            call.AlertID,
		DriverID:           call.DriverID,
		Status:             call.Status,
		Location:           call.Location,
		LocationIsFallback: call.LocationIsFallback,
		DriverInfo:         call.DriverInfo,
		DispatchNumber:     call.DispatchNumber,
		OccurredAt:         call.UpdatedAt,
	}
}

func (i Intent) Encode() ([]byte, error) {
	return json.Marshal(i)
}

// Noop drops intents; used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Intent) error { return nil }

// Recorder keeps published intents in memory for tests and local runs.
type Recorder struct {
	ch chan Intent
}

func NewRecorder(buffer int) *Recorder {
	return &Recorder{ch: make(chan Intent, buffer)}
}

func (r *Recorder) Publish(ctx context.Context, intent Intent) error {
	select {
	case r.ch <- intent:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Intents exposes the published stream.
func (r *Recorder) Intents() <-chan Intent {
	return r.ch
}
