package models

import (
	"time"

	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
)

// Status is the platform-visible state of an alert.
type Status string

const (
	StatusActive               Status = "active"
	StatusAwaitingVerification Status = "awaiting_verification"
	StatusInvestigating        Status = "investigating"
	StatusResolved             Status = "resolved"
)

var statusTransitions = map[Status][]Status{
	StatusActive:               {StatusAwaitingVerification, StatusResolved},
	StatusAwaitingVerification: {StatusInvestigating, StatusResolved},
	StatusInvestigating:        {StatusResolved},
	// A resolved alert only moves again when the platform re-activates it.
	StatusResolved: {StatusActive},
}

func (s Status) IsValid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Resolution notes why and how an alert stopped being active.
type Resolution struct {
	Note       string     `json:"note,omitempty"`
	Call911ID  id.CallID  `json:"call_911_id,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Alert is the distress-signal aggregate owned by the surrounding platform.
// This module only reads the driver and location and writes status,
// resolution and best-known location.
type Alert struct {
	ID              id.AlertID         `json:"id"`
	DriverID        id.DriverID        `json:"driver_id"`
	Status          Status             `json:"status"`
	CurrentLocation *id.LocationSample `json:"current_location,omitempty"`
	Resolution      Resolution         `json:"resolution"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func NewAlert(alertID id.AlertID, driverID id.DriverID, now time.Time) (*Alert, error) {
	if alertID.IsNil() || driverID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "alert and driver IDs are required")
	}
	return &Alert{
		ID:        alertID,
		DriverID:  driverID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanTransitionTo validates a status change. Use with ApplyStatus in Execute callbacks.
func (a *Alert) CanTransitionTo(next Status) error {
	if !a.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"alert cannot move from "+string(a.Status)+" to "+string(next))
	}
	return nil
}

// ApplyStatus sets the status. Call CanTransitionTo first. Reactivation
// clears the previous resolution.
func (a *Alert) ApplyStatus(next Status, now time.Time) {
	if next == StatusActive && a.Status == StatusResolved {
		a.Resolution = Resolution{}
	}
	a.Status = next
	a.UpdatedAt = now
}

// ApplyResolution marks the alert resolved with a note.
func (a *Alert) ApplyResolution(note string, now time.Time) {
	a.Status = StatusResolved
	a.Resolution.Note = note
	a.Resolution.ResolvedAt = &now
	a.UpdatedAt = now
}

// ApplyLocation records sample as the best-known location if it is newer
// than the current one. Returns whether the location changed.
func (a *Alert) ApplyLocation(sample id.LocationSample, now time.Time) bool {
	if a.CurrentLocation != nil && !sample.Timestamp.After(a.CurrentLocation.Timestamp) {
		return false
	}
	s := sample
	a.CurrentLocation = &s
	a.UpdatedAt = now
	return true
}

// ApplyCallLink links the escalation call onto the resolution.
func (a *Alert) ApplyCallLink(callID id.CallID, now time.Time) {
	a.Resolution.Call911ID = callID
	a.UpdatedAt = now
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	if a.CurrentLocation != nil {
		loc := *a.CurrentLocation
		c.CurrentLocation = &loc
	}
	if a.Resolution.ResolvedAt != nil {
		t := *a.Resolution.ResolvedAt
		c.Resolution.ResolvedAt = &t
	}
	return &c
}
