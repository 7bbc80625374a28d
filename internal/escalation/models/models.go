package models

import (
	"strings"
	"time"

	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
)

// CallStatus tracks an emergency-dispatch intent through the telephony
// collaborator. Any known status may follow any other.
type CallStatus string

const (
	CallStatusPending    CallStatus = "pending"
	CallStatusDispatched CallStatus = "dispatched"
	CallStatusEnRoute    CallStatus = "en_route"
	CallStatusResolved   CallStatus = "resolved"
	CallStatusCancelled  CallStatus = "cancelled"
)

func (s CallStatus) IsValid() bool {
	switch s {
	case CallStatusPending, CallStatusDispatched, CallStatusEnRoute, CallStatusResolved, CallStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the call no longer represents a live dispatch.
// A terminal call does not block a new call for the same alert.
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusResolved || s == CallStatusCancelled
}

func ParseCallStatus(s string) (CallStatus, error) {
	status := CallStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown call status")
	}
	return status, nil
}

// DriverInfo identifies the driver and vehicle for responders.
type DriverInfo struct {
	Name    string `json:"name"`
	Vehicle string `json:"vehicle"`
	Plate   string `json:"plate"`
}

// EscalationCall is the record of an intent to contact emergency services.
// At most one live (non-terminal) call exists per alert.
type EscalationCall struct {
	ID                 id.CallID      `json:"call_id"`
	AlertID            id.AlertID     `json:"alert_id"`
	DriverID           id.DriverID    `json:"driver_id"`
	CalledAt           time.Time      `json:"called_at"`
	CalledBy           id.OperatorID  `json:"called_by"`
	Location           id.Coordinates `json:"location"`
	LocationIsFallback bool           `json:"location_is_fallback"`
	DriverInfo         DriverInfo     `json:"driver_info"`
	Status             CallStatus     `json:"status"`
	DispatchNumber     string         `json:"dispatch_number,omitempty"`
	Notes              string         `json:"notes,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// NewEscalationCall builds a pending call. fallback marks a location that was
// substituted because the alert carried none.
func NewEscalationCall(alertID id.AlertID, driverID id.DriverID, calledBy id.OperatorID, loc id.Coordinates, fallback bool, info DriverInfo, now time.Time) (*EscalationCall, error) {
	if alertID.IsNil() || driverID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "alert and driver IDs are required")
	}
	return &EscalationCall{
		ID:                 id.NewCallID(),
		AlertID:            alertID,
		DriverID:           driverID,
		CalledAt:           now,
		CalledBy:           calledBy,
		Location:           loc,
		LocationIsFallback: fallback,
		DriverInfo:         info,
		Status:             CallStatusPending,
		UpdatedAt:          now,
	}, nil
}

// StatusUpdate is a progress report from the telephony collaborator.
type StatusUpdate struct {
	Status         CallStatus
	DispatchNumber *string
	Notes          string
}

// ApplyUpdate sets the status, replaces the dispatch number when one is given
// and appends notes to the existing ones.
func (c *EscalationCall) ApplyUpdate(u StatusUpdate, now time.Time) {
	c.Status = u.Status
	if u.DispatchNumber != nil {
		c.DispatchNumber = *u.DispatchNumber
	}
	if note := strings.TrimSpace(u.Notes); note != "" {
		if c.Notes == "" {
			c.Notes = note
		} else {
			c.Notes = c.Notes + "\n" + note
		}
	}
	c.UpdatedAt = now
}

func (c *EscalationCall) Clone() *EscalationCall {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
