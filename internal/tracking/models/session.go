package models

import (
	"slices"
	"sort"
	"time"

	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
)

// TrackingSession is the live location record opened for an alert.
//
// Invariants:
//   - Locations are ordered by sample timestamp and only ever grow
//   - a closed session never becomes active again
//   - Version increases with every change, so snapshots can be ordered
type TrackingSession struct {
	ID        id.SessionID        `json:"session_id"`
	DriverID  id.DriverID         `json:"driver_id"`
	AlertID   id.AlertID          `json:"alert_id"`
	StartedAt time.Time           `json:"started_at"`
	EndedAt   *time.Time          `json:"ended_at,omitempty"`
	IsActive  bool                `json:"is_active"`
	Locations []id.LocationSample `json:"locations"`
	Version   int64               `json:"version"`
}

func NewTrackingSession(driverID id.DriverID, alertID id.AlertID, now time.Time) (*TrackingSession, error) {
	if driverID.IsNil() || alertID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "driver and alert IDs are required")
	}
	return &TrackingSession{
		ID:        id.NewSessionID(),
		DriverID:  driverID,
		AlertID:   alertID,
		StartedAt: now,
		IsActive:  true,
		Locations: []id.LocationSample{},
		Version:   1,
	}, nil
}

// AppendResult describes what an append did to the session.
type AppendResult struct {
	// Inserted is false when the sample was an exact redelivery.
	Inserted bool
	// Newest is true when the sample is now the latest location.
	Newest bool
}

// InsertLocation places sample in timestamp order. Samples sharing a timestamp
// keep arrival order. Callers must check IsActive first.
func (s *TrackingSession) InsertLocation(sample id.LocationSample) AppendResult {
	i := sort.Search(len(s.Locations), func(i int) bool {
		return s.Locations[i].Timestamp.After(sample.Timestamp)
	})
	for j := i - 1; j >= 0 && s.Locations[j].Timestamp.Equal(sample.Timestamp); j-- {
		if s.Locations[j].SamePosition(sample) {
			return AppendResult{}
		}
	}
	s.Locations = slices.Insert(s.Locations, i, sample)
	s.Version++
	return AppendResult{Inserted: true, Newest: i == len(s.Locations)-1}
}

// End closes the session. Returns false when it was already closed.
func (s *TrackingSession) End(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	s.IsActive = false
	s.EndedAt = &now
	s.Version++
	return true
}

func (s *TrackingSession) Clone() *TrackingSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Locations = make([]id.LocationSample, len(s.Locations))
	copy(c.Locations, s.Locations)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}
