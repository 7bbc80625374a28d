package domain

import (
	"math"
	"time"

	dErrors "saferide/pkg/domain-errors"
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationSample is one position report from a driver's device.
type LocationSample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate rejects samples that cannot describe a real position.
func (s LocationSample) Validate() error {
	if math.IsNaN(s.Latitude) || s.Latitude < -90 || s.Latitude > 90 {
		return dErrors.New(dErrors.CodeInvalidInput, "latitude must be within [-90, 90]")
	}
	if math.IsNaN(s.Longitude) || s.Longitude < -180 || s.Longitude > 180 {
		return dErrors.New(dErrors.CodeInvalidInput, "longitude must be within [-180, 180]")
	}
	if s.Timestamp.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "timestamp is required")
	}
	if s.Accuracy != nil && *s.Accuracy < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "accuracy cannot be negative")
	}
	return nil
}

func (s LocationSample) Coordinates() Coordinates {
	return Coordinates{Latitude: s.Latitude, Longitude: s.Longitude}
}

// SamePosition reports whether two samples are the same report, used to drop
// redeliveries.
func (s LocationSample) SamePosition(other LocationSample) bool {
	return s.Timestamp.Equal(other.Timestamp) &&
		s.Latitude == other.Latitude &&
		s.Longitude == other.Longitude
}
