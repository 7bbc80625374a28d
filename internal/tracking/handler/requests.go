package handler

import (
	"time"

	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
)

// LocationRequest is one device position report. Range checks happen in the
// service.
type LocationRequest struct {
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *LocationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Latitude == nil || r.Longitude == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "latitude and longitude are required")
	}
	if r.Timestamp.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "timestamp is required")
	}
	return nil
}

func (r *LocationRequest) Sample() id.LocationSample {
	return id.LocationSample{
		Latitude:  *r.Latitude,
		Longitude: *r.Longitude,
		Accuracy:  r.Accuracy,
		Heading:   r.Heading,
		Speed:     r.Speed,
		Timestamp: r.Timestamp,
	}
}
