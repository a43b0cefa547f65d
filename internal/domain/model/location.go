// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Coordinate bounds in decimal degrees (WGS84).
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// MaxTimestampSkew is how far into the future a device clock may report a
// fix before it is rejected as invalid.
const MaxTimestampSkew = 5 * time.Minute

// LocationEvent represents a single GPS fix reported by a device during a
// walk session. LocationID is unique per fix and used for idempotency.
type LocationEvent struct {
	SessionID      string    `json:"session_id" validate:"required"`
	LocationID     string    `json:"location_id" validate:"required"`
	Latitude       float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude      float64   `json:"longitude" validate:"gte=-180,lte=180"`
	AccuracyMeters float64   `json:"accuracy_meters" validate:"gte=0"`
	AltitudeMeters *float64  `json:"altitude_meters,omitempty"`
	Timestamp      time.Time `json:"timestamp" validate:"required"`
}

// Validate checks structural validity of the fix: coordinate ranges,
// non-negative accuracy and a plausible timestamp. Accuracy thresholds and
// ordering are admission policy and checked elsewhere.
func (e *LocationEvent) Validate() error {
	if e.SessionID == "" {
		return fmt.Errorf("%w: session_id is empty", ErrInvalidEvent)
	}
	if e.LocationID == "" {
		return fmt.Errorf("%w: location_id is empty", ErrInvalidEvent)
	}
	if e.Latitude < MinLatitude || e.Latitude > MaxLatitude {
		return fmt.Errorf("%w: latitude %.6f out of range", ErrInvalidEvent, e.Latitude)
	}
	if e.Longitude < MinLongitude || e.Longitude > MaxLongitude {
		return fmt.Errorf("%w: longitude %.6f out of range", ErrInvalidEvent, e.Longitude)
	}
	if e.AccuracyMeters < 0 {
		return fmt.Errorf("%w: accuracy %.2f is negative", ErrInvalidEvent, e.AccuracyMeters)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is zero", ErrInvalidEvent)
	}
	if e.Timestamp.After(time.Now().Add(MaxTimestampSkew)) {
		return fmt.Errorf("%w: timestamp %s is in the future", ErrInvalidEvent, e.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// EncodeLocationEvent serializes a fix to its wire form.
func EncodeLocationEvent(e *LocationEvent) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeEvent, err)
	}
	return b, nil
}

// DecodeLocationEvent parses a fix from its wire form. The result is not
// validated; callers run Validate as part of admission.
func DecodeLocationEvent(data []byte) (*LocationEvent, error) {
	var e LocationEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeEvent, err)
	}
	return &e, nil
}
