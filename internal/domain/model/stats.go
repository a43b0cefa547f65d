package model

import (
	"math"
	"time"
)

const earthRadiusMeters = 6371000.0

// DistanceMeters computes the great-circle distance between two coordinates
// using the haversine formula.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// SessionStats aggregates movement statistics over a session's accepted
// fixes. It is built incrementally as fixes are accepted.
type SessionStats struct {
	SessionID           string        `json:"session_id"`
	Points              int           `json:"points"`
	TotalDistanceMeters float64       `json:"total_distance_meters"`
	AverageSpeedMPS     float64       `json:"average_speed_mps"`
	MaxSpeedMPS         float64       `json:"max_speed_mps"`
	Duration            time.Duration `json:"duration_ns"`
	AverageAccuracy     float64       `json:"average_accuracy_meters"`

	first       time.Time
	last        time.Time
	lastLat     float64
	lastLon     float64
	accuracySum float64
}

// NewSessionStats returns an empty accumulator for the given session.
func NewSessionStats(sessionID string) *SessionStats {
	return &SessionStats{SessionID: sessionID}
}

// Observe folds one accepted fix into the statistics. Fixes arrive in
// near-timestamp order; a straggler inside the tolerance window contributes
// distance but never a negative speed sample.
func (s *SessionStats) Observe(e *LocationEvent) {
	if s.Points > 0 {
		d := DistanceMeters(s.lastLat, s.lastLon, e.Latitude, e.Longitude)
		s.TotalDistanceMeters += d
		if dt := e.Timestamp.Sub(s.last).Seconds(); dt > 0 {
			if v := d / dt; v > s.MaxSpeedMPS {
				s.MaxSpeedMPS = v
			}
		}
	}
	if s.Points == 0 || e.Timestamp.Before(s.first) {
		s.first = e.Timestamp
	}

	s.Points++
	s.accuracySum += e.AccuracyMeters
	if !e.Timestamp.Before(s.last) {
		s.last = e.Timestamp
		s.lastLat = e.Latitude
		s.lastLon = e.Longitude
	}

	s.Duration = s.last.Sub(s.first)
	if secs := s.Duration.Seconds(); secs > 0 {
		s.AverageSpeedMPS = s.TotalDistanceMeters / secs
	}
	s.AverageAccuracy = s.accuracySum / float64(s.Points)
}
