package walksim

import "time"

// Config holds configuration for the walk simulation.
type Config struct {
	BaseURL      string        // Base URL of the tracking service
	Walks        int           // Number of concurrent walk sessions to simulate
	FixesPerWalk int           // Number of location fixes per walk
	Walkers      int           // Number of concurrent workers
	Interval     time.Duration // Simulated time between fixes on a track
	Timeout      time.Duration // HTTP request timeout
	LogFile      string        // Log file for simulation output
	Verbose      bool          // Enable verbose logging
}

// Stats holds simulation statistics.
type Stats struct {
	WalksStarted    int
	WalksCompleted  int
	FixesSubmitted  int
	FixesAccepted   int
	FixesDuplicate  int
	FixesRejected   int
	FixesFailed     int
	TracksVerified  int
	TrackMismatches int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

// fix is the ingest payload for POST /v1/sessions/{id}/locations.
type fix struct {
	LocationID     string  `json:"location_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters"`
	Timestamp      string  `json:"timestamp"`
}

// storedFix mirrors the history response entries.
type storedFix struct {
	SessionID  string `json:"session_id"`
	LocationID string `json:"location_id"`
	Timestamp  string `json:"timestamp"`
}

// walk is one simulated session with its pre-generated track.
type walk struct {
	SessionID string
	Track     []fix

	// Accepted counts fixes the service acknowledged with 202; the stored
	// history must match it exactly.
	Accepted int
}
