// Package repository defines the time-series store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/pawmates/tracking/internal/domain/model"
)

// HistoryQuery selects a slice of a session's stored track.
type HistoryQuery struct {
	// From and To bound the timestamp range; zero values mean unbounded.
	From time.Time
	To   time.Time
	// Limit caps the number of returned fixes; 0 means the store default.
	Limit int
}

// Store provides durable access to session tracks and metrics.
type Store interface {
	// StoreBatch durably writes a batch of fixes for one session.
	// The write is atomic: either every fix lands or none do.
	StoreBatch(ctx context.Context, sessionID string, events []*model.LocationEvent) error

	// RecordSessionMetrics persists the final statistics of a finished session.
	RecordSessionMetrics(ctx context.Context, sessionID string, stats *model.SessionStats) error

	// History returns stored fixes for a session ordered by timestamp.
	// Returns ErrNotFound if the session has no stored fixes.
	History(ctx context.Context, sessionID string, q HistoryQuery) ([]*model.LocationEvent, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
