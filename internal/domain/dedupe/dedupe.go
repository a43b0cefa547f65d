// Package dedupe defines the interface for idempotency tracking.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen location IDs per session to ensure at-most-once
// processing of fixes delivered over an at-least-once transport.
type Deduper interface {
	// SeenAndRecord atomically checks if locationID was seen for sessionID
	// and records it if not. Returns true if it was already seen, false if
	// it was newly recorded. This is the ONLY method for deduplication -
	// thread-safe and atomic.
	SeenAndRecord(ctx context.Context, sessionID, locationID string) bool

	// Unrecord removes a location ID from the seen set, allowing it to be
	// retried. This should only be used when a fix was marked as seen but
	// failed to be handed off (e.g., queue backpressure).
	Unrecord(ctx context.Context, sessionID, locationID string)

	// DropSession releases all state held for a finished session.
	DropSession(ctx context.Context, sessionID string)

	Size() int64
}

// sessionSet holds the seen IDs of one session. When the per-session cap is
// reached the oldest remembered ID is evicted FIFO via the ring buffer.
type sessionSet struct {
	seen  map[string]struct{}
	order []string // ring buffer of insertion order, len == cap when bounded
	next  int      // next slot to overwrite
}

// inMemoryDeduper implements Deduper keyed by session.
// For bounded mode (maxPerSession > 0): each session keeps a FIFO ring of IDs.
// For unbounded mode (maxPerSession <= 0): sessions grow until dropped.
type inMemoryDeduper struct {
	mu            sync.Mutex
	sessions      map[string]*sessionSet
	maxPerSession int
	size          atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxPerSession: 50000, // default per-session cap
	}
	for _, opt := range opts {
		opt(d)
	}
	d.sessions = make(map[string]*sessionSet)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, sessionID, locationID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[sessionID]
	if !ok {
		s = &sessionSet{seen: make(map[string]struct{})}
		if d.maxPerSession > 0 {
			s.order = make([]string, 0, d.maxPerSession)
		}
		d.sessions[sessionID] = s
	}

	if _, exists := s.seen[locationID]; exists {
		return true
	}

	if d.maxPerSession > 0 {
		if len(s.order) < d.maxPerSession {
			s.order = append(s.order, locationID)
		} else {
			// Ring is full: evict the oldest remembered ID. Slots whose
			// ID was unrecorded earlier no longer count toward size.
			old := s.order[s.next]
			if _, held := s.seen[old]; held {
				delete(s.seen, old)
				d.size.Add(-1)
			}
			s.order[s.next] = locationID
			s.next = (s.next + 1) % d.maxPerSession
		}
	}
	s.seen[locationID] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, sessionID, locationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[sessionID]
	if !ok {
		return
	}
	if _, exists := s.seen[locationID]; !exists {
		return
	}
	delete(s.seen, locationID)
	d.size.Add(-1)
	// The ring slot keeps the stale ID until overwritten; eviction of an
	// already-unrecorded ID is a no-op on the map.
}

func (d *inMemoryDeduper) DropSession(_ context.Context, sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[sessionID]
	if !ok {
		return
	}
	d.size.Add(-int64(len(s.seen)))
	delete(d.sessions, sessionID)
}

// Size returns the total number of remembered IDs across all sessions.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
