package app

import (
	"sort"
	"sync"
	"time"

	"github.com/pawmates/tracking/internal/domain/model"
)

// session is the coordinator-owned state of one in-progress walk. All fields
// are guarded by mu; flushes snapshot the pending batch and release the lock
// before touching the store.
type session struct {
	mu sync.Mutex

	id        string
	status    model.SessionStatus
	startedAt time.Time

	lastTS        time.Time
	pending       []*model.LocationEvent
	lastFlushedAt time.Time

	flushing     bool
	flushRetries int
	degraded     bool
	inFlight     sync.WaitGroup

	stats *model.SessionStats
}

func newSession(id string, now time.Time) *session {
	return &session{
		id:        id,
		status:    model.StatusInProgress,
		startedAt: now,
		stats:     model.NewSessionStats(id),
	}
}

// insertPending places ev into the pending batch keeping timestamp order.
// The common case is an append; stragglers admitted through the tolerance
// window are inserted at their sorted position. Must be called with mu held.
func (s *session) insertPending(ev *model.LocationEvent) {
	n := len(s.pending)
	if n == 0 || !ev.Timestamp.Before(s.pending[n-1].Timestamp) {
		s.pending = append(s.pending, ev)
		return
	}
	i := sort.Search(n, func(j int) bool {
		return s.pending[j].Timestamp.After(ev.Timestamp)
	})
	s.pending = append(s.pending, nil)
	copy(s.pending[i+1:], s.pending[i:])
	s.pending[i] = ev
}

// takeBatch snapshots up to max pending fixes for a flush. The fixes remain
// pending until the flush reports success. Must be called with mu held.
func (s *session) takeBatch(max int) []*model.LocationEvent {
	n := len(s.pending)
	if n == 0 {
		return nil
	}
	if max > 0 && n > max {
		n = max
	}
	batch := make([]*model.LocationEvent, n)
	copy(batch, s.pending[:n])
	return batch
}

// dropFlushed removes successfully stored fixes from the pending batch by
// identity and returns how many were removed. A straggler may have been
// inserted among them while the flush was in flight, so a prefix cut would
// be wrong. Must be called with mu held.
func (s *session) dropFlushed(batch []*model.LocationEvent) int {
	flushed := make(map[string]struct{}, len(batch))
	for _, ev := range batch {
		flushed[ev.LocationID] = struct{}{}
	}
	before := len(s.pending)
	kept := s.pending[:0]
	for _, ev := range s.pending {
		if _, ok := flushed[ev.LocationID]; !ok {
			kept = append(kept, ev)
		}
	}
	s.pending = kept
	return before - len(kept)
}
