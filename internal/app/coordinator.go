// Package app provides the tracking coordinator: session lifecycle, the
// event admission algorithm and batched persistence.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pawmates/tracking/internal/adapters/repository"
	"github.com/pawmates/tracking/internal/domain/dedupe"
	"github.com/pawmates/tracking/internal/domain/model"
	"github.com/pawmates/tracking/pkg/logger"
	"github.com/pawmates/tracking/pkg/metrics"
)

// Broadcaster is the live-view side of the pipeline. Accepted fixes are
// forwarded here immediately, independent of flush timing.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev *model.LocationEvent)
	Terminate(ctx context.Context, sessionID, reason string)
}

// Coordinator owns all in-progress sessions. Per-session state is accessed
// under the session's own lock; the registry lock only guards the map. Lock
// order is always registry before session, never the reverse.
type Coordinator struct {
	mu       sync.RWMutex
	sessions map[string]*session

	// pendingTotal counts buffered fixes across all sessions so the gauge
	// never needs to lock more than one session at a time.
	pendingTotal atomic.Int64

	store   repository.Store
	deduper dedupe.Deduper
	streams Broadcaster

	batchSize        int
	flushInterval    time.Duration
	flushRetryBudget int
	maxPending       int
	tolerance        time.Duration
	maxAccuracy      float64
	shutdownGrace    time.Duration

	ready   atomic.Bool
	stopCh  chan struct{}
	stopped sync.Once
	loopWG  sync.WaitGroup

	log logger.Logger
}

// New constructs a Coordinator with default configuration.
func New(store repository.Store, deduper dedupe.Deduper, streams Broadcaster, opts ...Option) *Coordinator {
	c := &Coordinator{
		sessions:         make(map[string]*session),
		store:            store,
		deduper:          deduper,
		streams:          streams,
		batchSize:        50,
		flushInterval:    5 * time.Second,
		flushRetryBudget: 3,
		maxPending:       1000,
		tolerance:        0,
		maxAccuracy:      100,
		shutdownGrace:    10 * time.Second,
		stopCh:           make(chan struct{}),
		log:              logger.Get().Named("coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the periodic flush loop and marks the coordinator ready.
func (c *Coordinator) Start(ctx context.Context) {
	c.loopWG.Add(1)
	go c.flushLoop(ctx)
	c.ready.Store(true)
	c.log.Info(ctx, "started",
		logger.Int("batch_size", c.batchSize),
		logger.Duration("flush_interval", c.flushInterval),
		logger.Duration("tolerance", c.tolerance),
	)
}

// Ready reports whether the coordinator accepts traffic.
func (c *Coordinator) Ready() bool {
	return c.ready.Load()
}

// StartSession transitions a session to in-progress so it accepts fixes.
func (c *Coordinator) StartSession(ctx context.Context, sessionID string) error {
	if !c.ready.Load() {
		return ErrShuttingDown
	}
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", model.ErrInvalidEvent)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.sessions[sessionID]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}
	c.sessions[sessionID] = newSession(sessionID, time.Now())
	metrics.UpdateActiveSessions(len(c.sessions))

	c.log.Info(ctx, "session started", logger.String("session_id", sessionID))
	return nil
}

// CompleteSession finishes a session: final flush, stats persisted,
// subscribers notified, state evicted.
func (c *Coordinator) CompleteSession(ctx context.Context, sessionID string) error {
	return c.endSession(ctx, sessionID, model.StatusCompleted, "completed")
}

// CancelSession aborts a session. Pending fixes are still flushed; final
// statistics are not recorded.
func (c *Coordinator) CancelSession(ctx context.Context, sessionID string) error {
	return c.endSession(ctx, sessionID, model.StatusCancelled, "cancelled")
}

func (c *Coordinator) endSession(ctx context.Context, sessionID string, terminal model.SessionStatus, reason string) error {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotActive, sessionID)
	}

	s.mu.Lock()
	next, err := s.status.Transition(terminal)
	if err != nil {
		s.mu.Unlock()
		c.mu.Unlock()
		return err
	}
	s.status = next
	s.mu.Unlock()

	delete(c.sessions, sessionID)
	metrics.UpdateActiveSessions(len(c.sessions))
	c.mu.Unlock()

	// Wait for an in-flight flush, then flush the remainder synchronously.
	s.inFlight.Wait()
	c.finalFlush(ctx, s)

	if terminal == model.StatusCompleted {
		s.mu.Lock()
		stats := *s.stats
		s.mu.Unlock()
		if err := c.store.RecordSessionMetrics(ctx, sessionID, &stats); err != nil {
			c.log.Error(ctx, "session metrics not recorded",
				logger.String("session_id", sessionID),
				logger.Error(err),
			)
		}
	}

	c.streams.Terminate(ctx, sessionID, reason)
	c.deduper.DropSession(ctx, sessionID)
	c.updateDegradedGauge()

	c.log.Info(ctx, "session ended",
		logger.String("session_id", sessionID),
		logger.String("status", terminal.String()),
	)
	return nil
}

// Admit runs the admission algorithm for one fix. Validation rejections are
// permanent; the caller must not retry them. Accepted fixes are broadcast
// immediately and buffered for the next flush.
func (c *Coordinator) Admit(ctx context.Context, ev *model.LocationEvent) error {
	if !c.ready.Load() {
		return ErrShuttingDown
	}

	c.mu.RLock()
	s, ok := c.sessions[ev.SessionID]
	c.mu.RUnlock()
	if !ok {
		metrics.RecordEventRejected("not_active")
		return fmt.Errorf("%w: %s", ErrSessionNotActive, ev.SessionID)
	}

	if c.deduper.SeenAndRecord(ctx, ev.SessionID, ev.LocationID) {
		metrics.RecordEventRejected("duplicate")
		return fmt.Errorf("%w: %s", ErrDuplicate, ev.LocationID)
	}

	reject := func(reason string, err error) error {
		// The fix was recorded optimistically; a rejected fix must not
		// shadow a future retry under the same ID.
		c.deduper.Unrecord(ctx, ev.SessionID, ev.LocationID)
		metrics.RecordEventRejected(reason)
		return err
	}

	if err := ev.Validate(); err != nil {
		return reject("invalid", err)
	}
	if ev.AccuracyMeters > c.maxAccuracy {
		return reject("low_accuracy", fmt.Errorf("%w: %.1fm > %.1fm",
			ErrLowAccuracy, ev.AccuracyMeters, c.maxAccuracy))
	}

	s.mu.Lock()
	if s.status != model.StatusInProgress {
		s.mu.Unlock()
		return reject("not_active", fmt.Errorf("%w: %s", ErrSessionNotActive, ev.SessionID))
	}
	if !s.lastTS.IsZero() && ev.Timestamp.Before(s.lastTS) {
		if lag := s.lastTS.Sub(ev.Timestamp); lag > c.tolerance {
			s.mu.Unlock()
			return reject("out_of_order", fmt.Errorf("%w: %s behind last accepted fix",
				ErrOutOfOrder, lag))
		}
	}
	if len(s.pending) >= c.maxPending {
		s.mu.Unlock()
		return reject("pending_full", fmt.Errorf("%w: %d fixes buffered for %s",
			ErrPendingLimit, c.maxPending, ev.SessionID))
	}

	s.insertPending(ev)
	if ev.Timestamp.After(s.lastTS) {
		s.lastTS = ev.Timestamp
	}
	s.stats.Observe(ev)
	shouldFlush := len(s.pending) >= c.batchSize
	pendingTotal := c.pendingTotal.Add(1)
	// Broadcast before releasing the session lock: subscribers must see
	// accepted fixes in admission order even when two ingest paths race on
	// the same session. Broadcast never blocks.
	c.streams.Broadcast(ctx, ev)
	s.mu.Unlock()

	metrics.RecordEventAccepted()
	metrics.UpdatePendingEvents(int(pendingTotal))

	if shouldFlush {
		c.flushAsync(ctx, s)
	}
	return nil
}

// flushLoop flushes partial batches at the configured interval.
func (c *Coordinator) flushLoop(ctx context.Context) {
	defer c.loopWG.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			sessions := make([]*session, 0, len(c.sessions))
			for _, s := range c.sessions {
				sessions = append(sessions, s)
			}
			c.mu.RUnlock()
			for _, s := range sessions {
				c.flushAsync(ctx, s)
			}
		}
	}
}

// flushAsync submits one batch for a session unless a flush is already in
// flight. The batch stays pending until the store acknowledges it.
func (c *Coordinator) flushAsync(ctx context.Context, s *session) {
	s.mu.Lock()
	if s.flushing || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	batch := s.takeBatch(c.batchSize)
	s.inFlight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inFlight.Done()
		err := c.storeBatch(ctx, s.id, batch)
		c.completeFlush(ctx, s, batch, err)
	}()
}

// storeBatch times one store write.
func (c *Coordinator) storeBatch(ctx context.Context, sessionID string, batch []*model.LocationEvent) error {
	start := time.Now()
	err := c.store.StoreBatch(ctx, sessionID, batch)
	metrics.RecordFlushLatency(float64(time.Since(start).Milliseconds()))
	return err
}

// completeFlush applies the outcome of one flush attempt. Failures retain
// the batch; past the retry budget the session is marked degraded. Live
// broadcasting continues either way.
func (c *Coordinator) completeFlush(ctx context.Context, s *session, batch []*model.LocationEvent, err error) {
	s.mu.Lock()
	s.flushing = false

	if err != nil {
		s.flushRetries++
		degradedNow := !s.degraded && s.flushRetries >= c.flushRetryBudget
		if degradedNow {
			s.degraded = true
		}
		retries := s.flushRetries
		s.mu.Unlock()

		metrics.RecordFlushFailure()
		if errors.Is(err, repository.ErrCircuitOpen) {
			// Known-unhealthy store: hold the batch for the next interval
			// instead of hammering it.
			c.log.Warn(ctx, "flush held, circuit open",
				logger.String("session_id", s.id),
				logger.Int("batch_size", len(batch)),
			)
		} else {
			c.log.Error(ctx, "flush failed",
				logger.String("session_id", s.id),
				logger.Int("batch_size", len(batch)),
				logger.Int("consecutive_failures", retries),
				logger.Error(err),
			)
		}
		if degradedNow {
			c.log.Error(ctx, "session degraded, store writes failing",
				logger.String("session_id", s.id),
				logger.Int("consecutive_failures", retries),
			)
			c.updateDegradedGauge()
		}
		return
	}

	dropped := s.dropFlushed(batch)
	s.flushRetries = 0
	recovered := s.degraded
	s.degraded = false
	s.lastFlushedAt = time.Now()
	pendingTotal := c.pendingTotal.Add(-int64(dropped))
	s.mu.Unlock()

	metrics.RecordBatchFlushed(len(batch))
	metrics.UpdatePendingEvents(int(pendingTotal))
	if recovered {
		c.log.Info(ctx, "session recovered", logger.String("session_id", s.id))
		c.updateDegradedGauge()
	}
}

// finalFlush drains everything a session still has pending, synchronously,
// bounded by the shutdown grace period. Unflushable fixes are logged as
// lost data.
func (c *Coordinator) finalFlush(ctx context.Context, s *session) {
	s.mu.Lock()
	batch := s.takeBatch(0)
	s.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	fctx, cancel := context.WithTimeout(ctx, c.shutdownGrace)
	defer cancel()

	if err := c.storeBatch(fctx, s.id, batch); err != nil {
		// The session is leaving the registry either way; its buffered
		// fixes no longer count as pending.
		metrics.UpdatePendingEvents(int(c.pendingTotal.Add(-int64(len(batch)))))
		metrics.RecordFlushFailure()
		metrics.RecordEventsLost(len(batch))
		c.log.Error(ctx, "final flush failed, events lost",
			logger.String("session_id", s.id),
			logger.Int("events_lost", len(batch)),
			logger.Error(err),
		)
		return
	}

	s.mu.Lock()
	dropped := s.dropFlushed(batch)
	s.mu.Unlock()
	metrics.RecordBatchFlushed(len(batch))
	metrics.UpdatePendingEvents(int(c.pendingTotal.Add(-int64(dropped))))
}

// Stats returns a copy of the running statistics for an active session.
func (c *Coordinator) Stats(_ context.Context, sessionID string) (*model.SessionStats, error) {
	c.mu.RLock()
	s, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotActive, sessionID)
	}

	s.mu.Lock()
	stats := *s.stats
	s.mu.Unlock()
	return &stats, nil
}

// ActiveSessions returns the number of in-progress sessions.
func (c *Coordinator) ActiveSessions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Coordinator) updateDegradedGauge() {
	c.mu.RLock()
	degraded := 0
	for _, s := range c.sessions {
		s.mu.Lock()
		if s.degraded {
			degraded++
		}
		s.mu.Unlock()
	}
	c.mu.RUnlock()
	metrics.UpdateDegradedSessions(degraded)
}

// Shutdown stops intake, final-flushes every session within the grace
// period and reports anything that could not be persisted.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.ready.Store(false)
	c.stopped.Do(func() { close(c.stopCh) })
	c.loopWG.Wait()

	c.mu.Lock()
	sessions := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.sessions = make(map[string]*session)
	metrics.UpdateActiveSessions(0)
	c.mu.Unlock()

	for _, s := range sessions {
		s.inFlight.Wait()
		c.finalFlush(ctx, s)
		c.streams.Terminate(ctx, s.id, "shutting down")
	}

	c.log.Info(ctx, "stopped", logger.Int("sessions_flushed", len(sessions)))
	return nil
}
