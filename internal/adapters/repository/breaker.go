package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/pawmates/tracking/internal/domain/model"
	"github.com/pawmates/tracking/pkg/logger"
	"github.com/pawmates/tracking/pkg/metrics"
)

// BreakerStore decorates a Store with a circuit breaker so a failing backend
// sheds load fast instead of stalling the pipeline. All calls share one
// breaker: reads and writes hit the same backend, so its health is one signal.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[struct{}]
	log  logger.Logger
}

// BreakerConfig tunes when the circuit opens and recovers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int
	// Interval is the rolling window over which counts reset while closed.
	Interval time.Duration
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// ProbeSuccesses is the consecutive half-open successes required to close.
	ProbeSuccesses int
}

// NewBreakerStore wraps next with a circuit breaker.
func NewBreakerStore(next Store, cfg BreakerConfig) *BreakerStore {
	log := logger.Get().Named("breaker")

	b := &BreakerStore{next: next, log: log}
	b.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "timeseries-store",
		MaxRequests: uint32(cfg.ProbeSuccesses),
		Interval:    cfg.Interval,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "state transition",
				logger.String("breaker", name),
				logger.String("from", stateToString(from)),
				logger.String("to", stateToString(to)),
			)
			metrics.UpdateBreakerState(stateToFloat(to))
			metrics.RecordBreakerTransition(stateToString(from), stateToString(to))
		},
	})
	metrics.UpdateBreakerState(stateToFloat(b.cb.State()))
	return b
}

// execute runs fn through the breaker, mapping breaker rejections to
// ErrCircuitOpen so callers can branch on errors.Is.
func (b *BreakerStore) execute(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordBreakerRejection()
			return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return err
	}
	return nil
}

func (b *BreakerStore) StoreBatch(ctx context.Context, sessionID string, events []*model.LocationEvent) error {
	return b.execute(func() error {
		return b.next.StoreBatch(ctx, sessionID, events)
	})
}

func (b *BreakerStore) RecordSessionMetrics(ctx context.Context, sessionID string, stats *model.SessionStats) error {
	return b.execute(func() error {
		return b.next.RecordSessionMetrics(ctx, sessionID, stats)
	})
}

func (b *BreakerStore) History(ctx context.Context, sessionID string, q HistoryQuery) ([]*model.LocationEvent, error) {
	var out []*model.LocationEvent
	err := b.execute(func() error {
		var innerErr error
		out, innerErr = b.next.History(ctx, sessionID, q)
		// An empty session is a caller problem, not backend illness; do not
		// count it against the breaker.
		if errors.Is(innerErr, ErrNotFound) {
			return nil
		}
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return out, nil
}

func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.execute(func() error {
		return b.next.Ping(ctx)
	})
}

func (b *BreakerStore) Close() error {
	return b.next.Close()
}

// State exposes the current breaker state for health reporting.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
