// Package app provides the tracking coordinator: session lifecycle, the
// event admission algorithm and batched persistence.
package app

import (
	"time"

	"github.com/pawmates/tracking/pkg/logger"
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithBatchSize sets the pending-batch size that triggers a flush.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithFlushInterval sets how often partial batches are flushed.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.flushInterval = d
		}
	}
}

// WithFlushRetryBudget sets the consecutive flush failures tolerated before
// a session is marked degraded.
func WithFlushRetryBudget(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.flushRetryBudget = n
		}
	}
}

// WithMaxPending caps buffered fixes per session. Past the cap admission
// rejects with a resource-exhaustion error.
func WithMaxPending(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxPending = n
		}
	}
}

// WithTolerance sets the out-of-order tolerance window. Zero means strict
// ordering: any fix older than the last accepted one is rejected.
func WithTolerance(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.tolerance = d
		}
	}
}

// WithMaxAccuracy rejects fixes whose reported accuracy is worse than m
// meters.
func WithMaxAccuracy(m float64) Option {
	return func(c *Coordinator) {
		if m > 0 {
			c.maxAccuracy = m
		}
	}
}

// WithShutdownGrace bounds the final-flush window on session end and
// shutdown.
func WithShutdownGrace(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.shutdownGrace = d
		}
	}
}

// WithLogger sets a custom logger for the coordinator.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}
