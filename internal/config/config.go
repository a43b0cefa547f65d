// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults come from New; file and environment layers override them.
// - All loading functions accept context.Context as the first parameter.
// - External errors are wrapped via this package's sentinel errors.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration. Values are flat so koanf keys map
// one-to-one onto TRACKING_* environment variables.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Environment prefixes pub/sub subjects, e.g. "prod" -> prod.walks.location.*.
	Environment string `koanf:"environment"`

	// NATSURL is the pub/sub broker endpoint.
	NATSURL string `koanf:"nats_url"`

	// NATSCredentials is an optional credentials file for the broker.
	NATSCredentials string `koanf:"nats_credentials"`

	// NATSMaxReconnects bounds automatic reconnection attempts before the
	// connection is reported as fatally lost.
	NATSMaxReconnects int `koanf:"nats_max_reconnects"`

	// NATSReconnectWaitMS is the base wait between reconnection attempts.
	NATSReconnectWaitMS int `koanf:"nats_reconnect_wait_ms"`

	// PublishMaxAttempts bounds publish retries before surfacing the failure.
	PublishMaxAttempts int `koanf:"publish_max_attempts"`

	// DBPath is the SQLite database file backing the time-series store.
	DBPath string `koanf:"db_path"`

	// DBMaxConns sizes the store connection pool.
	DBMaxConns int `koanf:"db_max_conns"`

	// DBAcquireTimeoutMS bounds how long a store call may wait for a pooled
	// connection before failing.
	DBAcquireTimeoutMS int `koanf:"db_acquire_timeout_ms"`

	// BreakerFailureThreshold is the consecutive-failure count that opens
	// the store circuit.
	BreakerFailureThreshold int `koanf:"breaker_failure_threshold"`

	// BreakerIntervalMS is the rolling interval over which failures are
	// counted while the circuit is closed.
	BreakerIntervalMS int `koanf:"breaker_interval_ms"`

	// BreakerCooldownMS is how long the circuit stays open before probing.
	BreakerCooldownMS int `koanf:"breaker_cooldown_ms"`

	// BreakerProbeSuccesses is the consecutive probe successes required to
	// close the circuit from half-open.
	BreakerProbeSuccesses int `koanf:"breaker_probe_successes"`

	// BatchSize is the pending-batch size that triggers a flush.
	BatchSize int `koanf:"batch_size"`

	// FlushIntervalMS flushes partial batches at least this often.
	FlushIntervalMS int `koanf:"flush_interval_ms"`

	// FlushRetryBudget is the consecutive flush failures tolerated per
	// session before it is marked degraded.
	FlushRetryBudget int `koanf:"flush_retry_budget"`

	// MaxPendingPerSession caps buffered events for a degraded session.
	MaxPendingPerSession int `koanf:"max_pending_per_session"`

	// ToleranceMS is the out-of-order tolerance window for device clock
	// jitter; 0 means strict ordering.
	ToleranceMS int `koanf:"tolerance_ms"`

	// MaxAccuracyMeters rejects fixes with worse reported accuracy.
	MaxAccuracyMeters float64 `koanf:"max_accuracy_meters"`

	// QueueSize bounds the dispatch queue between ingestion and the
	// coordinator (total across shards).
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of dispatch shards/workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize caps remembered location IDs per session.
	DedupeSize int `koanf:"dedupe_size"`

	// RateLimitRPS and RateLimitBurst configure the per-client admission
	// limiter on external endpoints.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// SendTimeoutMS is the per-subscriber websocket write deadline.
	SendTimeoutMS int `koanf:"send_timeout_ms"`

	// SubscriberBuffer is the per-subscriber outbound event buffer; a
	// subscriber that falls this far behind is dropped.
	SubscriberBuffer int `koanf:"subscriber_buffer"`

	// ShutdownGraceMS bounds the final-flush window during shutdown.
	ShutdownGraceMS int `koanf:"shutdown_grace_ms"`

	// HistoryMaxLimit caps page size on the history endpoint.
	HistoryMaxLimit int `koanf:"history_max_limit"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":8090",
		Environment:             "dev",
		NATSURL:                 "nats://127.0.0.1:4222",
		NATSMaxReconnects:       10,
		NATSReconnectWaitMS:     1000,
		PublishMaxAttempts:      3,
		DBPath:                  "tracking.db",
		DBMaxConns:              8,
		DBAcquireTimeoutMS:      2000,
		BreakerFailureThreshold: 5,
		BreakerIntervalMS:       60_000,
		BreakerCooldownMS:       30_000,
		BreakerProbeSuccesses:   2,
		BatchSize:               50,
		FlushIntervalMS:         5_000,
		FlushRetryBudget:        3,
		MaxPendingPerSession:    1_000,
		ToleranceMS:             0,
		MaxAccuracyMeters:       100,
		QueueSize:               100_000,
		WorkerCount:             runtime.NumCPU() * 2,
		DedupeSize:              50_000,
		RateLimitRPS:            100.0 / 60.0,
		RateLimitBurst:          20,
		SendTimeoutMS:           10_000,
		SubscriberBuffer:        256,
		ShutdownGraceMS:         10_000,
		HistoryMaxLimit:         500,
	}
}

// FlushInterval returns the flush interval as a duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// Tolerance returns the out-of-order tolerance window as a duration.
func (c *Config) Tolerance() time.Duration {
	return time.Duration(c.ToleranceMS) * time.Millisecond
}

// ShutdownGrace returns the shutdown flush window as a duration.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceMS) * time.Millisecond
}
