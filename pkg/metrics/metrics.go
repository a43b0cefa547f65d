// Package metrics provides Prometheus metrics for the tracking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus collectors for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Admission pipeline
	eventsAccepted prometheus.Counter
	eventsRejected *prometheus.CounterVec
	eventsIngested *prometheus.CounterVec
	eventsLost     prometheus.Counter

	// Batching and persistence
	batchesFlushed  prometheus.Counter
	flushFailures   prometheus.Counter
	flushLatency    prometheus.Histogram
	batchSizeFlushed prometheus.Histogram

	// Circuit breaker
	breakerState       prometheus.Gauge
	breakerTransitions *prometheus.CounterVec
	breakerRejections  prometheus.Counter

	// Sessions
	activeSessions   prometheus.Gauge
	degradedSessions prometheus.Gauge
	pendingEvents    prometheus.Gauge

	// Dispatch queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors prometheus.Counter

	// Live streaming
	subscribers        prometheus.Gauge
	subscribersDropped prometheus.Counter
	broadcasts         prometheus.Counter

	// Ingestion transport
	publishRetries  prometheus.Counter
	publishFailures prometheus.Counter

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         prometheus.Counter
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var registry = prometheus.NewRegistry() //nolint:gochecknoglobals // private registry, no default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(registry))
}

// NewManager creates a metrics manager and registers all collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tracking",
		subsystem:        "ingest",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.register()
	return m
}

func (m *Manager) register() {
	auto := promauto.With(m.registry)

	m.eventsAccepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_accepted_total",
		Help:      "Location events accepted by the admission algorithm",
	})
	m.eventsRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_rejected_total",
		Help:      "Location events rejected, labelled by reason",
	}, []string{"reason"})
	m.eventsIngested = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_ingested_total",
		Help:      "Location events received, labelled by transport",
	}, []string{"transport"})
	m.eventsLost = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_lost_total",
		Help:      "Accepted events that could not be persisted before shutdown",
	})

	m.batchesFlushed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batches_flushed_total",
		Help:      "Batches durably written to the time-series store",
	})
	m.flushFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_flush_failures_total",
		Help:      "Failed batch writes, including circuit-open rejections",
	})
	m.flushLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "flush_latency_milliseconds",
		Help:      "Latency of batch writes to the time-series store",
		Buckets:   m.histogramBuckets,
	})
	m.batchSizeFlushed = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_size_events",
		Help:      "Number of events per flushed batch",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
	})

	m.breakerState = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "circuit_breaker_state",
		Help:      "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
	})
	m.breakerTransitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "circuit_breaker_transitions_total",
		Help:      "Circuit breaker state transitions",
	}, []string{"from", "to"})
	m.breakerRejections = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "circuit_breaker_rejections_total",
		Help:      "Store calls rejected without I/O because the circuit was open",
	})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_sessions",
		Help:      "Sessions currently in progress",
	})
	m.degradedSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "degraded_sessions",
		Help:      "Sessions whose batches exceeded the flush retry budget",
	})
	m.pendingEvents = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_events",
		Help:      "Accepted events buffered but not yet durably stored",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dispatch_queue_size",
		Help:      "Events waiting in the dispatch queue",
	})
	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dispatch_queue_capacity",
		Help:      "Total capacity of the dispatch queue",
	})
	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dispatch_queue_enqueue_errors_total",
		Help:      "Enqueue attempts rejected by backpressure",
	})

	m.subscribers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_subscribers",
		Help:      "Live stream subscribers across all sessions",
	})
	m.subscribersDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_subscribers_dropped_total",
		Help:      "Subscribers dropped for being slow or broken",
	})
	m.broadcasts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_broadcasts_total",
		Help:      "Events broadcast to live subscribers",
	})

	m.publishRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "publish_retries_total",
		Help:      "Retried pub/sub publish attempts",
	})
	m.publishFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "publish_failures_total",
		Help:      "Publish attempts that exhausted their retry budget",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration by endpoint and method",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method"})
	m.rateLimited = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the admission limiter",
	})
}

// Admission pipeline.

func RecordEventAccepted()              { globalManager.eventsAccepted.Inc() }
func RecordEventRejected(reason string) { globalManager.eventsRejected.WithLabelValues(reason).Inc() }
func RecordEventIngested(transport string) {
	globalManager.eventsIngested.WithLabelValues(transport).Inc()
}
func RecordEventsLost(n int) { globalManager.eventsLost.Add(float64(n)) }

// Batching and persistence.

func RecordBatchFlushed(size int) {
	globalManager.batchesFlushed.Inc()
	globalManager.batchSizeFlushed.Observe(float64(size))
}
func RecordFlushFailure()                  { globalManager.flushFailures.Inc() }
func RecordFlushLatency(latencyMs float64) { globalManager.flushLatency.Observe(latencyMs) }

// Circuit breaker.

func UpdateBreakerState(state float64) { globalManager.breakerState.Set(state) }
func RecordBreakerTransition(from, to string) {
	globalManager.breakerTransitions.WithLabelValues(from, to).Inc()
}
func RecordBreakerRejection() { globalManager.breakerRejections.Inc() }

// Sessions.

func UpdateActiveSessions(n int)   { globalManager.activeSessions.Set(float64(n)) }
func UpdateDegradedSessions(n int) { globalManager.degradedSessions.Set(float64(n)) }
func UpdatePendingEvents(n int)    { globalManager.pendingEvents.Set(float64(n)) }

// Dispatch queue.

func UpdateQueueSize(n int)       { globalManager.queueSize.Set(float64(n)) }
func UpdateQueueCapacity(n int)   { globalManager.queueCapacity.Set(float64(n)) }
func RecordQueueEnqueueError()    { globalManager.queueEnqueueErrors.Inc() }

// Live streaming.

func UpdateSubscribers(n int)     { globalManager.subscribers.Set(float64(n)) }
func RecordSubscriberDropped()    { globalManager.subscribersDropped.Inc() }
func RecordBroadcast()            { globalManager.broadcasts.Inc() }

// Ingestion transport.

func RecordPublishRetry()   { globalManager.publishRetries.Inc() }
func RecordPublishFailure() { globalManager.publishFailures.Inc() }

// HTTP surface.

func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}
func RecordHTTPRequestDuration(endpoint, method string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method).Observe(durationMs)
}
func RecordRateLimited() { globalManager.rateLimited.Inc() }

// Registry returns the private Prometheus registry backing all collectors.
func Registry() *prometheus.Registry {
	return registry
}
