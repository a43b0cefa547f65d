package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pawmates/tracking/internal/adapters/http/api"
	"github.com/pawmates/tracking/internal/adapters/ingest"
	"github.com/pawmates/tracking/internal/adapters/mq/queue"
	"github.com/pawmates/tracking/internal/adapters/mq/worker"
	"github.com/pawmates/tracking/internal/adapters/repository"
	"github.com/pawmates/tracking/internal/adapters/stream"
	"github.com/pawmates/tracking/internal/app"
	"github.com/pawmates/tracking/internal/config"
	"github.com/pawmates/tracking/internal/domain/dedupe"
	"github.com/pawmates/tracking/internal/domain/model"
	"github.com/pawmates/tracking/pkg/logger"
	"github.com/pawmates/tracking/pkg/metrics"
)

// HTTP server timeout constants.
const (
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env) before logging so
	// the logger can honor the configured format and level.
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "service failed", logger.Error(err))
		os.Exit(1)
	}
}

//nolint:funlen // linear wiring of the dependency graph
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	// Time-series store behind a circuit breaker.
	store, err := repository.NewSQLiteStore(ctx, cfg.DBPath,
		repository.WithMaxConns(cfg.DBMaxConns),
		repository.WithAcquireTimeout(time.Duration(cfg.DBAcquireTimeoutMS)*time.Millisecond),
		repository.WithHistoryLimit(cfg.HistoryMaxLimit),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	guarded := repository.NewBreakerStore(store, repository.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Interval:         time.Duration(cfg.BreakerIntervalMS) * time.Millisecond,
		Cooldown:         time.Duration(cfg.BreakerCooldownMS) * time.Millisecond,
		ProbeSuccesses:   cfg.BreakerProbeSuccesses,
	})

	streams := stream.NewHandler(
		stream.WithBuffer(cfg.SubscriberBuffer),
		stream.WithSendTimeout(time.Duration(cfg.SendTimeoutMS)*time.Millisecond),
	)

	deduper := dedupe.NewInMemoryDeduper(dedupe.WithMaxPerSession(cfg.DedupeSize))

	coord := app.New(guarded, deduper, streams,
		app.WithLogger(log),
		app.WithBatchSize(cfg.BatchSize),
		app.WithFlushInterval(cfg.FlushInterval()),
		app.WithFlushRetryBudget(cfg.FlushRetryBudget),
		app.WithMaxPending(cfg.MaxPendingPerSession),
		app.WithTolerance(cfg.Tolerance()),
		app.WithMaxAccuracy(cfg.MaxAccuracyMeters),
		app.WithShutdownGrace(cfg.ShutdownGrace()),
	)
	coord.Start(ctx)

	// Broker traffic flows through the sharded dispatch queue so fixes for a
	// session are always admitted by the same worker.
	q := queue.NewShardedQueue(
		queue.WithShards(cfg.WorkerCount),
		queue.WithCapacity(cfg.QueueSize),
	)

	// Workers get their own context so a shutdown signal does not kill them
	// mid-drain; they exit when the queue closes.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	pool := worker.NewPool(q, coord)
	pool.Start(workerCtx)

	broker, err := ingest.Connect(ctx, cfg.NATSURL,
		ingest.WithEnvironment(cfg.Environment),
		ingest.WithMaxPublishAttempts(cfg.PublishMaxAttempts),
		ingest.WithMaxReconnects(cfg.NATSMaxReconnects),
		ingest.WithReconnectWait(time.Duration(cfg.NATSReconnectWaitMS)*time.Millisecond),
		ingest.WithCredentials(cfg.NATSCredentials),
	)
	if err != nil {
		return err
	}

	if err := broker.SubscribeLocations(ctx, func(ctx context.Context, ev *model.LocationEvent) {
		if !q.Enqueue(ctx, ev) {
			metrics.RecordQueueEnqueueError()
			log.Warn(ctx, "dispatch queue full, fix dropped",
				logger.String("session_id", ev.SessionID),
				logger.String("location_id", ev.LocationID))
		}
	}); err != nil {
		return err
	}

	if err := broker.SubscribeControl(ctx, func(ctx context.Context, msg *ingest.ControlMessage) {
		var err error
		switch msg.Action {
		case ingest.ActionStart:
			err = coord.StartSession(ctx, msg.SessionID)
		case ingest.ActionComplete:
			err = coord.CompleteSession(ctx, msg.SessionID)
		case ingest.ActionCancel:
			err = coord.CancelSession(ctx, msg.SessionID)
		}
		if err != nil {
			log.Warn(ctx, "control command rejected",
				logger.String("session_id", msg.SessionID),
				logger.String("action", msg.Action),
				logger.Error(err))
		}
	}); err != nil {
		return err
	}

	go startServiceMetricsUpdater(ctx, coord, q, streams)

	// HTTP mux and routes.
	mux := http.NewServeMux()
	apiServer := api.NewServer(coord, streams, guarded,
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	apiServer.Register(ctx, mux)

	// No global read/write timeouts: the stream endpoint holds connections
	// open and manages its own deadlines.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info(ctx, "shutdown signal received")
	case err := <-broker.Fatal():
		log.Error(ctx, "broker connection lost", logger.Error(err))
	case err := <-serverErr:
		log.Error(ctx, "HTTP server failed", logger.Error(err))
	}

	// Graceful shutdown: stop intake first, drain the dispatch queue, then
	// flush every session's remaining buffer before the store goes away.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "HTTP shutdown failed", logger.Error(err))
	}
	broker.Close()

	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "dispatch pool shutdown failed", logger.Error(err))
	}
	if err := coord.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "coordinator shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "service stopped")
	return nil
}

// startServiceMetricsUpdater periodically publishes gauges that have no
// natural event to hang off.
func startServiceMetricsUpdater(ctx context.Context, coord *app.Coordinator, q queue.Queue, streams *stream.Handler) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateQueueSize(q.Len(ctx))
			metrics.UpdateSubscribers(streams.Subscribers())
			metrics.UpdateActiveSessions(coord.ActiveSessions())
		}
	}
}
