package walksim

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pawmates/tracking/pkg/logger"
)

const (
	settleDelay          = 2 * time.Second
	progressInterval     = time.Second
	percentageMultiplier = 100.0
)

// Run executes the complete walk simulation: health check, session start,
// concurrent fix submission, session completion and track verification.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}

	if config.Verbose {
		_ = logger.SetLevelString("debug")
	}

	logger.Get().Info(ctx, "starting walk simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("walks", config.Walks),
		logger.Int("fixesPerWalk", config.FixesPerWalk),
		logger.Int("walkers", config.Walkers),
		logger.Duration("timeout", config.Timeout))

	client := newHTTPClient(config.Timeout)

	if err := checkServiceHealth(ctx, client, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	walks, err := generateWalks(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("track generation failed: %w", err)
	}

	if err := startSessions(ctx, client, config, walks); err != nil {
		return fmt.Errorf("session start failed: %w", err)
	}

	if err := submitWalks(ctx, client, config, walks, stats); err != nil {
		return fmt.Errorf("fix submission failed: %w", err)
	}

	// Leave partial batches time to flush before reading history back.
	logger.Get().Info(ctx, "waiting for pending batches to flush")
	time.Sleep(settleDelay)

	if err := completeSessions(ctx, client, config, walks, stats); err != nil {
		return fmt.Errorf("session completion failed: %w", err)
	}

	if err := verifyTracks(ctx, client, config, walks, stats); err != nil {
		return fmt.Errorf("track verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	if stats.TrackMismatches > 0 {
		return fmt.Errorf("%d of %d tracks did not match their stored history", stats.TrackMismatches, len(walks))
	}
	logger.Get().Info(ctx, "simulation completed successfully")
	return nil
}

// checkServiceHealth verifies the service is up before generating load.
func checkServiceHealth(ctx context.Context, client *HTTPClient, config *Config) error {
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service not healthy, status %d", resp.StatusCode)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// startSessions opens every walk session up front.
func startSessions(ctx context.Context, client *HTTPClient, config *Config, walks []*walk) error {
	for _, w := range walks {
		if err := postLifecycle(ctx, client, config.BaseURL, w.SessionID, "start", http.StatusCreated); err != nil {
			return err
		}
	}
	logger.Get().Info(ctx, "sessions started", logger.Int("count", len(walks)))
	return nil
}

// submitWalks pushes every track through the ingest endpoint. Walks are
// distributed over a worker pool; fixes within one walk stay in track order
// because a walk is handled by exactly one worker.
func submitWalks(ctx context.Context, client *HTTPClient, config *Config, walks []*walk, stats *Stats) error {
	var (
		submitted int64
		accepted  int64
		duplicate int64
		rejected  int64
		failed    int64
	)

	total := 0
	for _, w := range walks {
		total += len(w.Track)
	}
	logger.Get().Info(ctx, "submitting fixes",
		logger.Int("total", total),
		logger.Int("walkers", config.Walkers))

	walkChan := make(chan *walk, config.Walkers)
	var wg sync.WaitGroup

	done := make(chan struct{})
	go reportProgress(ctx, done, total, &submitted, &accepted, &duplicate, &rejected, &failed)

	for i := 0; i < config.Walkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range walkChan {
				for _, f := range w.Track {
					select {
					case <-ctx.Done():
						return
					default:
					}

					atomic.AddInt64(&submitted, 1)
					switch submitFix(ctx, client, config.BaseURL, w.SessionID, f) {
					case outcomeAccepted:
						atomic.AddInt64(&accepted, 1)
						w.Accepted++
					case outcomeDuplicate:
						atomic.AddInt64(&duplicate, 1)
					case outcomeRejected:
						atomic.AddInt64(&rejected, 1)
					default:
						atomic.AddInt64(&failed, 1)
					}
				}
			}
		}()
	}

	for _, w := range walks {
		select {
		case <-ctx.Done():
			close(walkChan)
			wg.Wait()
			close(done)
			return ctx.Err()
		case walkChan <- w:
		}
	}
	close(walkChan)
	wg.Wait()
	close(done)

	stats.FixesSubmitted = int(atomic.LoadInt64(&submitted))
	stats.FixesAccepted = int(atomic.LoadInt64(&accepted))
	stats.FixesDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.FixesRejected = int(atomic.LoadInt64(&rejected))
	stats.FixesFailed = int(atomic.LoadInt64(&failed))

	logger.Get().Info(ctx, "fix submission completed",
		logger.Int("accepted", stats.FixesAccepted),
		logger.Int("duplicate", stats.FixesDuplicate),
		logger.Int("rejected", stats.FixesRejected),
		logger.Int("failed", stats.FixesFailed))
	return nil
}

// reportProgress logs submission progress once per second until done closes.
func reportProgress(ctx context.Context, done <-chan struct{}, total int, submitted, accepted, duplicate, rejected, failed *int64) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Get().Info(ctx, "progress",
				logger.Int64("submitted", atomic.LoadInt64(submitted)),
				logger.Int("total", total),
				logger.Int64("accepted", atomic.LoadInt64(accepted)),
				logger.Int64("duplicate", atomic.LoadInt64(duplicate)),
				logger.Int64("rejected", atomic.LoadInt64(rejected)),
				logger.Int64("failed", atomic.LoadInt64(failed)))
		}
	}
}

// completeSessions ends every walk, which also flushes remaining buffers.
func completeSessions(ctx context.Context, client *HTTPClient, config *Config, walks []*walk, stats *Stats) error {
	for _, w := range walks {
		if err := postLifecycle(ctx, client, config.BaseURL, w.SessionID, "complete", http.StatusOK); err != nil {
			return err
		}
		stats.WalksCompleted++
	}
	logger.Get().Info(ctx, "sessions completed", logger.Int("count", stats.WalksCompleted))
	return nil
}

// displayFinalStats prints the final simulation statistics.
func displayFinalStats(stats *Stats) {
	var successRate, fixesPerSecond float64

	if stats.FixesSubmitted > 0 {
		successRate = float64(stats.FixesAccepted) / float64(stats.FixesSubmitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		fixesPerSecond = float64(stats.FixesSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("walksStarted", stats.WalksStarted),
		logger.Int("walksCompleted", stats.WalksCompleted),
		logger.Int("fixesSubmitted", stats.FixesSubmitted),
		logger.Int("fixesAccepted", stats.FixesAccepted),
		logger.Int("fixesDuplicate", stats.FixesDuplicate),
		logger.Int("fixesRejected", stats.FixesRejected),
		logger.Int("fixesFailed", stats.FixesFailed),
		logger.Int("tracksVerified", stats.TracksVerified),
		logger.Int("trackMismatches", stats.TrackMismatches),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", successRate),
		logger.Float64("fixesPerSecond", fixesPerSecond))
}
