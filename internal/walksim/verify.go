package walksim

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pawmates/tracking/pkg/logger"
)

// verifyTracks reads every walk's stored history and statistics back and
// checks them against what the service acknowledged during submission.
func verifyTracks(ctx context.Context, client *HTTPClient, config *Config, walks []*walk, stats *Stats) error {
	logger.Get().Info(ctx, "verifying stored tracks", logger.Int("walks", len(walks)))

	for _, w := range walks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := verifyWalk(ctx, client, config, w); err != nil {
			stats.TrackMismatches++
			logger.Get().Warn(ctx, "track mismatch",
				logger.String("sessionID", w.SessionID),
				logger.Error(err))
			continue
		}
		stats.TracksVerified++
	}

	logger.Get().Info(ctx, "verification finished",
		logger.Int("verified", stats.TracksVerified),
		logger.Int("mismatches", stats.TrackMismatches))
	return nil
}

// verifyWalk checks one walk: the stored history must contain exactly the
// accepted fixes, without duplicates and in timestamp order.
func verifyWalk(ctx context.Context, client *HTTPClient, config *Config, w *walk) error {
	if w.Accepted == 0 {
		return nil
	}

	url := config.BaseURL + "/v1/sessions/" + w.SessionID + "/locations?limit=" +
		strconv.Itoa(w.Accepted+1)

	var history []storedFix
	if err := client.getJSON(ctx, url, &history); err != nil {
		return fmt.Errorf("history fetch failed: %w", err)
	}

	if len(history) != w.Accepted {
		return fmt.Errorf("history has %d fixes, service accepted %d", len(history), w.Accepted)
	}

	seen := make(map[string]struct{}, len(history))
	var prev time.Time
	for i, f := range history {
		if _, dup := seen[f.LocationID]; dup {
			return fmt.Errorf("history contains duplicate location %s", f.LocationID)
		}
		seen[f.LocationID] = struct{}{}

		ts, err := time.Parse(time.RFC3339Nano, f.Timestamp)
		if err != nil {
			return fmt.Errorf("unparsable timestamp at index %d: %w", i, err)
		}
		if i > 0 && ts.Before(prev) {
			return fmt.Errorf("history out of order at index %d", i)
		}
		prev = ts
	}

	return nil
}
