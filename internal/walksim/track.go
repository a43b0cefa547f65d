package walksim

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/pawmates/tracking/pkg/logger"
)

// Random number generation constants.
const (
	randomFloatDivisor = 1000000
)

// Track generation constants. Walks start scattered around a city-sized area
// and move at dog-walk speeds.
const (
	baseLatitude     = 52.5145
	baseLongitude    = 13.3501
	startScatterDeg  = 0.05
	minSpeedMPS      = 0.5
	maxSpeedMPS      = 2.5
	minAccuracyM     = 3.0
	maxAccuracyM     = 30.0
	maxHeadingTurn   = math.Pi / 4
	metersPerDegLat  = 111320.0
	badAccuracyM     = 150.0
	badAccuracyEvery = 25
	duplicateEvery   = 10
)

// getRandomFloat returns a random float64 between 0.0 and 1.0.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// generateWalks creates the requested number of walks, each with a plausible
// GPS track. Tracks deliberately contain duplicates and low-accuracy fixes so
// a run exercises the rejection paths too.
func generateWalks(ctx context.Context, config *Config, stats *Stats) ([]*walk, error) {
	logger.Get().Info(ctx, "generating walk tracks",
		logger.Int("walks", config.Walks),
		logger.Int("fixesPerWalk", config.FixesPerWalk))

	walks := make([]*walk, config.Walks)
	for i := range walks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		walks[i] = &walk{
			SessionID: "walk-" + uuid.New().String(),
			Track:     generateTrack(config.FixesPerWalk, config.Interval),
		}
	}

	stats.WalksStarted = len(walks)
	logger.Get().Info(ctx, "generated walk tracks", logger.Int("count", len(walks)))
	return walks, nil
}

// generateTrack produces one walk as a random heading walk from a scattered
// start point. Every duplicateEvery-th fix repeats the previous one verbatim
// and every badAccuracyEvery-th fix reports an implausible accuracy.
func generateTrack(fixes int, interval time.Duration) []fix {
	lat := baseLatitude + (getRandomFloat()-0.5)*startScatterDeg
	lon := baseLongitude + (getRandomFloat()-0.5)*startScatterDeg
	heading := getRandomFloat() * 2 * math.Pi
	ts := time.Now().UTC().Add(-time.Duration(fixes) * interval)

	track := make([]fix, 0, fixes)
	for i := 0; i < fixes; i++ {
		if i > 0 && i%duplicateEvery == 0 {
			track = append(track, track[len(track)-1])
			continue
		}

		speed := minSpeedMPS + getRandomFloat()*(maxSpeedMPS-minSpeedMPS)
		step := speed * interval.Seconds()
		heading += (getRandomFloat() - 0.5) * 2 * maxHeadingTurn

		lat += step * math.Cos(heading) / metersPerDegLat
		lon += step * math.Sin(heading) / (metersPerDegLat * math.Cos(lat*math.Pi/180))

		accuracy := minAccuracyM + getRandomFloat()*(maxAccuracyM-minAccuracyM)
		if i > 0 && i%badAccuracyEvery == 0 {
			accuracy = badAccuracyM
		}

		ts = ts.Add(interval)
		track = append(track, fix{
			LocationID:     uuid.New().String(),
			Latitude:       lat,
			Longitude:      lon,
			AccuracyMeters: accuracy,
			Timestamp:      ts.Format(time.RFC3339Nano),
		})
	}
	return track
}
