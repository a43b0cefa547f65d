package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if TRACKING_CONFIG is set
//  3. env (prefix TRACKING_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv("TRACKING_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: TRACKING_ADDR, TRACKING_BATCH_SIZE, ...
	// Keys keep their underscores to match the koanf tags on Config.
	envProvider := env.Provider("TRACKING_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "tracking_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.NATSURL == "":
		return fmt.Errorf("%w: nats_url must not be empty", ErrInvalidConfig)
	case c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalidConfig)
	case c.FlushIntervalMS <= 0:
		return fmt.Errorf("%w: flush_interval_ms must be positive", ErrInvalidConfig)
	case c.BreakerFailureThreshold <= 0:
		return fmt.Errorf("%w: breaker_failure_threshold must be positive", ErrInvalidConfig)
	case c.BreakerProbeSuccesses <= 0:
		return fmt.Errorf("%w: breaker_probe_successes must be positive", ErrInvalidConfig)
	case c.ToleranceMS < 0:
		return fmt.Errorf("%w: tolerance_ms must not be negative", ErrInvalidConfig)
	case c.MaxAccuracyMeters <= 0:
		return fmt.Errorf("%w: max_accuracy_meters must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.MaxPendingPerSession < c.BatchSize:
		return fmt.Errorf("%w: max_pending_per_session must be at least batch_size", ErrInvalidConfig)
	}
	return nil
}
