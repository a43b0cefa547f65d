// Package dedupe defines the interface for idempotency tracking.
package dedupe

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*inMemoryDeduper)

// WithMaxPerSession sets the maximum number of location IDs remembered per
// session. If maxPerSession > 0: bounded mode with FIFO eviction.
// If maxPerSession <= 0: unbounded mode (sessions grow until dropped).
func WithMaxPerSession(maxPerSession int) Option {
	return func(d *inMemoryDeduper) {
		d.maxPerSession = maxPerSession
	}
}
