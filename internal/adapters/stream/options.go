// Package stream fans accepted fixes out to live session subscribers.
package stream

import "time"

// Option applies a configuration option to the Handler.
type Option func(*Handler)

// WithBuffer sets the per-subscriber outbound buffer. A subscriber that
// falls this many frames behind is dropped.
func WithBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithSendTimeout bounds each sink write.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}
