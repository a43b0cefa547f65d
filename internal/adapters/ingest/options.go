// Package ingest connects the service to the pub/sub broker carrying
// device traffic.
package ingest

import "time"

// Option applies a configuration option to the Broker.
type Option func(*Broker)

// WithEnvironment sets the subject prefix, e.g. "prod".
func WithEnvironment(env string) Option {
	return func(b *Broker) {
		if env != "" {
			b.env = env
		}
	}
}

// WithMaxPublishAttempts bounds publish retries.
func WithMaxPublishAttempts(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.maxAttempts = n
		}
	}
}

// WithMaxReconnects bounds automatic reconnection attempts.
func WithMaxReconnects(n int) Option {
	return func(b *Broker) {
		b.maxReconnects = n
	}
}

// WithReconnectWait sets the base wait between reconnection attempts.
func WithReconnectWait(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.reconnectWait = d
		}
	}
}

// WithCredentials points at a NATS credentials file.
func WithCredentials(path string) Option {
	return func(b *Broker) {
		b.credentials = path
	}
}
