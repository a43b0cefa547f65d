// Package repository defines the time-series store interface and errors.
package repository

import "time"

// SQLiteOption applies a configuration option to the SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithMaxConns bounds the connection pool.
func WithMaxConns(n int) SQLiteOption {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.maxConns = n
		}
	}
}

// WithAcquireTimeout bounds how long a store call may wait for a pooled
// connection.
func WithAcquireTimeout(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.acquireTimeout = d
		}
	}
}

// WithHistoryLimit caps the page size served by History.
func WithHistoryLimit(n int) SQLiteOption {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}
