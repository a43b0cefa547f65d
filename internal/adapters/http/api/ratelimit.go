// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Idle limiters are evicted after this long to keep the map bounded.
const limiterIdleTTL = 10 * time.Minute

// ClientLimiter is a token-bucket gate keyed by client identity. It knows
// nothing about sessions; it only admits or rejects requests.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket

	rps   rate.Limit
	burst int
	now   func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a limiter granting rps tokens per second with the
// given burst capacity per client.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow consumes one token for the client, creating its bucket on first
// sight. Returns false when the bucket is empty.
func (l *ClientLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = b
		l.evictIdle()
	}
	b.lastSeen = l.now()
	return b.limiter.Allow()
}

// evictIdle drops buckets not seen within the TTL. Called with mu held and
// only on bucket creation, so steady-state traffic pays nothing.
func (l *ClientLimiter) evictIdle() {
	cutoff := l.now().Add(-limiterIdleTTL)
	for key, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

// clientKey identifies the caller: the API key header when present,
// otherwise the remote IP.
func clientKey(r *http.Request) string {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
