// Package api declares HTTP contracts and route registration helpers.
package api

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithRateLimit configures the per-client admission limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.limiter = NewClientLimiter(rps, burst)
		}
	}
}
