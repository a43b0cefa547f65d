package logger

import "io"

type initConfig struct {
	format string
	out    io.Writer
}

// Option configures Init.
type Option func(*initConfig)

// WithFormat selects the handler format: "text" (default) or "json".
func WithFormat(format string) Option {
	return func(c *initConfig) {
		if format != "" {
			c.format = format
		}
	}
}

// WithOutput redirects log output, mainly for tests.
func WithOutput(out io.Writer) Option {
	return func(c *initConfig) {
		if out != nil {
			c.out = out
		}
	}
}
