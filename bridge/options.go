package bridge

import "log/slog"

// Option configures a Bridge.
type Option func(*config)

type config struct {
	logger          *slog.Logger
	onInert         func()
	maxPostAttempts int
}

func defaultConfig() config {
	return config{
		logger:          slog.Default(),
		maxPostAttempts: 0,
	}
}

// WithLogger sets the logger for bridge diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxPostAttempts bounds how many times a response is offered to a full
// host queue before it is dropped. Zero retries until the host accepts it or
// shuts down.
func WithMaxPostAttempts(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxPostAttempts = n
		}
	}
}

// WithOnInert registers fn to run once when the bridge becomes inert, by
// delivery, cancellation, teardown or a dropped response. It runs on the
// goroutine that made the bridge inert, after any Responder call.
func WithOnInert(fn func()) Option {
	return func(c *config) {
		c.onInert = fn
	}
}
