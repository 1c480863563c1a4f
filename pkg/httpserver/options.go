package httpserver

import (
	"log/slog"
	"time"
)

// Option configures the HTTP server.
type Option func(*config)

// WithAddr sets the listen address. It panics on an empty address.
func WithAddr(addr string) Option {
	if addr == "" {
		panic("httpserver: empty addr")
	}
	return func(c *config) { c.addr = addr }
}

func WithReadHeaderTimeout(d time.Duration) Option {
	return durationOption("read header timeout", d, func(c *config) { c.readHeaderTimeout = d })
}

func WithReadTimeout(d time.Duration) Option {
	return durationOption("read timeout", d, func(c *config) { c.readTimeout = d })
}

func WithWriteTimeout(d time.Duration) Option {
	return durationOption("write timeout", d, func(c *config) { c.writeTimeout = d })
}

func WithIdleTimeout(d time.Duration) Option {
	return durationOption("idle timeout", d, func(c *config) { c.idleTimeout = d })
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return durationOption("shutdown timeout", d, func(c *config) { c.shutdownTimeout = d })
}

// WithLogger sets the server logger. Nil keeps the discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithShutdownHook registers fn to run after the listener is closed and
// in-flight requests drained. Hooks run in registration order.
func WithShutdownHook(fn func()) Option {
	if fn == nil {
		panic("httpserver: nil shutdown hook")
	}
	return func(c *config) { c.shutdownHooks = append(c.shutdownHooks, fn) }
}

func durationOption(name string, d time.Duration, set func(*config)) Option {
	if d <= 0 {
		panic("httpserver: " + name + " must be > 0")
	}
	return set
}
