package webhook

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/retry"
)

// Option configures a Sender.
type Option func(*Sender)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) {
		if c != nil {
			s.client = c
		}
	}
}

// WithSecret enables HMAC signing of every delivery.
func WithSecret(secret string) Option {
	return func(s *Sender) { s.secret = secret }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetry sets the attempt budget (first call included) and the backoff.
func WithRetry(attempts int, backoff retry.Backoff) Option {
	return func(s *Sender) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if backoff != nil {
			s.backoff = backoff
		}
	}
}

// WithCircuitBreaker guards the endpoint. Share one breaker per endpoint.
func WithCircuitBreaker(cb *retry.CircuitBreaker) Option {
	return func(s *Sender) { s.breaker = cb }
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) Option {
	return func(s *Sender) {
		if key != "" && value != "" {
			s.headers.Set(key, value)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for signatures.
func WithClock(now func() time.Time) Option {
	return func(s *Sender) {
		if now != nil {
			s.now = now
		}
	}
}
