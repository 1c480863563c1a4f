package subscription

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/locker"
)

// Option configures a Service instance.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now. Tests use it to pin the calendar.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocker sets the per-user lock. Defaults to an in-process locker,
// which only serialises work inside one replica.
func WithLocker(l locker.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithQRCodePublisher(p QRCodePublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.qr = p
		}
	}
}

// WithQRCodeRetry bounds polling for a PIX QR that the gateway has not
// rendered yet. Default 3 attempts, 1s apart.
func WithQRCodeRetry(attempts int, delay time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.qrAttempts = attempts
		}
		if delay >= 0 {
			s.qrDelay = delay
		}
	}
}

// WithPendingWindow sets how far back an open payment blocks a downgrade.
func WithPendingWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pendingWindow = d
		}
	}
}

// WithFreeChangeThreshold sets the upgrade price under which the change is
// applied without charging.
func WithFreeChangeThreshold(d decimal.Decimal) Option {
	return func(s *Service) {
		if !d.IsNegative() {
			s.freeThreshold = d
		}
	}
}

// WithMaxConflictRetries bounds re-reads after a version conflict.
func WithMaxConflictRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConflictRetries = n
		}
	}
}
