package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Dispatcher fans a notification out to every configured channel.
type Dispatcher struct {
	channels []Channel
	renderer *Renderer
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithTimeout bounds delivery on each channel.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher returns a Dispatcher over channels. Nil channels are skipped.
func NewDispatcher(channels []Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		renderer: NewRenderer(),
		timeout:  30 * time.Second,
		now:      time.Now,
		log:      logger.NewNop(),
	}
	for _, ch := range channels {
		if ch != nil {
			d.channels = append(d.channels, ch)
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify fills ID, CreatedAt and Message when empty and delivers n to every
// channel. One failing channel does not stop the others; failures are joined.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}
	if n.Message == "" {
		n.Message = d.renderer.Render(n)
	}

	var errs []error
	for _, ch := range d.channels {
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := ch.Send(cctx, n)
		cancel()
		if err != nil {
			d.log.WarnContext(ctx, "notification delivery failed",
				slog.String("channel", ch.Name()),
				slog.String("kind", string(n.Kind)),
				logger.UserID(n.UserID),
				logger.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}
