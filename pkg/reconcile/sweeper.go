package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/locker"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/payment"
)

const sweepLockKey = "reconcile:sweep"

// PaymentSource reads a payment from the gateway.
type PaymentSource interface {
	GetPayment(ctx context.Context, id string) (*asaas.Payment, error)
}

// OpenPayments lists the local records still waiting for confirmation.
type OpenPayments interface {
	ListByStatus(ctx context.Context, statuses []payment.Status, since time.Time, limit int) ([]payment.Record, error)
}

// SweepStats summarises one sweep.
type SweepStats struct {
	Checked   int
	Changed   int
	Failed    int
	Unchanged int
}

// Sweeper polls the gateway for open payments whose webhook may have been
// lost and routes changes through Reconciler.HandlePayment.
type Sweeper struct {
	reconciler *Reconciler
	gateway    PaymentSource
	payments   OpenPayments
	lock       locker.Locker
	horizon    time.Duration
	batch      int
	timeout    time.Duration
	now        func() time.Time
	log        *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepLocker makes concurrent sweeps across replicas exclusive.
func WithSweepLocker(l locker.Locker) SweeperOption {
	return func(s *Sweeper) {
		s.lock = l
	}
}

// WithSweepWindow sets how far back open records are considered and how many are read per sweep.
func WithSweepWindow(horizon time.Duration, batch int) SweeperOption {
	return func(s *Sweeper) {
		if horizon > 0 {
			s.horizon = horizon
		}
		if batch > 0 {
			s.batch = batch
		}
	}
}

// WithSweepTimeout bounds a scheduled sweep.
func WithSweepTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSweepLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

func NewSweeper(r *Reconciler, gateway PaymentSource, payments OpenPayments, opts ...SweeperOption) *Sweeper {
	if r == nil {
		panic("reconcile: Reconciler is required")
	}
	if gateway == nil {
		panic("reconcile: PaymentSource is required")
	}
	if payments == nil {
		panic("reconcile: OpenPayments is required")
	}
	s := &Sweeper{
		reconciler: r,
		gateway:    gateway,
		payments:   payments,
		horizon:    72 * time.Hour,
		batch:      100,
		timeout:    2 * time.Minute,
		now:        time.Now,
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("sweeper"))
	return s
}

// Sweep checks every open record younger than the horizon against the
// gateway. Per-payment failures are counted and joined into the returned
// error; the sweep carries on with the next record.
func (s *Sweeper) Sweep(ctx context.Context) (SweepStats, error) {
	if s.lock == nil {
		return s.sweep(ctx)
	}
	var stats SweepStats
	err := locker.WithLock(ctx, s.lock, sweepLockKey, func(ctx context.Context) error {
		var err error
		stats, err = s.sweep(ctx)
		return err
	})
	return stats, err
}

func (s *Sweeper) sweep(ctx context.Context) (SweepStats, error) {
	start := s.now()
	records, err := s.payments.ListByStatus(ctx, payment.OpenStatuses, start.Add(-s.horizon), s.batch)
	if err != nil {
		return SweepStats{}, err
	}

	var (
		stats SweepStats
		errs  []error
	)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		stats.Checked++

		p, err := s.gateway.GetPayment(ctx, rec.GatewayPaymentID)
		if err != nil {
			if errors.Is(err, asaas.ErrNotFound) {
				stats.Unchanged++
				continue
			}
			stats.Failed++
			errs = append(errs, err)
			continue
		}
		if payment.ParseStatus(p.Status) == rec.Status {
			stats.Unchanged++
			continue
		}

		action, err := s.reconciler.HandlePayment(ctx, *p)
		if err != nil {
			stats.Failed++
			errs = append(errs, err)
			s.log.WarnContext(ctx, "sweep payment failed",
				logger.PaymentID(rec.GatewayPaymentID),
				logger.Error(err),
			)
			continue
		}
		stats.Changed++
		s.log.InfoContext(ctx, "sweep payment reconciled",
			logger.PaymentID(rec.GatewayPaymentID),
			logger.Status(p.Status),
			slog.String("action", action),
		)
	}

	s.log.InfoContext(ctx, "sweep finished",
		slog.Int("checked", stats.Checked),
		slog.Int("changed", stats.Changed),
		slog.Int("failed", stats.Failed),
		logger.Duration(s.now().Sub(start)),
	)
	return stats, errors.Join(errs...)
}

// SyncPayment fetches one payment from the gateway and reconciles it.
func (s *Sweeper) SyncPayment(ctx context.Context, paymentID string) (*asaas.Payment, string, error) {
	p, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, "", err
	}
	action, err := s.reconciler.HandlePayment(ctx, *p)
	if err != nil {
		return p, "", err
	}
	return p, action, nil
}

// Schedule registers Sweep on c under spec, for example "@every 5m".
func (s *Sweeper) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			if errors.Is(err, locker.ErrNotAcquired) {
				s.log.DebugContext(ctx, "sweep skipped, another replica holds the lock")
				return
			}
			s.log.ErrorContext(ctx, "sweep failed", logger.Error(err))
		}
	})
}
