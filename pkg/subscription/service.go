package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/locker"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/notify"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/pixqr"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/retry"
)

const lockPrefix = "subscription:user:"

// Service orchestrates subscription changes across the gateway, the local
// profile and the payment ledger.
type Service struct {
	gateway  Gateway
	profiles ProfileStore
	payments PaymentStore

	log      *slog.Logger
	now      func() time.Time
	locker   locker.Locker
	notifier Notifier
	qr       QRCodePublisher

	qrAttempts         int
	qrDelay            time.Duration
	pendingWindow      time.Duration
	freeThreshold      decimal.Decimal
	maxConflictRetries int
}

// NewService creates a Service. Panics if a required dependency is nil.
func NewService(gateway Gateway, profiles ProfileStore, payments PaymentStore, opts ...Option) *Service {
	if gateway == nil {
		panic("subscription: Gateway is required")
	}
	if profiles == nil {
		panic("subscription: ProfileStore is required")
	}
	if payments == nil {
		panic("subscription: PaymentStore is required")
	}

	s := &Service{
		gateway:            gateway,
		profiles:           profiles,
		payments:           payments,
		log:                logger.NewNop(),
		now:                func() time.Time { return time.Now().UTC() },
		locker:             locker.NewLocal(),
		qr:                 pixqr.NewPublisher(nil),
		qrAttempts:         3,
		qrDelay:            time.Second,
		pendingWindow:      30 * time.Minute,
		freeThreshold:      decimal.RequireFromString("0.50"),
		maxConflictRetries: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("subscription"))
	return s
}

// Profile returns the stored state of userID.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (State, error) {
	return s.profiles.Get(ctx, userID)
}

func (s *Service) withUserLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context) error) error {
	return locker.WithLock(ctx, s.locker, lockPrefix+userID.String(), fn)
}

// mutate applies fn to a fresh read of the profile and writes it back with a
// version check, re-reading on conflict. An error from fn aborts without
// writing.
func (s *Service) mutate(ctx context.Context, userID uuid.UUID, fn func(st *State) error) (State, error) {
	for attempt := range s.maxConflictRetries {
		cur, err := s.profiles.Get(ctx, userID)
		if err != nil {
			return State{}, err
		}
		next := cur.clone()
		if err := fn(&next); err != nil {
			return cur, err
		}
		next.UpdatedAt = s.now()

		saved, err := s.profiles.UpdateIf(ctx, next, cur.Version)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, ErrVersionMismatch) {
			return State{}, err
		}
		s.log.DebugContext(ctx, "profile version conflict, retrying",
			logger.UserID(userID),
			logger.RetryCount(attempt+1),
		)
	}
	return State{}, ErrConcurrentUpdate
}

func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.WarnContext(ctx, "notification failed",
			logger.UserID(n.UserID),
			logger.Event(string(n.Kind)),
			logger.Error(err),
		)
	}
}

// today is the current calendar day as the gateway sees it.
func (s *Service) today() time.Time {
	return asaas.NewDate(s.now()).Time
}

// fetchPix polls the gateway for the QR of paymentID and publishes it.
// It returns nil when the QR is still not available after the configured
// attempts.
func (s *Service) fetchPix(ctx context.Context, paymentID string) (*pixqr.Artifact, error) {
	var qr *asaas.PixQRCode
	err := s.poll(ctx, func(ctx context.Context) error {
		var err error
		qr, err = s.gateway.GetPixQRCode(ctx, paymentID)
		if err == nil && qr.Payload == "" && qr.EncodedImage == "" {
			return errPixPending
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		s.log.InfoContext(ctx, "pix qr not ready", logger.PaymentID(paymentID), logger.Error(err))
		return nil, nil
	}

	art, err := s.qr.Publish(ctx, paymentID, *qr)
	if err != nil {
		s.log.WarnContext(ctx, "pix qr publish failed", logger.PaymentID(paymentID), logger.Error(err))
		return nil, nil
	}
	return &art, nil
}

var errPixPending = errors.New("pix artifact pending")

// poll runs fn with the QR retry policy.
func (s *Service) poll(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, s.qrAttempts, retry.FixedBackoff{Interval: s.qrDelay}, fn)
}

// remotePlan infers the plan a gateway subscription bills for, from its
// external reference or else from its cycle and value.
func remotePlan(sub *asaas.Subscription) (plan.Plan, bool) {
	if ref, err := payment.ParseReference(sub.ExternalReference); err == nil && !ref.PlanDefaulted {
		return ref.Plan, true
	}
	value := sub.Amount()
	for _, p := range plan.All() {
		price, _ := p.Price()
		if p.Payable() && string(p.Cycle()) == string(sub.Cycle) && price.Equal(value) {
			return p, true
		}
	}
	return "", false
}

// replaceRemote cancels the user's current gateway subscription and creates
// one for target anchored at anchor. Cancel failures are logged only.
func (s *Service) replaceRemote(ctx context.Context, st State, target plan.Plan, anchor time.Time, billing asaas.BillingType) (*asaas.Subscription, error) {
	if st.GatewaySubscriptionID != "" {
		if err := s.gateway.CancelSubscription(ctx, st.GatewaySubscriptionID); err != nil {
			s.log.WarnContext(ctx, "cancel of replaced subscription failed",
				logger.UserID(st.UserID),
				logger.SubscriptionID(st.GatewaySubscriptionID),
				logger.Error(err),
			)
		}
	}
	if st.GatewayCustomerID == "" {
		return nil, ErrMissingCustomer
	}

	price, err := target.Price()
	if err != nil {
		return nil, errors.Join(ErrInvalidPlan, err)
	}
	if anchor.Before(s.today()) {
		anchor = s.today()
	}
	sub, err := s.gateway.CreateSubscription(ctx, asaas.CreateSubscriptionRequest{
		Customer:          st.GatewayCustomerID,
		BillingType:       billingOrDefault(billing),
		Value:             asaas.Value(price),
		NextDueDate:       asaas.NewDate(anchor),
		Cycle:             asaas.Cycle(target.Cycle()),
		Description:       description(target),
		ExternalReference: payment.NewReference(payment.KindSubscription, target, st.ChatID, s.now()).String(),
	})
	if err != nil {
		return nil, gatewayErr(err)
	}
	return sub, nil
}

func billingOrDefault(b asaas.BillingType) asaas.BillingType {
	if b == "" {
		return asaas.BillingPIX
	}
	return b
}

func description(p plan.Plan) string {
	return "billingkit " + p.String()
}

// recordFromPayment builds the local record for a gateway payment.
func recordFromPayment(p *asaas.Payment, userID uuid.UUID, chatID string, target plan.Plan, kind payment.Kind) payment.Record {
	return payment.Record{
		GatewayPaymentID:  p.ID,
		UserID:            userID,
		ChatID:            chatID,
		CustomerID:        p.Customer,
		SubscriptionID:    p.Subscription,
		Amount:            p.Amount(),
		Plan:              target,
		Kind:              kind,
		Status:            payment.ParseStatus(p.Status),
		Method:            payment.ParseMethod(string(p.BillingType)),
		DueDate:           p.DueDate.Time,
		PaidAt:            p.PaidAt(),
		InvoiceURL:        p.InvoiceURL,
		ReceiptURL:        p.TransactionReceiptURL,
		ExternalReference: p.ExternalReference,
	}
}

func withPix(rec payment.Record, art *pixqr.Artifact) payment.Record {
	if art != nil {
		rec.PixPayload = art.Payload
		rec.PixQRCodeURL = art.ImageURL
	}
	return rec
}
