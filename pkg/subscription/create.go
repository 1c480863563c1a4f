package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/notify"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/pixqr"
	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// CreateOptions tunes CreateSubscription.
type CreateOptions struct {
	// UserID links the new subscription to a local profile when set.
	UserID      uuid.UUID
	ChatID      string
	BillingType asaas.BillingType
	// NextDueDate anchors the first charge. Past dates are clamped to today.
	NextDueDate *time.Time
	// LastPaymentAt is recorded on the profile when the caller already
	// collected the first payment.
	LastPaymentAt *time.Time
}

// CreateResult is the outcome of CreateSubscription. Payment and Pix are nil
// while the gateway has not issued the first charge or its QR yet.
type CreateResult struct {
	Subscription *asaas.Subscription
	Payment      *payment.Record
	Pix          *pixqr.Artifact
	State        *State
}

// PixPending reports whether a PIX subscription is still waiting for its QR.
func (r CreateResult) PixPending() bool {
	return r.Subscription != nil && r.Subscription.BillingType == asaas.BillingPIX && r.Pix == nil
}

// CreateSubscription opens a recurring gateway subscription for p at its
// full price.
func (s *Service) CreateSubscription(ctx context.Context, p plan.Plan, customerID string, opts CreateOptions) (*CreateResult, error) {
	if !p.Payable() {
		return nil, ErrInvalidPlan
	}
	if customerID == "" {
		return nil, ErrMissingCustomer
	}
	price, err := p.Price()
	if err != nil {
		return nil, errors.Join(ErrInvalidPlan, err)
	}

	anchor := s.today()
	if opts.NextDueDate != nil && opts.NextDueDate.After(anchor) {
		anchor = *opts.NextDueDate
	}
	billing := billingOrDefault(opts.BillingType)

	sub, err := s.gateway.CreateSubscription(ctx, asaas.CreateSubscriptionRequest{
		Customer:          customerID,
		BillingType:       billing,
		Value:             asaas.Value(price),
		NextDueDate:       asaas.NewDate(anchor),
		Cycle:             asaas.Cycle(p.Cycle()),
		Description:       description(p),
		ExternalReference: payment.NewReference(payment.KindSubscription, p, opts.ChatID, s.now()).String(),
	})
	if err != nil {
		return nil, gatewayErr(err)
	}
	s.log.InfoContext(ctx, "gateway subscription created",
		logger.SubscriptionID(sub.ID),
		logger.CustomerID(customerID),
		logger.Plan(p),
	)

	res := &CreateResult{Subscription: sub}

	first, pix, err := s.firstPayment(ctx, sub)
	if err != nil {
		return nil, err
	}
	res.Pix = pix

	if opts.UserID == uuid.Nil {
		if first != nil {
			rec := withPix(recordFromPayment(first, uuid.Nil, opts.ChatID, p, payment.KindSubscription), pix)
			res.Payment = &rec
		}
		return res, nil
	}

	st, err := s.linkCreated(ctx, opts, sub, p, customerID)
	if err != nil {
		return nil, err
	}
	res.State = &st

	if first != nil {
		rec := withPix(recordFromPayment(first, opts.UserID, opts.ChatID, p, payment.KindSubscription), pix)
		saved, err := s.payments.Upsert(ctx, rec)
		if err != nil {
			return nil, err
		}
		res.Payment = &saved
	}

	n := notify.Notification{
		Kind:      notify.KindSubscriptionCreated,
		UserID:    st.UserID,
		ChatID:    st.ChatID,
		Plan:      p,
		Amount:    &price,
		ExpiresAt: st.ExpiresAt,
	}
	if res.Payment != nil {
		n.PaymentURL = res.Payment.InvoiceURL
		n.PixPayload = res.Payment.PixPayload
		n.PixQRCodeURL = res.Payment.PixQRCodeURL
	}
	s.notify(ctx, n)

	return res, nil
}

// firstPayment polls for the first charge of sub and, for PIX, its QR.
// Both results are nil when the gateway has not produced them in time. A PIX
// charge without its QR counts as not produced.
func (s *Service) firstPayment(ctx context.Context, sub *asaas.Subscription) (*asaas.Payment, *pixqr.Artifact, error) {
	var first *asaas.Payment
	err := s.poll(ctx, func(ctx context.Context) error {
		list, err := s.gateway.ListSubscriptionPayments(ctx, sub.ID, asaas.ListPaymentsParams{Limit: 1})
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return errPixPending
		}
		first = &list[0]
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, err
		}
		s.log.InfoContext(ctx, "first subscription payment not issued yet",
			logger.SubscriptionID(sub.ID),
			logger.Error(err),
		)
		return nil, nil, nil
	}
	if first.BillingType != asaas.BillingPIX {
		return first, nil, nil
	}

	pix, err := s.fetchPix(ctx, first.ID)
	if err != nil {
		return nil, nil, err
	}
	if pix == nil {
		return nil, nil, nil
	}
	return first, pix, nil
}

// linkCreated points the profile at a freshly created subscription and then
// resyncs the expiry from a second read of the gateway object.
func (s *Service) linkCreated(ctx context.Context, opts CreateOptions, sub *asaas.Subscription, p plan.Plan, customerID string) (State, error) {
	st, err := s.mutate(ctx, opts.UserID, func(st *State) error {
		st.GatewaySubscriptionID = sub.ID
		st.GatewayCustomerID = customerID
		if opts.ChatID != "" {
			st.ChatID = opts.ChatID
		}
		st.Plan = p
		st.PaymentActive = true
		st.PendingPlan = nil
		st.setExpiry(sub.NextDueDate.Time)
		if opts.LastPaymentAt != nil {
			st.LastPaymentAt = clonePtr(opts.LastPaymentAt)
		}
		return nil
	})
	if err != nil {
		return State{}, err
	}

	fresh, err := s.gateway.GetSubscription(ctx, sub.ID)
	if err != nil {
		s.log.WarnContext(ctx, "subscription resync failed",
			logger.SubscriptionID(sub.ID),
			logger.Error(err),
		)
		return st, nil
	}
	if fresh.NextDueDate.IsZero() || (st.ExpiresAt != nil && fresh.NextDueDate.Equal(*st.ExpiresAt)) {
		return st, nil
	}
	return s.mutate(ctx, opts.UserID, func(st *State) error {
		st.setExpiry(fresh.NextDueDate.Time)
		return nil
	})
}
