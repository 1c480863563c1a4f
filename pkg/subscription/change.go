package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/notify"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/pixqr"
	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// ChangeStatus is the outcome of ChangePlan.
type ChangeStatus string

const (
	// ChangeScheduled means a downgrade was staged for the next renewal.
	ChangeScheduled ChangeStatus = "scheduled"
	// ChangeApplied means the profile already runs on the target plan.
	ChangeApplied ChangeStatus = "changed"
	// ChangeWaitingPayment means an upgrade charge was issued and the plan
	// changes when it is confirmed.
	ChangeWaitingPayment ChangeStatus = "waiting_payment"
)

type ChangeOptions struct {
	BillingType asaas.BillingType
}

type ChangeResult struct {
	Status  ChangeStatus
	Quote   plan.Quote
	State   State
	Payment *payment.Record
	Pix     *pixqr.Artifact
}

// QuoteChange prices a change of userID to target without side effects.
func (s *Service) QuoteChange(ctx context.Context, userID uuid.UUID, target plan.Plan) (plan.Quote, error) {
	st, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return plan.Quote{}, err
	}
	q, _, err := s.quote(ctx, st, target)
	return q, err
}

// ChangePlan moves userID to target. Downgrades are staged for the next
// renewal. Upgrades under the free threshold apply at once; other upgrades
// issue a one-off charge on customerID (or the profile's customer) and apply
// when it is confirmed.
func (s *Service) ChangePlan(ctx context.Context, userID uuid.UUID, target plan.Plan, customerID string, opts ChangeOptions) (*ChangeResult, error) {
	var res *ChangeResult
	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		st, err := s.profiles.Get(ctx, userID)
		if err != nil {
			return err
		}
		q, _, err := s.quote(ctx, st, target)
		if err != nil {
			return err
		}

		switch {
		case q.IsDowngrade:
			res, err = s.scheduleDowngrade(ctx, st, target, q)
		case q.ChangePrice.LessThan(s.freeThreshold):
			res, err = s.applyFreeUpgrade(ctx, st, target, q)
		default:
			res, err = s.chargeUpgrade(ctx, st, target, customerID, opts, q)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// quote validates a change request and prices it against the authoritative
// cycle end.
func (s *Service) quote(ctx context.Context, st State, target plan.Plan) (plan.Quote, time.Time, error) {
	switch {
	case target == plan.Free:
		return plan.Quote{}, time.Time{}, ErrForbiddenDowngradeToFree
	case !target.Valid():
		return plan.Quote{}, time.Time{}, ErrInvalidPlan
	case !st.PaymentActive || st.ExpiresAt == nil:
		return plan.Quote{}, time.Time{}, ErrNoActiveSubscription
	}

	now := s.now()
	if !st.ExpiresAt.After(now) {
		return plan.Quote{}, time.Time{}, ErrExpiredSubscription
	}

	cycleEnd, err := s.cycleEnd(ctx, st, now)
	if err != nil {
		return plan.Quote{}, time.Time{}, err
	}

	q, err := plan.Calculate(st.Plan, target, cycleEnd, now)
	if err != nil {
		return plan.Quote{}, time.Time{}, errors.Join(ErrInvalidPlan, err)
	}
	switch {
	case q.Reason == plan.ReasonSamePlan:
		return q, cycleEnd, ErrSamePlan
	case q.Expired:
		return q, cycleEnd, ErrExpiredSubscription
	}
	return q, cycleEnd, nil
}

// cycleEnd reads nextDueDate from the gateway and pulls it in to the
// nearest open subscription charge due before it.
func (s *Service) cycleEnd(ctx context.Context, st State, now time.Time) (time.Time, error) {
	end := *st.ExpiresAt
	if !st.HasRemote() {
		return end, nil
	}

	sub, err := s.gateway.GetSubscription(ctx, st.GatewaySubscriptionID)
	if err != nil {
		return time.Time{}, gatewayErr(err)
	}
	if !sub.NextDueDate.IsZero() {
		end = sub.NextDueDate.Time
	}

	charges, err := s.gateway.ListSubscriptionPayments(ctx, st.GatewaySubscriptionID, asaas.ListPaymentsParams{Limit: 10})
	if err != nil {
		s.log.WarnContext(ctx, "listing subscription payments failed",
			logger.SubscriptionID(st.GatewaySubscriptionID),
			logger.Error(err),
		)
		return end, nil
	}
	for _, c := range charges {
		due := c.DueDate.Time
		if payment.ParseStatus(c.Status).IsOpen() && due.After(now) && due.Before(end) {
			end = due
		}
	}
	return end, nil
}

func (s *Service) scheduleDowngrade(ctx context.Context, st State, target plan.Plan, q plan.Quote) (*ChangeResult, error) {
	since := s.now().Add(-s.pendingWindow)
	n, err := s.payments.CountPendingForUser(ctx, st.UserID, []payment.Status{payment.StatusPending}, since)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrConflictingPendingPayment
	}

	saved, err := s.mutate(ctx, st.UserID, func(cur *State) error {
		if !cur.PaymentActive {
			return ErrNoActiveSubscription
		}
		cur.PendingPlan = &target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "downgrade scheduled",
		logger.UserID(st.UserID),
		logger.Plan(st.Plan),
		slog.String("target_plan", target.String()),
	)
	s.notify(ctx, notify.Notification{
		Kind:          notify.KindDowngradeScheduled,
		UserID:        saved.UserID,
		ChatID:        saved.ChatID,
		Plan:          target,
		ExpiresAt:     saved.ExpiresAt,
		DaysRemaining: q.DaysRemaining,
	})
	return &ChangeResult{Status: ChangeScheduled, Quote: q, State: saved}, nil
}

// applyFreeUpgrade switches plans in place when the difference is a rounding
// artifact. The write aborts if the plan or the active flag moved since st
// was read.
func (s *Service) applyFreeUpgrade(ctx context.Context, st State, target plan.Plan, q plan.Quote) (*ChangeResult, error) {
	saved, err := s.mutate(ctx, st.UserID, func(cur *State) error {
		if cur.Plan != st.Plan || cur.PaymentActive != st.PaymentActive || cur.Version != st.Version {
			return ErrConcurrentUpdate
		}
		cur.Plan = target
		cur.PendingPlan = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	if saved.HasRemote() {
		if sub, err := s.replaceRemote(ctx, saved, target, *saved.ExpiresAt, s.remoteBillingType(ctx, saved.GatewaySubscriptionID)); err != nil {
			s.log.WarnContext(ctx, "remote subscription replacement failed",
				logger.UserID(saved.UserID),
				logger.Error(err),
			)
		} else if relinked, err := s.relink(ctx, saved.UserID, sub); err == nil {
			saved = relinked
		}
	}

	s.notify(ctx, notify.Notification{
		Kind:      notify.KindPlanChanged,
		UserID:    saved.UserID,
		ChatID:    saved.ChatID,
		Plan:      target,
		ExpiresAt: saved.ExpiresAt,
	})
	return &ChangeResult{Status: ChangeApplied, Quote: q, State: saved}, nil
}

func (s *Service) chargeUpgrade(ctx context.Context, st State, target plan.Plan, customerID string, opts ChangeOptions, q plan.Quote) (*ChangeResult, error) {
	if customerID == "" {
		customerID = st.GatewayCustomerID
	}
	if customerID == "" {
		return nil, ErrMissingCustomer
	}

	now := s.now()
	p, err := s.gateway.CreatePayment(ctx, asaas.CreatePaymentRequest{
		Customer:          customerID,
		BillingType:       billingOrDefault(opts.BillingType),
		Value:             asaas.Value(q.ChangePrice),
		DueDate:           asaas.NewDate(now),
		Description:       "billingkit upgrade to " + target.String(),
		ExternalReference: payment.NewReference(payment.KindUpgrade, target, st.ChatID, now).String(),
	})
	if err != nil {
		return nil, gatewayErr(err)
	}

	var pix *pixqr.Artifact
	if p.BillingType == asaas.BillingPIX {
		if pix, err = s.fetchPix(ctx, p.ID); err != nil {
			return nil, err
		}
	}

	rec := withPix(recordFromPayment(p, st.UserID, st.ChatID, target, payment.KindUpgrade), pix)
	rec.CreatedAt = now
	saved, err := s.payments.Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}
	res := &ChangeResult{Status: ChangeWaitingPayment, Quote: q, State: st, Payment: &saved, Pix: pix}

	if !saved.Status.IsConfirmed() {
		s.log.InfoContext(ctx, "upgrade waiting for payment",
			logger.UserID(st.UserID),
			logger.PaymentID(saved.GatewayPaymentID),
			logger.Amount(saved.Amount),
		)
		s.notify(ctx, notify.Notification{
			Kind:         notify.KindUpgradePending,
			UserID:       st.UserID,
			ChatID:       st.ChatID,
			Plan:         target,
			Amount:       &saved.Amount,
			PaymentURL:   saved.InvoiceURL,
			PixPayload:   saved.PixPayload,
			PixQRCodeURL: saved.PixQRCodeURL,
		})
		return res, nil
	}

	paidAt := now
	if saved.PaidAt != nil {
		paidAt = *saved.PaidAt
	}
	applied, err := s.applyLocked(ctx, st.UserID, applyInput{
		paymentID: saved.GatewayPaymentID,
		intended:  target,
		upgrade:   true,
		paidAt:    paidAt,
		strict:    true,

		customerID: customerID,
		billing:    p.BillingType,
	})
	if err != nil {
		return nil, err
	}
	res.Status = ChangeApplied
	res.State = applied.state
	return res, nil
}

// remoteBillingType returns the billing type of subID, or "" when it cannot
// be read.
func (s *Service) remoteBillingType(ctx context.Context, subID string) asaas.BillingType {
	sub, err := s.gateway.GetSubscription(ctx, subID)
	if err != nil {
		s.log.WarnContext(ctx, "billing type of replaced subscription unknown",
			logger.SubscriptionID(subID),
			logger.Error(err),
		)
		return ""
	}
	return sub.BillingType
}

// relink stores the id and due date of a replacement gateway subscription.
func (s *Service) relink(ctx context.Context, userID uuid.UUID, sub *asaas.Subscription) (State, error) {
	return s.mutate(ctx, userID, func(cur *State) error {
		cur.GatewaySubscriptionID = sub.ID
		if !sub.NextDueDate.IsZero() {
			cur.setExpiry(sub.NextDueDate.Time)
		}
		return nil
	})
}
