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
	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// SyncSubscriptionPayment applies a confirmed recurring charge to st's
// owner. The expiry is taken from the gateway subscription, falling back to
// a calendar advance when the gateway cannot be read. A staged downgrade is
// consumed and pushed to the gateway subscription on a best-effort basis.
func (s *Service) SyncSubscriptionPayment(ctx context.Context, st State, ev PaymentEvent) (ApplyResult, error) {
	if st.UserID == uuid.Nil {
		return ApplyResult{}, ErrMissingUser
	}
	paidAt := ev.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	subID := ev.SubscriptionID
	if subID == "" {
		subID = st.GatewaySubscriptionID
	}

	var out applyOutcome
	err := s.withUserLock(ctx, st.UserID, func(ctx context.Context) error {
		cur, err := s.profiles.Get(ctx, st.UserID)
		if err != nil {
			return err
		}
		if cur.PaymentActive && cur.LastPaymentAt != nil && !cur.LastPaymentAt.Before(paidAt) {
			out = applyOutcome{state: cur}
			return nil
		}

		remote := s.remoteSubscription(ctx, subID)
		final, ok := syncPlan(cur, remote, ev.ExternalReference)
		if !ok || !final.Payable() {
			reason := ReasonUnresolved
			if ok {
				reason = ReasonFreePlan
			}
			s.log.WarnContext(ctx, "subscription payment not applied, plan not resolvable",
				logger.UserID(cur.UserID),
				logger.PaymentID(ev.PaymentID),
				logger.SubscriptionID(subID),
				logger.Status(reason),
			)
			out = applyOutcome{state: cur, reason: reason}
			return nil
		}
		if cur.PendingPlan != nil {
			s.pushPendingPlan(ctx, subID, final)
		}

		var remoteDue *time.Time
		if remote != nil && !remote.NextDueDate.IsZero() {
			remoteDue = remote.NextDueDate.Ptr()
		}

		saved, err := s.mutate(ctx, st.UserID, func(next *State) error {
			if next.PaymentActive && next.LastPaymentAt != nil && !next.LastPaymentAt.Before(paidAt) {
				return errAlreadyApplied
			}
			if remoteDue != nil {
				next.setExpiry(maxTime(*remoteDue, next.ExpiresAt))
			} else {
				next.setExpiry(nextExpiry(next.ExpiresAt, next.Plan, final, paidAt, false))
			}
			if next.GatewaySubscriptionID == "" {
				next.GatewaySubscriptionID = subID
			}
			if next.GatewayCustomerID == "" {
				next.GatewayCustomerID = ev.CustomerID
			}
			at := paidAt
			next.Plan = final
			next.PendingPlan = nil
			next.PaymentActive = true
			next.LastPaymentAt = &at
			return nil
		})
		if errors.Is(err, errAlreadyApplied) {
			out = applyOutcome{state: saved}
			return nil
		}
		if err != nil {
			return err
		}
		out = applyOutcome{state: saved, applied: true}

		s.log.InfoContext(ctx, "subscription payment applied",
			logger.UserID(saved.UserID),
			logger.PaymentID(ev.PaymentID),
			logger.SubscriptionID(subID),
			logger.Plan(final),
		)
		amount := ev.Amount
		s.notify(ctx, notify.Notification{
			Kind:          notify.KindPaymentApplied,
			UserID:        saved.UserID,
			ChatID:        saved.ChatID,
			Plan:          final,
			Amount:        &amount,
			ExpiresAt:     saved.ExpiresAt,
			DaysRemaining: saved.DaysRemaining(s.now()),
		})
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return out.result(), nil
}

// remoteSubscription returns the gateway subscription subID, or nil when it
// cannot be read.
func (s *Service) remoteSubscription(ctx context.Context, subID string) *asaas.Subscription {
	if subID == "" {
		return nil
	}
	sub, err := s.gateway.GetSubscription(ctx, subID)
	if err != nil {
		s.log.WarnContext(ctx, "subscription resync failed, advancing locally",
			logger.SubscriptionID(subID),
			logger.Error(err),
		)
		return nil
	}
	return sub
}

// syncPlan picks the plan a recurring charge pays for: a staged downgrade,
// then the plan the gateway subscription bills, then the charge reference,
// then the profile plan.
func syncPlan(cur State, remote *asaas.Subscription, reference string) (plan.Plan, bool) {
	if cur.PendingPlan != nil {
		return *cur.PendingPlan, true
	}
	if remote != nil {
		if p, ok := remotePlan(remote); ok {
			return p, true
		}
	}
	if ref, err := payment.ParseReference(reference); err == nil && !ref.PlanDefaulted {
		return ref.Plan, true
	}
	if cur.Plan.Payable() {
		return cur.Plan, true
	}
	return cur.Plan, cur.Plan == plan.Free
}

// pushPendingPlan reprices the gateway subscription for a consumed downgrade.
func (s *Service) pushPendingPlan(ctx context.Context, subID string, p plan.Plan) {
	if subID == "" {
		return
	}
	price, err := p.Price()
	if err != nil {
		return
	}
	value := asaas.Value(price)
	updatePending := true
	_, err = s.gateway.UpdateSubscription(ctx, subID, asaas.UpdateSubscriptionRequest{
		Value:                 &value,
		Cycle:                 asaas.Cycle(p.Cycle()),
		Description:           description(p),
		UpdatePendingPayments: &updatePending,
	})
	if err != nil {
		s.log.WarnContext(ctx, "gateway subscription update for downgrade failed",
			logger.SubscriptionID(subID),
			logger.Plan(p),
			logger.Error(err),
		)
	}
}
