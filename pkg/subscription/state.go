package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// State is the subscription view of a user profile.
//
// ExpiresAt and NextBillingAt are always written together. PendingPlan holds
// a staged downgrade and is only set while PaymentActive; the next confirmed
// renewal consumes it.
type State struct {
	UserID                uuid.UUID
	ChatID                string
	Plan                  plan.Plan
	PendingPlan           *plan.Plan
	PaymentActive         bool
	ExpiresAt             *time.Time
	NextBillingAt         *time.Time
	LastPaymentAt         *time.Time
	GatewaySubscriptionID string
	GatewayCustomerID     string
	Version               int64
	UpdatedAt             time.Time
}

// Phase is the derived lifecycle stage of a State.
type Phase string

const (
	PhaseNoSubscription                 Phase = "no_subscription"
	PhaseTrialActive                    Phase = "trial_active"
	PhaseTrialExpired                   Phase = "trial_expired"
	PhasePaidActive                     Phase = "paid_active"
	PhasePaidActiveWithPendingDowngrade Phase = "paid_active_pending_downgrade"
	PhasePaidExpired                    Phase = "paid_expired"
)

// Phase derives the lifecycle stage at now.
func (s State) Phase(now time.Time) Phase {
	if s.Plan == "" || s.Plan == plan.Free {
		switch {
		case s.LastPaymentAt != nil:
			return PhasePaidExpired
		case s.ExpiresAt == nil:
			return PhaseNoSubscription
		case s.ExpiresAt.After(now):
			return PhaseTrialActive
		default:
			return PhaseTrialExpired
		}
	}

	if s.PaymentActive && s.ExpiresAt != nil && s.ExpiresAt.After(now) {
		if s.PendingPlan != nil {
			return PhasePaidActiveWithPendingDowngrade
		}
		return PhasePaidActive
	}
	if s.ExpiresAt != nil || s.LastPaymentAt != nil {
		return PhasePaidExpired
	}
	return PhaseNoSubscription
}

// HasRemote reports whether a gateway subscription backs this state.
func (s State) HasRemote() bool { return s.GatewaySubscriptionID != "" }

// DaysRemaining returns the paid days left at now, rounded up.
func (s State) DaysRemaining(now time.Time) int {
	if s.ExpiresAt == nil {
		return 0
	}
	return plan.DaysBetween(now, *s.ExpiresAt)
}

// setExpiry writes both cycle-end fields.
func (s *State) setExpiry(t time.Time) {
	s.ExpiresAt = &t
	next := t
	s.NextBillingAt = &next
}

func (s State) clone() State {
	out := s
	out.PendingPlan = clonePtr(s.PendingPlan)
	out.ExpiresAt = clonePtr(s.ExpiresAt)
	out.NextBillingAt = clonePtr(s.NextBillingAt)
	out.LastPaymentAt = clonePtr(s.LastPaymentAt)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
