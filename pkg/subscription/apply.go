package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/notify"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// Reasons reported in ApplyResult.
const (
	ReasonApplied        = "applied"
	ReasonAlreadyApplied = "already_applied"
	ReasonFreePlan       = "free_plan"
	ReasonInvalidPlan    = "invalid_plan"
	ReasonBelowMinimum   = "below_minimum"
	ReasonUnderpaid      = "underpaid"
	ReasonUnknownUser    = "unknown_user"
	ReasonUnresolved     = "unresolved_reference"
)

var minimumAmount = decimal.RequireFromString("1.00")

// PaymentEvent is a confirmed gateway payment as seen by the service.
type PaymentEvent struct {
	PaymentID         string
	CustomerID        string
	SubscriptionID    string
	Status            payment.Status
	Method            payment.Method
	Amount            decimal.Decimal
	PaidAt            time.Time
	DueDate           time.Time
	ExternalReference string
	InvoiceURL        string
	ReceiptURL        string
}

// EventFromPayment converts a gateway payment into a PaymentEvent.
func EventFromPayment(p asaas.Payment) PaymentEvent {
	ev := PaymentEvent{
		PaymentID:         p.ID,
		CustomerID:        p.Customer,
		SubscriptionID:    p.Subscription,
		Status:            payment.ParseStatus(p.Status),
		Method:            payment.ParseMethod(string(p.BillingType)),
		Amount:            p.Amount(),
		DueDate:           p.DueDate.Time,
		ExternalReference: p.ExternalReference,
		InvoiceURL:        p.InvoiceURL,
		ReceiptURL:        p.TransactionReceiptURL,
	}
	if at := p.PaidAt(); at != nil {
		ev.PaidAt = *at
	}
	return ev
}

// Record returns the ledger entry for ev, without owner or plan.
func (ev PaymentEvent) Record() payment.Record {
	rec := payment.Record{
		GatewayPaymentID:  ev.PaymentID,
		CustomerID:        ev.CustomerID,
		SubscriptionID:    ev.SubscriptionID,
		Amount:            ev.Amount,
		Status:            ev.Status,
		Method:            ev.Method,
		DueDate:           ev.DueDate,
		InvoiceURL:        ev.InvoiceURL,
		ReceiptURL:        ev.ReceiptURL,
		ExternalReference: ev.ExternalReference,
	}
	if !ev.PaidAt.IsZero() {
		paidAt := ev.PaidAt
		rec.PaidAt = &paidAt
	}
	return rec
}

// ApplyResult reports what ApplyConfirmedPayment or SyncSubscriptionPayment did.
type ApplyResult struct {
	Applied   bool
	Reason    string
	UserID    uuid.UUID
	Plan      plan.Plan
	ExpiresAt *time.Time
}

type applyInput struct {
	paymentID string
	intended  plan.Plan
	upgrade   bool
	paidAt    time.Time
	amount    *decimal.Decimal
	// strict makes gateway failures during the subscription swap fatal.
	strict bool
	// customerID and billing describe the subscription created for a strict
	// upgrade of a profile without one.
	customerID string
	billing    asaas.BillingType
}

var errAlreadyApplied = errors.New("payment already applied")

// ApplyConfirmedPayment applies a confirmed one-off payment to the owner's
// profile. It is idempotent: a payment not newer than the last applied one
// is reported as already applied. Payments that must not change the
// profile are reported with Applied=false and a reason, never as errors.
func (s *Service) ApplyConfirmedPayment(ctx context.Context, ev PaymentEvent) (ApplyResult, error) {
	target, err := s.resolveTarget(ctx, ev)
	if err != nil {
		return ApplyResult{}, err
	}
	if target.reason != "" {
		return ApplyResult{Reason: target.reason}, nil
	}

	if reason := validateAmount(target.plan, target.upgrade, ev.Amount); reason != "" {
		s.log.WarnContext(ctx, "confirmed payment not applied",
			logger.PaymentID(ev.PaymentID),
			logger.Plan(target.plan),
			logger.Amount(ev.Amount),
			logger.Status(reason),
		)
		return ApplyResult{Reason: reason, Plan: target.plan}, nil
	}

	st, err := s.ownerOf(ctx, target.userID, target.chatID, ev.CustomerID)
	if errors.Is(err, ErrProfileNotFound) {
		s.log.WarnContext(ctx, "confirmed payment for unknown user",
			logger.PaymentID(ev.PaymentID),
			logger.ChatID(target.chatID),
			logger.CustomerID(ev.CustomerID),
		)
		return ApplyResult{Reason: ReasonUnknownUser, Plan: target.plan}, nil
	}
	if err != nil {
		return ApplyResult{}, err
	}

	paidAt := ev.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	var out applyOutcome
	err = s.withUserLock(ctx, st.UserID, func(ctx context.Context) error {
		var err error
		out, err = s.applyLocked(ctx, st.UserID, applyInput{
			paymentID: ev.PaymentID,
			intended:  target.plan,
			upgrade:   target.upgrade,
			paidAt:    paidAt,
			amount:    &ev.Amount,
		})
		return err
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return out.result(), nil
}

type paymentTarget struct {
	userID  uuid.UUID
	chatID  string
	plan    plan.Plan
	upgrade bool
	reason  string
}

// resolveTarget prefers the local record and falls back to the external
// reference.
func (s *Service) resolveTarget(ctx context.Context, ev PaymentEvent) (paymentTarget, error) {
	rec, err := s.payments.FindByGatewayID(ctx, ev.PaymentID)
	switch {
	case err == nil && rec.Plan != "":
		return paymentTarget{
			userID:  rec.UserID,
			chatID:  rec.ChatID,
			plan:    rec.Plan,
			upgrade: rec.IsUpgrade(),
		}, nil
	case err != nil && !errors.Is(err, payment.ErrNotFound):
		return paymentTarget{}, err
	}

	ref, err := payment.ParseReference(ev.ExternalReference)
	if err != nil {
		s.log.WarnContext(ctx, "payment reference not resolvable",
			logger.PaymentID(ev.PaymentID),
			logger.Error(err),
		)
		return paymentTarget{reason: ReasonUnresolved}, nil
	}
	if ref.PlanDefaulted {
		s.log.WarnContext(ctx, "unknown plan token in payment reference, assuming PLUS",
			logger.PaymentID(ev.PaymentID),
			logger.Plan(ref.Plan),
		)
	}
	return paymentTarget{
		userID:  rec.UserID,
		chatID:  ref.ChatID,
		plan:    ref.Plan,
		upgrade: ref.IsUpgrade(),
	}, nil
}

// validateAmount returns a rejection reason, or "" when the payment may apply.
// Amounts are compared in whole cents, so one cent short is underpaid.
func validateAmount(p plan.Plan, upgrade bool, amount decimal.Decimal) string {
	if p == plan.Free {
		return ReasonFreePlan
	}
	price, err := p.Price()
	if err != nil {
		return ReasonInvalidPlan
	}
	if amount.LessThan(minimumAmount) {
		return ReasonBelowMinimum
	}
	if !upgrade && amount.Round(2).LessThan(price) {
		return ReasonUnderpaid
	}
	return ""
}

func (s *Service) ownerOf(ctx context.Context, userID uuid.UUID, chatID, customerID string) (State, error) {
	if userID != uuid.Nil {
		return s.profiles.Get(ctx, userID)
	}
	st, err := s.profiles.FindByChatID(ctx, chatID)
	if errors.Is(err, ErrProfileNotFound) && customerID != "" {
		return s.profiles.FindByCustomerID(ctx, customerID)
	}
	return st, err
}

type applyOutcome struct {
	state   State
	applied bool
	// reason overrides the already-applied reason of an outcome that did not apply.
	reason string
}

func (o applyOutcome) result() ApplyResult {
	r := ApplyResult{
		Applied:   o.applied,
		Reason:    ReasonAlreadyApplied,
		UserID:    o.state.UserID,
		Plan:      o.state.Plan,
		ExpiresAt: o.state.ExpiresAt,
	}
	switch {
	case o.applied:
		r.Reason = ReasonApplied
	case o.reason != "":
		r.Reason = o.reason
	}
	return r
}

func alreadyApplied(st State, intended, final plan.Plan, paidAt time.Time) bool {
	return st.PaymentActive &&
		(st.Plan == intended || st.Plan == final) &&
		st.LastPaymentAt != nil && !st.LastPaymentAt.Before(paidAt)
}

// applyLocked runs the payment application for a user whose lock is held.
func (s *Service) applyLocked(ctx context.Context, userID uuid.UUID, in applyInput) (applyOutcome, error) {
	st, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return applyOutcome{}, err
	}

	final := in.intended
	if !in.upgrade && st.PendingPlan != nil {
		final = *st.PendingPlan
	}
	if alreadyApplied(st, in.intended, final, in.paidAt) {
		return applyOutcome{state: st}, nil
	}

	var swapped *asaas.Subscription
	switch {
	case in.upgrade && st.HasRemote():
		swapped, err = s.swapRemote(ctx, st, final, in.paidAt)
		if err != nil {
			if in.strict {
				return applyOutcome{}, err
			}
			s.log.WarnContext(ctx, "remote subscription swap failed, applying locally",
				logger.UserID(userID),
				logger.SubscriptionID(st.GatewaySubscriptionID),
				logger.Error(err),
			)
		}
	case in.upgrade && in.strict:
		if st.GatewayCustomerID == "" {
			st.GatewayCustomerID = in.customerID
		}
		anchor := in.paidAt
		if st.ExpiresAt != nil {
			anchor = *st.ExpiresAt
		}
		if swapped, err = s.replaceRemote(ctx, st, final, anchor, in.billing); err != nil {
			return applyOutcome{}, err
		}
		s.log.InfoContext(ctx, "gateway subscription created for upgrade",
			logger.UserID(userID),
			logger.SubscriptionID(swapped.ID),
			logger.Plan(final),
		)
	}

	saved, err := s.mutate(ctx, userID, func(cur *State) error {
		if alreadyApplied(*cur, in.intended, final, in.paidAt) {
			return errAlreadyApplied
		}
		if swapped != nil {
			cur.GatewaySubscriptionID = swapped.ID
			if cur.GatewayCustomerID == "" {
				cur.GatewayCustomerID = swapped.Customer
			}
			cur.setExpiry(maxTime(swapped.NextDueDate.Time, cur.ExpiresAt))
		} else {
			cur.setExpiry(nextExpiry(cur.ExpiresAt, cur.Plan, final, in.paidAt, in.upgrade))
		}
		paidAt := in.paidAt
		cur.Plan = final
		cur.PaymentActive = true
		cur.LastPaymentAt = &paidAt
		cur.PendingPlan = nil
		return nil
	})
	if errors.Is(err, errAlreadyApplied) {
		return applyOutcome{state: saved}, nil
	}
	if err != nil {
		return applyOutcome{}, err
	}

	s.log.InfoContext(ctx, "payment applied",
		logger.UserID(userID),
		logger.PaymentID(in.paymentID),
		logger.Plan(final),
	)

	kind := notify.KindPaymentApplied
	if st.Plan != final {
		kind = notify.KindPlanChanged
	}
	s.notify(ctx, notify.Notification{
		Kind:          kind,
		UserID:        saved.UserID,
		ChatID:        saved.ChatID,
		Plan:          final,
		Amount:        in.amount,
		ExpiresAt:     saved.ExpiresAt,
		DaysRemaining: saved.DaysRemaining(s.now()),
	})
	return applyOutcome{state: saved, applied: true}, nil
}

// swapRemote replaces the user's gateway subscription when it bills for a
// plan other than final. It returns nil when no swap was needed.
func (s *Service) swapRemote(ctx context.Context, st State, final plan.Plan, paidAt time.Time) (*asaas.Subscription, error) {
	sub, err := s.gateway.GetSubscription(ctx, st.GatewaySubscriptionID)
	if err != nil {
		return nil, gatewayErr(err)
	}
	if current, ok := remotePlan(sub); ok && current == final {
		return nil, nil
	}

	anchor := paidAt
	if st.ExpiresAt != nil {
		anchor = *st.ExpiresAt
	}
	created, err := s.replaceRemote(ctx, st, final, anchor, sub.BillingType)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "gateway subscription replaced",
		logger.UserID(st.UserID),
		logger.SubscriptionID(created.ID),
		logger.Plan(final),
	)
	return created, nil
}

// nextExpiry computes the cycle end after a payment made at paidAt moves a
// profile from plan from to plan to. The result is never before cur.
func nextExpiry(cur *time.Time, from, to plan.Plan, paidAt time.Time, upgrade bool) time.Time {
	var next time.Time
	switch {
	case !from.IsAnnual() && to.IsAnnual():
		next = plan.AddCycle(paidAt, plan.Yearly, 1)
	case cur == nil || cur.Before(paidAt):
		next = plan.AddCycle(paidAt, to.Cycle(), 1)
	case upgrade:
		next = *cur
	default:
		next = plan.AddCycle(*cur, to.Cycle(), 1)
	}
	return maxTime(next, cur)
}

func maxTime(t time.Time, floor *time.Time) time.Time {
	if floor != nil && t.Before(*floor) {
		return *floor
	}
	return t
}
