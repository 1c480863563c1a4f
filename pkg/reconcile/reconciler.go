package reconcile

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// Actions reported in Result and by HandlePayment.
const (
	ActionIgnored        = "ignored"
	ActionRecorded       = "payment_recorded"
	ActionUpdated        = "payment_updated"
	ActionUnknownPayment = "payment_unknown"
	ActionSynced         = "subscription_synced"
	ActionDeactivated    = "subscription_deactivated"
	ActionUnknownUser    = "unknown_user"
)

// Orchestrator is the part of subscription.Service the reconciler drives.
type Orchestrator interface {
	ApplyConfirmedPayment(ctx context.Context, ev subscription.PaymentEvent) (subscription.ApplyResult, error)
	SyncSubscriptionPayment(ctx context.Context, st subscription.State, ev subscription.PaymentEvent) (subscription.ApplyResult, error)
	LinkSubscription(ctx context.Context, userID uuid.UUID, subscriptionID string) (subscription.State, error)
	DeactivateBySubscription(ctx context.Context, subscriptionID string) (int, error)
}

// ProfileFinder locates the owner of a recurring charge.
type ProfileFinder interface {
	FindBySubscriptionID(ctx context.Context, subscriptionID string) ([]subscription.State, error)
	FindByCustomerID(ctx context.Context, customerID string) (subscription.State, error)
}

// PaymentRecorder persists payment records.
type PaymentRecorder interface {
	Record(ctx context.Context, rec payment.Record) (payment.Record, bool, error)
	Find(ctx context.Context, gatewayPaymentID string) (payment.Record, error)
}

// Result is the outcome of one webhook delivery.
type Result struct {
	OK        bool   `json:"ok"`
	Action    string `json:"action,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Reconciler turns gateway notifications into profile and ledger changes.
type Reconciler struct {
	token    string
	svc      Orchestrator
	profiles ProfileFinder
	recorder PaymentRecorder
	dedup    Deduplicator
	log      *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithDeduplicator enables event id deduplication.
func WithDeduplicator(d Deduplicator) Option {
	return func(r *Reconciler) {
		r.dedup = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

// NewReconciler builds a Reconciler. An empty token rejects every delivery.
func NewReconciler(token string, svc Orchestrator, profiles ProfileFinder, recorder PaymentRecorder, opts ...Option) *Reconciler {
	if svc == nil {
		panic("reconcile: Orchestrator is required")
	}
	if profiles == nil {
		panic("reconcile: ProfileFinder is required")
	}
	if recorder == nil {
		panic("reconcile: PaymentRecorder is required")
	}
	r := &Reconciler{
		token:    token,
		svc:      svc,
		profiles: profiles,
		recorder: recorder,
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("reconcile"))
	return r
}

// Authenticate compares token with the configured secret in constant time.
func (r *Reconciler) Authenticate(token string) error {
	if r.token == "" {
		return errors.Join(ErrUnauthorized, ErrMissingToken)
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(r.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Handle processes one webhook event. Events other than payment events and
// subscription deletion are acknowledged without changes.
func (r *Reconciler) Handle(ctx context.Context, ev asaas.WebhookEvent) (Result, error) {
	if r.dedup != nil && ev.ID != "" {
		claimed, err := r.dedup.Claim(ctx, ev.ID)
		if err != nil {
			r.log.WarnContext(ctx, "webhook dedup unavailable, processing anyway",
				logger.Event(ev.Event),
				logger.Error(err),
			)
		} else if !claimed {
			r.log.DebugContext(ctx, "duplicate webhook delivery", logger.Event(ev.Event), slog.String("event_id", ev.ID))
			return Result{OK: true, Action: ActionIgnored, Duplicate: true}, nil
		}
	}

	action, err := r.dispatch(ctx, ev)
	if err != nil {
		r.log.ErrorContext(ctx, "webhook handling failed",
			logger.Event(ev.Event),
			slog.String("event_id", ev.ID),
			logger.Error(err),
		)
		if r.dedup != nil && ev.ID != "" {
			if rerr := r.dedup.Release(context.WithoutCancel(ctx), ev.ID); rerr != nil {
				r.log.WarnContext(ctx, "webhook dedup release failed", logger.Error(rerr))
			}
		}
		return Result{OK: false, Action: action}, err
	}

	if r.dedup != nil && ev.ID != "" {
		if cerr := r.dedup.Complete(ctx, ev.ID); cerr != nil {
			r.log.WarnContext(ctx, "webhook dedup completion failed", logger.Error(cerr))
		}
	}
	return Result{OK: true, Action: action}, nil
}

func (r *Reconciler) dispatch(ctx context.Context, ev asaas.WebhookEvent) (string, error) {
	switch {
	case ev.Event == asaas.EventSubscriptionDeleted:
		subID := ""
		if ev.Subscription != nil {
			subID = ev.Subscription.ID
		}
		if subID == "" {
			return ActionIgnored, nil
		}
		n, err := r.svc.DeactivateBySubscription(ctx, subID)
		if err != nil {
			return ActionDeactivated, err
		}
		if n == 0 {
			return ActionIgnored, nil
		}
		return ActionDeactivated, nil

	case ev.IsPaymentEvent():
		if ev.Payment == nil || ev.Payment.ID == "" {
			return "", ErrMissingPayment
		}
		return r.HandlePayment(ctx, *ev.Payment)

	default:
		r.log.DebugContext(ctx, "webhook event ignored", logger.Event(ev.Event))
		return ActionIgnored, nil
	}
}

// HandlePayment routes a gateway payment by status. It is shared by the
// webhook, the sweeper and synchronous polling.
func (r *Reconciler) HandlePayment(ctx context.Context, p asaas.Payment) (string, error) {
	ev := subscription.EventFromPayment(p)
	log := r.log.With(logger.PaymentID(ev.PaymentID), logger.Status(ev.Status))

	if !ev.Status.IsConfirmed() {
		return r.handleUnconfirmed(ctx, ev)
	}

	if ev.SubscriptionID != "" {
		return r.handleRecurring(ctx, ev)
	}

	rec := enrich(ev.Record())
	if _, _, err := r.recorder.Record(ctx, rec); err != nil {
		return "", err
	}
	res, err := r.svc.ApplyConfirmedPayment(ctx, ev)
	if err != nil {
		return "", err
	}
	if res.Reason == subscription.ReasonUnknownUser {
		log.WarnContext(ctx, "confirmed payment for unknown user acknowledged",
			logger.CustomerID(ev.CustomerID),
		)
	}
	return res.Reason, nil
}

func (r *Reconciler) handleUnconfirmed(ctx context.Context, ev subscription.PaymentEvent) (string, error) {
	if ev.Method == payment.MethodPIX && ev.Status.IsOpen() {
		_, saved, err := r.recorder.Record(ctx, enrich(ev.Record()))
		if err != nil {
			return "", err
		}
		if !saved {
			return ActionUnknownUser, nil
		}
		return ActionRecorded, nil
	}

	existing, err := r.recorder.Find(ctx, ev.PaymentID)
	if errors.Is(err, payment.ErrNotFound) {
		return ActionUnknownPayment, nil
	}
	if err != nil {
		return "", err
	}
	rec := ev.Record()
	rec.UserID = existing.UserID
	if _, _, err := r.recorder.Record(ctx, rec); err != nil {
		return "", err
	}
	return ActionUpdated, nil
}

func (r *Reconciler) handleRecurring(ctx context.Context, ev subscription.PaymentEvent) (string, error) {
	st, err := r.ownerOfSubscription(ctx, ev)
	if errors.Is(err, subscription.ErrProfileNotFound) {
		r.log.WarnContext(ctx, "recurring payment for unknown subscription acknowledged",
			logger.PaymentID(ev.PaymentID),
			logger.SubscriptionID(ev.SubscriptionID),
			logger.CustomerID(ev.CustomerID),
		)
		return ActionUnknownUser, nil
	}
	if err != nil {
		return "", err
	}

	res, err := r.svc.SyncSubscriptionPayment(ctx, st, ev)
	if err != nil {
		return "", err
	}

	rec := enrich(ev.Record())
	rec.UserID = st.UserID
	rec.ChatID = st.ChatID
	if res.Plan.Payable() {
		rec.Plan = res.Plan
	}
	rec.Kind = payment.KindSubscription
	if _, _, err := r.recorder.Record(ctx, rec); err != nil {
		return "", err
	}
	if !res.Applied {
		return res.Reason, nil
	}
	return ActionSynced, nil
}

// ownerOfSubscription finds the profile by subscription id, then by
// customer id, linking the subscription on the second hop.
func (r *Reconciler) ownerOfSubscription(ctx context.Context, ev subscription.PaymentEvent) (subscription.State, error) {
	owners, err := r.profiles.FindBySubscriptionID(ctx, ev.SubscriptionID)
	if err != nil {
		return subscription.State{}, err
	}
	if len(owners) > 0 {
		if len(owners) > 1 {
			r.log.WarnContext(ctx, "subscription referenced by several profiles",
				logger.SubscriptionID(ev.SubscriptionID),
				slog.Int("count", len(owners)),
			)
		}
		return owners[0], nil
	}

	if ev.CustomerID == "" {
		return subscription.State{}, subscription.ErrProfileNotFound
	}
	st, err := r.profiles.FindByCustomerID(ctx, ev.CustomerID)
	if err != nil {
		return subscription.State{}, err
	}
	return r.svc.LinkSubscription(ctx, st.UserID, ev.SubscriptionID)
}

// enrich fills plan, kind and chat from the external reference when it
// parses.
func enrich(rec payment.Record) payment.Record {
	ref, err := payment.ParseReference(rec.ExternalReference)
	if err != nil {
		return rec
	}
	rec.Plan = ref.Plan
	rec.Kind = ref.Kind
	rec.ChatID = ref.ChatID
	return rec
}
