package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/asaas/asaastest"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/reconcile"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

const (
	token      = "whsec_test"
	chatID     = "5511988887777"
	customerID = "cus_000042"
)

// cycleEnd closes a 30 day monthly cycle (Apr 1 - May 1).
var cycleEnd = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	now        time.Time
	gw         *asaastest.Fake
	profiles   *subscription.MemoryStore
	payments   *payment.MemoryStore
	svc        *subscription.Service
	reconciler *reconcile.Reconciler
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	h := &harness{
		now:      now,
		gw:       asaastest.New(),
		profiles: subscription.NewMemoryStore(),
		payments: payment.NewMemoryStore(),
	}
	h.gw.Now = func() time.Time { return now }
	h.svc = subscription.NewService(h.gw, h.profiles, h.payments,
		subscription.WithClock(func() time.Time { return now }),
		subscription.WithQRCodeRetry(2, 0),
	)
	recorder := payment.NewRecorder(h.payments, subscription.Resolver{Profiles: h.profiles})
	h.reconciler = reconcile.NewReconciler(token, h.svc, h.profiles, recorder,
		reconcile.WithDeduplicator(reconcile.NewMemoryDeduplicator(time.Minute, time.Hour)),
	)
	return h
}

// seed stores an active profile on p expiring at cycleEnd. A non-empty
// subID also creates the matching gateway subscription due at remoteDue.
func (h *harness) seed(p plan.Plan, subID string, remoteDue time.Time) subscription.State {
	expires := cycleEnd
	st := subscription.State{
		UserID:            uuid.New(),
		ChatID:            chatID,
		Plan:              p,
		PaymentActive:     true,
		ExpiresAt:         &expires,
		NextBillingAt:     &expires,
		GatewayCustomerID: customerID,
		UpdatedAt:         h.now,
	}
	if subID != "" {
		price, _ := p.Price()
		h.gw.AddSubscription(asaas.Subscription{
			ID:                subID,
			Customer:          customerID,
			BillingType:       asaas.BillingPIX,
			Value:             asaas.Value(price),
			NextDueDate:       asaas.NewDate(remoteDue),
			Cycle:             asaas.Cycle(p.Cycle()),
			Status:            "ACTIVE",
			ExternalReference: payment.NewReference(payment.KindSubscription, p, chatID, h.now).String(),
		})
		st.GatewaySubscriptionID = subID
	}
	h.profiles.Put(st)
	return st
}

func (h *harness) profile(t *testing.T, userID uuid.UUID) subscription.State {
	t.Helper()
	st, err := h.profiles.Get(context.Background(), userID)
	require.NoError(t, err)
	return st
}

func paymentEvent(id, event string, p asaas.Payment) asaas.WebhookEvent {
	return asaas.WebhookEvent{ID: id, Event: event, Payment: &p}
}

func daysBefore(end time.Time, days int) time.Time {
	return end.Add(-time.Duration(days) * 24 * time.Hour)
}
