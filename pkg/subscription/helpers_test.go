package subscription_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/asaas/asaastest"
	"github.com/dmitrymomot/billingkit/pkg/notify"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// cycleEnd closes a 30 day monthly cycle (Apr 1 - May 1).
var cycleEnd = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

const (
	chatID     = "5511999990000"
	customerID = "cus_000001"
)

func daysBefore(end time.Time, days int) time.Time {
	return end.Add(-time.Duration(days) * 24 * time.Hour)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

type fixture struct {
	now      time.Time
	gw       *asaastest.Fake
	profiles *subscription.MemoryStore
	payments *payment.MemoryStore
	notes    *recordingNotifier
	svc      *subscription.Service
}

func newFixture(t *testing.T, now time.Time, opts ...subscription.Option) *fixture {
	t.Helper()

	f := &fixture{
		now:      now,
		gw:       asaastest.New(),
		profiles: subscription.NewMemoryStore(),
		payments: payment.NewMemoryStore(),
		notes:    &recordingNotifier{},
	}
	f.gw.Now = func() time.Time { return now }

	base := []subscription.Option{
		subscription.WithClock(func() time.Time { return now }),
		subscription.WithNotifier(f.notes),
		subscription.WithQRCodeRetry(2, 0),
	}
	f.svc = subscription.NewService(f.gw, f.profiles, f.payments, append(base, opts...)...)
	return f
}

// seed stores an active profile on p expiring at expires. With remote set,
// a matching gateway subscription is created first.
func (f *fixture) seed(p plan.Plan, expires time.Time, remote bool) subscription.State {
	st := subscription.State{
		UserID:            uuid.New(),
		ChatID:            chatID,
		Plan:              p,
		PaymentActive:     true,
		ExpiresAt:         ptr(expires),
		NextBillingAt:     ptr(expires),
		GatewayCustomerID: customerID,
		UpdatedAt:         f.now,
	}
	if remote {
		price, _ := p.Price()
		sub := asaas.Subscription{
			ID:                "sub_seed",
			Customer:          customerID,
			BillingType:       asaas.BillingPIX,
			Value:             asaas.Value(price),
			NextDueDate:       asaas.NewDate(expires),
			Cycle:             asaas.Cycle(p.Cycle()),
			Status:            "ACTIVE",
			ExternalReference: payment.NewReference(payment.KindSubscription, p, chatID, f.now).String(),
		}
		f.gw.AddSubscription(sub)
		st.GatewaySubscriptionID = sub.ID
	}
	f.profiles.Put(st)
	return st
}

func (f *fixture) profile(t *testing.T, userID uuid.UUID) subscription.State {
	t.Helper()
	st, err := f.profiles.Get(context.Background(), userID)
	require.NoError(t, err)
	return st
}

func ptr[T any](v T) *T { return &v }
