package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/asaas/asaastest"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func TestSyncSubscriptionPayment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := cycleEnd.Add(-2 * time.Hour)
	nextDue := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	renewal := func(st subscription.State) subscription.PaymentEvent {
		ev := confirmedEvent("pay_renewal", "SUB:PLUS:"+chatID+":1", "29.90", now)
		ev.SubscriptionID = st.GatewaySubscriptionID
		return ev
	}

	t.Run("expiry follows the gateway", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, now)
		st := f.seed(plan.Plus, cycleEnd, true)
		due := asaas.NewDate(nextDue)
		_, err := f.gw.UpdateSubscription(ctx, st.GatewaySubscriptionID, asaas.UpdateSubscriptionRequest{NextDueDate: &due})
		require.NoError(t, err)

		res, err := f.svc.SyncSubscriptionPayment(ctx, st, renewal(st))
		require.NoError(t, err)
		assert.True(t, res.Applied)

		got := f.profile(t, st.UserID)
		assert.Equal(t, nextDue, *got.ExpiresAt)
		assert.Equal(t, now, *got.LastPaymentAt)
		assert.True(t, got.PaymentActive)

		again, err := f.svc.SyncSubscriptionPayment(ctx, st, renewal(st))
		require.NoError(t, err)
		assert.False(t, again.Applied)
		assert.Equal(t, subscription.ReasonAlreadyApplied, again.Reason)
	})

	t.Run("calendar fallback when gateway is down", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, now)
		st := f.seed(plan.Plus, cycleEnd, true)
		f.gw.Fail(asaastest.MethodGetSubscription, &asaas.APIError{StatusCode: 503})

		res, err := f.svc.SyncSubscriptionPayment(ctx, st, renewal(st))
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, nextDue, *f.profile(t, st.UserID).ExpiresAt)
	})

	t.Run("consumes pending downgrade", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, now)
		st := f.seed(plan.Pro, cycleEnd, true)
		st.PendingPlan = ptr(plan.Plus)
		f.profiles.Put(st)
		f.gw.Fail(asaastest.MethodGetSubscription, &asaas.APIError{StatusCode: 503})

		res, err := f.svc.SyncSubscriptionPayment(ctx, st, renewal(st))
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, plan.Plus, res.Plan)

		got := f.profile(t, st.UserID)
		assert.Equal(t, plan.Plus, got.Plan)
		assert.Nil(t, got.PendingPlan)

		remote, _ := f.gw.Subscription(st.GatewaySubscriptionID)
		assert.Equal(t, 29.90, remote.Value)
		assert.Equal(t, asaas.CycleMonthly, remote.Cycle)
	})

	t.Run("expiry never moves back", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, now)
		st := f.seed(plan.Plus, nextDue, true)
		stale := asaas.NewDate(cycleEnd)
		_, err := f.gw.UpdateSubscription(ctx, st.GatewaySubscriptionID, asaas.UpdateSubscriptionRequest{NextDueDate: &stale})
		require.NoError(t, err)

		_, err = f.svc.SyncSubscriptionPayment(ctx, st, renewal(st))
		require.NoError(t, err)
		assert.Equal(t, nextDue, *f.profile(t, st.UserID).ExpiresAt)
	})
}
