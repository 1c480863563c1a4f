package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/asaas/asaastest"
	"github.com/dmitrymomot/billingkit/pkg/notify"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func TestChangePlan_ProRataUpgrade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, daysBefore(cycleEnd, 15))
	st := f.seed(plan.Plus, cycleEnd, true)

	res, err := f.svc.ChangePlan(ctx, st.UserID, plan.Pro, "", subscription.ChangeOptions{})
	require.NoError(t, err)

	assert.Equal(t, subscription.ChangeWaitingPayment, res.Status)
	assert.Equal(t, "10.00", res.Quote.ChangePrice.StringFixed(2))
	assert.Equal(t, 15, res.Quote.DaysRemaining)

	require.NotNil(t, res.Payment)
	assert.Equal(t, "10.00", res.Payment.Amount.StringFixed(2))
	assert.Equal(t, payment.KindUpgrade, res.Payment.Kind)
	assert.Equal(t, plan.Pro, res.Payment.Plan)
	assert.Equal(t, payment.StatusPending, res.Payment.Status)
	assert.NotEmpty(t, res.Payment.PixPayload)
	assert.Contains(t, res.Payment.PixQRCodeURL, "data:image/png;base64,")
	require.NotNil(t, res.Pix)

	ref, err := payment.ParseReference(res.Payment.ExternalReference)
	require.NoError(t, err)
	assert.True(t, ref.IsUpgrade())
	assert.Equal(t, plan.Pro, ref.Plan)
	assert.Equal(t, chatID, ref.ChatID)

	stored, err := f.payments.FindByGatewayID(ctx, res.Payment.GatewayPaymentID)
	require.NoError(t, err)
	assert.Equal(t, st.UserID, stored.UserID)

	assert.Equal(t, plan.Plus, f.profile(t, st.UserID).Plan, "plan changes only on confirmation")
	assert.Equal(t, []notify.Kind{notify.KindUpgradePending}, f.notes.kinds())
}

func TestChangePlan_AnnualUpsell(t *testing.T) {
	t.Parallel()
	f := newFixture(t, daysBefore(cycleEnd, 18))
	st := f.seed(plan.Pro, cycleEnd, true)

	res, err := f.svc.ChangePlan(context.Background(), st.UserID, plan.PlusAnnual, "", subscription.ChangeOptions{})
	require.NoError(t, err)

	assert.Equal(t, subscription.ChangeWaitingPayment, res.Status)
	assert.False(t, res.Quote.IsDowngrade)
	assert.Equal(t, "257.06", res.Quote.ChangePrice.StringFixed(2))
	assert.Equal(t, 365, res.Quote.DaysRemaining)
}

func TestQuoteChange_CycleEndFromGateway(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("gateway due date wins over local expiry", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, daysBefore(cycleEnd, 15))
		st := f.seed(plan.Plus, cycleEnd, true)

		drifted := st
		drifted.ExpiresAt = ptr(cycleEnd.AddDate(0, 0, 10))
		drifted.NextBillingAt = drifted.ExpiresAt
		f.profiles.Put(drifted)

		q, err := f.svc.QuoteChange(ctx, st.UserID, plan.Pro)
		require.NoError(t, err)
		assert.Equal(t, 15, q.DaysRemaining)
		assert.Equal(t, "10.00", q.ChangePrice.StringFixed(2))
	})

	t.Run("open charge due earlier pulls the cycle end in", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, daysBefore(cycleEnd, 15))
		st := f.seed(plan.Plus, cycleEnd, true)
		f.gw.AddPayment(asaas.Payment{
			ID:           "pay_open",
			Subscription: st.GatewaySubscriptionID,
			Status:       "PENDING",
			Value:        29.90,
			DueDate:      asaas.NewDate(daysBefore(cycleEnd, 5)),
		})

		q, err := f.svc.QuoteChange(ctx, st.UserID, plan.Pro)
		require.NoError(t, err)
		assert.Equal(t, 10, q.DaysRemaining)
		// Mar 26 - Apr 26 is 31 days: 20.00 / 31 * 10
		assert.Equal(t, "6.45", q.ChangePrice.StringFixed(2))
	})

	t.Run("gateway failure surfaces", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, daysBefore(cycleEnd, 15))
		st := f.seed(plan.Plus, cycleEnd, true)
		f.gw.Fail(asaastest.MethodGetSubscription, &asaas.APIError{StatusCode: 503})

		_, err := f.svc.QuoteChange(ctx, st.UserID, plan.Pro)
		require.ErrorIs(t, err, subscription.ErrGatewayUnavailable)
	})
}

func TestChangePlan_DowngradeIsFreeAndDeferred(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, daysBefore(cycleEnd, 15))
	st := f.seed(plan.Pro, cycleEnd, true)

	res, err := f.svc.ChangePlan(ctx, st.UserID, plan.Plus, "", subscription.ChangeOptions{})
	require.NoError(t, err)

	assert.Equal(t, subscription.ChangeScheduled, res.Status)
	assert.True(t, res.Quote.IsDowngrade)
	assert.True(t, res.Quote.ChangePrice.IsZero())
	assert.Nil(t, res.Payment)
	assert.Zero(t, f.gw.Calls(asaastest.MethodCreatePayment))

	got := f.profile(t, st.UserID)
	assert.Equal(t, plan.Pro, got.Plan)
	require.NotNil(t, got.PendingPlan)
	assert.Equal(t, plan.Plus, *got.PendingPlan)
	assert.Equal(t, subscription.PhasePaidActiveWithPendingDowngrade, got.Phase(f.now))
	assert.Equal(t, cycleEnd, *got.ExpiresAt)
	assert.Equal(t, []notify.Kind{notify.KindDowngradeScheduled}, f.notes.kinds())
}

func TestChangePlan_DowngradeRaceGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name    string
		age     time.Duration
		status  payment.Status
		wantErr error
	}{
		{name: "recent pending payment blocks", age: 5 * time.Minute, status: payment.StatusPending, wantErr: subscription.ErrConflictingPendingPayment},
		{name: "pending payment outside window", age: 2 * time.Hour, status: payment.StatusPending},
		{name: "recent confirmed payment", age: 5 * time.Minute, status: payment.StatusReceived},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, daysBefore(cycleEnd, 15))
			st := f.seed(plan.Pro, cycleEnd, false)

			_, err := f.payments.Upsert(ctx, payment.Record{
				GatewayPaymentID: "pay_inflight",
				UserID:           st.UserID,
				ChatID:           chatID,
				Amount:           decimal.RequireFromString("10.00"),
				Plan:             plan.ProAnnual,
				Kind:             payment.KindUpgrade,
				Status:           tt.status,
				CreatedAt:        f.now.Add(-tt.age),
			})
			require.NoError(t, err)

			res, err := f.svc.ChangePlan(ctx, st.UserID, plan.Plus, "", subscription.ChangeOptions{})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, f.profile(t, st.UserID).PendingPlan)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, subscription.ChangeScheduled, res.Status)
		})
	}
}

func TestChangePlan_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := daysBefore(cycleEnd, 15)

	tests := []struct {
		name    string
		mutate  func(st *subscription.State)
		target  plan.Plan
		wantErr error
	}{
		{name: "free target", target: plan.Free, wantErr: subscription.ErrForbiddenDowngradeToFree},
		{name: "unknown target", target: plan.Plan("GOLD"), wantErr: subscription.ErrInvalidPlan},
		{name: "same plan", target: plan.Plus, wantErr: subscription.ErrSamePlan},
		{
			name:    "inactive",
			target:  plan.Pro,
			mutate:  func(st *subscription.State) { st.PaymentActive = false },
			wantErr: subscription.ErrNoActiveSubscription,
		},
		{
			name:   "no expiry",
			target: plan.Pro,
			mutate: func(st *subscription.State) {
				st.ExpiresAt = nil
				st.NextBillingAt = nil
			},
			wantErr: subscription.ErrNoActiveSubscription,
		},
		{
			name:   "expired",
			target: plan.Pro,
			mutate: func(st *subscription.State) {
				st.ExpiresAt = ptr(now.Add(-time.Hour))
				st.NextBillingAt = st.ExpiresAt
			},
			wantErr: subscription.ErrExpiredSubscription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, now)
			st := f.seed(plan.Plus, cycleEnd, false)
			if tt.mutate != nil {
				tt.mutate(&st)
				f.profiles.Put(st)
			}

			_, err := f.svc.ChangePlan(ctx, st.UserID, tt.target, customerID, subscription.ChangeOptions{})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.gw.Calls(asaastest.MethodCreatePayment))
		})
	}

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, now)
		_, err := f.svc.ChangePlan(ctx, uuid.New(), plan.Pro, customerID, subscription.ChangeOptions{})
		require.ErrorIs(t, err, subscription.ErrProfileNotFound)
	})
}

func TestChangePlan_UnderFreeThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, daysBefore(cycleEnd, 1),
		subscription.WithFreeChangeThreshold(decimal.RequireFromString("1.00")),
	)
	st := f.seed(plan.Plus, cycleEnd, true)

	res, err := f.svc.ChangePlan(ctx, st.UserID, plan.Pro, "", subscription.ChangeOptions{})
	require.NoError(t, err)

	assert.Equal(t, subscription.ChangeApplied, res.Status)
	assert.Equal(t, "0.67", res.Quote.ChangePrice.StringFixed(2))
	assert.Zero(t, f.gw.Calls(asaastest.MethodCreatePayment))

	got := f.profile(t, st.UserID)
	assert.Equal(t, plan.Pro, got.Plan)
	assert.Equal(t, cycleEnd, *got.ExpiresAt)
	assert.NotEqual(t, "sub_seed", got.GatewaySubscriptionID)

	old, _ := f.gw.Subscription("sub_seed")
	assert.True(t, old.Deleted)
	active := f.gw.ActiveSubscriptions(customerID)
	require.Len(t, active, 1)
	assert.Equal(t, 49.90, active[0].Value)
	assert.Equal(t, asaas.CycleMonthly, active[0].Cycle)
	assert.True(t, active[0].NextDueDate.Equal(cycleEnd))
}

func TestChangePlan_ConfirmedSynchronously(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("swaps subscription at current expiry", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, daysBefore(cycleEnd, 15))
		f.gw.PaymentStatus = "RECEIVED"
		st := f.seed(plan.Plus, cycleEnd, true)

		res, err := f.svc.ChangePlan(ctx, st.UserID, plan.Pro, "", subscription.ChangeOptions{BillingType: asaas.BillingCreditCard})
		require.NoError(t, err)

		assert.Equal(t, subscription.ChangeApplied, res.Status)
		assert.Equal(t, plan.Pro, res.State.Plan)
		assert.Nil(t, res.Pix)

		got := f.profile(t, st.UserID)
		assert.Equal(t, plan.Pro, got.Plan)
		assert.True(t, got.PaymentActive)
		require.NotNil(t, got.LastPaymentAt)
		assert.Equal(t, cycleEnd, *got.ExpiresAt)
		assert.Equal(t, cycleEnd, *got.NextBillingAt)

		old, _ := f.gw.Subscription("sub_seed")
		assert.True(t, old.Deleted)
		active := f.gw.ActiveSubscriptions(customerID)
		require.Len(t, active, 1)
		assert.Equal(t, got.GatewaySubscriptionID, active[0].ID)
	})

	t.Run("create failure surfaces", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, daysBefore(cycleEnd, 15))
		f.gw.PaymentStatus = "RECEIVED"
		f.gw.Fail(asaastest.MethodCreateSubscription, &asaas.APIError{StatusCode: 502})
		st := f.seed(plan.Plus, cycleEnd, true)

		_, err := f.svc.ChangePlan(ctx, st.UserID, plan.Pro, "", subscription.ChangeOptions{})
		require.ErrorIs(t, err, subscription.ErrGatewayUnavailable)
		assert.Equal(t, plan.Plus, f.profile(t, st.UserID).Plan)
	})

	t.Run("cancel failure is tolerated", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, daysBefore(cycleEnd, 15))
		f.gw.PaymentStatus = "RECEIVED"
		f.gw.Fail(asaastest.MethodCancelSubscription, &asaas.APIError{StatusCode: 500})
		st := f.seed(plan.Plus, cycleEnd, true)

		res, err := f.svc.ChangePlan(ctx, st.UserID, plan.Pro, "", subscription.ChangeOptions{})
		require.NoError(t, err)
		assert.Equal(t, subscription.ChangeApplied, res.Status)
		assert.Equal(t, plan.Pro, f.profile(t, st.UserID).Plan)
	})
}

func TestChangePlan_ConfirmedSynchronously_NoRemote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, daysBefore(cycleEnd, 15))
	f.gw.PaymentStatus = "RECEIVED"
	st := f.seed(plan.Plus, cycleEnd, false)

	res, err := f.svc.ChangePlan(ctx, st.UserID, plan.Pro, "", subscription.ChangeOptions{BillingType: asaas.BillingCreditCard})
	require.NoError(t, err)
	assert.Equal(t, subscription.ChangeApplied, res.Status)
	assert.Equal(t, 1, f.gw.Calls(asaastest.MethodCreateSubscription))

	got := f.profile(t, st.UserID)
	assert.Equal(t, plan.Pro, got.Plan)
	assert.Equal(t, cycleEnd, *got.ExpiresAt)

	active := f.gw.ActiveSubscriptions(customerID)
	require.Len(t, active, 1)
	assert.Equal(t, got.GatewaySubscriptionID, active[0].ID)
	assert.Equal(t, 49.90, active[0].Value)
	assert.Equal(t, asaas.BillingCreditCard, active[0].BillingType)
	assert.True(t, active[0].NextDueDate.Equal(cycleEnd))
}

func TestChangePlan_UnderFreeThreshold_KeepsBillingType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, daysBefore(cycleEnd, 1),
		subscription.WithFreeChangeThreshold(decimal.RequireFromString("1.00")),
	)
	st := f.seed(plan.Plus, cycleEnd, true)
	seeded, _ := f.gw.Subscription(st.GatewaySubscriptionID)
	seeded.BillingType = asaas.BillingCreditCard
	f.gw.AddSubscription(seeded)

	res, err := f.svc.ChangePlan(ctx, st.UserID, plan.Pro, "", subscription.ChangeOptions{})
	require.NoError(t, err)
	assert.Equal(t, subscription.ChangeApplied, res.Status)

	active := f.gw.ActiveSubscriptions(customerID)
	require.Len(t, active, 1)
	assert.Equal(t, asaas.BillingCreditCard, active[0].BillingType)
}
