package subscription_test

import (
	"context"
	"sync"
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

func confirmedEvent(id, reference, amount string, paidAt time.Time) subscription.PaymentEvent {
	return subscription.PaymentEvent{
		PaymentID:         id,
		CustomerID:        customerID,
		Status:            payment.StatusReceived,
		Method:            payment.MethodPIX,
		Amount:            decimal.RequireFromString(amount),
		PaidAt:            paidAt,
		ExternalReference: reference,
	}
}

func TestApplyConfirmedPayment_Rejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := daysBefore(cycleEnd, 3)

	tests := []struct {
		name      string
		reference string
		amount    string
		want      string
	}{
		{name: "underpaid by one cent", reference: "PLUS:" + chatID + ":1714000000000", amount: "29.89", want: subscription.ReasonUnderpaid},
		{name: "free plan", reference: "FREE:" + chatID + ":1714000000000", amount: "29.90", want: subscription.ReasonFreePlan},
		{name: "below minimum upgrade", reference: "UPGRADE:PRO:" + chatID + ":1714000000000", amount: "0.99", want: subscription.ReasonBelowMinimum},
		{name: "unresolvable reference", reference: "garbage", amount: "29.90", want: subscription.ReasonUnresolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, now)
			st := f.seed(plan.Plus, cycleEnd, false)

			res, err := f.svc.ApplyConfirmedPayment(ctx, confirmedEvent("pay_1", tt.reference, tt.amount, now))
			require.NoError(t, err)
			assert.False(t, res.Applied)
			assert.Equal(t, tt.want, res.Reason)

			got := f.profile(t, st.UserID)
			assert.Equal(t, cycleEnd, *got.ExpiresAt)
			assert.Nil(t, got.LastPaymentAt)
		})
	}

	t.Run("upgrade amounts are exempt from the price check", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, now)
		f.seed(plan.Plus, cycleEnd, false)

		res, err := f.svc.ApplyConfirmedPayment(ctx, confirmedEvent("pay_2", "UPGRADE:PRO:"+chatID+":1714000000000", "2.00", now))
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, plan.Pro, res.Plan)
	})

	t.Run("unknown user is acknowledged", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, now)

		res, err := f.svc.ApplyConfirmedPayment(ctx, confirmedEvent("pay_3", "PLUS:5511000000000:1714000000000", "29.90", now))
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, subscription.ReasonUnknownUser, res.Reason)
	})
}

func TestApplyConfirmedPayment_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := daysBefore(cycleEnd, 3)
	f := newFixture(t, now)
	st := f.seed(plan.Plus, cycleEnd, false)

	ev := confirmedEvent("pay_1", "PLUS:"+chatID+":1714000000000", "29.90", now)

	first, err := f.svc.ApplyConfirmedPayment(ctx, ev)
	require.NoError(t, err)
	require.True(t, first.Applied)
	after := f.profile(t, st.UserID)

	second, err := f.svc.ApplyConfirmedPayment(ctx, ev)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, subscription.ReasonAlreadyApplied, second.Reason)

	older := ev
	older.PaymentID = "pay_0"
	older.PaidAt = now.Add(-24 * time.Hour)
	third, err := f.svc.ApplyConfirmedPayment(ctx, older)
	require.NoError(t, err)
	assert.False(t, third.Applied)

	final := f.profile(t, st.UserID)
	assert.Equal(t, after.ExpiresAt, final.ExpiresAt)
	assert.Equal(t, after.Version, final.Version)
	assert.Equal(t, []notify.Kind{notify.KindPaymentApplied}, f.notes.kinds())
}

func TestApplyConfirmedPayment_ConcurrentDeliveries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := daysBefore(cycleEnd, 3)
	f := newFixture(t, now)
	st := f.seed(plan.Plus, cycleEnd, false)
	ev := confirmedEvent("pay_1", "PLUS:"+chatID+":1714000000000", "29.90", now)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.ApplyConfirmedPayment(ctx, ev)
			assert.NoError(t, err)
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), *f.profile(t, st.UserID).ExpiresAt)
}

func TestApplyConfirmedPayment_MonotonicExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name      string
		current   plan.Plan
		expires   time.Time
		now       time.Time
		reference string
		amount    string
		want      time.Time
		wantPlan  plan.Plan
	}{
		{
			name:      "early renewal advances current expiry",
			current:   plan.Plus,
			expires:   cycleEnd,
			now:       daysBefore(cycleEnd, 3),
			reference: "PLUS:" + chatID + ":1",
			amount:    "29.90",
			want:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			wantPlan:  plan.Plus,
		},
		{
			name:      "lapsed expiry anchors at payment date",
			current:   plan.Plus,
			expires:   time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			now:       time.Date(2025, 4, 16, 9, 0, 0, 0, time.UTC),
			reference: "PLUS:" + chatID + ":1",
			amount:    "29.90",
			want:      time.Date(2025, 5, 16, 9, 0, 0, 0, time.UTC),
			wantPlan:  plan.Plus,
		},
		{
			name:      "monthly to annual starts a fresh year",
			current:   plan.Plus,
			expires:   cycleEnd,
			now:       daysBefore(cycleEnd, 10),
			reference: "PLUS_ANUAL:" + chatID + ":1",
			amount:    "287.00",
			want:      daysBefore(cycleEnd, 10).AddDate(1, 0, 0),
			wantPlan:  plan.PlusAnnual,
		},
		{
			name:      "annual renewal advances a year",
			current:   plan.ProAnnual,
			expires:   cycleEnd,
			now:       daysBefore(cycleEnd, 1),
			reference: "pro_anual:" + chatID + ":1",
			amount:    "479.00",
			want:      time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
			wantPlan:  plan.ProAnnual,
		},
		{
			name:      "annual to monthly never moves expiry back",
			current:   plan.ProAnnual,
			expires:   time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
			now:       daysBefore(cycleEnd, 1),
			reference: "UPGRADE:PRO:" + chatID + ":1",
			amount:    "5.00",
			want:      time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
			wantPlan:  plan.Pro,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.now)
			st := f.seed(tt.current, tt.expires, false)

			res, err := f.svc.ApplyConfirmedPayment(ctx, confirmedEvent("pay_1", tt.reference, tt.amount, tt.now))
			require.NoError(t, err)
			require.True(t, res.Applied, res.Reason)

			got := f.profile(t, st.UserID)
			assert.Equal(t, tt.wantPlan, got.Plan)
			assert.Equal(t, tt.want, *got.ExpiresAt)
			assert.Equal(t, tt.want, *got.NextBillingAt)
			assert.False(t, got.ExpiresAt.Before(tt.expires))
			assert.Equal(t, tt.now, *got.LastPaymentAt)
		})
	}
}

func TestApplyConfirmedPayment_PendingDowngradeRidesOnRenewal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := daysBefore(cycleEnd, 1)
	f := newFixture(t, now)
	st := f.seed(plan.Pro, cycleEnd, false)
	st.PendingPlan = ptr(plan.Plus)
	f.profiles.Put(st)

	res, err := f.svc.ApplyConfirmedPayment(ctx, confirmedEvent("pay_1", "PRO:"+chatID+":1", "49.90", now))
	require.NoError(t, err)
	require.True(t, res.Applied)

	got := f.profile(t, st.UserID)
	assert.Equal(t, plan.Plus, got.Plan)
	assert.Nil(t, got.PendingPlan)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), *got.ExpiresAt)
}

func TestApplyConfirmedPayment_PrefersLocalRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := daysBefore(cycleEnd, 15)
	f := newFixture(t, now)
	st := f.seed(plan.Plus, cycleEnd, false)

	_, err := f.payments.Upsert(ctx, payment.Record{
		GatewayPaymentID: "pay_1",
		UserID:           st.UserID,
		ChatID:           chatID,
		Amount:           decimal.RequireFromString("10.00"),
		Plan:             plan.Pro,
		Kind:             payment.KindUpgrade,
		Status:           payment.StatusPending,
	})
	require.NoError(t, err)

	res, err := f.svc.ApplyConfirmedPayment(ctx, confirmedEvent("pay_1", "", "10.00", now))
	require.NoError(t, err)
	require.True(t, res.Applied)

	got := f.profile(t, st.UserID)
	assert.Equal(t, plan.Pro, got.Plan)
	assert.Equal(t, cycleEnd, *got.ExpiresAt, "same-cycle upgrade keeps the paid cycle end")
}

func TestApplyConfirmedPayment_DefaultedPlanToken(t *testing.T) {
	t.Parallel()
	now := daysBefore(cycleEnd, 3)
	f := newFixture(t, now)
	st := f.seed(plan.Plus, cycleEnd, false)

	res, err := f.svc.ApplyConfirmedPayment(context.Background(), confirmedEvent("pay_1", "GOLD:"+chatID+":1", "29.90", now))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, plan.Plus, f.profile(t, st.UserID).Plan)
}

func TestEndToEnd_PlusToProAnnual(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := daysBefore(cycleEnd, 10)
	f := newFixture(t, now)
	st := f.seed(plan.Plus, cycleEnd, true)

	change, err := f.svc.ChangePlan(ctx, st.UserID, plan.ProAnnual, "", subscription.ChangeOptions{})
	require.NoError(t, err)
	require.Equal(t, subscription.ChangeWaitingPayment, change.Status)
	assert.True(t, change.Quote.ChangePrice.IsPositive())
	// 479.00 - 29.90 / 30 * 10
	assert.Equal(t, "469.03", change.Quote.ChangePrice.StringFixed(2))
	assert.Equal(t, plan.Plus, f.profile(t, st.UserID).Plan)

	paid := f.gw.Confirm(change.Payment.GatewayPaymentID, now)
	res, err := f.svc.ApplyConfirmedPayment(ctx, subscription.EventFromPayment(paid))
	require.NoError(t, err)
	require.True(t, res.Applied)

	got := f.profile(t, st.UserID)
	assert.Equal(t, plan.ProAnnual, got.Plan)
	assert.Nil(t, got.PendingPlan)
	assert.True(t, got.PaymentActive)
	assert.Equal(t, cycleEnd, *got.ExpiresAt)

	old, _ := f.gw.Subscription("sub_seed")
	assert.True(t, old.Deleted)
	active := f.gw.ActiveSubscriptions(customerID)
	require.Len(t, active, 1)
	assert.Equal(t, got.GatewaySubscriptionID, active[0].ID)
	assert.Equal(t, asaas.CycleYearly, active[0].Cycle)
	assert.Equal(t, 479.0, active[0].Value)
	assert.True(t, active[0].NextDueDate.Equal(cycleEnd))

	again, err := f.svc.ApplyConfirmedPayment(ctx, subscription.EventFromPayment(paid))
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, 1, f.gw.Calls(asaastest.MethodCancelSubscription))
}

func TestApplyConfirmedPayment_RemoteSwapFailureFallsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := daysBefore(cycleEnd, 10)
	f := newFixture(t, now)
	st := f.seed(plan.Plus, cycleEnd, true)
	f.gw.Fail(asaastest.MethodGetSubscription, &asaas.APIError{StatusCode: 503})

	res, err := f.svc.ApplyConfirmedPayment(ctx, confirmedEvent("pay_1", "UPGRADE:PRO_ANUAL:"+chatID+":1", "469.03", now))
	require.NoError(t, err)
	require.True(t, res.Applied)

	got := f.profile(t, st.UserID)
	assert.Equal(t, plan.ProAnnual, got.Plan)
	assert.Equal(t, now.AddDate(1, 0, 0), *got.ExpiresAt)
	assert.Equal(t, "sub_seed", got.GatewaySubscriptionID)
}

func TestEventFromPayment(t *testing.T) {
	t.Parallel()

	paid := time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)
	ev := subscription.EventFromPayment(asaas.Payment{
		ID:            "pay_9",
		Customer:      customerID,
		Subscription:  "sub_9",
		BillingType:   asaas.BillingPIX,
		Value:         29.9,
		Status:        "received",
		ConfirmedDate: asaas.NewDate(paid),
	})

	assert.Equal(t, payment.StatusReceived, ev.Status)
	assert.Equal(t, payment.MethodPIX, ev.Method)
	assert.Equal(t, "29.90", ev.Amount.StringFixed(2))
	assert.Equal(t, paid, ev.PaidAt)

	rec := ev.Record()
	assert.Equal(t, "pay_9", rec.GatewayPaymentID)
	assert.Equal(t, "sub_9", rec.SubscriptionID)
	require.NotNil(t, rec.PaidAt)
	assert.Equal(t, uuid.Nil, rec.UserID)
}
