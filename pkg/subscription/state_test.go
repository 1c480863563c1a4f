package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func TestState_Phase(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 16, 0, 0, 0, 0, time.UTC)
	future := ptr(now.AddDate(0, 0, 7))
	past := ptr(now.AddDate(0, 0, -7))

	tests := []struct {
		name  string
		state subscription.State
		want  subscription.Phase
	}{
		{name: "empty", state: subscription.State{}, want: subscription.PhaseNoSubscription},
		{name: "trial running", state: subscription.State{Plan: plan.Free, ExpiresAt: future}, want: subscription.PhaseTrialActive},
		{name: "trial over", state: subscription.State{Plan: plan.Free, ExpiresAt: past}, want: subscription.PhaseTrialExpired},
		{name: "back on free after paying", state: subscription.State{Plan: plan.Free, ExpiresAt: future, LastPaymentAt: past}, want: subscription.PhasePaidExpired},
		{name: "paid", state: subscription.State{Plan: plan.Pro, PaymentActive: true, ExpiresAt: future}, want: subscription.PhasePaidActive},
		{
			name:  "paid with downgrade",
			state: subscription.State{Plan: plan.Pro, PaymentActive: true, ExpiresAt: future, PendingPlan: ptr(plan.Plus)},
			want:  subscription.PhasePaidActiveWithPendingDowngrade,
		},
		{name: "paid and lapsed", state: subscription.State{Plan: plan.Pro, PaymentActive: true, ExpiresAt: past}, want: subscription.PhasePaidExpired},
		{name: "cancelled", state: subscription.State{Plan: plan.Pro, ExpiresAt: future}, want: subscription.PhasePaidExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.state.Phase(now))
		})
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("update is guarded by version", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		st := subscription.State{UserID: uuid.New(), ChatID: chatID, Plan: plan.Plus}
		store.Put(st)

		st.PaymentActive = true
		saved, err := store.UpdateIf(ctx, st, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), saved.Version)

		_, err = store.UpdateIf(ctx, st, 0)
		require.ErrorIs(t, err, subscription.ErrVersionMismatch)

		_, err = store.UpdateIf(ctx, subscription.State{UserID: uuid.New()}, 0)
		require.ErrorIs(t, err, subscription.ErrProfileNotFound)
	})

	t.Run("returned states are copies", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		exp := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
		st := subscription.State{UserID: uuid.New(), ExpiresAt: &exp}
		store.Put(st)

		got, err := store.Get(ctx, st.UserID)
		require.NoError(t, err)
		*got.ExpiresAt = exp.AddDate(1, 0, 0)

		again, err := store.Get(ctx, st.UserID)
		require.NoError(t, err)
		assert.Equal(t, exp, *again.ExpiresAt)
	})

	t.Run("lookups", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		st := subscription.State{
			UserID:                uuid.New(),
			ChatID:                chatID,
			GatewayCustomerID:     customerID,
			GatewaySubscriptionID: "sub_1",
		}
		store.Put(st)

		got, err := store.FindByChatID(ctx, chatID)
		require.NoError(t, err)
		assert.Equal(t, st.UserID, got.UserID)

		got, err = store.FindByCustomerID(ctx, customerID)
		require.NoError(t, err)
		assert.Equal(t, st.UserID, got.UserID)

		list, err := store.FindBySubscriptionID(ctx, "sub_1")
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = store.FindByChatID(ctx, "")
		require.ErrorIs(t, err, subscription.ErrProfileNotFound)
	})
}

func TestResolver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := subscription.NewMemoryStore()
	st := subscription.State{UserID: uuid.New(), ChatID: chatID, GatewayCustomerID: customerID}
	store.Put(st)
	r := subscription.Resolver{Profiles: store}

	id, ok, err := r.ResolveUser(ctx, chatID, "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, st.UserID, id)

	id, ok, err = r.ResolveUser(ctx, "unknown", customerID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, st.UserID, id)

	_, ok, err = r.ResolveUser(ctx, "unknown", "cus_unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}
