package notify_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/pkg/notify"
	"github.com/dmitrymomot/billingkit/pkg/plan"
)

func TestRenderer(t *testing.T) {
	t.Parallel()

	r := notify.NewRenderer()
	amount := decimal.RequireFromString("1234.5")
	expires := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Contains(t, r.Money(amount), "1.234,50")
	assert.Contains(t, r.Money(decimal.RequireFromString("29.9")), "29,90")
	assert.Equal(t, "01/05/2025", r.Date(expires))

	tests := []struct {
		n    notify.Notification
		want []string
	}{
		{notify.Notification{Kind: notify.KindPaymentApplied, Plan: plan.Plus, Amount: &amount, ExpiresAt: &expires}, []string{"confirmado", "Plus", "01/05/2025"}},
		{notify.Notification{Kind: notify.KindSubscriptionCreated, Plan: plan.PlusAnnual, ExpiresAt: &expires}, []string{"Plus Anual", "01/05/2025"}},
		{notify.Notification{Kind: notify.KindDowngradeScheduled, Plan: plan.Plus, ExpiresAt: &expires}, []string{"próxima renovação", "01/05/2025"}},
		{notify.Notification{Kind: notify.KindSubscriptionCancelled, DaysRemaining: 12}, []string{"12 dia"}},
		{notify.Notification{Kind: notify.KindSubscriptionDeactivated}, []string{"encerrada"}},
		{notify.Notification{Kind: notify.KindPlanChanged, Plan: "GOLD"}, []string{"GOLD"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.n.Kind), func(t *testing.T) {
			msg := r.Render(tt.n)
			for _, w := range tt.want {
				assert.Contains(t, msg, w)
			}
		})
	}

	assert.Empty(t, r.Render(notify.Notification{Kind: "unknown"}))
}
