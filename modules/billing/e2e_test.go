package billing_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/modules/billing"
	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/asaas/asaastest"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/reconcile"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func TestRouter_UpgradeThroughWebhook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cycleEnd := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	now := cycleEnd.AddDate(0, 0, -15)
	clock := func() time.Time { return now }

	gw := asaastest.New()
	gw.Now = clock
	profiles := subscription.NewMemoryStore()
	payments := payment.NewMemoryStore()
	svc := subscription.NewService(gw, profiles, payments,
		subscription.WithClock(clock),
		subscription.WithQRCodeRetry(2, 0),
	)
	recorder := payment.NewRecorder(payments, subscription.Resolver{Profiles: profiles})
	rec := reconcile.NewReconciler("whsec", svc, profiles, recorder)
	sweeper := reconcile.NewSweeper(rec, gw, payments)

	userID := uuid.New()
	expires := cycleEnd
	profiles.Put(subscription.State{
		UserID:            userID,
		ChatID:            "5511977776666",
		Plan:              plan.Plus,
		PaymentActive:     true,
		ExpiresAt:         &expires,
		NextBillingAt:     &expires,
		GatewayCustomerID: "cus_e2e",
	})

	h := billing.New(billing.Config{APIKey: apiKey, CORSOrigins: []string{"*"}}, svc, rec, sweeper,
		billing.WithClock(clock),
	).Router()

	resp, env := do(t, h, http.MethodPost, "/users/"+userID.String()+"/plan-change", `{"target_plan":"PRO"}`, authed())
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	var change struct {
		Quote struct {
			ChangePrice string `json:"change_price"`
		} `json:"quote"`
		Payment struct {
			ID string `json:"id"`
		} `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &change))
	assert.Equal(t, "10", change.Quote.ChangePrice)
	require.NotEmpty(t, change.Payment.ID)

	paid := gw.Confirm(change.Payment.ID, now)
	body, err := json.Marshal(asaas.WebhookEvent{ID: "evt_e2e", Event: asaas.EventPaymentReceived, Payment: &paid})
	require.NoError(t, err)

	resp, _ = do(t, h, http.MethodPost, "/webhooks/asaas", string(body), http.Header{"Asaas-Access-Token": {"whsec"}})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"ok":true,"action":"applied"}`, resp.Body.String())

	st, err := profiles.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, plan.Pro, st.Plan)
	assert.Equal(t, cycleEnd, *st.ExpiresAt)

	resp, env = do(t, h, http.MethodPost, "/payments/"+paid.ID+"/sync", "", authed())
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, string(env.Data), subscription.ReasonAlreadyApplied)
}
