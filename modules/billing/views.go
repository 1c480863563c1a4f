package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/pixqr"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

type planView struct {
	Plan    plan.Plan       `json:"plan"`
	Price   decimal.Decimal `json:"price"`
	Cycle   plan.Cycle      `json:"cycle"`
	Payable bool            `json:"payable"`
}

func plansView() []planView {
	out := make([]planView, 0, len(plan.All()))
	for _, p := range plan.All() {
		price, _ := p.Price()
		out = append(out, planView{Plan: p, Price: price, Cycle: p.Cycle(), Payable: p.Payable()})
	}
	return out
}

type stateView struct {
	UserID                uuid.UUID          `json:"user_id"`
	ChatID                string             `json:"chat_id,omitempty"`
	Plan                  plan.Plan          `json:"plan"`
	PendingPlan           *plan.Plan         `json:"pending_plan,omitempty"`
	Phase                 subscription.Phase `json:"phase"`
	PaymentActive         bool               `json:"payment_active"`
	DaysRemaining         int                `json:"days_remaining"`
	ExpiresAt             *time.Time         `json:"expires_at,omitempty"`
	NextBillingAt         *time.Time         `json:"next_billing_at,omitempty"`
	LastPaymentAt         *time.Time         `json:"last_payment_at,omitempty"`
	GatewaySubscriptionID string             `json:"gateway_subscription_id,omitempty"`
	GatewayCustomerID     string             `json:"gateway_customer_id,omitempty"`
}

func newStateView(st subscription.State, now time.Time) *stateView {
	return &stateView{
		UserID:                st.UserID,
		ChatID:                st.ChatID,
		Plan:                  st.Plan,
		PendingPlan:           st.PendingPlan,
		Phase:                 st.Phase(now),
		PaymentActive:         st.PaymentActive,
		DaysRemaining:         st.DaysRemaining(now),
		ExpiresAt:             st.ExpiresAt,
		NextBillingAt:         st.NextBillingAt,
		LastPaymentAt:         st.LastPaymentAt,
		GatewaySubscriptionID: st.GatewaySubscriptionID,
		GatewayCustomerID:     st.GatewayCustomerID,
	}
}

type paymentView struct {
	ID           string          `json:"id"`
	Status       payment.Status  `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	Plan         plan.Plan       `json:"plan,omitempty"`
	Kind         payment.Kind    `json:"kind,omitempty"`
	Method       payment.Method  `json:"method,omitempty"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	InvoiceURL   string          `json:"invoice_url,omitempty"`
	PixPayload   string          `json:"pix_payload,omitempty"`
	PixQRCodeURL string          `json:"pix_qr_code_url,omitempty"`
}

func newPaymentView(rec *payment.Record) *paymentView {
	if rec == nil {
		return nil
	}
	v := &paymentView{
		ID:           rec.GatewayPaymentID,
		Status:       rec.Status,
		Amount:       rec.Amount,
		Plan:         rec.Plan,
		Kind:         rec.Kind,
		Method:       rec.Method,
		InvoiceURL:   rec.InvoiceURL,
		PixPayload:   rec.PixPayload,
		PixQRCodeURL: rec.PixQRCodeURL,
	}
	if !rec.DueDate.IsZero() {
		due := rec.DueDate
		v.DueDate = &due
	}
	return v
}

type pixView struct {
	Payload  string `json:"payload"`
	ImageURL string `json:"image_url"`
}

func newPixView(a *pixqr.Artifact) *pixView {
	if a == nil {
		return nil
	}
	return &pixView{Payload: a.Payload, ImageURL: a.ImageURL}
}

type createSubscriptionResponse struct {
	SubscriptionID string            `json:"subscription_id"`
	Status         string            `json:"status"`
	BillingType    asaas.BillingType `json:"billing_type"`
	Cycle          asaas.Cycle       `json:"cycle"`
	Value          decimal.Decimal   `json:"value"`
	NextDueDate    string            `json:"next_due_date,omitempty"`
	PixPending     bool              `json:"pix_pending"`
	Payment        *paymentView      `json:"payment,omitempty"`
	Pix            *pixView          `json:"pix,omitempty"`
	State          *stateView        `json:"state,omitempty"`
}

type changePlanResponse struct {
	Status  subscription.ChangeStatus `json:"status"`
	Quote   plan.Quote                `json:"quote"`
	State   *stateView                `json:"state"`
	Payment *paymentView              `json:"payment,omitempty"`
	Pix     *pixView                  `json:"pix,omitempty"`
}

type cancelResponse struct {
	SubscriptionID string `json:"subscription_id"`
	DaysRemaining  int    `json:"days_remaining"`
}

type syncResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Action    string `json:"action"`
}
