// Package asaastest provides an in-memory stand-in for the Asaas gateway.
package asaastest

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
)

// Method names accepted by Fail and Calls.
const (
	MethodCreateSubscription       = "CreateSubscription"
	MethodGetSubscription          = "GetSubscription"
	MethodUpdateSubscription       = "UpdateSubscription"
	MethodCancelSubscription       = "CancelSubscription"
	MethodListSubscriptionPayments = "ListSubscriptionPayments"
	MethodCreatePayment            = "CreatePayment"
	MethodGetPayment               = "GetPayment"
	MethodGetPixQRCode             = "GetPixQRCode"
)

// Fake implements the gateway operations billingkit uses. It is safe for
// concurrent use.
type Fake struct {
	mu            sync.Mutex
	seq           int
	subscriptions map[string]asaas.Subscription
	payments      map[string]asaas.Payment
	qrcodes       map[string]asaas.PixQRCode
	failures      map[string]error
	calls         map[string]int

	// PaymentStatus is the status of charges created by CreatePayment.
	// Defaults to PENDING.
	PaymentStatus string
	// SkipFirstPayment stops CreateSubscription from issuing a charge.
	SkipFirstPayment bool
	// SkipQRCode stops charges from getting a PIX QR.
	SkipQRCode bool
	Now        func() time.Time
}

func New() *Fake {
	return &Fake{
		subscriptions: make(map[string]asaas.Subscription),
		payments:      make(map[string]asaas.Payment),
		qrcodes:       make(map[string]asaas.PixQRCode),
		failures:      make(map[string]error),
		calls:         make(map[string]int),
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// Fail makes every later call of method return err. A nil err clears it.
func (f *Fake) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, method)
		return
	}
	f.failures[method] = err
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// AddSubscription seeds a subscription.
func (f *Fake) AddSubscription(sub asaas.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[sub.ID] = sub
}

// AddPayment seeds a payment.
func (f *Fake) AddPayment(p asaas.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[p.ID] = p
}

// Subscription returns the stored subscription, including deleted ones.
func (f *Fake) Subscription(id string) (asaas.Subscription, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[id]
	return sub, ok
}

// Payment returns the stored payment.
func (f *Fake) Payment(id string) (asaas.Payment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	return p, ok
}

// ActiveSubscriptions returns the non-deleted subscriptions of customer.
func (f *Fake) ActiveSubscriptions(customer string) []asaas.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []asaas.Subscription
	for _, s := range f.subscriptions {
		if s.Customer == customer && !s.Deleted {
			out = append(out, s)
		}
	}
	return out
}

// Confirm marks a payment RECEIVED at paidAt and returns it.
func (f *Fake) Confirm(id string, paidAt time.Time) asaas.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payments[id]
	p.Status = "RECEIVED"
	p.PaymentDate = asaas.NewDate(paidAt)
	f.payments[id] = p
	return p
}

func (f *Fake) CreateSubscription(_ context.Context, req asaas.CreateSubscriptionRequest) (*asaas.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(MethodCreateSubscription); err != nil {
		return nil, err
	}

	sub := asaas.Subscription{
		ID:                f.nextID("sub"),
		Customer:          req.Customer,
		BillingType:       req.BillingType,
		Value:             req.Value,
		NextDueDate:       req.NextDueDate,
		Cycle:             req.Cycle,
		Status:            "ACTIVE",
		Description:       req.Description,
		ExternalReference: req.ExternalReference,
		DateCreated:       asaas.NewDate(f.Now()),
	}
	f.subscriptions[sub.ID] = sub

	if !f.SkipFirstPayment {
		f.issue(asaas.Payment{
			Customer:          req.Customer,
			Subscription:      sub.ID,
			BillingType:       req.BillingType,
			Value:             req.Value,
			Status:            "PENDING",
			DueDate:           req.NextDueDate,
			ExternalReference: req.ExternalReference,
		})
	}
	return &sub, nil
}

func (f *Fake) GetSubscription(_ context.Context, id string) (*asaas.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(MethodGetSubscription); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, notFound(id)
	}
	return &sub, nil
}

func (f *Fake) UpdateSubscription(_ context.Context, id string, req asaas.UpdateSubscriptionRequest) (*asaas.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(MethodUpdateSubscription); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[id]
	if !ok || sub.Deleted {
		return nil, notFound(id)
	}
	if req.Value != nil {
		sub.Value = *req.Value
	}
	if req.Cycle != "" {
		sub.Cycle = req.Cycle
	}
	if req.NextDueDate != nil {
		sub.NextDueDate = *req.NextDueDate
	}
	if req.BillingType != "" {
		sub.BillingType = req.BillingType
	}
	if req.Description != "" {
		sub.Description = req.Description
	}
	if req.ExternalReference != "" {
		sub.ExternalReference = req.ExternalReference
	}
	f.subscriptions[id] = sub
	return &sub, nil
}

func (f *Fake) CancelSubscription(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(MethodCancelSubscription); err != nil {
		return err
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return notFound(id)
	}
	sub.Deleted = true
	sub.Status = "INACTIVE"
	f.subscriptions[id] = sub
	return nil
}

func (f *Fake) ListSubscriptionPayments(_ context.Context, id string, params asaas.ListPaymentsParams) ([]asaas.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(MethodListSubscriptionPayments); err != nil {
		return nil, err
	}
	var out []asaas.Payment
	for _, p := range f.payments {
		if p.Subscription == id && (params.Status == "" || p.Status == params.Status) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b asaas.Payment) int { return a.DueDate.Compare(b.DueDate.Time) })
	if params.Offset > 0 {
		out = out[min(params.Offset, len(out)):]
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (f *Fake) CreatePayment(_ context.Context, req asaas.CreatePaymentRequest) (*asaas.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(MethodCreatePayment); err != nil {
		return nil, err
	}
	status := f.PaymentStatus
	if status == "" {
		status = "PENDING"
	}
	p := f.issue(asaas.Payment{
		Customer:          req.Customer,
		BillingType:       req.BillingType,
		Value:             req.Value,
		Status:            status,
		DueDate:           req.DueDate,
		Description:       req.Description,
		ExternalReference: req.ExternalReference,
	})
	if status == "RECEIVED" || status == "CONFIRMED" {
		p.PaymentDate = asaas.NewDate(f.Now())
		f.payments[p.ID] = p
	}
	return &p, nil
}

func (f *Fake) GetPayment(_ context.Context, id string) (*asaas.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(MethodGetPayment); err != nil {
		return nil, err
	}
	p, ok := f.payments[id]
	if !ok {
		return nil, notFound(id)
	}
	return &p, nil
}

func (f *Fake) GetPixQRCode(_ context.Context, paymentID string) (*asaas.PixQRCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(MethodGetPixQRCode); err != nil {
		return nil, err
	}
	qr, ok := f.qrcodes[paymentID]
	if !ok {
		return nil, notFound(paymentID)
	}
	return &qr, nil
}

// issue stores a new charge. Callers hold f.mu.
func (f *Fake) issue(p asaas.Payment) asaas.Payment {
	p.ID = f.nextID("pay")
	p.DateCreated = asaas.NewDate(f.Now())
	p.InvoiceURL = "https://sandbox.asaas.com/i/" + p.ID
	f.payments[p.ID] = p
	if p.BillingType == asaas.BillingPIX && !f.SkipQRCode {
		f.qrcodes[p.ID] = asaas.PixQRCode{
			Payload:        "00020101021226830014br.gov.bcb.pix" + p.ID,
			ExpirationDate: p.DueDate.String() + " 23:59:59",
		}
	}
	return p
}

func (f *Fake) enter(method string) error {
	f.calls[method]++
	return f.failures[method]
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%06d", prefix, f.seq)
}

func notFound(id string) error {
	return &asaas.APIError{
		StatusCode: http.StatusNotFound,
		Errors:     []asaas.ErrorItem{{Code: "not_found", Description: id + " not found"}},
	}
}
