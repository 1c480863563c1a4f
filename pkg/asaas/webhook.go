package asaas

import (
	"encoding/json"
	"errors"
	"strings"
)

// WebhookTokenHeader carries the shared secret configured for the webhook.
const WebhookTokenHeader = "asaas-access-token"

// Event types handled by billingkit. Others are acknowledged and ignored.
const (
	EventPaymentCreated          = "PAYMENT_CREATED"
	EventPaymentUpdated          = "PAYMENT_UPDATED"
	EventPaymentConfirmed        = "PAYMENT_CONFIRMED"
	EventPaymentReceived         = "PAYMENT_RECEIVED"
	EventPaymentOverdue          = "PAYMENT_OVERDUE"
	EventPaymentDeleted          = "PAYMENT_DELETED"
	EventPaymentRefunded         = "PAYMENT_REFUNDED"
	EventSubscriptionCreated     = "SUBSCRIPTION_CREATED"
	EventSubscriptionUpdated     = "SUBSCRIPTION_UPDATED"
	EventSubscriptionDeleted     = "SUBSCRIPTION_DELETED"
	EventSubscriptionInactivated = "SUBSCRIPTION_INACTIVATED"
	paymentEventPrefix           = "PAYMENT_"
)

// WebhookEvent is the envelope posted by the gateway.
type WebhookEvent struct {
	ID           string        `json:"id"`
	Event        string        `json:"event"`
	DateCreated  string        `json:"dateCreated"`
	Payment      *Payment      `json:"payment,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// IsPaymentEvent reports whether the event concerns a payment.
func (e WebhookEvent) IsPaymentEvent() bool {
	return strings.HasPrefix(e.Event, paymentEventPrefix)
}

// ParseWebhookEvent decodes a webhook body and normalises the event name.
// Payment events must carry a payment object.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookEvent{}, errors.Join(ErrInvalidWebhook, err)
	}
	ev.Event = strings.ToUpper(strings.TrimSpace(ev.Event))
	if ev.Event == "" {
		return WebhookEvent{}, errors.Join(ErrInvalidWebhook, errors.New("missing event type"))
	}
	if ev.IsPaymentEvent() && (ev.Payment == nil || ev.Payment.ID == "") {
		return WebhookEvent{}, errors.Join(ErrInvalidWebhook, errors.New("payment event without payment"))
	}
	return ev, nil
}
