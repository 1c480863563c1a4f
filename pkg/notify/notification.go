package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// Kind names a subscription lifecycle event delivered to the user.
type Kind string

const (
	KindSubscriptionCreated     Kind = "subscription_created"
	KindPaymentApplied          Kind = "payment_applied"
	KindPlanChanged             Kind = "plan_changed"
	KindDowngradeScheduled      Kind = "downgrade_scheduled"
	KindUpgradePending          Kind = "upgrade_pending"
	KindSubscriptionCancelled   Kind = "subscription_cancelled"
	KindSubscriptionDeactivated Kind = "subscription_deactivated"
)

// Notification is the payload handed to every Channel. The chat front end
// receives it as JSON and relays Message to the user.
type Notification struct {
	ID            string           `json:"id"`
	Kind          Kind             `json:"kind"`
	UserID        uuid.UUID        `json:"user_id"`
	ChatID        string           `json:"chat_id,omitempty"`
	Plan          plan.Plan        `json:"plan,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	DaysRemaining int              `json:"days_remaining,omitempty"`
	PaymentURL    string           `json:"payment_url,omitempty"`
	PixPayload    string           `json:"pix_payload,omitempty"`
	PixQRCodeURL  string           `json:"pix_qr_code_url,omitempty"`
	Message       string           `json:"message"`
	CreatedAt     time.Time        `json:"created_at"`
}
