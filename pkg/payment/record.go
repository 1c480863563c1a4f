package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// Record is the local copy of a gateway payment, keyed by GatewayPaymentID.
type Record struct {
	GatewayPaymentID  string
	UserID            uuid.UUID
	ChatID            string
	CustomerID        string
	SubscriptionID    string
	Amount            decimal.Decimal
	Plan              plan.Plan
	Kind              Kind
	Status            Status
	Method            Method
	DueDate           time.Time
	PaidAt            *time.Time
	InvoiceURL        string
	ReceiptURL        string
	PixPayload        string
	PixQRCodeURL      string
	ExternalReference string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsUpgrade reports whether the record was issued for a plan upgrade.
func (r Record) IsUpgrade() bool { return r.Kind == KindUpgrade }

// Merge folds incoming into existing. Identity fields of existing are kept;
// status only moves along allowed transitions; paid-at and artifact fields
// are refreshed when incoming carries a value.
func Merge(existing, incoming Record) Record {
	out := existing

	if existing.Status.CanTransition(incoming.Status) && incoming.Status != "" {
		out.Status = incoming.Status
	}
	if incoming.PaidAt != nil && out.Status.IsConfirmed() {
		out.PaidAt = incoming.PaidAt
	}
	if out.SubscriptionID == "" {
		out.SubscriptionID = incoming.SubscriptionID
	}
	if out.CustomerID == "" {
		out.CustomerID = incoming.CustomerID
	}
	if !incoming.DueDate.IsZero() {
		out.DueDate = incoming.DueDate
	}
	out.InvoiceURL = firstNonEmpty(incoming.InvoiceURL, existing.InvoiceURL)
	out.ReceiptURL = firstNonEmpty(incoming.ReceiptURL, existing.ReceiptURL)
	out.PixPayload = firstNonEmpty(incoming.PixPayload, existing.PixPayload)
	out.PixQRCodeURL = firstNonEmpty(incoming.PixQRCodeURL, existing.PixQRCodeURL)
	if !incoming.UpdatedAt.IsZero() {
		out.UpdatedAt = incoming.UpdatedAt
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
