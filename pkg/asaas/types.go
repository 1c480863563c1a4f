package asaas

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingType is the gateway payment method.
type BillingType string

const (
	BillingPIX        BillingType = "PIX"
	BillingBoleto     BillingType = "BOLETO"
	BillingCreditCard BillingType = "CREDIT_CARD"
	BillingUndefined  BillingType = "UNDEFINED"
)

// Cycle is the recurrence of a gateway subscription.
type Cycle string

const (
	CycleMonthly Cycle = "MONTHLY"
	CycleYearly  Cycle = "YEARLY"
)

// Customer is a gateway customer.
type Customer struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	CpfCnpj           string `json:"cpfCnpj,omitempty"`
	Email             string `json:"email,omitempty"`
	MobilePhone       string `json:"mobilePhone,omitempty"`
	ExternalReference string `json:"externalReference,omitempty"`
	Deleted           bool   `json:"deleted,omitempty"`
}

type CreateCustomerRequest struct {
	Name              string `json:"name"`
	CpfCnpj           string `json:"cpfCnpj,omitempty"`
	Email             string `json:"email,omitempty"`
	MobilePhone       string `json:"mobilePhone,omitempty"`
	ExternalReference string `json:"externalReference,omitempty"`
}

// Subscription is a gateway recurring subscription.
type Subscription struct {
	ID                string      `json:"id"`
	Customer          string      `json:"customer"`
	BillingType       BillingType `json:"billingType"`
	Value             float64     `json:"value"`
	NextDueDate       Date        `json:"nextDueDate"`
	Cycle             Cycle       `json:"cycle"`
	Status            string      `json:"status"`
	Description       string      `json:"description,omitempty"`
	ExternalReference string      `json:"externalReference,omitempty"`
	Deleted           bool        `json:"deleted,omitempty"`
	DateCreated       Date        `json:"dateCreated"`
}

// Amount converts the wire value to a 2 dp decimal.
func (s Subscription) Amount() decimal.Decimal { return toDecimal(s.Value) }

type CreateSubscriptionRequest struct {
	Customer          string      `json:"customer"`
	BillingType       BillingType `json:"billingType"`
	Value             float64     `json:"value"`
	NextDueDate       Date        `json:"nextDueDate"`
	Cycle             Cycle       `json:"cycle"`
	Description       string      `json:"description,omitempty"`
	ExternalReference string      `json:"externalReference,omitempty"`
}

// UpdateSubscriptionRequest changes only the fields that are set.
type UpdateSubscriptionRequest struct {
	Value                 *float64    `json:"value,omitempty"`
	Cycle                 Cycle       `json:"cycle,omitempty"`
	NextDueDate           *Date       `json:"nextDueDate,omitempty"`
	BillingType           BillingType `json:"billingType,omitempty"`
	Description           string      `json:"description,omitempty"`
	ExternalReference     string      `json:"externalReference,omitempty"`
	UpdatePendingPayments *bool       `json:"updatePendingPayments,omitempty"`
}

// Payment is a gateway charge.
type Payment struct {
	ID                    string      `json:"id"`
	Customer              string      `json:"customer"`
	Subscription          string      `json:"subscription,omitempty"`
	BillingType           BillingType `json:"billingType"`
	Value                 float64     `json:"value"`
	NetValue              float64     `json:"netValue,omitempty"`
	Status                string      `json:"status"`
	Description           string      `json:"description,omitempty"`
	DueDate               Date        `json:"dueDate"`
	PaymentDate           Date        `json:"paymentDate"`
	ConfirmedDate         Date        `json:"confirmedDate"`
	ClientPaymentDate     Date        `json:"clientPaymentDate"`
	DateCreated           Date        `json:"dateCreated"`
	ExternalReference     string      `json:"externalReference,omitempty"`
	InvoiceURL            string      `json:"invoiceUrl,omitempty"`
	TransactionReceiptURL string      `json:"transactionReceiptUrl,omitempty"`
	Deleted               bool        `json:"deleted,omitempty"`
}

// Amount converts the wire value to a 2 dp decimal.
func (p Payment) Amount() decimal.Decimal { return toDecimal(p.Value) }

// PaidAt returns the first known settlement date, or nil when unpaid.
func (p Payment) PaidAt() *time.Time {
	for _, d := range []Date{p.PaymentDate, p.ConfirmedDate, p.ClientPaymentDate} {
		if !d.IsZero() {
			return d.Ptr()
		}
	}
	return nil
}

type CreatePaymentRequest struct {
	Customer          string      `json:"customer"`
	BillingType       BillingType `json:"billingType"`
	Value             float64     `json:"value"`
	DueDate           Date        `json:"dueDate"`
	Description       string      `json:"description,omitempty"`
	ExternalReference string      `json:"externalReference,omitempty"`
}

// ListPaymentsParams filters ListSubscriptionPayments.
type ListPaymentsParams struct {
	Status string
	Offset int
	Limit  int
}

// PixQRCode is the PIX artifact of a payment. EncodedImage is a base64 PNG.
type PixQRCode struct {
	EncodedImage   string `json:"encodedImage"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expirationDate"`
}

type listResponse[T any] struct {
	Object     string `json:"object"`
	HasMore    bool   `json:"hasMore"`
	TotalCount int    `json:"totalCount"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
	Data       []T    `json:"data"`
}

type deleteResponse struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Value converts a decimal amount to the float the gateway expects.
func Value(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func toDecimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
