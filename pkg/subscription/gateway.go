package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/notify"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/pixqr"
)

// Gateway is the subset of the payment gateway client the service drives.
// *asaas.Client satisfies it.
type Gateway interface {
	CreateSubscription(ctx context.Context, req asaas.CreateSubscriptionRequest) (*asaas.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*asaas.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, req asaas.UpdateSubscriptionRequest) (*asaas.Subscription, error)
	CancelSubscription(ctx context.Context, id string) error
	ListSubscriptionPayments(ctx context.Context, id string, params asaas.ListPaymentsParams) ([]asaas.Payment, error)
	CreatePayment(ctx context.Context, req asaas.CreatePaymentRequest) (*asaas.Payment, error)
	GetPixQRCode(ctx context.Context, paymentID string) (*asaas.PixQRCode, error)
}

// PaymentStore is the part of payment.Store the service reads and writes.
type PaymentStore interface {
	Upsert(ctx context.Context, rec payment.Record) (payment.Record, error)
	FindByGatewayID(ctx context.Context, gatewayPaymentID string) (payment.Record, error)
	CountPendingForUser(ctx context.Context, userID uuid.UUID, statuses []payment.Status, since time.Time) (int, error)
}

// Notifier delivers lifecycle messages to the user. *notify.Dispatcher satisfies it.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

// QRCodePublisher stores PIX QR images. *pixqr.Publisher satisfies it.
type QRCodePublisher interface {
	Publish(ctx context.Context, paymentID string, qr asaas.PixQRCode) (pixqr.Artifact, error)
}

// gatewayErr tags transport failures with ErrGatewayUnavailable.
func gatewayErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, asaas.ErrUnavailable) {
		return errors.Join(ErrGatewayUnavailable, err)
	}
	return err
}
