package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists payment records. Upsert is idempotent by GatewayPaymentID:
// the first call inserts, later calls merge with Merge under a row lock.
type Store interface {
	Upsert(ctx context.Context, rec Record) (Record, error)

	// FindByGatewayID returns ErrNotFound when no record exists.
	FindByGatewayID(ctx context.Context, gatewayPaymentID string) (Record, error)

	// CountPendingForUser counts the user's records in one of statuses created at or after since.
	CountPendingForUser(ctx context.Context, userID uuid.UUID, statuses []Status, since time.Time) (int, error)

	// ListByStatus returns up to limit records in one of statuses created at or after since, oldest first.
	ListByStatus(ctx context.Context, statuses []Status, since time.Time, limit int) ([]Record, error)
}
