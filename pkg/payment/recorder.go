package payment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// UserResolver maps gateway-side identifiers to the local user id.
// Implementations return ok=false when no user matches.
type UserResolver interface {
	ResolveUser(ctx context.Context, chatID, customerID string) (userID uuid.UUID, ok bool, err error)
}

// Recorder writes payment records on behalf of the reconciliation paths.
// Records whose owner cannot be resolved are skipped with a warning so an
// unlinked payment never fails the pipeline.
type Recorder struct {
	store Store
	users UserResolver
	log   *slog.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRecorder(store Store, users UserResolver, opts ...RecorderOption) *Recorder {
	if store == nil {
		panic("payment: Store is required")
	}
	if users == nil {
		panic("payment: UserResolver is required")
	}
	r := &Recorder{
		store: store,
		users: users,
		log:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record upserts rec. It reports false when the record was skipped because
// it is new and its owner could not be resolved.
func (r *Recorder) Record(ctx context.Context, rec Record) (Record, bool, error) {
	if rec.GatewayPaymentID == "" {
		return Record{}, false, ErrMissingGatewayID
	}

	if rec.UserID == uuid.Nil {
		existing, err := r.store.FindByGatewayID(ctx, rec.GatewayPaymentID)
		switch {
		case err == nil:
			rec.UserID = existing.UserID
		case !errors.Is(err, ErrNotFound):
			return Record{}, false, err
		default:
			userID, ok, err := r.users.ResolveUser(ctx, rec.ChatID, rec.CustomerID)
			if err != nil {
				return Record{}, false, err
			}
			if !ok {
				r.log.WarnContext(ctx, "skipping payment record for unknown user",
					logger.PaymentID(rec.GatewayPaymentID),
					logger.ChatID(rec.ChatID),
					logger.CustomerID(rec.CustomerID),
				)
				return Record{}, false, nil
			}
			rec.UserID = userID
		}
	}

	saved, err := r.store.Upsert(ctx, rec)
	if err != nil {
		return Record{}, false, err
	}
	return saved, true, nil
}

// Find proxies Store.FindByGatewayID.
func (r *Recorder) Find(ctx context.Context, gatewayPaymentID string) (Record, error) {
	return r.store.FindByGatewayID(ctx, gatewayPaymentID)
}
