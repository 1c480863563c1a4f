package subscription

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ProfileStore persists subscription state. Every write goes through
// UpdateIf, which succeeds only when the stored version equals version and
// then increments it.
type ProfileStore interface {
	// Get returns ErrProfileNotFound when the user has no profile.
	Get(ctx context.Context, userID uuid.UUID) (State, error)
	FindByChatID(ctx context.Context, chatID string) (State, error)
	FindByCustomerID(ctx context.Context, customerID string) (State, error)
	// FindBySubscriptionID returns every profile referencing the gateway subscription.
	FindBySubscriptionID(ctx context.Context, subscriptionID string) ([]State, error)
	// UpdateIf returns ErrVersionMismatch when the stored version moved.
	UpdateIf(ctx context.Context, st State, version int64) (State, error)
}

// Resolver adapts a ProfileStore to payment.UserResolver.
type Resolver struct {
	Profiles ProfileStore
}

// ResolveUser looks the user up by chat id first, then by gateway customer id.
func (r Resolver) ResolveUser(ctx context.Context, chatID, customerID string) (uuid.UUID, bool, error) {
	lookups := []struct {
		key  string
		find func(context.Context, string) (State, error)
	}{
		{chatID, r.Profiles.FindByChatID},
		{customerID, r.Profiles.FindByCustomerID},
	}
	for _, l := range lookups {
		if l.key == "" {
			continue
		}
		st, err := l.find(ctx, l.key)
		switch {
		case err == nil:
			return st.UserID, true, nil
		case !errors.Is(err, ErrProfileNotFound):
			return uuid.Nil, false, err
		}
	}
	return uuid.Nil, false, nil
}
