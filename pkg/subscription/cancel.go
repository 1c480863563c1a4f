package subscription

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/notify"
)

// CancelSubscription deletes the gateway subscription. When chatID is set
// the owner's profile is deactivated and the paid days left are returned.
// A gateway failure aborts before any local change.
func (s *Service) CancelSubscription(ctx context.Context, subscriptionID, chatID string) (int, error) {
	if err := s.gateway.CancelSubscription(ctx, subscriptionID); err != nil {
		return 0, gatewayErr(err)
	}
	s.log.InfoContext(ctx, "gateway subscription cancelled", logger.SubscriptionID(subscriptionID))

	if chatID == "" {
		return 0, nil
	}
	st, err := s.profiles.FindByChatID(ctx, chatID)
	if err != nil {
		return 0, err
	}

	saved, err := s.mutate(ctx, st.UserID, func(cur *State) error {
		cur.PaymentActive = false
		cur.GatewaySubscriptionID = ""
		cur.PendingPlan = nil
		return nil
	})
	if err != nil {
		return 0, err
	}

	days := saved.DaysRemaining(s.now())
	s.notify(ctx, notify.Notification{
		Kind:          notify.KindSubscriptionCancelled,
		UserID:        saved.UserID,
		ChatID:        saved.ChatID,
		Plan:          saved.Plan,
		ExpiresAt:     saved.ExpiresAt,
		DaysRemaining: days,
	})
	return days, nil
}

// LinkSubscription records subscriptionID on a profile found through another
// key, so later events resolve the user directly.
func (s *Service) LinkSubscription(ctx context.Context, userID uuid.UUID, subscriptionID string) (State, error) {
	if subscriptionID == "" {
		return s.profiles.Get(ctx, userID)
	}
	st, err := s.mutate(ctx, userID, func(cur *State) error {
		if cur.GatewaySubscriptionID == subscriptionID {
			return errAlreadyApplied
		}
		cur.GatewaySubscriptionID = subscriptionID
		return nil
	})
	if errors.Is(err, errAlreadyApplied) {
		return st, nil
	}
	if err != nil {
		return State{}, err
	}
	s.log.InfoContext(ctx, "subscription linked to profile",
		logger.UserID(userID),
		logger.SubscriptionID(subscriptionID),
	)
	return st, nil
}

// DeactivateBySubscription marks every profile referencing subscriptionID
// inactive and returns how many were changed.
func (s *Service) DeactivateBySubscription(ctx context.Context, subscriptionID string) (int, error) {
	if subscriptionID == "" {
		return 0, nil
	}
	profiles, err := s.profiles.FindBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return 0, err
	}

	var (
		changed int
		errs    []error
	)
	for _, p := range profiles {
		saved, err := s.mutate(ctx, p.UserID, func(cur *State) error {
			if cur.GatewaySubscriptionID != subscriptionID {
				return errAlreadyApplied
			}
			cur.PaymentActive = false
			cur.GatewaySubscriptionID = ""
			cur.PendingPlan = nil
			return nil
		})
		if errors.Is(err, errAlreadyApplied) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		changed++
		s.notify(ctx, notify.Notification{
			Kind:      notify.KindSubscriptionDeactivated,
			UserID:    saved.UserID,
			ChatID:    saved.ChatID,
			Plan:      saved.Plan,
			ExpiresAt: saved.ExpiresAt,
		})
	}
	s.log.InfoContext(ctx, "profiles deactivated",
		logger.SubscriptionID(subscriptionID),
		slog.Int("count", changed),
	)
	return changed, errors.Join(errs...)
}
