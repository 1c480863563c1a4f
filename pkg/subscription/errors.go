package subscription

import "errors"

var (
	ErrInvalidPlan               = errors.New("invalid subscription plan")
	ErrForbiddenDowngradeToFree  = errors.New("downgrade to the free plan is not allowed")
	ErrExpiredSubscription       = errors.New("subscription has expired")
	ErrNoActiveSubscription      = errors.New("no active subscription")
	ErrConflictingPendingPayment = errors.New("a payment for this user is still pending")
	ErrGatewayUnavailable        = errors.New("payment gateway unavailable")
	ErrSamePlan                  = errors.New("target plan equals the current plan")
	ErrConcurrentUpdate          = errors.New("subscription changed concurrently")
	ErrProfileNotFound           = errors.New("subscription profile not found")
	ErrVersionMismatch           = errors.New("subscription profile version mismatch")
	ErrMissingCustomer           = errors.New("gateway customer id is required")
	ErrMissingUser               = errors.New("user id is required")
	ErrProfileExists             = errors.New("subscription profile already exists")
)
