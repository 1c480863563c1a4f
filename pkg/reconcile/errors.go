package reconcile

import "errors"

var (
	ErrUnauthorized   = errors.New("webhook token mismatch")
	ErrMissingToken   = errors.New("webhook token is not configured")
	ErrMissingPayment = errors.New("payment event without payment")
)
