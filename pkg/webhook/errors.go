package webhook

import "errors"

var (
	ErrDeliveryFailed    = errors.New("webhook delivery failed")
	ErrPermanentFailure  = errors.New("permanent webhook failure")
	ErrInvalidURL        = errors.New("invalid webhook URL")
	ErrInvalidPayload    = errors.New("invalid webhook payload")
	ErrMissingSecret     = errors.New("webhook signing secret is required")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrSignatureExpired  = errors.New("webhook signature timestamp outside tolerance")
	ErrMissingSignatures = errors.New("missing webhook signature headers")
)
