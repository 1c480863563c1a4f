package payment

import "errors"

var (
	ErrNotFound         = errors.New("payment record not found")
	ErrMissingGatewayID = errors.New("payment record has no gateway payment id")
	ErrMissingUser      = errors.New("payment record has no owning user")
	ErrInvalidReference = errors.New("invalid external reference")
	ErrInvalidAmount    = errors.New("invalid payment amount")
)
