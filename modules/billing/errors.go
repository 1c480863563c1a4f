package billing

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/reconcile"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// HTTPError is an error with a status code and a stable machine key.
type HTTPError struct {
	Code int
	Key  string
}

func (e HTTPError) Error() string {
	return e.Key
}

var (
	ErrBadRequest          = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized        = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrNotFound            = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict            = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrUnprocessable       = HTTPError{Code: http.StatusUnprocessableEntity, Key: "unprocessable_entity"}
	ErrBadGateway          = HTTPError{Code: http.StatusBadGateway, Key: "bad_gateway"}
	ErrServiceUnavailable  = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable"}
	ErrInternalServerError = HTTPError{Code: http.StatusInternalServerError, Key: "internal_server_error"}
)

// domainErrors maps service errors to HTTP errors. The first match wins.
var domainErrors = []struct {
	target error
	http   HTTPError
}{
	{reconcile.ErrUnauthorized, ErrUnauthorized},
	{asaas.ErrInvalidWebhook, ErrBadRequest},
	{plan.ErrUnknownPlan, HTTPError{Code: http.StatusUnprocessableEntity, Key: "invalid_plan"}},
	{subscription.ErrInvalidPlan, HTTPError{Code: http.StatusUnprocessableEntity, Key: "invalid_plan"}},
	{subscription.ErrForbiddenDowngradeToFree, HTTPError{Code: http.StatusUnprocessableEntity, Key: "downgrade_to_free"}},
	{subscription.ErrSamePlan, HTTPError{Code: http.StatusUnprocessableEntity, Key: "same_plan"}},
	{subscription.ErrMissingCustomer, HTTPError{Code: http.StatusUnprocessableEntity, Key: "missing_customer"}},
	{subscription.ErrMissingUser, HTTPError{Code: http.StatusUnprocessableEntity, Key: "missing_user"}},
	{subscription.ErrExpiredSubscription, HTTPError{Code: http.StatusConflict, Key: "subscription_expired"}},
	{subscription.ErrNoActiveSubscription, HTTPError{Code: http.StatusConflict, Key: "no_active_subscription"}},
	{subscription.ErrConflictingPendingPayment, HTTPError{Code: http.StatusConflict, Key: "pending_payment"}},
	{subscription.ErrConcurrentUpdate, HTTPError{Code: http.StatusConflict, Key: "concurrent_update"}},
	{subscription.ErrProfileNotFound, HTTPError{Code: http.StatusNotFound, Key: "profile_not_found"}},
	{payment.ErrNotFound, HTTPError{Code: http.StatusNotFound, Key: "payment_not_found"}},
	{asaas.ErrNotFound, ErrNotFound},
	{subscription.ErrGatewayUnavailable, ErrBadGateway},
	{asaas.ErrUnavailable, ErrBadGateway},
}

// toHTTPError classifies err. Unknown errors become 500.
func toHTTPError(err error) HTTPError {
	var he HTTPError
	if errors.As(err, &he) {
		return he
	}
	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			return m.http
		}
	}
	return ErrInternalServerError
}
