package asaas

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnavailable marks transport failures, timeouts, 5xx and 429 answers
	// and an open circuit. Callers may retry later.
	ErrUnavailable     = errors.New("asaas: gateway unavailable")
	ErrNotFound        = errors.New("asaas: resource not found")
	ErrInvalidResponse = errors.New("asaas: invalid response body")
	ErrMissingAPIKey   = errors.New("asaas: api key is required")
	ErrInvalidWebhook  = errors.New("asaas: invalid webhook payload")
	ErrMissingID       = errors.New("asaas: resource id is required")
)

// ErrorItem is one entry of the gateway's error list.
type ErrorItem struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int         `json:"-"`
	Errors     []ErrorItem `json:"errors"`
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("asaas: http %d", e.StatusCode)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, it := range e.Errors {
		msgs = append(msgs, it.Code+": "+it.Description)
	}
	return fmt.Sprintf("asaas: http %d: %s", e.StatusCode, strings.Join(msgs, "; "))
}

// Is lets errors.Is match ErrNotFound for 404 answers and ErrUnavailable
// for server-side failures.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnavailable:
		return retryable(e.StatusCode)
	}
	return false
}

// IsAPIError returns the APIError carried by err, if any.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}
