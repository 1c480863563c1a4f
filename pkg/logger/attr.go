package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error returns the error under "error", or an empty Attr for a nil error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups the non-nil errors under "errors".
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// UserID records the local user id. A nil id yields an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

func ChatID(id string) slog.Attr { return optionalString("chat_id", id) }

func PaymentID(id string) slog.Attr { return optionalString("payment_id", id) }

func SubscriptionID(id string) slog.Attr { return optionalString("subscription_id", id) }

func CustomerID(id string) slog.Attr { return optionalString("customer_id", id) }

// Plan accepts any string-backed plan identifier.
func Plan[T ~string](p T) slog.Attr { return optionalString("plan", string(p)) }

func Status[T ~string](s T) slog.Attr { return optionalString("status", string(s)) }

// Amount records a monetary value using its String form.
func Amount(v interface{ String() string }) slog.Attr {
	return slog.String("amount", v.String())
}

func RequestID(id string) slog.Attr { return optionalString("request_id", id) }

func Event(name string) slog.Attr { return slog.String("event", name) }

func Component(name string) slog.Attr { return slog.String("component", name) }

func Duration(d time.Duration) slog.Attr { return slog.Duration("duration", d) }

func RetryCount(n int) slog.Attr { return slog.Int("retry_count", n) }

func optionalString(key, v string) slog.Attr {
	if v == "" {
		return slog.Attr{}
	}
	return slog.String(key, v)
}
