// Package asaas is a small REST client for the Asaas payment gateway.
//
// Only the endpoints used by billingkit are covered: customers,
// subscriptions, subscription payments, one-off payments and PIX QR codes,
// plus webhook envelope decoding. Requests are authenticated with the
// access_token header, throttled with a token bucket and guarded by a circuit
// breaker. Transport failures, timeouts, 429 and 5xx answers all satisfy
// errors.Is(err, ErrUnavailable); other non-2xx answers are *APIError values.
//
// Amounts travel as JSON numbers. Use Payment.Amount and Value to convert to
// and from decimal.Decimal at the edge.
package asaas
