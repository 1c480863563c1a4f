// Package webhook delivers signed JSON notifications to HTTP endpoints.
//
// Each delivery is signed as hex(HMAC-SHA256(secret, "<unix>.<body>")) and
// carries X-Webhook-Signature, X-Webhook-Timestamp and X-Webhook-ID headers.
// Receivers validate with Verify. Delivery retries transient failures with
// the backoff from pkg/retry and can be guarded by a shared circuit breaker.
package webhook
