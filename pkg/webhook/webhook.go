package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/retry"
)

const userAgent = "billingkit-webhook/1.0"

// Sender posts JSON payloads with optional HMAC signing, retries and a
// circuit breaker. It is safe for concurrent use.
type Sender struct {
	client   *http.Client
	secret   string
	timeout  time.Duration
	attempts int
	backoff  retry.Backoff
	breaker  *retry.CircuitBreaker
	headers  http.Header
	log      *slog.Logger
	now      func() time.Time
}

// NewSender returns a Sender with 4 attempts, exponential backoff and a 10s
// per-attempt timeout.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:  10 * time.Second,
		attempts: 4,
		backoff:  retry.DefaultBackoff(),
		headers:  make(http.Header),
		log:      logger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send marshals data and posts it to target. 4xx answers other than 408, 425
// and 429 stop the retries and are wrapped in ErrPermanentFailure. An open
// breaker fails fast with retry.ErrCircuitOpen.
func (s *Sender) Send(ctx context.Context, target string, data any) error {
	if err := validateURL(target); err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Join(ErrInvalidPayload, err)
	}
	if s.breaker != nil && !s.breaker.Allow() {
		return retry.ErrCircuitOpen
	}

	attempt := 0
	err = retry.Do(ctx, s.attempts, s.backoff, func(ctx context.Context) error {
		attempt++
		start := time.Now()
		status, err := s.deliver(ctx, target, payload)
		s.record(err)
		if err != nil {
			s.log.WarnContext(ctx, "webhook delivery attempt failed",
				slog.String("url", target),
				slog.Int("status_code", status),
				logger.RetryCount(attempt-1),
				logger.Duration(time.Since(start)),
				logger.Error(err),
			)
			if permanent(status) {
				return retry.Permanent(errors.Join(ErrPermanentFailure, err))
			}
		}
		return err
	})
	if err == nil || errors.Is(err, ErrPermanentFailure) {
		return err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, attempt, err)
}

func (s *Sender) deliver(ctx context.Context, target string, payload []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	for k, v := range s.headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if s.secret != "" {
		sig, err := Sign(s.secret, payload, s.now())
		if err != nil {
			return 0, err
		}
		sig.Apply(req.Header)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(strings.ReplaceAll(string(body), "\n", " "))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return resp.StatusCode, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, msg)
}

func (s *Sender) record(err error) {
	if s.breaker == nil {
		return
	}
	if err != nil {
		s.breaker.RecordFailure()
		return
	}
	s.breaker.RecordSuccess()
}

func permanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Join(ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
