package asaas

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
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/retry"
)

const userAgent = "billingkit/1.0"

// Client is a REST client for the Asaas v3 API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	limiter    *rate.Limiter
	breaker    *retry.CircuitBreaker
	getRetries int
	backoff    retry.Backoff
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport. The configured timeout still applies
// through the request context.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// WithGetRetry sets how many times idempotent reads are attempted when the
// gateway is unavailable.
func WithGetRetry(attempts int, backoff retry.Backoff) Option {
	return func(cl *Client) {
		if attempts > 0 {
			cl.getRetries = attempts
		}
		if backoff != nil {
			cl.backoff = backoff
		}
	}
}

// WithCircuitBreaker replaces the breaker built from Config.
func WithCircuitBreaker(cb *retry.CircuitBreaker) Option {
	return func(cl *Client) {
		if cb != nil {
			cl.breaker = cb
		}
	}
}

// New builds a Client from cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.asaas.com/v3"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	c := &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, max(cfg.RateBurst, 1)),
		breaker:    retry.NewCircuitBreaker(cfg.BreakerFailures, 1, cfg.BreakerTimeout),
		getRetries: 2,
		backoff:    retry.ExponentialBackoff{InitialInterval: 300 * time.Millisecond, MaxInterval: 2 * time.Second, JitterFactor: 0.2},
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	var out Customer
	if err := c.do(ctx, http.MethodPost, "/customers", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var out Customer
	if err := c.get(ctx, "/customers/"+url.PathEscape(id), nil, &out, id); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	var out Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var out Subscription
	if err := c.get(ctx, "/subscriptions/"+url.PathEscape(id), nil, &out, id); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateSubscription(ctx context.Context, id string, req UpdateSubscriptionRequest) (*Subscription, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	var out Subscription
	if err := c.do(ctx, http.MethodPut, "/subscriptions/"+url.PathEscape(id), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelSubscription deletes the remote subscription. Pending charges of the
// subscription are removed by the gateway.
func (c *Client) CancelSubscription(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	var out deleteResponse
	if err := c.do(ctx, http.MethodDelete, "/subscriptions/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return err
	}
	if !out.Deleted {
		return fmt.Errorf("%w: subscription %s not deleted", ErrInvalidResponse, id)
	}
	return nil
}

// ListSubscriptionPayments returns one page of the subscription's charges.
func (c *Client) ListSubscriptionPayments(ctx context.Context, id string, params ListPaymentsParams) ([]Payment, error) {
	q := url.Values{}
	if params.Status != "" {
		q.Set("status", params.Status)
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	var out listResponse[Payment]
	if err := c.get(ctx, "/subscriptions/"+url.PathEscape(id)+"/payments", q, &out, id); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, http.MethodPost, "/payments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var out Payment
	if err := c.get(ctx, "/payments/"+url.PathEscape(id), nil, &out, id); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPixQRCode fetches the PIX artifact of a payment. The gateway answers 404
// until the charge has been registered, which callers poll for.
func (c *Client) GetPixQRCode(ctx context.Context, paymentID string) (*PixQRCode, error) {
	var out PixQRCode
	if err := c.get(ctx, "/payments/"+url.PathEscape(paymentID)+"/pixQrCode", nil, &out, paymentID); err != nil {
		return nil, err
	}
	return &out, nil
}

// get retries idempotent reads while the gateway is unavailable.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any, id string) error {
	if id == "" {
		return ErrMissingID
	}
	return retry.Do(ctx, c.getRetries, c.backoff, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodGet, path, q, nil, out)
		if err != nil && !errors.Is(err, ErrUnavailable) {
			return retry.Permanent(err)
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	if !c.breaker.Allow() {
		return errors.Join(ErrUnavailable, retry.ErrCircuitOpen)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Join(ErrUnavailable, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("asaas: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("asaas: build request: %w", err)
	}
	req.Header.Set("access_token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		c.log.WarnContext(ctx, "asaas request failed",
			slog.String("method", method), slog.String("path", path),
			logger.Duration(time.Since(start)), logger.Error(err))
		return errors.Join(ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.breaker.RecordFailure()
		return errors.Join(ErrUnavailable, err)
	}

	c.log.DebugContext(ctx, "asaas request",
		slog.String("method", method), slog.String("path", path),
		slog.Int("status_code", resp.StatusCode), logger.Duration(time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		if retryable(resp.StatusCode) {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
		return apiErr
	}
	c.breaker.RecordSuccess()

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Join(ErrInvalidResponse, err)
	}
	return nil
}
