package billing

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/reconcile"
	"github.com/dmitrymomot/billingkit/pkg/requestid"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// APIKeyHeader carries the management API key. A bearer token is accepted too.
const APIKeyHeader = "X-API-Key"

const probeTimeout = 2 * time.Second

// Subscriptions is the part of subscription.Service exposed over HTTP.
type Subscriptions interface {
	CreateSubscription(ctx context.Context, p plan.Plan, customerID string, opts subscription.CreateOptions) (*subscription.CreateResult, error)
	ChangePlan(ctx context.Context, userID uuid.UUID, target plan.Plan, customerID string, opts subscription.ChangeOptions) (*subscription.ChangeResult, error)
	QuoteChange(ctx context.Context, userID uuid.UUID, target plan.Plan) (plan.Quote, error)
	CancelSubscription(ctx context.Context, subscriptionID, chatID string) (int, error)
	Profile(ctx context.Context, userID uuid.UUID) (subscription.State, error)
}

// Webhooks authenticates and applies gateway notifications.
type Webhooks interface {
	Authenticate(token string) error
	Handle(ctx context.Context, ev asaas.WebhookEvent) (reconcile.Result, error)
}

// PaymentSyncer polls one payment from the gateway.
type PaymentSyncer interface {
	SyncPayment(ctx context.Context, paymentID string) (*asaas.Payment, string, error)
}

// Module serves the billing HTTP API.
type Module struct {
	cfg      Config
	svc      Subscriptions
	webhooks Webhooks
	syncer   PaymentSyncer
	probes   []httpserver.Probe
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Module)

func WithLogger(l *slog.Logger) Option {
	return func(m *Module) {
		if l != nil {
			m.log = l
		}
	}
}

// WithProbes registers readiness probes for /health/ready.
func WithProbes(probes ...httpserver.Probe) Option {
	return func(m *Module) {
		m.probes = append(m.probes, probes...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Module) {
		if now != nil {
			m.now = now
		}
	}
}

func New(cfg Config, svc Subscriptions, webhooks Webhooks, syncer PaymentSyncer, opts ...Option) *Module {
	if svc == nil {
		panic("billing: Subscriptions is required")
	}
	if webhooks == nil {
		panic("billing: Webhooks is required")
	}
	if syncer == nil {
		panic("billing: PaymentSyncer is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	m := &Module{
		cfg:      cfg,
		svc:      svc,
		webhooks: webhooks,
		syncer:   syncer,
		now:      time.Now,
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("billing_http"))
	return m
}

// Router builds the HTTP routes.
//
// Health and webhook endpoints are public; the webhook authenticates with
// the gateway token. Everything else sits behind CORS and the API key.
func (m *Module) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", httpserver.HealthCheckHandler(m.log, probeTimeout))
	r.Get("/health/ready", httpserver.HealthCheckHandler(m.log, probeTimeout, m.probes...))

	r.Post("/webhooks/asaas", m.webhook)

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: m.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", APIKeyHeader, requestid.Header},
			ExposedHeaders: []string{requestid.Header},
			MaxAge:         300,
		}))
		if m.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(m.cfg.RequestTimeout))
		}
		r.Use(m.requireAPIKey)

		r.Get("/plans", m.listPlans)
		r.Post("/quotes", m.quote)
		r.Post("/subscriptions", m.createSubscription)
		r.Delete("/subscriptions/{subscriptionID}", m.cancelSubscription)
		r.Get("/users/{userID}/subscription", m.profile)
		r.Post("/users/{userID}/plan-change", m.changePlan)
		r.Post("/payments/{paymentID}/sync", m.syncPayment)
	})

	return r
}

func (m *Module) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.cfg.APIKey == "" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			key, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(m.cfg.APIKey)) != 1 {
			respondError(w, r, m.log, ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
