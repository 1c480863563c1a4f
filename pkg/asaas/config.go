package asaas

import "time"

// Config holds the gateway credentials and transport limits.
type Config struct {
	APIKey       string        `env:"ASAAS_API_KEY,required"`
	BaseURL      string        `env:"ASAAS_BASE_URL" envDefault:"https://api.asaas.com/v3"`
	Timeout      time.Duration `env:"ASAAS_TIMEOUT" envDefault:"15s"`
	RateLimit    float64       `env:"ASAAS_RATE_LIMIT" envDefault:"5"`
	RateBurst    int           `env:"ASAAS_RATE_BURST" envDefault:"10"`
	WebhookToken string        `env:"ASAAS_WEBHOOK_TOKEN,required"`

	// Breaker opens after BreakerFailures consecutive transport failures and
	// probes again after BreakerTimeout.
	BreakerFailures int           `env:"ASAAS_BREAKER_FAILURES" envDefault:"5"`
	BreakerTimeout  time.Duration `env:"ASAAS_BREAKER_TIMEOUT" envDefault:"30s"`
}
