package billing

import "time"

type Config struct {
	// APIKey guards the management API. Empty disables the guard.
	APIKey         string        `env:"BILLING_API_KEY"`
	CORSOrigins    []string      `env:"BILLING_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	RequestTimeout time.Duration `env:"BILLING_REQUEST_TIMEOUT" envDefault:"30s"`
	MaxBodyBytes   int64         `env:"BILLING_MAX_BODY_BYTES" envDefault:"1048576"`
}
