package notify

import "time"

// Config selects the outbound channels. An empty WebhookURL disables the
// webhook channel.
type Config struct {
	WebhookURL    string        `env:"NOTIFY_WEBHOOK_URL"`
	WebhookSecret string        `env:"NOTIFY_WEBHOOK_SECRET"`
	Timeout       time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"30s"`
	MaxAttempts   int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"4"`
	LogChannel    bool          `env:"NOTIFY_LOG_ENABLED" envDefault:"true"`
}
