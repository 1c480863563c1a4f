package reconcile

import "time"

// Config holds the reconciliation settings.
type Config struct {
	SweepEnabled  bool          `env:"RECONCILE_SWEEP_ENABLED" envDefault:"true"`
	SweepSchedule string        `env:"RECONCILE_SWEEP_SCHEDULE" envDefault:"@every 5m"`
	SweepHorizon  time.Duration `env:"RECONCILE_SWEEP_HORIZON" envDefault:"72h"`
	SweepBatch    int           `env:"RECONCILE_SWEEP_BATCH" envDefault:"100"`
	SweepTimeout  time.Duration `env:"RECONCILE_SWEEP_TIMEOUT" envDefault:"2m"`

	DedupProcessingTTL time.Duration `env:"RECONCILE_DEDUP_PROCESSING_TTL" envDefault:"5m"`
	DedupDoneTTL       time.Duration `env:"RECONCILE_DEDUP_DONE_TTL" envDefault:"72h"`
}
