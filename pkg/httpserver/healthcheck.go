package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Probe reports the health of one dependency.
type Probe struct {
	Name  string
	Check func(context.Context) error
}

type probeReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthCheckHandler serves liveness when no probes are given and readiness
// otherwise. Each probe runs with the request context bounded by timeout.
// Any failing probe turns the response into 503 with per-probe results.
func HealthCheckHandler(log *slog.Logger, timeout time.Duration, probes ...Probe) http.HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		report := probeReport{Status: "ok"}
		code := http.StatusOK

		if len(probes) > 0 {
			report.Checks = make(map[string]string, len(probes))
		}
		for _, p := range probes {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			err := p.Check(ctx)
			cancel()
			if err != nil {
				log.ErrorContext(r.Context(), "readiness check failed", slog.String("probe", p.Name), logger.Error(err))
				report.Checks[p.Name] = "failed"
				report.Status = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			report.Checks[p.Name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}
