package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Check tests one dependency.
type Check func(ctx context.Context) error

// Health is the body written by HealthCheckHandler.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthCheckHandler serves liveness when checks is empty and readiness
// otherwise: 200 with status "ok" when every check passes, 503 with status
// "unavailable" and the failing check's error when any does not.
// Each check gets timeout.
func HealthCheckHandler(log *slog.Logger, timeout time.Duration, checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := Health{Status: "ok"}
		code := http.StatusOK

		if len(checks) > 0 {
			body.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			err := check(ctx)
			cancel()

			if err != nil {
				log.WarnContext(r.Context(), "readiness check failed", logger.Component(name), logger.Error(err))
				body.Checks[name] = err.Error()
				body.Status = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			body.Checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}
