package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/cutsync/pkg/logger"
)

// Check is one named readiness probe, such as a database ping.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// HealthReport is the readiness response body.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthCheckHandler runs every check concurrently within timeout and responds
// 200 when all pass, 503 otherwise. Without checks it reports liveness only.
func HealthCheckHandler(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		report := HealthReport{Status: "ok"}
		if len(checks) > 0 {
			report.Checks = make(map[string]string, len(checks))
		}

		var mu sync.Mutex
		var g errgroup.Group
		for _, c := range checks {
			g.Go(func() error {
				status := "ok"
				if err := c.Fn(ctx); err != nil {
					status = "failed"
					log.WarnContext(ctx, "readiness check failed",
						slog.String("check", c.Name),
						logger.Error(err),
					)
				}
				mu.Lock()
				report.Checks[c.Name] = status
				if status != "ok" {
					report.Status = "unavailable"
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		code := http.StatusOK
		if report.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}
