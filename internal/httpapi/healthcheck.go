package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck is one named dependency probe for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// PingCheck probes the database.
func PingCheck(name string, db *sql.DB) HealthCheck {
	return HealthCheck{Name: name, Check: db.PingContext}
}

// ConnectedCheck reports a client's connection flag.
func ConnectedCheck(name string, connected func() bool) HealthCheck {
	return HealthCheck{Name: name, Check: func(context.Context) error {
		if !connected() {
			return errors.New("not connected")
		}
		return nil
	}}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Failing map[string]string `json:"failing,omitempty"`
}

type healthchecker struct {
	checks []HealthCheck
	logger *slog.Logger
}

func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	failing := map[string]string{}
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			failing[c.Name] = err.Error()
		}
	}

	if len(failing) > 0 {
		h.logger.Warn("health check failed", "failing", failing)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Failing: failing})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
