package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type RouterOptions struct {
	Checks []HealthCheck
	// Readings is optional; without it the readings route is not mounted.
	Readings ReadingStore
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

func NewRouter(opts RouterOptions) chi.Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(requestLogger(opts.Logger))

	hc := &healthchecker{checks: opts.Checks, logger: opts.Logger}
	r.Get("/healthz", hc.handleHealthz)

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	if opts.Readings != nil {
		rh := &readingsHandler{store: opts.Readings, logger: opts.Logger}
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/devices/{id}/readings", rh.handleLatest)
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
