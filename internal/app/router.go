package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/fleetdesk/fleetdesk/internal/auth"
	"github.com/fleetdesk/fleetdesk/internal/directory"
	"github.com/fleetdesk/fleetdesk/internal/observability"
	"github.com/fleetdesk/fleetdesk/internal/procurement"
	"github.com/fleetdesk/fleetdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Sessions           *auth.SessionStore
	ProcurementHandler *procurement.Handler
	DirectoryHandler   *directory.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with FleetDesk defaults. The event
// stream is mounted outside the timeout, compression and rate-limit chain:
// all three would interfere with a long-lived SSE connection.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(SecureHeaders(MiddlewareConfig{Logger: params.Logger, Config: params.Config}))
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	requireAuth := auth.Middleware(params.Sessions, params.Logger)

	timeout := 30 * time.Second
	if params.Config != nil && params.Config.AppRequestTimeout > 0 {
		timeout = params.Config.AppRequestTimeout
	}

	r.Group(func(api chi.Router) {
		api.Use(chimw.Timeout(timeout))
		api.Use(chimw.Compress(5))
		api.Use(httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		api.Use(requireAuth)
		params.ProcurementHandler.MountRoutes(api)
		if params.DirectoryHandler != nil {
			params.DirectoryHandler.MountRoutes(api)
		}
	})

	r.Group(func(stream chi.Router) {
		stream.Use(requireAuth)
		stream.Get("/purchase-requests/events", params.ProcurementHandler.StreamEvents)
	})

	return r
}
