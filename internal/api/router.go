package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/gatherings/internal/api/handlers"
	"github.com/Togather-Foundation/gatherings/internal/api/middleware"
	"github.com/Togather-Foundation/gatherings/internal/audit"
	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
)

// Dependencies are the collaborators the router wires into the services.
type Dependencies struct {
	Store  events.Store
	Views  events.ViewStatsReader
	Hits   events.HitRecorder
	Checks []handlers.Check

	Version   string
	GitCommit string
	BuildDate string
}

// NewRouter builds the services over deps.Store and returns the full
// middleware chain around the route table.
func NewRouter(cfg config.Config, logger zerolog.Logger, deps Dependencies) http.Handler {
	opts := []events.Option{
		events.WithLogger(logger),
		events.WithAuditLogger(audit.NewLogger(logger)),
		events.WithObserver(metrics.DomainObserver{}),
	}
	if deps.Views != nil {
		opts = append(opts, events.WithViewStats(deps.Views))
	}
	if deps.Hits != nil {
		opts = append(opts, events.WithHitRecorder(deps.Hits))
	}

	lifecycle := events.NewLifecycleService(deps.Store, opts...)
	admission := events.NewAdmissionService(deps.Store, opts...)
	directory := events.NewDirectoryService(deps.Store, opts...)

	organizer := handlers.NewOrganizerHandler(lifecycle, admission, cfg.Environment)
	participant := handlers.NewParticipantHandler(admission, cfg.Environment)
	admin := handlers.NewAdminHandler(lifecycle, directory, cfg.Environment)
	public := handlers.NewPublicHandler(lifecycle, cfg.Environment)
	health := handlers.NewHealthChecker(deps.Version, deps.GitCommit, deps.Checks...)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /users/{userId}/events", organizer.Create)
	mux.HandleFunc("GET /users/{userId}/events", organizer.List)
	mux.HandleFunc("GET /users/{userId}/events/{eventId}", organizer.Get)
	mux.HandleFunc("PATCH /users/{userId}/events/{eventId}", organizer.Update)
	mux.HandleFunc("GET /users/{userId}/events/{eventId}/requests", organizer.ListRequests)
	mux.HandleFunc("PATCH /users/{userId}/events/{eventId}/requests", organizer.UpdateRequests)

	mux.HandleFunc("GET /users/{userId}/requests", participant.List)
	mux.HandleFunc("POST /users/{userId}/requests", participant.Create)
	mux.HandleFunc("PATCH /users/{userId}/requests/{requestId}/cancel", participant.Cancel)

	mux.HandleFunc("GET /admin/events", admin.SearchEvents)
	mux.HandleFunc("PATCH /admin/events/{eventId}", admin.UpdateEvent)
	mux.HandleFunc("POST /admin/users", admin.CreateUser)
	mux.HandleFunc("POST /admin/categories", admin.CreateCategory)

	mux.HandleFunc("GET /events", public.Search)
	mux.HandleFunc("GET /events/{id}", public.Get)

	mux.HandleFunc("GET /healthz", handlers.Healthz())
	mux.HandleFunc("GET /readyz", health.Readyz())
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("GET /version", VersionHandler(deps.Version, deps.GitCommit, deps.BuildDate))

	limiter := middleware.NewRateLimiter(cfg.RateLimit)

	var handler http.Handler = middleware.Routed(mux)
	handler = middleware.RequestSize(cfg.Server.MaxBodyBytes)(handler)
	handler = limiter.Handler(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(handler)
	handler = middleware.CorrelationID(logger)(handler)
	handler = middleware.Tracing(handler)
	return handler
}
