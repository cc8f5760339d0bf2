package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/citizen-appointments/internal/appointment"
	"github.com/hackgods/citizen-appointments/internal/auth"
	"github.com/hackgods/citizen-appointments/internal/catalog"
	"github.com/hackgods/citizen-appointments/internal/observability"
)

type RouterConfig struct {
	Service      *appointment.Service
	Catalog      *catalog.Catalog
	Metrics      *observability.Metrics
	Gatherer     prometheus.Gatherer // nil means the default registry
	Logger       zerolog.Logger
	JWTSecret    string
	Dependencies []Dependency
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))

	// Health endpoints
	health := NewHealthHandler(cfg.Dependencies, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWTSecret))

		// Catalog endpoints
		r.Get("/services", listServicesHandler(cfg.Catalog, cfg.Logger))
		r.Get("/services/{serviceID}/slots", listSlotsHandler(cfg.Service, cfg.Logger))
		r.Get("/services/{serviceID}/queue", dayQueueHandler(cfg.Service, cfg.Logger))

		// Appointment endpoints
		r.Post("/appointments", reserveSlotHandler(cfg.Service, cfg.Logger))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service, cfg.Logger))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service, cfg.Logger))
		r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service, cfg.Logger))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service, cfg.Logger))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service, cfg.Logger))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service, cfg.Logger))
	})

	return r
}
