package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-agenda/internal/appointment"
	"github.com/hackgods/clinic-agenda/internal/metrics"
)

type RouterConfig struct {
	Service        *appointment.Service
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
	PgPool         *pgxpool.Pool
	Redis          *redis.Client
	Env            string
	Version        string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	h := &handlers{svc: cfg.Service, validate: newValidator()}

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))

		r.Get("/agenda", h.agenda)

		r.Route("/professionals", func(r chi.Router) {
			r.Get("/", h.listProfessionals)
			r.Get("/{id}", h.getProfessional)
			r.Put("/{id}/hours", h.setWorkingHours)
			r.Get("/{id}/schedule", h.schedule)
			r.Get("/{id}/free-slots", h.freeSlots)
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.book)
			r.Get("/{id}", h.getAppointment)
			r.Post("/{id}/reschedule", h.reschedule)
			r.Post("/{id}/cancel", h.cancel)
			r.Post("/{id}/confirm", h.confirm)
			r.Post("/{id}/complete", h.complete)
		})
	})

	return r
}
