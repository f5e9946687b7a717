package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/wellnessapp/notification-service/internal/api/handler"
	"github.com/wellnessapp/notification-service/internal/config"
)

// NewRouter creates and configures the Chi router for the ops server.
// sched may be nil when the scheduler is disabled in this process.
func NewRouter(db handler.Pinger, sched handler.Scheduler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TimingMiddleware)

	// CORS for the ops dashboard
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Request-Id"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	h := handler.New(db, sched)

	// --- Routes ---
	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	r.Route("/scheduler", func(r chi.Router) {
		r.Get("/status", h.SchedulerStatus)
		r.Get("/due", h.DueUsers)

		r.Group(func(r chi.Router) {
			if cfg.RateLimitEnabled {
				r.Use(TriggerLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
			}
			r.Post("/trigger", h.TriggerCycle)
		})
	})

	return r
}
