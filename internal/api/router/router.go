package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/therapy-scheduler/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/therapy-scheduler/internal/http/middleware"
	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Availability       *handlers.AvailabilityHandler
	Appointments       *handlers.AppointmentHandler
	Health             *handlers.HealthHandler
	MetricsHandler     http.Handler
	RateLimiter        *httpmiddleware.RateLimiter
	CORSAllowedOrigins []string

	// AuthSecret enables bearer-token principals on /api when set.
	AuthSecret string

	// Test booking endpoint, optionally guarded by a shared token.
	EnableTestRoutes bool
	TestRoutesToken  string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health checks, metrics)
	r.Group(func(public chi.Router) {
		health := cfg.Health
		if health == nil {
			health = handlers.NewHealthHandler(nil)
		}
		public.Get("/health", health.HealthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api", func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(cfg.RateLimiter.Middleware)
		}
		api.Use(httpmiddleware.Authenticate(cfg.AuthSecret))

		if avail := cfg.Availability; avail != nil {
			api.Get("/therapists/{therapistID}/availability", avail.GetAvailability)
			api.Route("/therapist/availability", func(r chi.Router) {
				r.Post("/", avail.CreateRule)
				r.Get("/manage/{therapistID}", avail.ManageAvailability)
				r.Put("/{ruleID}", avail.UpdateRule)
				r.Delete("/{ruleID}", avail.DeleteRule)
			})
		}

		if appts := cfg.Appointments; appts != nil {
			api.Route("/appointments", func(r chi.Router) {
				r.Post("/", appts.BookAppointment)
				r.Get("/{appointmentID}", appts.GetAppointment)
				r.Patch("/{appointmentID}/status", appts.UpdateStatus)
			})
			api.Get("/therapists/{therapistID}/appointments", appts.ListTherapistAppointments)
			api.Get("/patients/{patientID}/appointments", appts.ListPatientAppointments)

			// Test booking endpoint for e2e suites.
			if cfg.EnableTestRoutes {
				api.With(requireTestToken(cfg.TestRoutesToken)).Post("/test/book-appointment", appts.BookAppointment)
			}
		}
	})

	return r
}
