package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", health.HandleHealth)
	r.Get("/healthz/ready", health.HandleReadiness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Patch("/", h.UpdateCampaign)
				r.Delete("/", h.DeleteCampaign)
				r.Post("/schedule", h.ScheduleCampaign)
				r.Post("/cancel", h.CancelCampaign)
				r.Post("/duplicate", h.DuplicateCampaign)
				r.Post("/send", h.SendCampaign)
				r.Post("/resend", h.ResendCampaign)
				r.Get("/recipients", h.ListRecipients)
				r.Post("/recipients/prepare", h.PrepareRecipients)
				r.Get("/events", h.ListEvents)
			})
		})

		r.Route("/audiences", func(r chi.Router) {
			r.Post("/preview", h.PreviewRules)
			r.Get("/{id}/preview", h.PreviewAudience)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.GetSettings)
			r.Put("/", h.UpdateSettings)
			r.Post("/refresh", h.RefreshSettings)
		})

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.ListSuppressions)
			r.Post("/", h.AddSuppression)
			r.Get("/stats", h.SuppressionStats)
			r.Delete("/{email}", h.RemoveSuppression)
		})
	})

	return r
}
