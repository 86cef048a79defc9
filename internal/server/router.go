package server

import (
	"github.com/go-chi/chi/v5"

	"email-automation/internal/handlers"
)

// Handlers aggregates the HTTP handlers the API server exposes. APIKey, when
// non-empty, puts every mutating route behind bearer-token authentication.
type Handlers struct {
	Rules  *handlers.RuleHandler
	Jobs   *handlers.JobHandler
	Runs   *handlers.RunHandler
	Labels *handlers.LabelHandler
	Health *handlers.HealthHandler
	APIKey string
}

// RegisterChiRoutes registers all API routes with a chi router.
func (h *Handlers) RegisterChiRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/rules", h.Rules.GetRules)
		r.Get("/rules/{id}", h.Rules.GetRule)

		r.Get("/jobs", h.Jobs.GetJobs)
		r.Get("/jobs/{id}", h.Jobs.GetJob)
		r.Get("/jobs/{id}/result", h.Jobs.GetJobResult)

		r.Get("/runs", h.Runs.GetRuns)
		r.Get("/runs/stats", h.Runs.GetRunStats)
		r.Get("/runs/{id}", h.Runs.GetRunByID)

		r.Get("/labels", h.Labels.GetLabels)
		r.Get("/health", h.Health.HealthCheck)

		// Mutating routes, optionally behind bearer-token auth
		r.Group(func(r chi.Router) {
			if h.APIKey != "" {
				r.Use(AuthMiddleware(h.APIKey))
			}

			r.Post("/rules", h.Rules.CreateRule)
			r.Put("/rules/{id}", h.Rules.UpdateRule)
			r.Delete("/rules/{id}", h.Rules.DeleteRule)
			r.Post("/rules/{id}/enable", h.Rules.EnableRule)
			r.Post("/rules/{id}/disable", h.Rules.DisableRule)

			r.Post("/jobs", h.Jobs.SubmitRun)
			r.Post("/jobs/{id}/cancel", h.Jobs.CancelJob)
		})
	})
}

// NewRouter builds the chi router with every API route registered.
func NewRouter(h *Handlers) chi.Router {
	r := chi.NewRouter()
	h.RegisterChiRoutes(r)
	return r
}
