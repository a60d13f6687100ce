package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers portfolio, review and audit routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.HandleList)

		r.Route("/{clientID}", func(r chi.Router) {
			r.Put("/", h.HandleOnboard)
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleDelete)
			r.Put("/holdings", h.HandleUpdateHoldings)
			r.Post("/evaluate", h.HandleEvaluate)
			r.Get("/drift", h.HandleDrift)
			r.Post("/review", h.HandleReview)
			r.Get("/schedule", h.HandleSchedule)
			r.Get("/plans/pending", h.HandleGetPendingPlan)
			r.Post("/plans/{planID}/accept", h.HandleAccept)
		})
	})

	r.Get("/audit/{clientID}", h.HandleAudit)
}
