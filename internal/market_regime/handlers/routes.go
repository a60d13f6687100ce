package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all market regime routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/market", func(r chi.Router) {
		r.Post("/assess", h.HandleAssess)
		r.Get("/signal", h.HandleGetSignal)
	})
}
