// Package handlers exposes the market regime classifier over HTTP.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/advisor/internal/market_regime"
	"github.com/rs/zerolog"
)

// Handler handles market regime HTTP requests
type Handler struct {
	classifier *market_regime.Classifier
	log        zerolog.Logger
}

// NewHandler creates a new market regime handler
func NewHandler(classifier *market_regime.Classifier, log zerolog.Logger) *Handler {
	return &Handler{
		classifier: classifier,
		log:        log.With().Str("handler", "market_regime").Logger(),
	}
}

// HandleAssess handles POST /api/market/assess.
// The resulting signal becomes the one scheduled reviews run with.
func (h *Handler) HandleAssess(w http.ResponseWriter, r *http.Request) {
	var series market_regime.Series
	if err := json.NewDecoder(r.Body).Decode(&series); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	assessment, err := h.classifier.Classify(series)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeData(w, http.StatusOK, assessment)
}

// HandleGetSignal handles GET /api/market/signal
func (h *Handler) HandleGetSignal(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, http.StatusOK, h.classifier.Current())
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

