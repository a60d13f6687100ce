// Package handlers provides HTTP handlers for target allocation queries.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/allocation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles allocation HTTP requests
type Handler struct {
	model *allocation.Model
	log   zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(model *allocation.Model, log zerolog.Logger) *Handler {
	return &Handler{
		model: model,
		log:   log.With().Str("handler", "allocation").Logger(),
	}
}

// TargetRequest is the body of POST /api/allocation/target.
// Either Score (a raw profiler score) or RiskCategory+Subscore is given.
type TargetRequest struct {
	RiskCategory *domain.RiskCategory `json:"risk_category,omitempty"`
	Subscore     *float64             `json:"subscore,omitempty"`
	Score        *float64             `json:"score,omitempty"`
	Horizon      domain.GoalHorizon   `json:"horizon,omitempty"`
}

// Resolve returns the category and subscore the request describes
func (req TargetRequest) Resolve() (domain.RiskCategory, float64, error) {
	if req.Score != nil {
		return domain.ClassifyScore(*req.Score)
	}
	if req.RiskCategory == nil {
		return 0, 0, domain.ErrInvalidCategory
	}
	subscore := 50.0
	if req.Subscore != nil {
		subscore = *req.Subscore
	}
	return *req.RiskCategory, subscore, nil
}

// HandleTarget handles POST /api/allocation/target
func (h *Handler) HandleTarget(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	category, subscore, err := req.Resolve()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := h.model.TargetForGoal(category, subscore, req.Horizon)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrInfeasibleBand) {
			status = http.StatusInternalServerError
		}
		h.log.Warn().Err(err).Str("category", category.String()).Msg("Failed to compute target")
		h.writeError(w, status, err.Error())
		return
	}

	metrics, err := h.model.Metrics(target)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"risk_category": category,
		"subscore":      subscore,
		"horizon":       req.Horizon,
		"target":        target,
		"metrics":       metrics,
	})
}

// HandleClassify handles POST /api/allocation/classify
func (h *Handler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	category, subscore, err := domain.ClassifyScore(req.Score)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"score":         req.Score,
		"risk_category": category,
		"subscore":      subscore,
	})
}

// HandleGetBands handles GET /api/allocation/bands/{category}
func (h *Handler) HandleGetBands(w http.ResponseWriter, r *http.Request) {
	category, err := domain.ParseRiskCategory(chi.URLParam(r, "category"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bands, err := h.model.Bands(category)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"risk_category": category,
		"bands":         bands,
	})
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
