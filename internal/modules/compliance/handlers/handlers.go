// Package handlers provides HTTP handlers for compliance checks.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/compliance"
	"github.com/rs/zerolog"
)

// Handler handles compliance HTTP requests
type Handler struct {
	engine *compliance.Engine
	log    zerolog.Logger
}

// NewHandler creates a new compliance handler
func NewHandler(engine *compliance.Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    log.With().Str("handler", "compliance").Logger(),
	}
}

// HandleEvaluate handles POST /api/compliance/evaluate.
// The body is a subject; when the vector is omitted it is derived from holdings.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var subject compliance.Subject
	if err := json.NewDecoder(r.Body).Decode(&subject); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(subject.Vector) == 0 && len(subject.Holdings) > 0 {
		derived, err := compliance.SubjectFromPortfolio(domain.Portfolio{
			ClientID: subject.ClientID,
			Category: subject.Category,
			Holdings: subject.Holdings,
		})
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		subject = derived
	}

	verdict, err := h.engine.Evaluate(subject)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, domain.ErrInvalidCategory) && !errors.Is(err, domain.ErrInvalidVector) {
			status = http.StatusInternalServerError
		}
		h.writeError(w, status, err.Error())
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"verdict":  verdict,
		"summary":  verdict.Summary(),
		"failures": len(verdict.Failures()),
		"warnings": len(verdict.Warnings()),
	})
}

// HandleGetRules handles GET /api/compliance/rules
func (h *Handler) HandleGetRules(w http.ResponseWriter, r *http.Request) {
	rules := h.engine.Rules()
	out := make([]map[string]string, 0, len(rules))
	for _, rule := range rules {
		out = append(out, map[string]string{
			"name":        rule.Name(),
			"description": rule.Description(),
		})
	}
	h.writeData(w, http.StatusOK, out)
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
