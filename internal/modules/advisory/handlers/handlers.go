// Package handlers provides HTTP handlers for client portfolios, drift
// reviews and the audit trail.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/advisory"
	"github.com/aristath/advisor/internal/modules/allocation"
	"github.com/aristath/advisor/internal/modules/rebalancing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const defaultAuditLimit = 100

// SignalSource supplies the market signal used when a request names none
type SignalSource interface {
	Signal() domain.MarketSignal
}

// Handler handles advisory HTTP requests
type Handler struct {
	service *advisory.Service
	signals SignalSource
	log     zerolog.Logger
}

// NewHandler creates a new advisory handler. signals may be nil, in which
// case requests without a signal use normal.
func NewHandler(service *advisory.Service, signals SignalSource, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		signals: signals,
		log:     log.With().Str("handler", "advisory").Logger(),
	}
}

// HandleList handles GET /api/portfolios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"clients": h.service.Registry().ClientIDs(),
	})
}

// HandleOnboard handles PUT /api/portfolios/{clientID}
func (h *Handler) HandleOnboard(w http.ResponseWriter, r *http.Request) {
	var req advisory.OnboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.ClientID = chi.URLParam(r, "clientID")

	result, err := h.service.Onboard(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, result)
}

// HandleGet handles GET /api/portfolios/{clientID}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(chi.URLParam(r, "clientID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	current, err := p.CurrentVector()
	if err != nil && !errors.Is(err, domain.ErrEmptyPortfolio) {
		h.writeServiceError(w, err)
		return
	}
	// class breakdown needs a positive total; empty portfolios get none
	classes, _ := allocation.BuildClassAllocations(p)
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"portfolio":   p,
		"current":     current,
		"total_value": p.TotalValue(),
		"classes":     classes,
		"sectors":     allocation.BuildSectorAllocations(p),
	})
}

// HandleDelete handles DELETE /api/portfolios/{clientID}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(chi.URLParam(r, "clientID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HoldingsRequest is the body of PUT /api/portfolios/{clientID}/holdings
type HoldingsRequest struct {
	Holdings []domain.Holding `json:"holdings"`
}

// HandleUpdateHoldings handles PUT /api/portfolios/{clientID}/holdings
func (h *Handler) HandleUpdateHoldings(w http.ResponseWriter, r *http.Request) {
	var req HoldingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	p, err := h.service.UpdateHoldings(r.Context(), chi.URLParam(r, "clientID"), req.Holdings)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, p)
}

// HandleEvaluate handles POST /api/portfolios/{clientID}/evaluate
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	verdict, err := h.service.Evaluate(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"verdict": verdict,
		"summary": verdict.Summary(),
	})
}

// HandleDrift handles GET /api/portfolios/{clientID}/drift?signal=
func (h *Handler) HandleDrift(w http.ResponseWriter, r *http.Request) {
	signal, err := h.signal(r.URL.Query().Get("signal"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.service.Drift(r.Context(), chi.URLParam(r, "clientID"), signal)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, report)
}

// ReviewRequest is the optional body of POST /api/portfolios/{clientID}/review
type ReviewRequest struct {
	Signal string `json:"signal,omitempty"`
}

// HandleReview handles POST /api/portfolios/{clientID}/review
func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}
	signal, err := h.signal(req.Signal)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Review(r.Context(), chi.URLParam(r, "clientID"), signal)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, result)
}

// HandleGetPendingPlan handles GET /api/portfolios/{clientID}/plans/pending
func (h *Handler) HandleGetPendingPlan(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	plan, ok := h.service.PendingPlan(clientID)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no pending plan for client "+clientID)
		return
	}
	h.writeData(w, http.StatusOK, plan)
}

// HandleAccept handles POST /api/portfolios/{clientID}/plans/{planID}/accept
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Accept(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "planID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, result)
}

// HandleSchedule handles GET /api/portfolios/{clientID}/schedule?frequency=
func (h *Handler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	frequency := r.URL.Query().Get("frequency")
	if frequency == "" {
		frequency = "quarterly"
	}

	schedule, err := h.service.Schedule(chi.URLParam(r, "clientID"), frequency)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, schedule)
}

// HandleAudit handles GET /api/audit/{clientID}?limit=
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.service.History(r.Context(), chi.URLParam(r, "clientID"), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, records)
}

func (h *Handler) signal(raw string) (domain.MarketSignal, error) {
	if raw == "" {
		if h.signals != nil {
			return h.signals.Signal(), nil
		}
		return domain.SignalNormal, nil
	}
	var signal domain.MarketSignal
	if err := signal.UnmarshalText([]byte(raw)); err != nil {
		return 0, err
	}
	return signal, nil
}

// writeServiceError maps domain errors onto HTTP statuses
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var conflict *rebalancing.ConflictError
	switch {
	case errors.As(err, &conflict):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   err.Error(),
			"verdict": conflict.Verdict,
		})
	case errors.Is(err, domain.ErrClientNotFound), errors.Is(err, domain.ErrPlanNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrStalePlan):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrInvalidSubscore),
		errors.Is(err, domain.ErrInvalidVector),
		errors.Is(err, domain.ErrInvalidHolding),
		errors.Is(err, domain.ErrInvalidClientID),
		errors.Is(err, domain.ErrEmptyPortfolio),
		errors.Is(err, domain.ErrUnknownEnum):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("Advisory request failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
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
