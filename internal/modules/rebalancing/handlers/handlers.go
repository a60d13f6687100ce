// Package handlers provides HTTP handlers for stateless rebalancing previews.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/drift"
	"github.com/aristath/advisor/internal/modules/rebalancing"
	"github.com/aristath/advisor/internal/modules/simulation"
	"github.com/rs/zerolog"
)

// Handler handles rebalancing HTTP requests
type Handler struct {
	policy    config.Policy
	detector  *drift.Detector
	planner   *rebalancing.Planner
	simulator *simulation.Simulator
	log       zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(
	policy config.Policy,
	detector *drift.Detector,
	planner *rebalancing.Planner,
	simulator *simulation.Simulator,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		policy:    policy,
		detector:  detector,
		planner:   planner,
		simulator: simulator,
		log:       log.With().Str("handler", "rebalancing").Logger(),
	}
}

// PlanRequest is the body of POST /api/rebalancing/plan
type PlanRequest struct {
	Portfolio domain.Portfolio    `json:"portfolio"`
	Signal    domain.MarketSignal `json:"signal"`
}

// HandlePlan handles POST /api/rebalancing/plan.
// It runs drift detection, planning and simulation on the supplied snapshot
// without storing anything.
func (h *Handler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	report, err := h.detector.Detect(req.Portfolio, req.Signal)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := h.planner.Plan(report, req.Portfolio)
	if err != nil {
		h.writePlanError(w, report, err)
		return
	}

	result, err := h.simulator.Simulate(plan, req.Portfolio)
	if err != nil {
		h.writePlanError(w, report, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"action_needed": true,
		"report":        report,
		"plan":          plan,
		"simulation":    result,
	})
}

// HandleGetMinTradeAmount handles GET /api/rebalancing/min-trade-amount.
// Query parameters override the configured cost model.
func (h *Handler) HandleGetMinTradeAmount(w http.ResponseWriter, r *http.Request) {
	transactionCostFixed := h.policy.TransactionCostFixed
	transactionCostPercent := h.policy.TransactionCostPercent
	maxCostRatio := h.policy.MaxCostRatio

	for param, target := range map[string]*float64{
		"fixed_cost":     &transactionCostFixed,
		"percent_cost":   &transactionCostPercent,
		"max_cost_ratio": &maxCostRatio,
	} {
		raw := r.URL.Query().Get(param)
		if raw == "" {
			continue
		}
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil || val < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid "+param+": "+raw)
			return
		}
		*target = val
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"min_trade_amount":         rebalancing.CalculateMinTradeAmount(transactionCostFixed, transactionCostPercent, maxCostRatio),
		"transaction_cost_fixed":   transactionCostFixed,
		"transaction_cost_percent": transactionCostPercent,
		"max_cost_ratio":           maxCostRatio,
		"min_trade_weight":         h.policy.MinTradeWeight,
	})
}

func (h *Handler) writePlanError(w http.ResponseWriter, report drift.Report, err error) {
	var conflict *rebalancing.ConflictError
	switch {
	case errors.Is(err, domain.ErrNoActionNeeded):
		h.writeData(w, http.StatusOK, map[string]interface{}{
			"action_needed": false,
			"reason":        err.Error(),
			"report":        report,
		})
	case errors.Is(err, domain.ErrStalePlan):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &conflict):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   err.Error(),
			"verdict": conflict.Verdict,
		})
	default:
		h.log.Error().Err(err).Str("client_id", report.ClientID).Msg("Failed to build rebalancing plan")
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
