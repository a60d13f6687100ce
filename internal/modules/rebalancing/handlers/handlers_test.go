package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/allocation"
	"github.com/aristath/advisor/internal/modules/compliance"
	"github.com/aristath/advisor/internal/modules/drift"
	"github.com/aristath/advisor/internal/modules/rebalancing"
	"github.com/aristath/advisor/internal/modules/simulation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter() *chi.Mux {
	log := zerolog.Nop()
	policy := config.DefaultPolicy()
	engine := compliance.NewEngine(policy, log)
	model := allocation.NewModel(policy, log)

	handler := NewHandler(
		policy,
		drift.NewDetector(policy, model, log),
		rebalancing.NewPlanner(policy, engine, log),
		simulation.NewSimulator(policy, engine, model, log),
		log,
	)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func portfolio(equity, debt []int64) domain.Portfolio {
	p := domain.Portfolio{
		ClientID: "client-1",
		Category: domain.Moderate,
		Target:   domain.Vector{domain.EquityDomestic: 0.55, domain.Debt: 0.35, domain.Gold: 0.10},
	}
	for i, v := range equity {
		p.Holdings = append(p.Holdings, domain.Holding{ID: fmt.Sprintf("EQ%d", i), Class: domain.EquityDomestic, Sector: fmt.Sprintf("s%d", i), MarketValue: decimal.NewFromInt(v), Quantity: decimal.NewFromInt(1)})
	}
	for i, v := range debt {
		p.Holdings = append(p.Holdings, domain.Holding{ID: fmt.Sprintf("BD%d", i), Class: domain.Debt, MarketValue: decimal.NewFromInt(v), Quantity: decimal.NewFromInt(1)})
	}
	p.Holdings = append(p.Holdings,
		domain.Holding{ID: "GLD1", Class: domain.Gold, MarketValue: decimal.NewFromInt(500), Quantity: decimal.NewFromInt(1)},
		domain.Holding{ID: "GLD2", Class: domain.Gold, MarketValue: decimal.NewFromInt(500), Quantity: decimal.NewFromInt(1)},
	)
	return p
}

func postPlan(t *testing.T, router http.Handler, req PlanRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/rebalancing/plan", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)
	return rec
}

func nineOf(v int64) []int64 {
	out := make([]int64, 9)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestHandlePlan(t *testing.T) {
	rec := postPlan(t, setupRouter(), PlanRequest{Portfolio: portfolio(nineOf(500), nineOf(500))})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			ActionNeeded bool              `json:"action_needed"`
			Plan         rebalancing.Plan  `json:"plan"`
			Simulation   simulation.Result `json:"simulation"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.True(t, body.Data.ActionNeeded)
	assert.NotEmpty(t, body.Data.Plan.ID)
	require.Len(t, body.Data.Plan.Trades, 2)
	assert.Equal(t, domain.Sell, body.Data.Plan.Trades[0].Side)
	assert.True(t, body.Data.Simulation.Verdict.Passed)
	assert.Equal(t, body.Data.Plan.ID, body.Data.Simulation.PlanID)
}

func TestHandlePlanNoActionNeeded(t *testing.T) {
	p := portfolio(nineOf(500), nineOf(500))
	p.Target = domain.Vector{domain.EquityDomestic: 0.46, domain.Debt: 0.44, domain.Gold: 0.10}

	rec := postPlan(t, setupRouter(), PlanRequest{Portfolio: p})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body.Data["action_needed"])
	assert.Contains(t, body.Data, "report")
}

func TestHandlePlanConflict(t *testing.T) {
	rec := postPlan(t, setupRouter(), PlanRequest{Portfolio: portfolio([]int64{4500}, []int64{900, 900, 900, 900, 900})})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Error   string             `json:"error"`
		Verdict compliance.Verdict `json:"verdict"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	assert.False(t, body.Verdict.Passed)
	assert.NotEmpty(t, body.Verdict.Failures())
}

func TestHandlePlanBadInput(t *testing.T) {
	router := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/rebalancing/plan", bytes.NewReader([]byte(`{"portfolio":`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	empty := portfolio(nil, nil)
	empty.Holdings = nil
	rec = postPlan(t, router, PlanRequest{Portfolio: empty})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetMinTradeAmount(t *testing.T) {
	router := setupRouter()

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantAmount float64
	}{
		{name: "configured policy has no fixed cost", query: "", wantStatus: http.StatusOK, wantAmount: 0},
		{name: "fixed cost override", query: "?fixed_cost=2", wantStatus: http.StatusOK, wantAmount: 250},
		{name: "all overrides", query: "?fixed_cost=5&percent_cost=0.002&max_cost_ratio=0.01", wantStatus: http.StatusOK, wantAmount: 625},
		{name: "invalid value", query: "?fixed_cost=abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/rebalancing/min-trade-amount"+tt.query, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body struct {
				Data map[string]float64 `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.InDelta(t, tt.wantAmount, body.Data["min_trade_amount"], 1e-6)
		})
	}
}
