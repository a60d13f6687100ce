package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/advisor/internal/audit"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/events"
	"github.com/aristath/advisor/internal/metrics"
	"github.com/aristath/advisor/internal/modules/advisory"
	"github.com/aristath/advisor/internal/modules/portfolio"
	testutil "github.com/aristath/advisor/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSignal domain.MarketSignal

func (s fixedSignal) Signal() domain.MarketSignal { return domain.MarketSignal(s) }

func setupRouter(t *testing.T, signals SignalSource) (*chi.Mux, *advisory.Service) {
	t.Helper()
	service := advisory.NewService(
		config.DefaultPolicy(),
		portfolio.NewRegistry(nil, zerolog.Nop()),
		audit.NewRecorder(audit.NewMemoryStore(), zerolog.Nop()),
		events.NewManager(nil, zerolog.Nop()),
		metrics.New(),
		zerolog.Nop(),
	)
	router := chi.NewRouter()
	NewHandler(service, signals, zerolog.Nop()).RegisterRoutes(router)
	return router, service
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Data
}

func TestOnboardAndGet(t *testing.T) {
	router, _ := setupRouter(t, nil)

	holdings, err := json.Marshal(testutil.NewDriftedPortfolio("c1").Holdings)
	require.NoError(t, err)
	body := `{"risk_category":"moderate","subscore":50,"holdings":` + string(holdings) + `}`

	rec := do(t, router, http.MethodPut, "/portfolios/c1", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	verdict := data["verdict"].(map[string]interface{})
	assert.Equal(t, true, verdict["passed"])

	rec = do(t, router, http.MethodGet, "/portfolios/c1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	current := data["current"].(map[string]interface{})
	assert.InDelta(t, 0.45, current["equity_domestic"], 1e-9)
	classes := data["classes"].([]interface{})
	assert.Len(t, classes, 4)
	sectors := data["sectors"].([]interface{})
	assert.NotEmpty(t, sectors)

	rec = do(t, router, http.MethodGet, "/portfolios", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"c1"}, decodeData(t, rec)["clients"])
}

func TestOnboardBadInput(t *testing.T) {
	router, _ := setupRouter(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"risk_category":`},
		{name: "unknown category", body: `{"risk_category":"reckless"}`},
		{name: "missing profile", body: `{}`},
		{name: "negative holding", body: `{"score":50,"holdings":[{"id":"A","asset_class":"debt","market_value":"-5","quantity":"1"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPut, "/portfolios/c1", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestNotFound(t *testing.T) {
	router, _ := setupRouter(t, nil)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/portfolios/ghost"},
		{http.MethodGet, "/portfolios/ghost/drift"},
		{http.MethodPost, "/portfolios/ghost/review"},
		{http.MethodPost, "/portfolios/ghost/evaluate"},
		{http.MethodGet, "/portfolios/ghost/schedule"},
		{http.MethodGet, "/portfolios/ghost/plans/pending"},
		{http.MethodPost, "/portfolios/ghost/plans/p1/accept"},
		{http.MethodDelete, "/portfolios/ghost"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rec := do(t, router, p.method, p.path, "")
			assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
		})
	}
}

func TestReviewAcceptFlow(t *testing.T) {
	router, service := setupRouter(t, nil)
	require.NoError(t, service.Registry().Upsert(testutil.NewDriftedPortfolio("c1")))

	rec := do(t, router, http.MethodGet, "/portfolios/c1/drift", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeData(t, rec)["trigger"])

	rec = do(t, router, http.MethodPost, "/portfolios/c1/review", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	assert.Equal(t, true, data["action_needed"])
	planID := data["plan"].(map[string]interface{})["id"].(string)

	rec = do(t, router, http.MethodGet, "/portfolios/c1/plans/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, planID, decodeData(t, rec)["id"])

	rec = do(t, router, http.MethodPost, "/portfolios/c1/plans/"+planID+"/accept", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/portfolios/c1/review", `{"signal":"normal"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeData(t, rec)["action_needed"])

	rec = do(t, router, http.MethodGet, "/audit/c1?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "plan_accepted", resp.Data[0]["kind"])
	assert.NotNil(t, resp.Data[0]["payload"])
}

func TestReviewUsesSignalSource(t *testing.T) {
	router, service := setupRouter(t, fixedSignal(domain.SignalVolatilitySpike))
	require.NoError(t, service.Registry().Upsert(testutil.NewBalancedPortfolio("c1")))

	rec := do(t, router, http.MethodGet, "/portfolios/c1/drift", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "volatility_spike", data["signal"])
	assert.Equal(t, "market_signal", data["reason"])

	rec = do(t, router, http.MethodGet, "/portfolios/c1/drift?signal=normal", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "none", decodeData(t, rec)["reason"])

	rec = do(t, router, http.MethodGet, "/portfolios/c1/drift?signal=panic", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewConflictReturns422(t *testing.T) {
	router, service := setupRouter(t, nil)
	p := testutil.NewDriftedPortfolio("c1")
	holdings := []domain.Holding{testutil.NewHolding("EQ1", domain.EquityDomestic, "Technology", 4500)}
	for _, h := range p.Holdings {
		if h.Class != domain.EquityDomestic {
			holdings = append(holdings, h)
		}
	}
	p.Holdings = holdings
	require.NoError(t, service.Registry().Upsert(p))

	rec := do(t, router, http.MethodPost, "/portfolios/c1/review", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "unresolvable")
	verdict := resp["verdict"].(map[string]interface{})
	assert.Equal(t, false, verdict["passed"])
}

func TestUpdateHoldings(t *testing.T) {
	router, service := setupRouter(t, nil)
	require.NoError(t, service.Registry().Upsert(testutil.NewDriftedPortfolio("c1")))

	body, err := json.Marshal(HoldingsRequest{Holdings: testutil.NewBalancedPortfolio("c1").Holdings})
	require.NoError(t, err)

	rec := do(t, router, http.MethodPut, "/portfolios/c1/holdings", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/portfolios/c1/evaluate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	verdict := decodeData(t, rec)["verdict"].(map[string]interface{})
	assert.Equal(t, true, verdict["passed"])
}

func TestSchedule(t *testing.T) {
	router, service := setupRouter(t, nil)
	require.NoError(t, service.Registry().Upsert(testutil.NewDriftedPortfolio("c1")))

	rec := do(t, router, http.MethodGet, "/portfolios/c1/schedule?frequency=monthly", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []advisory.ScheduledReview `json:"data"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&resp))
	assert.Len(t, resp.Data, 4)
	assert.Equal(t, "monthly", resp.Data[0].Frequency)

	rec = do(t, router, http.MethodGet, "/portfolios/c1/schedule?frequency=weekly", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditLimitValidation(t *testing.T) {
	router, _ := setupRouter(t, nil)

	rec := do(t, router, http.MethodGet, "/audit/c1?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/audit/c1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
