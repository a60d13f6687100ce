package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/market_regime"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter() chi.Router {
	classifier := market_regime.NewClassifier(config.DefaultPolicy().Market, zerolog.Nop())
	r := chi.NewRouter()
	NewHandler(classifier, zerolog.Nop()).RegisterRoutes(r)
	return r
}

func swings(n int, amp float64) []float64 {
	closes := []float64{100}
	for i := 1; i < n; i++ {
		ret := amp
		if i%2 == 0 {
			ret = -amp
		}
		closes = append(closes, closes[i-1]*(1+ret))
	}
	return closes
}

func TestAssessUpdatesSignal(t *testing.T) {
	r := newRouter()

	body, _ := json.Marshal(market_regime.Series{Closes: swings(60, 0.03)})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/market/assess", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Signal string `json:"signal"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "volatility_spike", resp.Data.Signal)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/market/signal", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "volatility_spike", resp.Data.Signal)
}

func TestAssessRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"closes":`},
		{name: "too short", body: `{"closes":[1,2,3]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/market/assess", bytes.NewBufferString(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
