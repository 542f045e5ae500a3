package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/events"
	"github.com/aristath/vigil/internal/modules/backtest"
	"github.com/aristath/vigil/internal/modules/limits"
	"github.com/aristath/vigil/internal/modules/liquidity"
	"github.com/aristath/vigil/internal/modules/montecarlo"
	"github.com/aristath/vigil/internal/modules/reports"
	"github.com/aristath/vigil/internal/modules/returns"
	"github.com/aristath/vigil/internal/modules/risk"
	"github.com/aristath/vigil/internal/modules/stress"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshots struct {
	snapshots map[string]domain.PortfolioSnapshot
}

func (f *fakeSnapshots) Snapshot(portfolioID string) (domain.PortfolioSnapshot, error) {
	snap, ok := f.snapshots[portfolioID]
	if !ok {
		return domain.PortfolioSnapshot{}, &domain.NotFoundError{Entity: "portfolio", ID: portfolioID}
	}
	return snap, nil
}

type fakeLimitRepo struct {
	sets map[string]domain.RiskLimitSet
}

func (f *fakeLimitRepo) Get(portfolioID string) (domain.RiskLimitSet, error) {
	set, ok := f.sets[portfolioID]
	if !ok {
		return domain.RiskLimitSet{}, &domain.NotFoundError{Entity: "risk limits", ID: portfolioID}
	}
	return set, nil
}

func (f *fakeLimitRepo) Put(set domain.RiskLimitSet) error {
	f.sets[set.PortfolioID] = set
	return nil
}

func testPrices(n int, start, step float64) []float64 {
	prices := make([]float64, n)
	p := start
	for i := 0; i < n; i++ {
		prices[i] = p
		if i%2 == 0 {
			p *= 1 + step
		} else {
			p *= 1 - step
		}
	}
	return prices
}

func testSnapshot() domain.PortfolioSnapshot {
	aaa := testPrices(61, 100, 0.012)
	bbb := testPrices(61, 200, 0.008)
	snap := domain.PortfolioSnapshot{
		PortfolioID: "p1",
		Currency:    domain.CurrencyEUR,
		Positions: []domain.Position{
			{Symbol: "AAPL", Quantity: 10, AverageCost: 90, CurrentPrice: aaa[60], PriceHistory: aaa, AvgDailyVolume: 100000},
			{Symbol: "GOOGL", Quantity: 5, AverageCost: 180, CurrentPrice: bbb[60], PriceHistory: bbb, AvgDailyVolume: 80000},
		},
	}
	snap.TotalValue = snap.Positions[0].MarketValue() + snap.Positions[1].MarketValue()
	return snap
}

func newTestRouter(t *testing.T) (*chi.Mux, *fakeLimitRepo, *events.Bus) {
	t.Helper()
	log := zerolog.Nop()
	builder := returns.NewBuilder(log)
	corr := risk.NewCorrelationEstimator(log)
	sim := montecarlo.NewSimulator(builder, corr, 2, log)
	calc := risk.NewCalculator(risk.DefaultConfig(), builder, sim, log)
	engine := stress.NewEngine(stress.DefaultConfig(), builder, corr, log)
	analyzer := liquidity.NewAnalyzer(liquidity.DefaultConfig(), log)
	composer := reports.NewComposer(calc, engine, backtest.NewValidator(backtest.DefaultSignificance, log), analyzer, log)

	limitRepo := &fakeLimitRepo{sets: make(map[string]domain.RiskLimitSet)}
	bus := events.NewBus(log)
	h := NewHandler(
		&fakeSnapshots{snapshots: map[string]domain.PortfolioSnapshot{"p1": testSnapshot()}},
		calc, corr, engine, sim, analyzer, limitRepo, limits.NewMonitor(log), composer, nil, bus, log,
	)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		h.RegisterRoutes(r)
	})
	return r, limitRepo, bus
}

func doRequest(t *testing.T, router *chi.Mux, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHandler_GetMetrics(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, body := doRequest(t, router, http.MethodGet, "/api/risk/portfolio/p1/metrics?confidence=0.95&horizon=1D", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	metrics := data["metrics"].(map[string]interface{})
	assert.Greater(t, metrics["value_at_risk"].(float64), 0.0)
	assert.Equal(t, "historical", metrics["var_method"])
	assert.NotEmpty(t, body["metadata"])
}

func TestHandler_GetMetrics_IncludeCorrelations(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, body := doRequest(t, router, http.MethodGet, "/api/risk/portfolio/p1/metrics?includeCorrelations=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	correlations := data["correlations"].(map[string]interface{})
	assert.Len(t, correlations["symbols"], 2)
	assert.Len(t, correlations["matrix"], 2)
}

func TestHandler_GetMetrics_Validation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, body := doRequest(t, router, http.MethodGet, "/api/risk/portfolio/p1/metrics?confidence=1.5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "confidenceLevel")

	rec, _ = doRequest(t, router, http.MethodGet, "/api/risk/portfolio/p1/metrics?horizon=7Y", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetMetrics_UnknownPortfolio(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, _ := doRequest(t, router, http.MethodGet, "/api/risk/portfolio/ghost/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_GetPositionRisks(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, body := doRequest(t, router, http.MethodGet, "/api/risk/portfolio/p1/positions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	assert.Len(t, data["positions"], 2)
}

func TestHandler_StressTest(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, body := doRequest(t, router, http.MethodPost, "/api/risk/portfolio/p1/stress", map[string]interface{}{
		"scenarios": []map[string]interface{}{
			{"name": "crash", "market_change_pct": -30, "volatility_multiplier": 2.0, "correlation_shock": 0.2},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	results := data["results"].([]interface{})
	require.Len(t, results, 1)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "crash", first["scenario_name"])
	assert.Equal(t, "SEVERE", first["severity"])
}

func TestHandler_StressTest_DefaultBattery(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, body := doRequest(t, router, http.MethodPost, "/api/risk/portfolio/p1/stress", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	assert.Len(t, data["results"], 3)
}

func TestHandler_StressTest_InvalidScenario(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, _ := doRequest(t, router, http.MethodPost, "/api/risk/portfolio/p1/stress", map[string]interface{}{
		"scenarios": []map[string]interface{}{
			{"name": "bad", "market_change_pct": -200, "volatility_multiplier": 1.0},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Simulate(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, body := doRequest(t, router, http.MethodPost, "/api/risk/portfolio/p1/simulate", map[string]interface{}{
		"numberOfSimulations": 500,
		"timeHorizon":         "1M",
		"seed":                42,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(500), data["number_of_paths"])
	assert.Equal(t, float64(42), data["seed"])
	percentiles := data["percentiles"].(map[string]interface{})
	assert.Contains(t, percentiles, "p50")
}

func TestHandler_Simulate_CapRejected(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, body := doRequest(t, router, http.MethodPost, "/api/risk/portfolio/p1/simulate", map[string]interface{}{
		"numberOfSimulations": 20000,
		"timeHorizon":         "1M",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "Maximum 10000 simulations")
}

func TestHandler_LimitsRoundTrip(t *testing.T) {
	router, _, bus := newTestRouter(t)
	ch, cancel := bus.Subscribe()
	defer cancel()

	rec, _ := doRequest(t, router, http.MethodPut, "/api/risk/portfolio/p1/limits", map[string]interface{}{
		"max_var": 1.0,
		"active":  true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := doRequest(t, router, http.MethodGet, "/api/risk/portfolio/p1/limits", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, 1.0, data["max_var"])

	// The 1 EUR VaR bound is guaranteed breached.
	rec, body = doRequest(t, router, http.MethodGet, "/api/risk/portfolio/p1/limits/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, false, data["all_within_limits"])

	select {
	case event := <-ch:
		assert.Equal(t, events.LimitBreach, event.Type)
	default:
		t.Fatal("expected a breach event on the bus")
	}
}

func TestHandler_GetLimits_Unconfigured(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, _ := doRequest(t, router, http.MethodGet, "/api/risk/portfolio/p1/limits", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_GetLiquidity(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, body := doRequest(t, router, http.MethodGet, "/api/risk/portfolio/p1/liquidity", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	assert.Len(t, data["assets"], 2)
	assert.Greater(t, data["portfolio_score"].(float64), 0.0)
}

func TestHandler_Report(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, body := doRequest(t, router, http.MethodPost, "/api/risk/portfolio/p1/report", map[string]interface{}{
		"reportType": "DETAILED",
		"startDate":  "2025-01-01T00:00:00Z",
		"endDate":    "2025-06-30T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "DETAILED", data["report_type"])
	assert.Len(t, data["stress_results"], 3)
}

func TestHandler_Report_InvalidDateRange(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, _ := doRequest(t, router, http.MethodPost, "/api/risk/portfolio/p1/report", map[string]interface{}{
		"reportType": "SUMMARY",
		"startDate":  "2025-06-30T00:00:00Z",
		"endDate":    "2025-01-01T00:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_MetricsHistory(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, body := doRequest(t, router, http.MethodGet, "/api/risk/portfolio/p1/metrics/history?days=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	history := data["history"].([]interface{})
	assert.Len(t, history, 5)

	rec, _ = doRequest(t, router, http.MethodGet, "/api/risk/portfolio/p1/metrics/history?days=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Compare(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, _ := doRequest(t, router, http.MethodPost, "/api/risk/compare", map[string]interface{}{
		"portfolioIds": []string{"p1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := doRequest(t, router, http.MethodPost, "/api/risk/compare", map[string]interface{}{
		"portfolioIds": []string{"p1", "p1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Contains(t, data, "comparison")
}

func TestSnapshotAsOf_ShortHistoryFallsBackToCost(t *testing.T) {
	snap := domain.PortfolioSnapshot{
		PortfolioID: "p1",
		Positions: []domain.Position{
			{Symbol: "NEW", Quantity: 4, AverageCost: 50, CurrentPrice: 80, PriceHistory: []float64{78, 80}},
			{Symbol: "OLD", Quantity: 2, AverageCost: 10, CurrentPrice: 25, PriceHistory: []float64{20, 21, 22, 23, 24, 25, 25, 25}},
		},
		TotalValue: 4*80 + 2*25,
	}

	past := snapshotAsOf(snap, 5)
	require.Len(t, past.Positions, 2)

	// The young position is valued at cost basis, not today's price.
	young := past.Positions[0]
	assert.Nil(t, young.PriceHistory)
	assert.Equal(t, 50.0, young.CurrentPrice)

	old := past.Positions[1]
	assert.Equal(t, []float64{20, 21, 22}, old.PriceHistory)
	assert.Equal(t, 22.0, old.CurrentPrice)

	assert.Equal(t, 4*50.0+2*22.0, past.TotalValue)
}
