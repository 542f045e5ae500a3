// Package handlers provides the HTTP surface of the risk engine: metrics,
// stress tests, simulations, limits, liquidity and reports.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/events"
	"github.com/aristath/vigil/internal/modules/calculations"
	"github.com/aristath/vigil/internal/modules/limits"
	"github.com/aristath/vigil/internal/modules/liquidity"
	"github.com/aristath/vigil/internal/modules/montecarlo"
	"github.com/aristath/vigil/internal/modules/reports"
	"github.com/aristath/vigil/internal/modules/risk"
	"github.com/aristath/vigil/internal/modules/stress"
	"github.com/rs/zerolog"
)

// SnapshotProviderInterface defines the contract for snapshot access
// Used by handlers to enable testing with mocks
type SnapshotProviderInterface interface {
	Snapshot(portfolioID string) (domain.PortfolioSnapshot, error)
}

// LimitRepositoryInterface defines the contract for limit persistence
type LimitRepositoryInterface interface {
	Get(portfolioID string) (domain.RiskLimitSet, error)
	Put(set domain.RiskLimitSet) error
}

// Handler handles risk engine HTTP requests
type Handler struct {
	portfolios SnapshotProviderInterface
	calc       *risk.Calculator
	corr       *risk.CorrelationEstimator
	stress     *stress.Engine
	sim        *montecarlo.Simulator
	liquidity  *liquidity.Analyzer
	limitsRepo LimitRepositoryInterface
	monitor    *limits.Monitor
	composer   *reports.Composer
	cache      *calculations.Cache // Optional
	bus        *events.Bus
	log        zerolog.Logger
}

// NewHandler creates a new risk engine handler
func NewHandler(
	portfolios SnapshotProviderInterface,
	calc *risk.Calculator,
	corr *risk.CorrelationEstimator,
	engine *stress.Engine,
	sim *montecarlo.Simulator,
	analyzer *liquidity.Analyzer,
	limitsRepo LimitRepositoryInterface,
	monitor *limits.Monitor,
	composer *reports.Composer,
	cache *calculations.Cache,
	bus *events.Bus,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		portfolios: portfolios,
		calc:       calc,
		corr:       corr,
		stress:     engine,
		sim:        sim,
		liquidity:  analyzer,
		limitsRepo: limitsRepo,
		monitor:    monitor,
		composer:   composer,
		cache:      cache,
		bus:        bus,
		log:        log.With().Str("handler", "risk").Logger(),
	}
}

// HandleGetMetrics handles GET /api/risk/portfolio/{id}/metrics
func (h *Handler) HandleGetMetrics(w http.ResponseWriter, r *http.Request, portfolioID string) {
	opts := risk.Options{
		ConfidenceLevel: queryFloat(r, "confidence", 0.95),
		TimeHorizon:     domain.TimeHorizon(queryString(r, "horizon", string(domain.Horizon1D))),
		Method:          queryString(r, "method", risk.MethodHistorical),
	}

	snapshot, err := h.portfolios.Snapshot(portfolioID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	metrics, err := h.calc.Compute(snapshot, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}

	data := map[string]interface{}{"metrics": metrics}
	if queryBool(r, "includeCorrelations") {
		correlations, err := h.correlations(snapshot)
		if err != nil {
			h.writeError(w, err)
			return
		}
		data["correlations"] = correlations
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

// HandleGetMetricsHistory handles GET /api/risk/portfolio/{id}/metrics/history
// Metrics are recomputed per day from the stored price history over a
// trailing window; nothing is read from a results store.
func (h *Handler) HandleGetMetricsHistory(w http.ResponseWriter, r *http.Request, portfolioID string) {
	days := queryInt(r, "days", 30)
	if days <= 0 || days > 365 {
		h.writeError(w, domain.NewValidationError("days", "must be in [1, 365], got %d", days))
		return
	}

	snapshot, err := h.portfolios.Snapshot(portfolioID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	type point struct {
		Date    string                   `json:"date"`
		Metrics domain.RiskMetricsResult `json:"metrics"`
	}
	history := make([]point, 0, days)
	for offset := days - 1; offset >= 0; offset-- {
		past := snapshotAsOf(snapshot, offset)
		metrics, err := h.calc.Compute(past, risk.Options{
			ConfidenceLevel: queryFloat(r, "confidence", 0.95),
			TimeHorizon:     domain.Horizon1D,
		})
		if err != nil {
			if domain.IsInsufficientData(err) {
				continue
			}
			h.writeError(w, err)
			return
		}
		history = append(history, point{Date: past.AsOf.Format("2006-01-02"), Metrics: metrics})
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"portfolio_id": portfolioID,
		"days":         days,
		"history":      history,
	}))
}

// HandleGetPositionRisks handles GET /api/risk/portfolio/{id}/positions
func (h *Handler) HandleGetPositionRisks(w http.ResponseWriter, r *http.Request, portfolioID string) {
	snapshot, err := h.portfolios.Snapshot(portfolioID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	risks, err := h.calc.PositionRisks(snapshot, queryFloat(r, "confidence", 0.95))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"portfolio_id": portfolioID,
		"positions":    risks,
	}))
}

// HandleStressTest handles POST /api/risk/portfolio/{id}/stress
func (h *Handler) HandleStressTest(w http.ResponseWriter, r *http.Request, portfolioID string) {
	var body struct {
		Scenarios []domain.StressScenario `json:"scenarios"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, domain.NewValidationError("body", "invalid JSON: %v", err))
		return
	}
	scenarios := body.Scenarios
	if len(scenarios) == 0 {
		scenarios = reports.DefaultScenarios()
	}

	snapshot, err := h.portfolios.Snapshot(portfolioID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	results, err := h.stress.ApplyAll(snapshot, scenarios)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"portfolio_id": portfolioID,
		"results":      results,
	}))
}

// HandleSimulate handles POST /api/risk/portfolio/{id}/simulate
func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request, portfolioID string) {
	var body struct {
		NumberOfSimulations int                `json:"numberOfSimulations"`
		TimeHorizon         domain.TimeHorizon `json:"timeHorizon"`
		Seed                int64              `json:"seed"`
		ConfidenceLevel     float64            `json:"confidenceLevel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, domain.NewValidationError("body", "invalid JSON: %v", err))
		return
	}
	if body.TimeHorizon == "" {
		body.TimeHorizon = domain.Horizon1M
	}

	snapshot, err := h.portfolios.Snapshot(portfolioID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.sim.Simulate(snapshot, montecarlo.Options{
		Paths:         body.NumberOfSimulations,
		TimeHorizon:   body.TimeHorizon,
		Seed:          body.Seed,
		VaRConfidence: body.ConfidenceLevel,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(result))
}

// HandleGetLimits handles GET /api/risk/portfolio/{id}/limits
func (h *Handler) HandleGetLimits(w http.ResponseWriter, r *http.Request, portfolioID string) {
	set, err := h.limitsRepo.Get(portfolioID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(set))
}

// HandlePutLimits handles PUT /api/risk/portfolio/{id}/limits
func (h *Handler) HandlePutLimits(w http.ResponseWriter, r *http.Request, portfolioID string) {
	var set domain.RiskLimitSet
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		h.writeError(w, domain.NewValidationError("body", "invalid JSON: %v", err))
		return
	}
	set.PortfolioID = portfolioID

	if err := h.limitsRepo.Put(set); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(set))
}

// HandleCheckLimits handles GET /api/risk/portfolio/{id}/limits/check
func (h *Handler) HandleCheckLimits(w http.ResponseWriter, r *http.Request, portfolioID string) {
	set, err := h.limitsRepo.Get(portfolioID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	snapshot, err := h.portfolios.Snapshot(portfolioID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	metrics, err := h.calc.Compute(snapshot, risk.Options{
		ConfidenceLevel: queryFloat(r, "confidence", 0.95),
		TimeHorizon:     domain.Horizon1D,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	check := h.monitor.Check(limits.Observe(metrics, snapshot), set)
	if !check.AllWithinLimits && h.bus != nil {
		h.bus.Publish("risk", &events.LimitBreachData{
			PortfolioID: portfolioID,
			Breaches:    check.Breaches,
		})
	}
	h.writeJSON(w, http.StatusOK, envelope(check))
}

// HandleGetLiquidity handles GET /api/risk/portfolio/{id}/liquidity
func (h *Handler) HandleGetLiquidity(w http.ResponseWriter, r *http.Request, portfolioID string) {
	snapshot, err := h.portfolios.Snapshot(portfolioID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	profile, err := h.liquidity.Analyze(snapshot)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(profile))
}

// HandleReport handles POST /api/risk/portfolio/{id}/report
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request, portfolioID string) {
	var body struct {
		ReportType    string    `json:"reportType"`
		StartDate     time.Time `json:"startDate"`
		EndDate       time.Time `json:"endDate"`
		IncludeCharts bool      `json:"includeCharts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, domain.NewValidationError("body", "invalid JSON: %v", err))
		return
	}

	snapshot, err := h.portfolios.Snapshot(portfolioID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	portfolioReturns, err := h.calc.PortfolioReturns(snapshot)
	if err != nil {
		h.writeError(w, err)
		return
	}

	report, err := h.composer.Compose(snapshot, portfolioReturns, reports.Options{
		Type:          body.ReportType,
		StartDate:     body.StartDate,
		EndDate:       body.EndDate,
		IncludeCharts: body.IncludeCharts,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(report))
}

// HandleCompare handles POST /api/risk/compare
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PortfolioIDs []string `json:"portfolioIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, domain.NewValidationError("body", "invalid JSON: %v", err))
		return
	}
	if len(body.PortfolioIDs) < 2 {
		h.writeError(w, domain.NewValidationError("portfolioIds", "at least two portfolios are required"))
		return
	}

	perPortfolio := make(map[string]domain.RiskMetricsResult, len(body.PortfolioIDs))
	var riskiest, safest string
	var highestRatio, lowestRatio float64
	for i, id := range body.PortfolioIDs {
		snapshot, err := h.portfolios.Snapshot(id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		metrics, err := h.calc.Compute(snapshot, risk.Options{
			ConfidenceLevel: 0.95,
			TimeHorizon:     domain.Horizon1D,
		})
		if err != nil {
			h.writeError(w, err)
			return
		}
		perPortfolio[id] = metrics

		ratio := 0.0
		if metrics.PortfolioValue > 0 {
			ratio = metrics.ValueAtRisk / metrics.PortfolioValue
		}
		if i == 0 || ratio > highestRatio {
			highestRatio, riskiest = ratio, id
		}
		if i == 0 || ratio < lowestRatio {
			lowestRatio, safest = ratio, id
		}
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"portfolios": perPortfolio,
		"comparison": map[string]interface{}{
			"highest_risk": riskiest,
			"lowest_risk":  safest,
		},
	}))
}

// correlations estimates the correlation matrix for a snapshot, consulting
// the cache first when one is wired.
func (h *Handler) correlations(snapshot domain.PortfolioSnapshot) (map[string]interface{}, error) {
	series := h.calc.AssetSeries(snapshot)
	symbols := make([]string, 0, len(series))
	for symbol := range series {
		symbols = append(symbols, symbol)
	}

	var corr risk.Correlations
	var ok bool
	if h.cache != nil {
		corr, ok = h.cache.GetCorrelations(symbols)
	}
	if !ok {
		var err error
		corr, err = h.corr.Estimate(series)
		if err != nil {
			return nil, err
		}
		if h.cache != nil {
			if err := h.cache.PutCorrelations(corr); err != nil {
				h.log.Warn().Err(err).Msg("Failed to cache correlation matrix")
			}
		}
	}

	n := len(corr.Symbols)
	matrix := make([][]float64, n)
	for i := 0; i < n; i++ {
		matrix[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			matrix[i][j] = corr.Matrix.At(i, j)
		}
	}
	return map[string]interface{}{"symbols": corr.Symbols, "matrix": matrix}, nil
}

// snapshotAsOf rewinds a snapshot by trimming the trailing offset days off
// every position's price history.
func snapshotAsOf(snapshot domain.PortfolioSnapshot, offset int) domain.PortfolioSnapshot {
	if offset <= 0 {
		return snapshot
	}

	out := snapshot
	out.Positions = make([]domain.Position, 0, len(snapshot.Positions))
	total := 0.0
	for _, pos := range snapshot.Positions {
		if len(pos.PriceHistory) > offset {
			pos.PriceHistory = pos.PriceHistory[:len(pos.PriceHistory)-offset]
			pos.CurrentPrice = pos.PriceHistory[len(pos.PriceHistory)-1]
		} else {
			// No price is known that far back. Value the position at cost
			// basis as the as-of estimate instead of today's price.
			pos.PriceHistory = nil
			if pos.AverageCost > 0 {
				pos.CurrentPrice = pos.AverageCost
			}
		}
		total += pos.MarketValue()
		out.Positions = append(out.Positions, pos)
	}
	out.TotalValue = total
	out.AsOf = snapshot.AsOf.AddDate(0, 0, -offset)
	return out
}

// envelope wraps response data with metadata.
func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case domain.IsInsufficientData(err):
		status = http.StatusUnprocessableEntity
	case domain.IsComputation(err):
		status = http.StatusInternalServerError
	}

	if status >= 500 {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}

func queryString(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	if v := r.URL.Query().Get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func queryBool(r *http.Request, key string) bool {
	v := r.URL.Query().Get(key)
	return v == "true" || v == "1"
}
