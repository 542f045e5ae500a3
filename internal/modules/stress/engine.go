// Package stress applies named shock scenarios to portfolio snapshots:
// uniform or sensitivity-weighted market moves, volatility multipliers and
// correlation shocks, with per-asset loss attribution.
package stress

import (
	"math"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/modules/returns"
	"github.com/aristath/vigil/internal/modules/risk"
	"github.com/aristath/vigil/pkg/formulas"
	"github.com/rs/zerolog"
)

// Config holds the severity cut points on loss as a fraction of portfolio
// value.
type Config struct {
	SeverityLow  float64 // Below this: LOW
	SeverityMed  float64 // Below this: MEDIUM
	SeverityHigh float64 // Below this: HIGH, above: SEVERE
}

// DefaultConfig returns the documented severity boundaries: 5%, 15%, 30%.
func DefaultConfig() Config {
	return Config{SeverityLow: 0.05, SeverityMed: 0.15, SeverityHigh: 0.30}
}

// Engine applies stress scenarios to snapshots.
type Engine struct {
	cfg     Config
	builder *returns.Builder
	corr    *risk.CorrelationEstimator
	log     zerolog.Logger
}

// NewEngine creates a new stress test engine
func NewEngine(cfg Config, builder *returns.Builder, corr *risk.CorrelationEstimator, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		builder: builder,
		corr:    corr,
		log:     log.With().Str("component", "stress").Logger(),
	}
}

// Apply runs a single scenario against a snapshot.
func (e *Engine) Apply(snapshot domain.PortfolioSnapshot, scenario domain.StressScenario) (domain.StressTestResult, error) {
	if err := Validate(scenario); err != nil {
		return domain.StressTestResult{}, err
	}

	marketChange := scenario.MarketChangePct / 100

	impacts := make([]domain.AssetImpact, 0, len(snapshot.Positions))
	valueAfter := 0.0
	for _, pos := range snapshot.Positions {
		sensitivity := 1.0
		if s, ok := scenario.Sensitivities[pos.Symbol]; ok {
			sensitivity = s
		}
		before := pos.MarketValue()
		change := marketChange * sensitivity
		after := before * (1 + change)
		valueAfter += after
		impacts = append(impacts, domain.AssetImpact{
			Symbol:      pos.Symbol,
			ValueBefore: before,
			ValueAfter:  after,
			ValueChange: after - before,
			ChangePct:   change * 100,
		})
	}

	loss := snapshot.TotalValue - valueAfter
	lossPct := 0.0
	if snapshot.TotalValue > 0 {
		lossPct = loss / snapshot.TotalValue
	}

	result := domain.StressTestResult{
		ScenarioName:  scenario.Name,
		PortfolioLoss: loss,
		LossPct:       lossPct,
		ValueBefore:   snapshot.TotalValue,
		ValueAfter:    valueAfter,
		AssetImpacts:  impacts,
		Severity:      e.classify(lossPct),
		StressedVol:   e.stressedVolatility(snapshot, scenario),
	}

	e.log.Debug().Str("scenario", scenario.Name).Float64("loss", loss).
		Str("severity", string(result.Severity)).Msg("Applied stress scenario")
	return result, nil
}

// ApplyAll runs a batch of scenarios. All scenarios are validated before
// any is applied, so an invalid entry rejects the whole batch with no
// partial results.
func (e *Engine) ApplyAll(snapshot domain.PortfolioSnapshot, scenarios []domain.StressScenario) ([]domain.StressTestResult, error) {
	if len(scenarios) == 0 {
		return nil, domain.NewValidationError("scenarios", "at least one scenario is required")
	}
	for _, sc := range scenarios {
		if err := Validate(sc); err != nil {
			return nil, err
		}
	}

	results := make([]domain.StressTestResult, 0, len(scenarios))
	for _, sc := range scenarios {
		result, err := e.Apply(snapshot, sc)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Validate checks scenario parameter ranges.
func Validate(sc domain.StressScenario) error {
	if sc.MarketChangePct < -100 || sc.MarketChangePct > 100 {
		return domain.NewValidationError("marketChangePct", "must be in [-100, 100], got %v", sc.MarketChangePct)
	}
	if sc.VolatilityMultiplier <= 0 {
		return domain.NewValidationError("volatilityMultiplier", "must be positive, got %v", sc.VolatilityMultiplier)
	}
	if sc.CorrelationShock < 0 || sc.CorrelationShock > 1 {
		return domain.NewValidationError("correlationShock", "must be in [0, 1], got %v", sc.CorrelationShock)
	}
	return nil
}

func (e *Engine) classify(lossPct float64) domain.StressSeverity {
	switch {
	case lossPct < e.cfg.SeverityLow:
		return domain.SeverityLow
	case lossPct < e.cfg.SeverityMed:
		return domain.SeverityMedium
	case lossPct < e.cfg.SeverityHigh:
		return domain.SeverityHigh
	default:
		return domain.SeveritySevere
	}
}

// stressedVolatility recomputes the annualized portfolio volatility after
// scaling every asset volatility by the multiplier and blending the
// correlation matrix toward all-ones by the shock:
//
//	rho' = (1 - shock) * rho + shock
//
// Returns 0 when there is not enough history to estimate correlations.
func (e *Engine) stressedVolatility(snapshot domain.PortfolioSnapshot, scenario domain.StressScenario) float64 {
	series := e.builder.AssetSeries(snapshot)
	if len(series) == 0 {
		return 0
	}

	corr, err := e.corr.Estimate(series)
	if err != nil {
		e.log.Debug().Err(err).Msg("Skipping stressed volatility, correlation unavailable")
		return 0
	}

	aligned := returns.Align(series)
	variance := 0.0
	for i, si := range corr.Symbols {
		wi := snapshot.Weight(si)
		voli := formulas.AnnualizedVolatility(aligned[si].Returns) * scenario.VolatilityMultiplier
		for j, sj := range corr.Symbols {
			wj := snapshot.Weight(sj)
			volj := formulas.AnnualizedVolatility(aligned[sj].Returns) * scenario.VolatilityMultiplier
			rho := corr.Matrix.At(i, j)
			if i != j {
				rho = (1-scenario.CorrelationShock)*rho + scenario.CorrelationShock
			}
			variance += wi * wj * voli * volj * rho
		}
	}
	if variance < 0 {
		return 0
	}
	return math.Sqrt(variance)
}
