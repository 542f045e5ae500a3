// Package limits evaluates portfolio risk state against configured bounds
// and persists the per-portfolio limit sets.
package limits

import (
	"math"
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/rs/zerolog"
)

// Observation is the metric set a limit check runs against.
type Observation struct {
	MaxDrawdownPct   float64 // Positive percent
	VaR              float64 // Absolute amount
	Leverage         float64 // Gross exposure over net value
	ConcentrationPct float64 // Largest single-asset weight, percent
	VolatilityPct    float64 // Annualized, percent
	SharpeRatio      float64
}

// Observe derives an Observation from computed metrics and the snapshot.
func Observe(metrics domain.RiskMetricsResult, snapshot domain.PortfolioSnapshot) Observation {
	gross := 0.0
	largest := 0.0
	for _, pos := range snapshot.Positions {
		v := math.Abs(pos.MarketValue())
		gross += v
		if w := math.Abs(snapshot.Weight(pos.Symbol)); w > largest {
			largest = w
		}
	}
	leverage := 0.0
	if snapshot.TotalValue > 0 {
		leverage = gross / snapshot.TotalValue
	}

	return Observation{
		MaxDrawdownPct:   math.Abs(metrics.MaxDrawdown) * 100,
		VaR:              math.Abs(metrics.ValueAtRisk),
		Leverage:         leverage,
		ConcentrationPct: largest * 100,
		VolatilityPct:    metrics.Volatility * 100,
		SharpeRatio:      metrics.SharpeRatio,
	}
}

// Monitor evaluates observations against limit sets. Pure comparison, no
// I/O.
type Monitor struct {
	log zerolog.Logger
}

// NewMonitor creates a new risk limit monitor
func NewMonitor(log zerolog.Logger) *Monitor {
	return &Monitor{log: log.With().Str("component", "limits").Logger()}
}

// Check compares each configured bound against the observation. Max-type
// limits breach when the observed value exceeds the bound, min-type limits
// when it falls short. An inactive limit set never breaches.
func (m *Monitor) Check(obs Observation, set domain.RiskLimitSet) domain.RiskLimitCheck {
	check := domain.RiskLimitCheck{
		PortfolioID: set.PortfolioID,
		Breaches:    []domain.LimitBreach{},
		CheckedAt:   time.Now().UTC(),
	}
	if set.Active {
		check.Breaches = append(check.Breaches, maxBreach("max_drawdown_pct", set.MaxDrawdownPct, obs.MaxDrawdownPct)...)
		check.Breaches = append(check.Breaches, maxBreach("max_var", set.MaxVaR, obs.VaR)...)
		check.Breaches = append(check.Breaches, maxBreach("max_leverage", set.MaxLeverage, obs.Leverage)...)
		check.Breaches = append(check.Breaches, maxBreach("max_concentration_pct", set.MaxConcentrationPct, obs.ConcentrationPct)...)
		check.Breaches = append(check.Breaches, maxBreach("max_volatility_pct", set.MaxVolatilityPct, obs.VolatilityPct)...)
		check.Breaches = append(check.Breaches, minBreach("min_sharpe_ratio", set.MinSharpeRatio, obs.SharpeRatio)...)
	}
	check.AllWithinLimits = len(check.Breaches) == 0

	if !check.AllWithinLimits {
		m.log.Warn().Str("portfolio_id", set.PortfolioID).
			Int("breaches", len(check.Breaches)).Msg("Risk limit breach detected")
	}
	return check
}

func maxBreach(name string, limit *float64, observed float64) []domain.LimitBreach {
	if limit == nil || observed <= *limit {
		return nil
	}
	return []domain.LimitBreach{{LimitName: name, Configured: *limit, Observed: observed}}
}

func minBreach(name string, limit *float64, observed float64) []domain.LimitBreach {
	if limit == nil || observed >= *limit {
		return nil
	}
	return []domain.LimitBreach{{LimitName: name, Configured: *limit, Observed: observed}}
}
