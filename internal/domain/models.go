// Package domain provides the core value objects for the risk engine.
// Everything here is created per request from caller-supplied inputs and is
// never mutated across calls.
package domain

import "time"

// Currency represents a currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

// AssetClass classifies a position's instrument type
type AssetClass string

const (
	AssetClassEquity    AssetClass = "EQUITY"
	AssetClassETF       AssetClass = "ETF"
	AssetClassBond      AssetClass = "BOND"
	AssetClassCommodity AssetClass = "COMMODITY"
	AssetClassCrypto    AssetClass = "CRYPTO"
)

// TimeHorizon is a supported risk horizon label
type TimeHorizon string

const (
	Horizon1D TimeHorizon = "1D"
	Horizon1W TimeHorizon = "1W"
	Horizon1M TimeHorizon = "1M"
	Horizon3M TimeHorizon = "3M"
	Horizon6M TimeHorizon = "6M"
	Horizon1Y TimeHorizon = "1Y"
)

// HorizonPeriods maps a horizon label to its trading-day count, used for
// square-root-of-time VaR scaling.
var HorizonPeriods = map[TimeHorizon]int{
	Horizon1D: 1,
	Horizon1W: 5,
	Horizon1M: 21,
	Horizon3M: 63,
	Horizon6M: 126,
	Horizon1Y: 252,
}

// RiskLevel classifies overall portfolio risk
type RiskLevel string

const (
	RiskLevelLow     RiskLevel = "LOW"
	RiskLevelMedium  RiskLevel = "MEDIUM"
	RiskLevelHigh    RiskLevel = "HIGH"
	RiskLevelExtreme RiskLevel = "EXTREME"
)

// Position represents a portfolio position with its price history.
// PriceHistory is ordered by time, ascending.
type Position struct {
	Symbol       string     `json:"symbol"`
	AssetClass   AssetClass `json:"asset_class"`
	Quantity     float64    `json:"quantity"`
	AverageCost  float64    `json:"average_cost"`
	CurrentPrice float64    `json:"current_price"`
	PriceHistory []float64  `json:"price_history,omitempty"`
	// AvgDailyVolume is the average daily traded quantity, used by the
	// liquidity analyzer. Zero means unknown.
	AvgDailyVolume float64 `json:"avg_daily_volume,omitempty"`
}

// MarketValue returns quantity × current price.
func (p Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// UnrealizedPnL returns market value minus cost basis.
func (p Position) UnrealizedPnL() float64 {
	return p.MarketValue() - p.Quantity*p.AverageCost
}

// PortfolioSnapshot is an immutable snapshot of a portfolio at a point in
// time. TotalValue always equals the sum of constituent position values.
type PortfolioSnapshot struct {
	PortfolioID string     `json:"portfolio_id"`
	Currency    Currency   `json:"currency"`
	Positions   []Position `json:"positions"`
	TotalValue  float64    `json:"total_value"`
	AsOf        time.Time  `json:"as_of"`
}

// Weight returns the position's share of total snapshot value, 0 when the
// snapshot is empty.
func (s PortfolioSnapshot) Weight(symbol string) float64 {
	if s.TotalValue <= 0 {
		return 0
	}
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p.MarketValue() / s.TotalValue
		}
	}
	return 0
}

// ReturnSeries is an ordered sequence of periodic (daily) returns.
type ReturnSeries struct {
	Symbol  string    `json:"symbol,omitempty"` // Empty for portfolio-level series
	Returns []float64 `json:"returns"`
}

// Len returns the number of observations.
func (rs ReturnSeries) Len() int { return len(rs.Returns) }

// RiskMetricsResult is the immutable output of a metrics computation.
type RiskMetricsResult struct {
	PortfolioID     string      `json:"portfolio_id"`
	ValueAtRisk     float64     `json:"value_at_risk"`      // Positive loss amount at the horizon
	VaRMethod       string      `json:"var_method"`         // historical, parametric, monte_carlo
	ConfidenceLevel float64     `json:"confidence_level"`
	TimeHorizon     TimeHorizon `json:"time_horizon"`
	Volatility      float64     `json:"volatility"`      // Annualized
	EWMAVolatility  float64     `json:"ewma_volatility"` // Annualized, RiskMetrics lambda
	SharpeRatio     float64     `json:"sharpe_ratio"`
	MaxDrawdown     float64     `json:"max_drawdown"` // Non-positive fraction
	Beta            float64     `json:"beta"`
	RiskLevel       RiskLevel   `json:"risk_level"`
	PortfolioValue  float64     `json:"portfolio_value"`
	Observations    int         `json:"observations"`
	// LowConfidence is set when the return series is shorter than the
	// stable-tail threshold (~30 observations) and the estimate is noisy.
	LowConfidence bool      `json:"low_confidence,omitempty"`
	ComputedAt    time.Time `json:"computed_at"`
}

// PositionRisk is the per-position risk decomposition.
type PositionRisk struct {
	Symbol            string  `json:"symbol"`
	MarketValue       float64 `json:"market_value"`
	Weight            float64 `json:"weight"`
	IndividualVaR     float64 `json:"individual_var"`
	Volatility        float64 `json:"volatility"`
	ConcentrationRisk float64 `json:"concentration_risk"` // Weight expressed as 0..1
}

// StressSeverity classifies a stress loss relative to portfolio value
type StressSeverity string

const (
	SeverityLow    StressSeverity = "LOW"
	SeverityMedium StressSeverity = "MEDIUM"
	SeverityHigh   StressSeverity = "HIGH"
	SeveritySevere StressSeverity = "SEVERE"
)

// StressScenario is a named shock applied to a snapshot.
type StressScenario struct {
	Name string `json:"name"`
	// MarketChangePct is applied uniformly unless Sensitivities provides
	// per-symbol overrides. Range [-100, 100].
	MarketChangePct      float64 `json:"market_change_pct"`
	VolatilityMultiplier float64 `json:"volatility_multiplier"` // > 0
	CorrelationShock     float64 `json:"correlation_shock"`     // [0,1], blend toward fully correlated
	Duration             string  `json:"duration,omitempty"`
	// Sensitivities optionally maps symbol -> shock multiplier relative to
	// MarketChangePct (e.g. beta-style asset-level sensitivity).
	Sensitivities map[string]float64 `json:"sensitivities,omitempty"`
}

// AssetImpact is one position's contribution to a stress loss.
type AssetImpact struct {
	Symbol      string  `json:"symbol"`
	ValueBefore float64 `json:"value_before"`
	ValueAfter  float64 `json:"value_after"`
	ValueChange float64 `json:"value_change"`
	ChangePct   float64 `json:"change_pct"`
}

// StressTestResult is the outcome of applying one scenario.
type StressTestResult struct {
	ScenarioName  string         `json:"scenario_name"`
	PortfolioLoss float64        `json:"portfolio_loss"` // Positive = loss
	LossPct       float64        `json:"loss_pct"`
	ValueBefore   float64        `json:"value_before"`
	ValueAfter    float64        `json:"value_after"`
	AssetImpacts  []AssetImpact  `json:"asset_impacts"`
	Severity      StressSeverity `json:"severity"`
	StressedVol   float64        `json:"stressed_volatility"` // Annualized, post-shock
}

// SimulationResult summarizes a Monte Carlo run.
type SimulationResult struct {
	PortfolioID     string             `json:"portfolio_id"`
	NumberOfPaths   int                `json:"number_of_paths"`
	TimeHorizon     TimeHorizon        `json:"time_horizon"`
	ExpectedReturn  float64            `json:"expected_return"`
	ProbabilityLoss float64            `json:"probability_of_loss"`
	Percentiles     map[string]float64 `json:"percentiles"` // p1, p5, p25, p50, p75, p95, p99
	VaR             float64            `json:"value_at_risk"`
	Seed            int64              `json:"seed"`
	ComputedAt      time.Time          `json:"computed_at"`
}

// BacktestResult is the outcome of a Kupiec proportion-of-failures test.
type BacktestResult struct {
	Observations      int     `json:"observations"`
	Violations        int     `json:"violations"`
	ExpectedRate      float64 `json:"expected_rate"`
	ObservedRate      float64 `json:"observed_rate"`
	KupiecStatistic   float64 `json:"kupiec_statistic"`
	PValue            float64 `json:"p_value"`
	SignificanceLevel float64 `json:"significance_level"`
	Passed            bool    `json:"passed"`
}

// RiskLimitSet holds per-portfolio bounds. Nil pointer = unconstrained.
type RiskLimitSet struct {
	PortfolioID         string    `json:"portfolio_id"`
	MaxDrawdownPct      *float64  `json:"max_drawdown_pct,omitempty"`      // Max-type, percent
	MaxVaR              *float64  `json:"max_var,omitempty"`               // Max-type, absolute amount
	MaxLeverage         *float64  `json:"max_leverage,omitempty"`          // Max-type
	MaxConcentrationPct *float64  `json:"max_concentration_pct,omitempty"` // Max-type, percent of value in one asset
	MaxVolatilityPct    *float64  `json:"max_volatility_pct,omitempty"`    // Max-type, percent
	MinSharpeRatio      *float64  `json:"min_sharpe_ratio,omitempty"`      // Min-type
	Active              bool      `json:"active"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// LimitBreach records one violated bound.
type LimitBreach struct {
	LimitName  string  `json:"limit_name"`
	Configured float64 `json:"configured"`
	Observed   float64 `json:"observed"`
}

// RiskLimitCheck is the outcome of evaluating a limit set.
type RiskLimitCheck struct {
	PortfolioID     string        `json:"portfolio_id"`
	Breaches        []LimitBreach `json:"breaches"`
	AllWithinLimits bool          `json:"all_within_limits"`
	CheckedAt       time.Time     `json:"checked_at"`
}

// AssetLiquidity is the per-asset liquidity assessment.
type AssetLiquidity struct {
	Symbol                  string  `json:"symbol"`
	LiquidityScore          float64 `json:"liquidity_score"` // 0 (illiquid) .. 100 (liquid)
	DaysToLiquidate         float64 `json:"days_to_liquidate"`
	StressedDaysToLiquidate float64 `json:"stressed_days_to_liquidate"`
	LiquidationCost         float64 `json:"liquidation_cost"` // Estimated cost under stress, absolute
	VolumeEstimated         bool    `json:"volume_estimated,omitempty"`
}

// LiquidityProfile is the aggregate liquidity risk assessment.
type LiquidityProfile struct {
	PortfolioID             string           `json:"portfolio_id"`
	Assets                  []AssetLiquidity `json:"assets"`
	PortfolioScore          float64          `json:"portfolio_score"` // Value-weighted, 0..100
	StressedLiquidationCost float64          `json:"stressed_liquidation_cost"`
	ComputedAt              time.Time        `json:"computed_at"`
}
