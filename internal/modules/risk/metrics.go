package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/modules/returns"
	"github.com/aristath/vigil/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"
)

// VaR calculation methods
const (
	MethodHistorical = "historical"
	MethodParametric = "parametric"
	MethodMonteCarlo = "monte_carlo"
)

// MonteCarloVaR is the delegation contract for Monte Carlo VaR. Satisfied
// by the montecarlo simulator; kept as an interface so the calculator has
// no dependency on the simulation internals.
type MonteCarloVaR interface {
	VaR(snapshot domain.PortfolioSnapshot, confidence float64, horizon domain.TimeHorizon) (float64, error)
}

// Options parameterizes one metrics computation.
type Options struct {
	ConfidenceLevel float64
	TimeHorizon     domain.TimeHorizon
	Method          string    // Defaults to historical
	Benchmark       []float64 // Optional benchmark returns for beta
}

// Calculator computes risk metrics from portfolio snapshots.
type Calculator struct {
	cfg     Config
	builder *returns.Builder
	mc      MonteCarloVaR // Optional; nil disables the monte_carlo method
	log     zerolog.Logger
}

// NewCalculator creates a new metrics calculator
func NewCalculator(cfg Config, builder *returns.Builder, mc MonteCarloVaR, log zerolog.Logger) *Calculator {
	return &Calculator{
		cfg:     cfg,
		builder: builder,
		mc:      mc,
		log:     log.With().Str("component", "metrics").Logger(),
	}
}

// Compute calculates the full metrics result for a snapshot. Validation
// failures are rejected before any computation begins.
func (c *Calculator) Compute(snapshot domain.PortfolioSnapshot, opts Options) (domain.RiskMetricsResult, error) {
	if err := c.validate(&opts); err != nil {
		return domain.RiskMetricsResult{}, err
	}

	portfolioReturns, err := c.builder.PortfolioSeries(snapshot)
	if err != nil {
		return domain.RiskMetricsResult{}, err
	}

	varAmount, err := c.valueAtRisk(snapshot, portfolioReturns, opts)
	if err != nil {
		return domain.RiskMetricsResult{}, err
	}

	rets := portfolioReturns.Returns
	vol := formulas.AnnualizedVolatility(rets)
	result := domain.RiskMetricsResult{
		PortfolioID:     snapshot.PortfolioID,
		ValueAtRisk:     varAmount,
		VaRMethod:       opts.Method,
		ConfidenceLevel: opts.ConfidenceLevel,
		TimeHorizon:     opts.TimeHorizon,
		Volatility:      vol,
		EWMAVolatility:  formulas.EWMAVolatility(rets, c.cfg.EWMALambda),
		SharpeRatio:     formulas.SharpeRatio(rets, c.cfg.RiskFreeRate),
		MaxDrawdown:     formulas.MaxDrawdownFromReturns(rets),
		Beta:            formulas.Beta(rets, opts.Benchmark),
		PortfolioValue:  snapshot.TotalValue,
		Observations:    len(rets),
		LowConfidence:   len(rets) < c.cfg.MinObservations,
		ComputedAt:      time.Now().UTC(),
	}
	result.RiskLevel = c.classify(varAmount, snapshot.TotalValue, vol)

	if !isFinite(result.ValueAtRisk) || !isFinite(result.Volatility) || !isFinite(result.SharpeRatio) {
		return domain.RiskMetricsResult{}, domain.NewComputationError("metrics", "non-finite metric produced for portfolio %s", snapshot.PortfolioID)
	}

	return result, nil
}

// PositionRisks computes the per-position risk decomposition: individual
// historical VaR (1-day, at the given confidence) and concentration.
func (c *Calculator) PositionRisks(snapshot domain.PortfolioSnapshot, confidence float64) ([]domain.PositionRisk, error) {
	if confidence <= 0 || confidence >= 1 {
		return nil, domain.NewValidationError("confidenceLevel", "must be in (0,1) exclusive, got %v", confidence)
	}

	assetSeries := c.builder.AssetSeries(snapshot)
	risks := make([]domain.PositionRisk, 0, len(snapshot.Positions))
	for _, pos := range snapshot.Positions {
		value := pos.MarketValue()
		weight := snapshot.Weight(pos.Symbol)
		pr := domain.PositionRisk{
			Symbol:            pos.Symbol,
			MarketValue:       value,
			Weight:            weight,
			ConcentrationRisk: weight,
		}
		if rs, ok := assetSeries[pos.Symbol]; ok {
			pr.IndividualVaR = historicalVaR(rs.Returns, confidence) * value
			pr.Volatility = formulas.AnnualizedVolatility(rs.Returns)
		}
		risks = append(risks, pr)
	}
	return risks, nil
}

// AssetSeries exposes the per-asset return series the calculator works
// from, for callers that need the raw inputs (correlations, reports).
func (c *Calculator) AssetSeries(snapshot domain.PortfolioSnapshot) map[string]domain.ReturnSeries {
	return c.builder.AssetSeries(snapshot)
}

// PortfolioReturns returns the value-weighted portfolio return series.
func (c *Calculator) PortfolioReturns(snapshot domain.PortfolioSnapshot) ([]float64, error) {
	rs, err := c.builder.PortfolioSeries(snapshot)
	if err != nil {
		return nil, err
	}
	return rs.Returns, nil
}

func (c *Calculator) validate(opts *Options) error {
	if opts.ConfidenceLevel <= 0 || opts.ConfidenceLevel >= 1 {
		return domain.NewValidationError("confidenceLevel", "must be in (0,1) exclusive, got %v", opts.ConfidenceLevel)
	}
	if _, ok := domain.HorizonPeriods[opts.TimeHorizon]; !ok {
		return domain.NewValidationError("timeHorizon", "unsupported value %q", string(opts.TimeHorizon))
	}
	if opts.Method == "" {
		opts.Method = MethodHistorical
	}
	switch opts.Method {
	case MethodHistorical, MethodParametric:
	case MethodMonteCarlo:
		if c.mc == nil {
			return domain.NewValidationError("method", "monte_carlo method is not available")
		}
	default:
		return domain.NewValidationError("method", "unsupported value %q", opts.Method)
	}
	return nil
}

// valueAtRisk dispatches to the requested VaR method and scales the 1-day
// figure to the horizon by the square-root-of-time rule.
func (c *Calculator) valueAtRisk(snapshot domain.PortfolioSnapshot, rs domain.ReturnSeries, opts Options) (float64, error) {
	periods := float64(domain.HorizonPeriods[opts.TimeHorizon])

	switch opts.Method {
	case MethodHistorical:
		if rs.Len() < 2 {
			return 0, &domain.InsufficientDataError{Required: 2, Got: rs.Len(), What: "historical VaR"}
		}
		daily := historicalVaR(rs.Returns, opts.ConfidenceLevel) * snapshot.TotalValue
		return daily * math.Sqrt(periods), nil

	case MethodParametric:
		if rs.Len() < 2 {
			return 0, &domain.InsufficientDataError{Required: 2, Got: rs.Len(), What: "parametric VaR"}
		}
		mean := formulas.Mean(rs.Returns)
		sigma := formulas.StdDev(rs.Returns)
		z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(opts.ConfidenceLevel)
		daily := -(mean - z*sigma) * snapshot.TotalValue
		return daily * math.Sqrt(periods), nil

	case MethodMonteCarlo:
		v, err := c.mc.VaR(snapshot, opts.ConfidenceLevel, opts.TimeHorizon)
		if err != nil {
			return 0, fmt.Errorf("monte carlo VaR: %w", err)
		}
		return v, nil
	}

	return 0, domain.NewValidationError("method", "unsupported value %q", opts.Method)
}

// classify maps the VaR-to-value ratio and annualized volatility onto the
// four risk levels using the configured cut points.
func (c *Calculator) classify(varAmount, portfolioValue, vol float64) domain.RiskLevel {
	ratio := 0.0
	if portfolioValue > 0 {
		ratio = math.Abs(varAmount) / portfolioValue
	}

	switch {
	case ratio >= c.cfg.VaRRatioHigh || vol >= c.cfg.VolHigh:
		return domain.RiskLevelExtreme
	case ratio >= c.cfg.VaRRatioMed || vol >= c.cfg.VolMed:
		return domain.RiskLevelHigh
	case ratio >= c.cfg.VaRRatioLow || vol >= c.cfg.VolLow:
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelLow
	}
}

// historicalVaR returns the 1-period VaR as a positive fraction of value:
// the negated return at the (1-confidence) percentile of the sorted series.
func historicalVaR(rets []float64, confidence float64) float64 {
	if len(rets) == 0 {
		return 0
	}
	sorted := make([]float64, len(rets))
	copy(sorted, rets)
	sort.Float64s(sorted)
	return -formulas.Percentile(sorted, 1-confidence)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
