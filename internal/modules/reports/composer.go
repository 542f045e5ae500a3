// Package reports assembles risk metrics, stress results, liquidity and
// backtest outcomes into summary, detailed and regulatory report
// structures.
package reports

import (
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/modules/backtest"
	"github.com/aristath/vigil/internal/modules/liquidity"
	"github.com/aristath/vigil/internal/modules/risk"
	"github.com/aristath/vigil/internal/modules/stress"
	"github.com/rs/zerolog"
)

// Report types
const (
	TypeSummary    = "SUMMARY"
	TypeDetailed   = "DETAILED"
	TypeRegulatory = "REGULATORY"
)

// Options parameterizes one report request.
type Options struct {
	Type            string
	StartDate       time.Time
	EndDate         time.Time
	ConfidenceLevel float64 // Defaults to 0.95
	IncludeCharts   bool    // Reserved for the rendering layer
}

// Report is the composed risk report. Sections beyond the headline
// metrics are populated per report type.
type Report struct {
	PortfolioID   string                    `json:"portfolio_id"`
	ReportType    string                    `json:"report_type"`
	PeriodStart   time.Time                 `json:"period_start"`
	PeriodEnd     time.Time                 `json:"period_end"`
	Metrics       domain.RiskMetricsResult  `json:"metrics"`
	PositionRisks []domain.PositionRisk     `json:"position_risks,omitempty"`
	StressResults []domain.StressTestResult `json:"stress_results,omitempty"`
	Liquidity     *domain.LiquidityProfile  `json:"liquidity,omitempty"`
	Backtest      *domain.BacktestResult    `json:"backtest,omitempty"`
	GeneratedAt   time.Time                 `json:"generated_at"`
}

// DefaultScenarios is the standard stress battery applied to detailed and
// regulatory reports.
func DefaultScenarios() []domain.StressScenario {
	return []domain.StressScenario{
		{Name: "market_crash", MarketChangePct: -30, VolatilityMultiplier: 2.0, CorrelationShock: 0.3, Duration: "3M"},
		{Name: "correction", MarketChangePct: -10, VolatilityMultiplier: 1.5, CorrelationShock: 0.1, Duration: "1M"},
		{Name: "vol_spike", MarketChangePct: -5, VolatilityMultiplier: 3.0, CorrelationShock: 0.2, Duration: "1W"},
	}
}

// Composer builds reports from the individual analytics components.
type Composer struct {
	calc      *risk.Calculator
	stress    *stress.Engine
	backtest  *backtest.Validator
	liquidity *liquidity.Analyzer
	log       zerolog.Logger
}

// NewComposer creates a new report composer
func NewComposer(calc *risk.Calculator, engine *stress.Engine, validator *backtest.Validator, analyzer *liquidity.Analyzer, log zerolog.Logger) *Composer {
	return &Composer{
		calc:      calc,
		stress:    engine,
		backtest:  validator,
		liquidity: analyzer,
		log:       log.With().Str("component", "reports").Logger(),
	}
}

// Compose builds the requested report from a snapshot and its portfolio
// return history.
func (c *Composer) Compose(snapshot domain.PortfolioSnapshot, portfolioReturns []float64, opts Options) (Report, error) {
	if err := validate(&opts); err != nil {
		return Report{}, err
	}

	metrics, err := c.calc.Compute(snapshot, risk.Options{
		ConfidenceLevel: opts.ConfidenceLevel,
		TimeHorizon:     domain.Horizon1D,
	})
	if err != nil {
		return Report{}, err
	}

	report := Report{
		PortfolioID: snapshot.PortfolioID,
		ReportType:  opts.Type,
		PeriodStart: opts.StartDate,
		PeriodEnd:   opts.EndDate,
		Metrics:     metrics,
		GeneratedAt: time.Now().UTC(),
	}
	if opts.Type == TypeSummary {
		return report, nil
	}

	report.PositionRisks, err = c.calc.PositionRisks(snapshot, opts.ConfidenceLevel)
	if err != nil {
		return Report{}, err
	}
	report.StressResults, err = c.stress.ApplyAll(snapshot, DefaultScenarios())
	if err != nil {
		return Report{}, err
	}
	profile, err := c.liquidity.Analyze(snapshot)
	if err != nil {
		return Report{}, err
	}
	report.Liquidity = &profile

	if opts.Type == TypeRegulatory {
		result, err := c.backtestVaR(snapshot, portfolioReturns, metrics, opts.ConfidenceLevel)
		if err != nil {
			return Report{}, err
		}
		report.Backtest = result
	}
	return report, nil
}

// backtestVaR validates the current 1-day VaR against the realized daily
// outcomes in the return history.
func (c *Composer) backtestVaR(snapshot domain.PortfolioSnapshot, portfolioReturns []float64, metrics domain.RiskMetricsResult, confidence float64) (*domain.BacktestResult, error) {
	if len(portfolioReturns) == 0 {
		return nil, &domain.InsufficientDataError{Required: 1, Got: 0, What: "backtest observations"}
	}

	predicted := make([]float64, len(portfolioReturns))
	realized := make([]float64, len(portfolioReturns))
	for i, r := range portfolioReturns {
		predicted[i] = metrics.ValueAtRisk
		realized[i] = -r * snapshot.TotalValue
	}

	result, err := c.backtest.Backtest(predicted, realized, confidence)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func validate(opts *Options) error {
	switch opts.Type {
	case TypeSummary, TypeDetailed, TypeRegulatory:
	default:
		return domain.NewValidationError("reportType", "must be one of SUMMARY, DETAILED, REGULATORY, got %q", opts.Type)
	}
	if !opts.StartDate.Before(opts.EndDate) {
		return domain.NewValidationError("dateRange", "startDate must be before endDate")
	}
	if opts.ConfidenceLevel == 0 {
		opts.ConfidenceLevel = 0.95
	}
	if opts.ConfidenceLevel <= 0 || opts.ConfidenceLevel >= 1 {
		return domain.NewValidationError("confidenceLevel", "must be in (0,1) exclusive, got %v", opts.ConfidenceLevel)
	}
	return nil
}
