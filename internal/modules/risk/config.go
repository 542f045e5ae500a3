// Package risk implements the portfolio risk metrics calculator and the
// correlation estimator: VaR (historical, parametric, Monte Carlo),
// annualized volatility, Sharpe ratio, max drawdown, beta and the overall
// risk level classification.
package risk

// Config collects the numeric conventions and classification thresholds
// used by the calculator. Every cut point that used to be an implicit
// constant lives here so it can be tuned and tested independently.
type Config struct {
	// RiskFreeRate is the annualized risk-free rate for Sharpe ratios.
	RiskFreeRate float64

	// EWMALambda is the decay factor for the EWMA volatility estimate.
	EWMALambda float64

	// MinObservations is the series length below which tail estimates are
	// flagged low-confidence (not refused).
	MinObservations int

	// Risk level thresholds. A portfolio is LOW when both the VaR ratio
	// (|VaR| / portfolio value) and annualized volatility sit below the
	// low thresholds, EXTREME when either exceeds the high thresholds,
	// and MEDIUM/HIGH in between.
	VaRRatioLow  float64
	VaRRatioMed  float64
	VaRRatioHigh float64
	VolLow       float64
	VolMed       float64
	VolHigh      float64
}

// DefaultConfig returns the documented default conventions: 2% risk-free
// rate, RiskMetrics lambda, 30-observation stability floor, and risk level
// cut points at 1/3/6% VaR ratio and 15/25/40% volatility.
func DefaultConfig() Config {
	return Config{
		RiskFreeRate:    0.02,
		EWMALambda:      0.94,
		MinObservations: 30,
		VaRRatioLow:     0.01,
		VaRRatioMed:     0.03,
		VaRRatioHigh:    0.06,
		VolLow:          0.15,
		VolMed:          0.25,
		VolHigh:         0.40,
	}
}
