// Package backtest validates VaR model accuracy against realized outcomes
// with the Kupiec proportion-of-failures test.
package backtest

import (
	"math"

	"github.com/aristath/vigil/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultSignificance is the conventional significance level for the
// pass/fail decision.
const DefaultSignificance = 0.05

// Validator runs VaR backtests.
type Validator struct {
	significance float64
	log          zerolog.Logger
}

// NewValidator creates a new backtest validator. A non-positive
// significance falls back to the 5% convention.
func NewValidator(significance float64, log zerolog.Logger) *Validator {
	if significance <= 0 || significance >= 1 {
		significance = DefaultSignificance
	}
	return &Validator{
		significance: significance,
		log:          log.With().Str("component", "backtest").Logger(),
	}
}

// Backtest compares daily predicted VaR amounts against realized losses
// (both positive amounts) and runs the Kupiec POF test at the given
// confidence level. A violation is any day where the realized loss exceeds
// the predicted VaR.
func (v *Validator) Backtest(predictedVaR, realizedLosses []float64, confidence float64) (domain.BacktestResult, error) {
	if confidence <= 0 || confidence >= 1 {
		return domain.BacktestResult{}, domain.NewValidationError("confidenceLevel", "must be in (0,1) exclusive, got %v", confidence)
	}
	if len(predictedVaR) != len(realizedLosses) {
		return domain.BacktestResult{}, domain.NewValidationError("series", "predicted and realized series must have equal length, got %d and %d", len(predictedVaR), len(realizedLosses))
	}
	n := len(predictedVaR)
	if n == 0 {
		return domain.BacktestResult{}, &domain.InsufficientDataError{Required: 1, Got: 0, What: "backtest observations"}
	}

	violations := 0
	for i := range predictedVaR {
		if realizedLosses[i] > predictedVaR[i] {
			violations++
		}
	}

	p := 1 - confidence
	lr := kupiecLR(p, violations, n)
	pValue := 1 - distuv.ChiSquared{K: 1}.CDF(lr)

	result := domain.BacktestResult{
		Observations:      n,
		Violations:        violations,
		ExpectedRate:      p,
		ObservedRate:      float64(violations) / float64(n),
		KupiecStatistic:   lr,
		PValue:            pValue,
		SignificanceLevel: v.significance,
		Passed:            pValue >= v.significance,
	}

	v.log.Debug().Int("observations", n).Int("violations", violations).
		Float64("p_value", pValue).Bool("passed", result.Passed).
		Msg("Completed VaR backtest")
	return result, nil
}

// kupiecLR computes the proportion-of-failures likelihood ratio
//
//	LR = -2 ln[ (1-p)^(n-x) p^x / ((1-x/n)^(n-x) (x/n)^x) ]
//
// using log-space arithmetic. The x = 0 and x = n boundaries use the
// degenerate-likelihood limits where the observed-rate terms vanish.
func kupiecLR(p float64, x, n int) float64 {
	nf := float64(n)
	xf := float64(x)

	logNull := (nf-xf)*math.Log(1-p) + xf*math.Log(p)

	var logObserved float64
	switch {
	case x == 0:
		logObserved = 0 // (1-0)^n = 1
	case x == n:
		logObserved = 0 // (n/n)^n = 1
	default:
		rate := xf / nf
		logObserved = (nf-xf)*math.Log(1-rate) + xf*math.Log(rate)
	}

	lr := -2 * (logNull - logObserved)
	if lr < 0 {
		// Guard against tiny negative values from rounding.
		return 0
	}
	return lr
}
