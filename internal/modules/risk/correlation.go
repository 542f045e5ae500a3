package risk

import (
	"sort"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/modules/returns"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Correlations holds a symmetric correlation matrix with unit diagonal and
// the symbol order of its rows/columns.
type Correlations struct {
	Symbols []string
	Matrix  *mat.SymDense
}

// At returns the correlation between two symbols, 0 when either is unknown.
func (c Correlations) At(a, b string) float64 {
	ia, ib := -1, -1
	for i, s := range c.Symbols {
		if s == a {
			ia = i
		}
		if s == b {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return 0
	}
	return c.Matrix.At(ia, ib)
}

// CorrelationEstimator computes Pearson correlation and covariance matrices
// over aligned return series.
type CorrelationEstimator struct {
	log zerolog.Logger
}

// NewCorrelationEstimator creates a new correlation estimator
func NewCorrelationEstimator(log zerolog.Logger) *CorrelationEstimator {
	return &CorrelationEstimator{log: log.With().Str("component", "correlation").Logger()}
}

// Estimate computes the Pearson correlation matrix for the given series.
// Symbols are ordered deterministically (sorted). A single-asset input
// yields a 1×1 identity. Series shorter than 2 aligned observations are an
// InsufficientDataError.
func (e *CorrelationEstimator) Estimate(series map[string]domain.ReturnSeries) (Correlations, error) {
	symbols, data, err := alignedMatrix(series)
	if err != nil {
		return Correlations{}, err
	}

	n := len(symbols)
	out := mat.NewSymDense(n, nil)
	stat.CorrelationMatrix(out, data, nil)

	// Degenerate columns (zero variance) produce NaN rows; pin the
	// diagonal and zero the cross terms so downstream blending stays
	// finite.
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := out.At(i, j)
			if i == j {
				out.SetSym(i, j, 1)
			} else if v != v { // NaN
				out.SetSym(i, j, 0)
			}
		}
	}

	return Correlations{Symbols: symbols, Matrix: out}, nil
}

// Covariance computes the sample covariance matrix in the same symbol
// order as Estimate.
func (e *CorrelationEstimator) Covariance(series map[string]domain.ReturnSeries) (Correlations, error) {
	symbols, data, err := alignedMatrix(series)
	if err != nil {
		return Correlations{}, err
	}

	n := len(symbols)
	out := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(out, data, nil)
	return Correlations{Symbols: symbols, Matrix: out}, nil
}

// alignedMatrix builds the observations×assets dense matrix gonum's
// matrix statistics expect, with columns in sorted symbol order.
func alignedMatrix(series map[string]domain.ReturnSeries) ([]string, *mat.Dense, error) {
	if len(series) == 0 {
		return nil, nil, domain.NewValidationError("returnSeries", "at least one series is required")
	}

	aligned := returns.Align(series)
	symbols := make([]string, 0, len(aligned))
	for symbol := range aligned {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	obs := aligned[symbols[0]].Len()
	if obs < 2 {
		return nil, nil, &domain.InsufficientDataError{Required: 2, Got: obs, What: "correlation"}
	}

	data := mat.NewDense(obs, len(symbols), nil)
	for j, symbol := range symbols {
		for i, r := range aligned[symbol].Returns {
			data.Set(i, j, r)
		}
	}
	return symbols, data, nil
}
