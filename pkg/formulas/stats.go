// Package formulas provides the shared statistical primitives used by the
// risk calculators: moments, return conversion, volatility estimators and
// correlation helpers. Everything operates on plain float64 slices so the
// calculators stay decoupled from storage.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization convention used throughout Vigil.
// Daily volatility scales by sqrt(252); the same factor is used for Sharpe
// ratios and square-root-of-time VaR horizon scaling.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// AnnualizedVolatility calculates annualized volatility from daily returns.
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
}

// EWMAVolatility calculates annualized volatility using the RiskMetrics
// exponentially weighted moving average of squared returns. Recent
// observations dominate, which reacts faster to volatility clustering than
// the equally weighted estimate.
func EWMAVolatility(dailyReturns []float64, lambda float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	if lambda <= 0 || lambda >= 1 {
		lambda = 0.94 // RiskMetrics daily decay
	}

	ewmaVar := dailyReturns[0] * dailyReturns[0]
	for _, r := range dailyReturns[1:] {
		ewmaVar = lambda*ewmaVar + (1-lambda)*r*r
	}
	return math.Sqrt(ewmaVar) * math.Sqrt(TradingDaysPerYear)
}

// CalculateReturns converts prices to simple periodic returns.
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// AnnualizedReturn converts a daily mean return to an annualized figure
// using the 252-day convention.
func AnnualizedReturn(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return Mean(dailyReturns) * TradingDaysPerYear
}

// SharpeRatio calculates the annualized Sharpe ratio from daily returns.
// Returns 0 when volatility is zero (flat series carries no risk premium
// signal either way).
func SharpeRatio(dailyReturns []float64, riskFreeRate float64) float64 {
	vol := AnnualizedVolatility(dailyReturns)
	if vol == 0 {
		return 0
	}
	return (AnnualizedReturn(dailyReturns) - riskFreeRate) / vol
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// Covariance calculates the sample covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// Beta calculates the beta of asset returns against benchmark returns:
// cov(asset, benchmark) / var(benchmark). Returns 1.0 when the benchmark
// variance is zero or the series are not comparable.
func Beta(assetReturns, benchmarkReturns []float64) float64 {
	if len(assetReturns) != len(benchmarkReturns) || len(assetReturns) < 2 {
		return 1.0
	}
	benchVar := Variance(benchmarkReturns)
	if benchVar == 0 {
		return 1.0
	}
	return Covariance(assetReturns, benchmarkReturns) / benchVar
}

// Percentile returns the value at percentile p (0..1) of the data using
// the empirical distribution (lower interpolation, matching the historical
// VaR convention of picking the observation at the tail index).
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
