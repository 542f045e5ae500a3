package montecarlo

import (
	"math"
	"strings"
	"testing"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/modules/returns"
	"github.com/aristath/vigil/internal/modules/risk"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSimulator() *Simulator {
	return NewSimulator(
		returns.NewBuilder(zerolog.Nop()),
		risk.NewCorrelationEstimator(zerolog.Nop()),
		2,
		zerolog.Nop(),
	)
}

func simSnapshot() domain.PortfolioSnapshot {
	return domain.PortfolioSnapshot{
		PortfolioID: "p1",
		Positions: []domain.Position{
			{Symbol: "AAA", Quantity: 10, CurrentPrice: 104, PriceHistory: []float64{100, 102, 99, 103, 101, 104}},
			{Symbol: "BBB", Quantity: 5, CurrentPrice: 199, PriceHistory: []float64{200, 198, 203, 197, 202, 199}},
		},
		TotalValue: 10*104 + 5*199,
	}
}

func TestSimulator_Deterministic(t *testing.T) {
	s := newTestSimulator()
	opts := Options{Paths: 500, TimeHorizon: domain.Horizon1M, Seed: 42}

	a, err := s.Simulate(simSnapshot(), opts)
	require.NoError(t, err)
	b, err := s.Simulate(simSnapshot(), opts)
	require.NoError(t, err)

	assert.Equal(t, a.ExpectedReturn, b.ExpectedReturn)
	assert.Equal(t, a.ProbabilityLoss, b.ProbabilityLoss)
	assert.Equal(t, a.Percentiles, b.Percentiles)
	assert.Equal(t, a.VaR, b.VaR)
	assert.Equal(t, int64(42), a.Seed)
}

func TestSimulator_SeedChangesOutcome(t *testing.T) {
	s := newTestSimulator()

	a, err := s.Simulate(simSnapshot(), Options{Paths: 500, TimeHorizon: domain.Horizon1M, Seed: 1})
	require.NoError(t, err)
	b, err := s.Simulate(simSnapshot(), Options{Paths: 500, TimeHorizon: domain.Horizon1M, Seed: 2})
	require.NoError(t, err)

	assert.NotEqual(t, a.ExpectedReturn, b.ExpectedReturn)
}

func TestSimulator_DistributionShape(t *testing.T) {
	s := newTestSimulator()
	result, err := s.Simulate(simSnapshot(), Options{Paths: 2000, TimeHorizon: domain.Horizon1M, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, 2000, result.NumberOfPaths)
	assert.GreaterOrEqual(t, result.ProbabilityLoss, 0.0)
	assert.LessOrEqual(t, result.ProbabilityLoss, 1.0)

	// Percentile ladder is monotone.
	ladder := []string{"p1", "p5", "p25", "p50", "p75", "p95", "p99"}
	for i := 1; i < len(ladder); i++ {
		assert.LessOrEqual(t, result.Percentiles[ladder[i-1]], result.Percentiles[ladder[i]])
	}
}

func TestSimulator_MorePathsTightenEstimates(t *testing.T) {
	s := newTestSimulator()
	seeds := []int64{11, 23, 37, 51, 68, 79, 94, 107}

	// Spread of the p5 estimate across independent seeds. Sampling noise
	// shrinks roughly with sqrt(paths), so the 10000-path spread must
	// come in well under the 100-path one.
	spread := func(paths int) float64 {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, seed := range seeds {
			result, err := s.Simulate(simSnapshot(), Options{Paths: paths, TimeHorizon: domain.Horizon1M, Seed: seed})
			require.NoError(t, err)
			p5 := result.Percentiles["p5"]
			lo = math.Min(lo, p5)
			hi = math.Max(hi, p5)
		}
		return hi - lo
	}

	assert.Less(t, spread(10000), spread(100))
}

func TestSimulator_PathCapRejected(t *testing.T) {
	s := newTestSimulator()

	_, err := s.Simulate(simSnapshot(), Options{Paths: 10001, TimeHorizon: domain.Horizon1M})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.True(t, strings.Contains(err.Error(), "Maximum 10000 simulations"))

	_, err = s.Simulate(simSnapshot(), Options{Paths: 0, TimeHorizon: domain.Horizon1M})
	assert.True(t, domain.IsValidation(err))

	_, err = s.Simulate(simSnapshot(), Options{Paths: -5, TimeHorizon: domain.Horizon1M})
	assert.True(t, domain.IsValidation(err))
}

func TestSimulator_UnsupportedHorizon(t *testing.T) {
	s := newTestSimulator()
	_, err := s.Simulate(simSnapshot(), Options{Paths: 100, TimeHorizon: "5Y"})
	assert.True(t, domain.IsValidation(err))
}

func TestSimulator_InsufficientData(t *testing.T) {
	s := newTestSimulator()
	snap := domain.PortfolioSnapshot{
		PortfolioID: "p1",
		Positions: []domain.Position{
			{Symbol: "AAA", Quantity: 1, CurrentPrice: 100, PriceHistory: []float64{100}},
		},
		TotalValue: 100,
	}

	_, err := s.Simulate(snap, Options{Paths: 100, TimeHorizon: domain.Horizon1M})
	assert.True(t, domain.IsInsufficientData(err))
}

func TestSimulator_VaRDelegation(t *testing.T) {
	s := newTestSimulator()
	snap := simSnapshot()

	v, err := s.VaR(snap, 0.95, domain.Horizon1D)
	require.NoError(t, err)

	// VaR is an amount, bounded by the portfolio value.
	assert.Greater(t, v, 0.0)
	assert.Less(t, v, snap.TotalValue)
}

func TestSimulator_PerfectlyCorrelatedAssets(t *testing.T) {
	// Duplicate series make the correlation matrix singular; the jitter
	// retry must keep the factorization alive.
	s := newTestSimulator()
	snap := domain.PortfolioSnapshot{
		PortfolioID: "p1",
		Positions: []domain.Position{
			{Symbol: "AAA", Quantity: 10, CurrentPrice: 103, PriceHistory: []float64{100, 102, 99, 103}},
			{Symbol: "BBB", Quantity: 10, CurrentPrice: 103, PriceHistory: []float64{100, 102, 99, 103}},
		},
		TotalValue: 2060,
	}

	result, err := s.Simulate(snap, Options{Paths: 200, TimeHorizon: domain.Horizon1W, Seed: 9})
	require.NoError(t, err)
	assert.Equal(t, 200, result.NumberOfPaths)
}
