package stress

import (
	"testing"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/modules/returns"
	"github.com/aristath/vigil/internal/modules/risk"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(
		DefaultConfig(),
		returns.NewBuilder(zerolog.Nop()),
		risk.NewCorrelationEstimator(zerolog.Nop()),
		zerolog.Nop(),
	)
}

func crashSnapshot() domain.PortfolioSnapshot {
	return domain.PortfolioSnapshot{
		PortfolioID: "p1",
		Positions: []domain.Position{
			{Symbol: "AAA", Quantity: 60, CurrentPrice: 100, PriceHistory: []float64{95, 100, 98, 100}},
			{Symbol: "BBB", Quantity: 20, CurrentPrice: 200, PriceHistory: []float64{190, 200, 205, 200}},
		},
		TotalValue: 10000,
	}
}

func TestEngine_Apply_MarketCrash(t *testing.T) {
	e := newTestEngine()
	result, err := e.Apply(crashSnapshot(), domain.StressScenario{
		Name:                 "market_crash",
		MarketChangePct:      -30,
		VolatilityMultiplier: 2.0,
		CorrelationShock:     0.2,
	})
	require.NoError(t, err)

	assert.InDelta(t, 3000, result.PortfolioLoss, 1e-9)
	assert.InDelta(t, 0.30, result.LossPct, 1e-9)
	assert.InDelta(t, 7000, result.ValueAfter, 1e-9)
	assert.Equal(t, domain.SeveritySevere, result.Severity)

	require.Len(t, result.AssetImpacts, 2)
	assert.InDelta(t, 6000, result.AssetImpacts[0].ValueBefore, 1e-9)
	assert.InDelta(t, 4200, result.AssetImpacts[0].ValueAfter, 1e-9)
	assert.InDelta(t, -1800, result.AssetImpacts[0].ValueChange, 1e-9)
	assert.InDelta(t, -30, result.AssetImpacts[0].ChangePct, 1e-9)
	assert.Greater(t, result.StressedVol, 0.0)
}

func TestEngine_Apply_Sensitivities(t *testing.T) {
	e := newTestEngine()
	result, err := e.Apply(crashSnapshot(), domain.StressScenario{
		Name:                 "rate_shock",
		MarketChangePct:      -10,
		VolatilityMultiplier: 1.0,
		Sensitivities:        map[string]float64{"AAA": 2.0, "BBB": 0.5},
	})
	require.NoError(t, err)

	// AAA: 6000 * -20%, BBB: 4000 * -5%
	assert.InDelta(t, 1200+200, result.PortfolioLoss, 1e-9)
	assert.InDelta(t, -20, result.AssetImpacts[0].ChangePct, 1e-9)
	assert.InDelta(t, -5, result.AssetImpacts[1].ChangePct, 1e-9)
}

func TestEngine_Apply_GainIsLowSeverity(t *testing.T) {
	e := newTestEngine()
	result, err := e.Apply(crashSnapshot(), domain.StressScenario{
		Name:                 "rally",
		MarketChangePct:      10,
		VolatilityMultiplier: 1.0,
	})
	require.NoError(t, err)

	assert.Negative(t, result.PortfolioLoss)
	assert.Equal(t, domain.SeverityLow, result.Severity)
}

func TestEngine_SeverityBoundaries(t *testing.T) {
	e := newTestEngine()

	assert.Equal(t, domain.SeverityLow, e.classify(0.04))
	assert.Equal(t, domain.SeverityMedium, e.classify(0.05))
	assert.Equal(t, domain.SeverityMedium, e.classify(0.14))
	assert.Equal(t, domain.SeverityHigh, e.classify(0.15))
	assert.Equal(t, domain.SeverityHigh, e.classify(0.29))
	assert.Equal(t, domain.SeveritySevere, e.classify(0.30))
}

func TestEngine_CorrelationShockRaisesVolatility(t *testing.T) {
	e := newTestEngine()
	snap := crashSnapshot()

	base, err := e.Apply(snap, domain.StressScenario{
		Name: "base", MarketChangePct: -5, VolatilityMultiplier: 1.0, CorrelationShock: 0,
	})
	require.NoError(t, err)
	shocked, err := e.Apply(snap, domain.StressScenario{
		Name: "shocked", MarketChangePct: -5, VolatilityMultiplier: 1.0, CorrelationShock: 1,
	})
	require.NoError(t, err)

	// Fully correlated assets cannot diversify each other.
	assert.GreaterOrEqual(t, shocked.StressedVol, base.StressedVol)
}

func TestEngine_VolatilityMultiplierScalesVol(t *testing.T) {
	e := newTestEngine()
	snap := crashSnapshot()

	base, err := e.Apply(snap, domain.StressScenario{
		Name: "base", MarketChangePct: -5, VolatilityMultiplier: 1.0,
	})
	require.NoError(t, err)
	doubled, err := e.Apply(snap, domain.StressScenario{
		Name: "doubled", MarketChangePct: -5, VolatilityMultiplier: 2.0,
	})
	require.NoError(t, err)

	assert.InDelta(t, 2*base.StressedVol, doubled.StressedVol, 1e-9)
}

func TestValidate(t *testing.T) {
	cases := []domain.StressScenario{
		{MarketChangePct: -101, VolatilityMultiplier: 1},
		{MarketChangePct: 101, VolatilityMultiplier: 1},
		{MarketChangePct: 0, VolatilityMultiplier: 0},
		{MarketChangePct: 0, VolatilityMultiplier: -1},
		{MarketChangePct: 0, VolatilityMultiplier: 1, CorrelationShock: -0.1},
		{MarketChangePct: 0, VolatilityMultiplier: 1, CorrelationShock: 1.1},
	}
	for _, sc := range cases {
		err := Validate(sc)
		assert.True(t, domain.IsValidation(err), "scenario %+v must be rejected", sc)
	}

	assert.NoError(t, Validate(domain.StressScenario{
		MarketChangePct: -30, VolatilityMultiplier: 2, CorrelationShock: 0.2,
	}))
}

func TestEngine_ApplyAll_FailFast(t *testing.T) {
	e := newTestEngine()
	snap := crashSnapshot()

	_, err := e.ApplyAll(snap, []domain.StressScenario{
		{Name: "ok", MarketChangePct: -10, VolatilityMultiplier: 1},
		{Name: "bad", MarketChangePct: -200, VolatilityMultiplier: 1},
	})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	results, err := e.ApplyAll(snap, []domain.StressScenario{
		{Name: "mild", MarketChangePct: -5, VolatilityMultiplier: 1},
		{Name: "harsh", MarketChangePct: -40, VolatilityMultiplier: 3},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "mild", results[0].ScenarioName)
	assert.Equal(t, "harsh", results[1].ScenarioName)

	_, err = e.ApplyAll(snap, nil)
	assert.True(t, domain.IsValidation(err))
}
