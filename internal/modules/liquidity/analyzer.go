// Package liquidity estimates how quickly positions can be unwound and at
// what cost, per asset and portfolio-wide.
package liquidity

import (
	"math"
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/rs/zerolog"
)

// Config holds the liquidation model conventions.
type Config struct {
	// ParticipationRate is the fraction of average daily volume a seller
	// can absorb without moving the market.
	ParticipationRate float64

	// StressFactor multiplies days-to-liquidate under stressed liquidity.
	StressFactor float64

	// ImpactCostBps is the per-day-of-forced-selling cost in basis points
	// of position value.
	ImpactCostBps float64

	// EstimatedVolumeRatio derives a fallback average daily volume from
	// position size when no volume figure is supplied.
	EstimatedVolumeRatio float64
}

// DefaultConfig returns the documented conventions: 15% participation,
// 3x stress factor, 25 bps impact cost per stressed day, 10x position
// size as the estimated volume fallback.
func DefaultConfig() Config {
	return Config{
		ParticipationRate:    0.15,
		StressFactor:         3.0,
		ImpactCostBps:        25,
		EstimatedVolumeRatio: 10,
	}
}

// Analyzer assesses portfolio liquidity risk.
type Analyzer struct {
	cfg Config
	log zerolog.Logger
}

// NewAnalyzer creates a new liquidity risk analyzer
func NewAnalyzer(cfg Config, log zerolog.Logger) *Analyzer {
	return &Analyzer{cfg: cfg, log: log.With().Str("component", "liquidity").Logger()}
}

// Analyze builds the liquidity profile for a snapshot. Positions without a
// supplied average daily volume get an estimated figure and are flagged.
func (a *Analyzer) Analyze(snapshot domain.PortfolioSnapshot) (domain.LiquidityProfile, error) {
	if len(snapshot.Positions) == 0 {
		return domain.LiquidityProfile{}, domain.NewValidationError("positions", "at least one position is required")
	}

	assets := make([]domain.AssetLiquidity, 0, len(snapshot.Positions))
	weightedScore := 0.0
	totalCost := 0.0
	for _, pos := range snapshot.Positions {
		al := a.analyzePosition(pos)
		assets = append(assets, al)
		weightedScore += snapshot.Weight(pos.Symbol) * al.LiquidityScore
		totalCost += al.LiquidationCost
	}

	return domain.LiquidityProfile{
		PortfolioID:             snapshot.PortfolioID,
		Assets:                  assets,
		PortfolioScore:          weightedScore,
		StressedLiquidationCost: totalCost,
		ComputedAt:              time.Now().UTC(),
	}, nil
}

func (a *Analyzer) analyzePosition(pos domain.Position) domain.AssetLiquidity {
	volume := pos.AvgDailyVolume
	estimated := false
	if volume <= 0 {
		volume = math.Abs(pos.Quantity) * a.cfg.EstimatedVolumeRatio
		estimated = true
		a.log.Debug().Str("symbol", pos.Symbol).Float64("volume", volume).
			Msg("Estimating average daily volume from position size")
	}

	days := math.Abs(pos.Quantity) / (volume * a.cfg.ParticipationRate)
	stressedDays := days * a.cfg.StressFactor

	// Cost grows with each stressed day of forced selling.
	cost := pos.MarketValue() * (a.cfg.ImpactCostBps / 10000) * stressedDays

	return domain.AssetLiquidity{
		Symbol:                  pos.Symbol,
		LiquidityScore:          score(days),
		DaysToLiquidate:         days,
		StressedDaysToLiquidate: stressedDays,
		LiquidationCost:         cost,
		VolumeEstimated:         estimated,
	}
}

// score maps days-to-liquidate onto 0..100: a same-day exit scores 100,
// and the score decays toward 0 as liquidation stretches out.
func score(days float64) float64 {
	if days <= 0 {
		return 100
	}
	s := 100 / (1 + days)
	if s < 0 {
		return 0
	}
	return s
}
