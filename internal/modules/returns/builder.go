// Package returns derives per-asset and portfolio return series from
// position price histories. Series are aligned by truncating every asset to
// the common most-recent window before combination, matching how the price
// store serves trailing history.
package returns

import (
	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/pkg/formulas"
	"github.com/rs/zerolog"
)

// Builder derives return series from portfolio snapshots.
type Builder struct {
	log zerolog.Logger
}

// NewBuilder creates a new return series builder
func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{log: log.With().Str("component", "returns").Logger()}
}

// AssetSeries computes the daily return series for every position that has
// at least two price observations. Positions without usable history are
// skipped (and logged), not errored: a single dark asset must not block
// portfolio-level metrics.
func (b *Builder) AssetSeries(snapshot domain.PortfolioSnapshot) map[string]domain.ReturnSeries {
	series := make(map[string]domain.ReturnSeries, len(snapshot.Positions))
	for _, pos := range snapshot.Positions {
		if len(pos.PriceHistory) < 2 {
			b.log.Debug().Str("symbol", pos.Symbol).Int("prices", len(pos.PriceHistory)).
				Msg("Skipping position with insufficient price history")
			continue
		}
		series[pos.Symbol] = domain.ReturnSeries{
			Symbol:  pos.Symbol,
			Returns: formulas.CalculateReturns(pos.PriceHistory),
		}
	}
	return series
}

// PortfolioSeries combines asset series into a single value-weighted
// portfolio return series. Series are aligned to the shortest asset series,
// keeping the most recent observations of each.
func (b *Builder) PortfolioSeries(snapshot domain.PortfolioSnapshot) (domain.ReturnSeries, error) {
	assetSeries := b.AssetSeries(snapshot)
	if len(assetSeries) == 0 {
		return domain.ReturnSeries{}, &domain.InsufficientDataError{
			Required: 2, Got: 0, What: "portfolio returns",
		}
	}

	weights := make(map[string]float64, len(assetSeries))
	for symbol := range assetSeries {
		weights[symbol] = snapshot.Weight(symbol)
	}

	aligned := Align(assetSeries)
	n := 0
	for _, rs := range aligned {
		n = len(rs.Returns)
		break
	}
	if n < 2 {
		return domain.ReturnSeries{}, &domain.InsufficientDataError{
			Required: 2, Got: n, What: "portfolio returns",
		}
	}

	combined := make([]float64, n)
	for symbol, rs := range aligned {
		w := weights[symbol]
		for i, r := range rs.Returns {
			combined[i] += w * r
		}
	}

	return domain.ReturnSeries{Returns: combined}, nil
}

// Align truncates every series to the common minimum length, keeping the
// most recent observations (series are ordered oldest to newest).
func Align(series map[string]domain.ReturnSeries) map[string]domain.ReturnSeries {
	minLen := -1
	for _, rs := range series {
		if minLen == -1 || rs.Len() < minLen {
			minLen = rs.Len()
		}
	}
	if minLen <= 0 {
		return map[string]domain.ReturnSeries{}
	}

	aligned := make(map[string]domain.ReturnSeries, len(series))
	for symbol, rs := range series {
		aligned[symbol] = domain.ReturnSeries{
			Symbol:  rs.Symbol,
			Returns: rs.Returns[rs.Len()-minLen:],
		}
	}
	return aligned
}
