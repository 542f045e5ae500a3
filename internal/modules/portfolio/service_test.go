package portfolio

import (
	"testing"

	"github.com/aristath/vigil/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Snapshot(t *testing.T) {
	repo := setupTestRepo(t)
	require.NoError(t, repo.UpsertPortfolio("p1", "Main", domain.CurrencyUSD))
	require.NoError(t, repo.UpsertPosition("p1", domain.Position{
		Symbol: "AAPL", AssetClass: domain.AssetClassEquity,
		Quantity: 10, AverageCost: 150, CurrentPrice: 180,
	}))
	require.NoError(t, repo.UpsertPosition("p1", domain.Position{
		Symbol: "GOOGL", AssetClass: domain.AssetClassEquity,
		Quantity: 5, AverageCost: 2000, CurrentPrice: 2200,
	}))
	dates := []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"}
	for i, c := range []float64{100, 101, 99, 102} {
		require.NoError(t, repo.InsertDailyPrice("AAPL", dates[i], c))
	}

	svc := NewService(repo, zerolog.Nop())
	snap, err := svc.Snapshot("p1")
	require.NoError(t, err)

	assert.Equal(t, "p1", snap.PortfolioID)
	assert.Equal(t, domain.CurrencyUSD, snap.Currency)
	require.Len(t, snap.Positions, 2)

	// Total value invariant: sum of position market values
	sum := 0.0
	for _, p := range snap.Positions {
		sum += p.MarketValue()
	}
	assert.Equal(t, sum, snap.TotalValue)
	assert.Equal(t, 12800.0, snap.TotalValue)

	// Price history attached, ascending
	assert.Equal(t, []float64{100, 101, 99, 102}, snap.Positions[0].PriceHistory)
}

func TestService_Snapshot_UnknownPortfolio(t *testing.T) {
	svc := NewService(setupTestRepo(t), zerolog.Nop())

	_, err := svc.Snapshot("nope")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}
