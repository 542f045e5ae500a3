package limits

import (
	"database/sql"
	"testing"

	"github.com/aristath/vigil/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.EnsureSchema())
	return repo
}

func TestRepository_PutAndGet(t *testing.T) {
	repo := setupTestRepo(t)

	set := domain.RiskLimitSet{
		PortfolioID:    "p1",
		MaxDrawdownPct: ptr(10),
		MaxVaR:         ptr(500),
		MinSharpeRatio: ptr(0.5),
		Active:         true,
	}
	require.NoError(t, repo.Put(set))

	got, err := repo.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PortfolioID)
	require.NotNil(t, got.MaxDrawdownPct)
	assert.Equal(t, 10.0, *got.MaxDrawdownPct)
	require.NotNil(t, got.MaxVaR)
	assert.Equal(t, 500.0, *got.MaxVaR)
	assert.Nil(t, got.MaxLeverage)
	assert.Nil(t, got.MaxConcentrationPct)
	require.NotNil(t, got.MinSharpeRatio)
	assert.Equal(t, 0.5, *got.MinSharpeRatio)
	assert.True(t, got.Active)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestRepository_PutReplaces(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Put(domain.RiskLimitSet{PortfolioID: "p1", MaxVaR: ptr(500), Active: true}))
	require.NoError(t, repo.Put(domain.RiskLimitSet{PortfolioID: "p1", MaxLeverage: ptr(2), Active: false}))

	got, err := repo.Get("p1")
	require.NoError(t, err)
	assert.Nil(t, got.MaxVaR)
	require.NotNil(t, got.MaxLeverage)
	assert.Equal(t, 2.0, *got.MaxLeverage)
	assert.False(t, got.Active)
}

func TestRepository_GetMissing(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.Get("nope")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestRepository_PutValidation(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.Put(domain.RiskLimitSet{PortfolioID: "", MaxVaR: ptr(1)})
	assert.True(t, domain.IsValidation(err))

	err = repo.Put(domain.RiskLimitSet{PortfolioID: "p1", MaxVaR: ptr(-5)})
	assert.True(t, domain.IsValidation(err))

	// Negative Sharpe floors are allowed.
	err = repo.Put(domain.RiskLimitSet{PortfolioID: "p1", MinSharpeRatio: ptr(-0.5), Active: true})
	assert.NoError(t, err)
}
