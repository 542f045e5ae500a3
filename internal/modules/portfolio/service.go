package portfolio

import (
	"fmt"
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/rs/zerolog"
)

// HistoryLookbackDays is how much price history a snapshot carries.
// One trading year is enough for every estimator in the engine.
const HistoryLookbackDays = 252

// RepositoryInterface is the storage contract the snapshot service needs.
// Defined here so tests and other modules can substitute fakes.
type RepositoryInterface interface {
	GetPortfolioIDs() ([]string, error)
	GetCurrency(portfolioID string) (domain.Currency, error)
	GetPositions(portfolioID string) ([]domain.Position, error)
	GetDailyCloses(symbol string, limit int) ([]float64, error)
}

// Service assembles immutable portfolio snapshots for the risk calculators.
type Service struct {
	repo RepositoryInterface
	log  zerolog.Logger
}

// NewService creates a new snapshot service
func NewService(repo RepositoryInterface, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "portfolio").Logger(),
	}
}

// Snapshot builds a PortfolioSnapshot with price history attached to every
// position. Total value is computed from the constituent positions, so the
// snapshot invariant holds by construction.
func (s *Service) Snapshot(portfolioID string) (domain.PortfolioSnapshot, error) {
	currency, err := s.repo.GetCurrency(portfolioID)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}

	positions, err := s.repo.GetPositions(portfolioID)
	if err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("failed to load positions for %s: %w", portfolioID, err)
	}

	totalValue := 0.0
	for i := range positions {
		closes, err := s.repo.GetDailyCloses(positions[i].Symbol, HistoryLookbackDays)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", positions[i].Symbol).Msg("Failed to load price history")
			closes = nil
		}
		positions[i].PriceHistory = closes
		totalValue += positions[i].MarketValue()
	}

	return domain.PortfolioSnapshot{
		PortfolioID: portfolioID,
		Currency:    currency,
		Positions:   positions,
		TotalValue:  totalValue,
		AsOf:        time.Now().UTC(),
	}, nil
}

// ListPortfolioIDs returns all portfolio identifiers known to the store.
func (s *Service) ListPortfolioIDs() ([]string, error) {
	return s.repo.GetPortfolioIDs()
}
