package limits

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/rs/zerolog"
)

// Repository persists per-portfolio risk limit sets.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new risk limit repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "limits").Logger(),
	}
}

// EnsureSchema creates the risk_limits table when it does not exist.
func (r *Repository) EnsureSchema() error {
	stmt := `CREATE TABLE IF NOT EXISTS risk_limits (
		portfolio_id TEXT PRIMARY KEY,
		max_drawdown_pct REAL,
		max_var REAL,
		max_leverage REAL,
		max_concentration_pct REAL,
		max_volatility_pct REAL,
		min_sharpe_ratio REAL,
		active INTEGER NOT NULL DEFAULT 1,
		updated_at INTEGER NOT NULL
	)`
	if _, err := r.db.Exec(stmt); err != nil {
		return fmt.Errorf("failed to create risk_limits schema: %w", err)
	}
	return nil
}

// Get returns the limit set for a portfolio, or a NotFoundError when none
// is configured.
func (r *Repository) Get(portfolioID string) (domain.RiskLimitSet, error) {
	var set domain.RiskLimitSet
	var active int
	var updatedAt int64
	err := r.db.QueryRow(`SELECT portfolio_id, max_drawdown_pct, max_var, max_leverage,
		max_concentration_pct, max_volatility_pct, min_sharpe_ratio, active, updated_at
		FROM risk_limits WHERE portfolio_id = ?`, portfolioID).Scan(
		&set.PortfolioID, &set.MaxDrawdownPct, &set.MaxVaR, &set.MaxLeverage,
		&set.MaxConcentrationPct, &set.MaxVolatilityPct, &set.MinSharpeRatio,
		&active, &updatedAt)
	if err == sql.ErrNoRows {
		return domain.RiskLimitSet{}, &domain.NotFoundError{Entity: "risk limits", ID: portfolioID}
	}
	if err != nil {
		return domain.RiskLimitSet{}, fmt.Errorf("failed to query risk limits for %s: %w", portfolioID, err)
	}
	set.Active = active != 0
	set.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return set, nil
}

// Put creates or replaces the limit set for a portfolio. Bounds must be
// positive when set; min_sharpe_ratio may be any value.
func (r *Repository) Put(set domain.RiskLimitSet) error {
	if err := validateSet(set); err != nil {
		return err
	}

	active := 0
	if set.Active {
		active = 1
	}
	_, err := r.db.Exec(`INSERT INTO risk_limits
		(portfolio_id, max_drawdown_pct, max_var, max_leverage, max_concentration_pct,
		 max_volatility_pct, min_sharpe_ratio, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id) DO UPDATE SET
			max_drawdown_pct = excluded.max_drawdown_pct,
			max_var = excluded.max_var,
			max_leverage = excluded.max_leverage,
			max_concentration_pct = excluded.max_concentration_pct,
			max_volatility_pct = excluded.max_volatility_pct,
			min_sharpe_ratio = excluded.min_sharpe_ratio,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		set.PortfolioID, set.MaxDrawdownPct, set.MaxVaR, set.MaxLeverage,
		set.MaxConcentrationPct, set.MaxVolatilityPct, set.MinSharpeRatio,
		active, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert risk limits for %s: %w", set.PortfolioID, err)
	}

	r.log.Info().Str("portfolio_id", set.PortfolioID).Bool("active", set.Active).
		Msg("Stored risk limit set")
	return nil
}

func validateSet(set domain.RiskLimitSet) error {
	if set.PortfolioID == "" {
		return domain.NewValidationError("portfolioId", "must not be empty")
	}
	positives := map[string]*float64{
		"maxDrawdownPct":      set.MaxDrawdownPct,
		"maxVaR":              set.MaxVaR,
		"maxLeverage":         set.MaxLeverage,
		"maxConcentrationPct": set.MaxConcentrationPct,
		"maxVolatilityPct":    set.MaxVolatilityPct,
	}
	for field, v := range positives {
		if v != nil && *v <= 0 {
			return domain.NewValidationError(field, "must be positive when set, got %v", *v)
		}
	}
	return nil
}
