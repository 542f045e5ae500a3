// Package portfolio provides position and price history storage for the
// risk engine. The engine itself never writes here; the calling layer owns
// the data and this package assembles immutable snapshots from it.
package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles portfolio and position database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// EnsureSchema creates the portfolio tables when they do not exist.
func (r *Repository) EnsureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS portfolios (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT 'EUR',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			portfolio_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			asset_class TEXT NOT NULL DEFAULT 'EQUITY',
			quantity REAL NOT NULL,
			avg_cost REAL NOT NULL,
			current_price REAL NOT NULL,
			avg_daily_volume REAL NOT NULL DEFAULT 0,
			last_updated INTEGER NOT NULL,
			PRIMARY KEY (portfolio_id, symbol),
			FOREIGN KEY (portfolio_id) REFERENCES portfolios(id)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_prices (
			symbol TEXT NOT NULL,
			date TEXT NOT NULL,
			close REAL NOT NULL,
			PRIMARY KEY (symbol, date)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create portfolio schema: %w", err)
		}
	}
	return nil
}

// GetPortfolioIDs returns the identifiers of all known portfolios.
func (r *Repository) GetPortfolioIDs() ([]string, error) {
	rows, err := r.db.Query(`SELECT id FROM portfolios ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetCurrency returns the portfolio's currency, or a NotFoundError when the
// portfolio does not exist.
func (r *Repository) GetCurrency(portfolioID string) (domain.Currency, error) {
	var currency string
	err := r.db.QueryRow(`SELECT currency FROM portfolios WHERE id = ?`, portfolioID).Scan(&currency)
	if err == sql.ErrNoRows {
		return "", &domain.NotFoundError{Entity: "portfolio", ID: portfolioID}
	}
	if err != nil {
		return "", fmt.Errorf("failed to query portfolio %s: %w", portfolioID, err)
	}
	return domain.Currency(currency), nil
}

// GetPositions returns all positions for a portfolio, without price history.
func (r *Repository) GetPositions(portfolioID string) ([]domain.Position, error) {
	query := `SELECT symbol, asset_class, quantity, avg_cost, current_price, avg_daily_volume
		FROM positions WHERE portfolio_id = ? ORDER BY symbol`

	rows, err := r.db.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var assetClass string
		if err := rows.Scan(&p.Symbol, &assetClass, &p.Quantity, &p.AverageCost, &p.CurrentPrice, &p.AvgDailyVolume); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.AssetClass = domain.AssetClass(assetClass)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetDailyCloses returns up to limit closing prices for a symbol, ordered
// by date ascending. limit <= 0 means no limit.
func (r *Repository) GetDailyCloses(symbol string, limit int) ([]float64, error) {
	query := `SELECT close FROM (
		SELECT date, close FROM daily_prices WHERE symbol = ? ORDER BY date DESC %s
	) ORDER BY date ASC`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.Query(fmt.Sprintf(query, "LIMIT ?"), symbol, limit)
	} else {
		rows, err = r.db.Query(fmt.Sprintf(query, ""), symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		closes = append(closes, c)
	}
	return closes, rows.Err()
}

// UpsertPortfolio creates or updates a portfolio row.
func (r *Repository) UpsertPortfolio(id, name string, currency domain.Currency) error {
	_, err := r.db.Exec(`INSERT INTO portfolios (id, name, currency, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, currency = excluded.currency`,
		id, name, string(currency), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert portfolio %s: %w", id, err)
	}
	return nil
}

// UpsertPosition creates or updates a position row.
func (r *Repository) UpsertPosition(portfolioID string, p domain.Position) error {
	_, err := r.db.Exec(`INSERT INTO positions
		(portfolio_id, symbol, asset_class, quantity, avg_cost, current_price, avg_daily_volume, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, symbol) DO UPDATE SET
			asset_class = excluded.asset_class,
			quantity = excluded.quantity,
			avg_cost = excluded.avg_cost,
			current_price = excluded.current_price,
			avg_daily_volume = excluded.avg_daily_volume,
			last_updated = excluded.last_updated`,
		portfolioID, p.Symbol, string(p.AssetClass), p.Quantity, p.AverageCost,
		p.CurrentPrice, p.AvgDailyVolume, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert position %s/%s: %w", portfolioID, p.Symbol, err)
	}
	return nil
}

// InsertDailyPrice records one closing price for a symbol.
func (r *Repository) InsertDailyPrice(symbol, date string, close float64) error {
	_, err := r.db.Exec(`INSERT INTO daily_prices (symbol, date, close) VALUES (?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close`,
		symbol, date, close)
	if err != nil {
		return fmt.Errorf("failed to insert price %s@%s: %w", symbol, date, err)
	}
	return nil
}
