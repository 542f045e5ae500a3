// Package alerts persists emitted risk alerts and their acknowledgement
// state. The event bus carries alerts to live subscribers; this package is
// the durable record behind GET /api/alerts.
package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/events"
	"github.com/rs/zerolog"
)

// Alert is one persisted alert row.
type Alert struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Module         string          `json:"module"`
	PortfolioID    string          `json:"portfolio_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
	Acknowledged   bool            `json:"acknowledged"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
}

// Repository handles alert database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new alert repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "alerts").Logger(),
	}
}

// EnsureSchema creates the alerts table when it does not exist.
func (r *Repository) EnsureSchema() error {
	stmt := `CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		module TEXT NOT NULL,
		portfolio_id TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		acknowledged_at INTEGER
	)`
	if _, err := r.db.Exec(stmt); err != nil {
		return fmt.Errorf("failed to create alerts schema: %w", err)
	}
	return nil
}

// Record persists one published event.
func (r *Repository) Record(event events.Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to encode alert payload: %w", err)
	}

	_, err = r.db.Exec(`INSERT INTO alerts (id, type, module, portfolio_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.Type), event.Module, portfolioID(event.Data),
		string(payload), event.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", event.ID, err)
	}
	return nil
}

// List returns alerts newest first, optionally only unacknowledged ones.
// limit <= 0 means no limit.
func (r *Repository) List(limit int, unackedOnly bool) ([]Alert, error) {
	query := `SELECT id, type, module, portfolio_id, payload, created_at, acknowledged_at
		FROM alerts %s ORDER BY created_at DESC, id %s`
	where := ""
	if unackedOnly {
		where = "WHERE acknowledged_at IS NULL"
	}

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.Query(fmt.Sprintf(query, where, "LIMIT ?"), limit)
	} else {
		rows, err = r.db.Query(fmt.Sprintf(query, where, ""))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var payload string
		var createdAt int64
		var ackedAt *int64
		if err := rows.Scan(&a.ID, &a.Type, &a.Module, &a.PortfolioID, &payload, &createdAt, &ackedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Payload = json.RawMessage(payload)
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		if ackedAt != nil {
			t := time.Unix(*ackedAt, 0).UTC()
			a.Acknowledged = true
			a.AcknowledgedAt = &t
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Acknowledge marks an alert as seen. Unknown ids are a NotFoundError.
func (r *Repository) Acknowledge(id string) error {
	res, err := r.db.Exec(`UPDATE alerts SET acknowledged_at = ? WHERE id = ? AND acknowledged_at IS NULL`,
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %s: %w", id, err)
	}
	if n == 0 {
		var exists int
		if err := r.db.QueryRow(`SELECT 1 FROM alerts WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
			return &domain.NotFoundError{Entity: "alert", ID: id}
		}
		// Already acknowledged; idempotent.
	}
	return nil
}

// Recorder subscribes to the event bus and persists every alert.
type Recorder struct {
	repo *Repository
	bus  *events.Bus
	log  zerolog.Logger
}

// NewRecorder creates a new alert recorder
func NewRecorder(repo *Repository, bus *events.Bus, log zerolog.Logger) *Recorder {
	return &Recorder{
		repo: repo,
		bus:  bus,
		log:  log.With().Str("component", "alert_recorder").Logger(),
	}
}

// Start consumes events until the context is cancelled.
func (rec *Recorder) Start(ctx context.Context) {
	ch, cancel := rec.bus.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				if err := rec.repo.Record(event); err != nil {
					rec.log.Error().Err(err).Str("alert_id", event.ID).Msg("Failed to persist alert")
				}
			}
		}
	}()
}

// portfolioID pulls the portfolio identifier out of the typed payloads
// that carry one.
func portfolioID(data events.EventData) string {
	switch d := data.(type) {
	case *events.LimitBreachData:
		return d.PortfolioID
	case *events.RiskLevelChangedData:
		return d.PortfolioID
	case *events.BacktestFailedData:
		return d.PortfolioID
	default:
		return ""
	}
}
