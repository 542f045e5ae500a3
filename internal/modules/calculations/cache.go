// Package calculations caches expensive intermediate results, currently
// correlation matrices, so repeated report and simulation requests for the
// same symbol set do not recompute them.
package calculations

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/vigil/internal/modules/risk"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

// DefaultTTL is how long a cached matrix stays fresh.
const DefaultTTL = 15 * time.Minute

// correlationPayload is the msgpack wire form of a correlation matrix.
type correlationPayload struct {
	Symbols []string  `msgpack:"symbols"`
	Values  []float64 `msgpack:"values"` // Row-major, n*n
}

// Cache is a SQLite-backed result cache with per-entry TTL.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	log zerolog.Logger
}

// NewCache creates a new calculation cache. A non-positive ttl falls back
// to the default.
func NewCache(db *sql.DB, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "calc_cache").Logger(),
	}
}

// EnsureSchema creates the cache table when it does not exist.
func (c *Cache) EnsureSchema() error {
	stmt := `CREATE TABLE IF NOT EXISTS calc_cache (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	)`
	if _, err := c.db.Exec(stmt); err != nil {
		return fmt.Errorf("failed to create calc_cache schema: %w", err)
	}
	return nil
}

// GetCorrelations returns the cached matrix for a symbol set, if present
// and fresh. The symbol order of the result is sorted, matching the
// estimator's convention.
func (c *Cache) GetCorrelations(symbols []string) (risk.Correlations, bool) {
	var blob []byte
	var expiresAt int64
	err := c.db.QueryRow(`SELECT payload, expires_at FROM calc_cache WHERE key = ?`,
		correlationKey(symbols)).Scan(&blob, &expiresAt)
	if err == sql.ErrNoRows {
		return risk.Correlations{}, false
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("Cache read failed")
		return risk.Correlations{}, false
	}
	if time.Now().Unix() >= expiresAt {
		return risk.Correlations{}, false
	}

	var payload correlationPayload
	if err := msgpack.Unmarshal(blob, &payload); err != nil {
		c.log.Warn().Err(err).Msg("Cache entry is corrupt, ignoring")
		return risk.Correlations{}, false
	}
	n := len(payload.Symbols)
	if len(payload.Values) != n*n {
		return risk.Correlations{}, false
	}

	matrix := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			matrix.SetSym(i, j, payload.Values[i*n+j])
		}
	}
	return risk.Correlations{Symbols: payload.Symbols, Matrix: matrix}, true
}

// PutCorrelations stores a matrix under its symbol set key.
func (c *Cache) PutCorrelations(corr risk.Correlations) error {
	n := len(corr.Symbols)
	payload := correlationPayload{
		Symbols: corr.Symbols,
		Values:  make([]float64, n*n),
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			payload.Values[i*n+j] = corr.Matrix.At(i, j)
		}
	}

	blob, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode correlation cache entry: %w", err)
	}

	expiresAt := time.Now().Add(c.ttl).Unix()
	_, err = c.db.Exec(`INSERT INTO calc_cache (key, payload, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		correlationKey(corr.Symbols), blob, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to write correlation cache entry: %w", err)
	}
	return nil
}

// Prune removes expired entries.
func (c *Cache) Prune() (int64, error) {
	res, err := c.db.Exec(`DELETE FROM calc_cache WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune calc_cache: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		c.log.Debug().Int64("removed", n).Msg("Pruned expired cache entries")
	}
	return n, nil
}

// correlationKey hashes the sorted symbol set so key identity is order
// independent.
func correlationKey(symbols []string) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte("corr:" + strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])
}
