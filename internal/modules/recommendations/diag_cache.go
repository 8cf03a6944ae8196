package recommendations

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DiagCache stores the most recent generation report per portfolio so the UI
// can explain a zero result after the fact. Payloads are msgpack-encoded;
// the cache is advisory and read misses are not errors.
type DiagCache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewDiagCache creates a new diagnostics cache
func NewDiagCache(db *sql.DB, log zerolog.Logger) *DiagCache {
	return &DiagCache{
		db:  db,
		log: log.With().Str("repo", "diag_cache").Logger(),
	}
}

// Put stores the last generation record for a portfolio, replacing any
// previous one. Failures are logged and swallowed: the cache must never fail
// a generation request.
func (c *DiagCache) Put(portfolioID int64, last LastGeneration) {
	payload, err := msgpack.Marshal(last)
	if err != nil {
		c.log.Warn().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to encode diagnostics payload")
		return
	}

	_, err = c.db.Exec(
		`INSERT INTO diag_cache (portfolio_id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (portfolio_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		portfolioID, payload, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		c.log.Warn().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to store diagnostics payload")
	}
}

// Get returns the last generation record, or nil when none is cached.
func (c *DiagCache) Get(portfolioID int64) (*LastGeneration, error) {
	var payload []byte
	err := c.db.QueryRow(`SELECT payload FROM diag_cache WHERE portfolio_id = ?`, portfolioID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read diagnostics cache: %w", err)
	}

	var last LastGeneration
	if err := msgpack.Unmarshal(payload, &last); err != nil {
		return nil, fmt.Errorf("failed to decode diagnostics payload: %w", err)
	}
	return &last, nil
}
