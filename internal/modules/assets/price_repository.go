package assets

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// PriceRepository handles asset price history database operations
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repo", "price").Logger(),
	}
}

// Upsert inserts a close for (asset, date) or updates it when the date is
// already present. Returns true when a new row was inserted.
func (r *PriceRepository) Upsert(assetID int64, date string, close float64) (bool, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return false, fmt.Errorf("failed to upsert price: invalid date %q", date)
	}

	res, err := r.db.Exec(
		`UPDATE asset_prices SET close = ? WHERE asset_id = ? AND date = ?`,
		close, assetID, date,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update price: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return false, nil
	}

	// Not present yet. The unique (asset_id, date) index resolves the race
	// with a concurrent insert; fall back to an update when we lose it.
	_, err = r.db.Exec(
		`INSERT INTO asset_prices (asset_id, date, close) VALUES (?, ?, ?)
		 ON CONFLICT (asset_id, date) DO UPDATE SET close = excluded.close`,
		assetID, date, close,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert price: %w", err)
	}
	return true, nil
}

// LatestBySymbols returns the most recent price per symbol for the given
// symbols. Symbols without any price row are simply absent from the result.
func (r *PriceRepository) LatestBySymbols(symbols []string) (map[string]Price, error) {
	out := make(map[string]Price, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(symbols)), ",")
	args := make([]interface{}, len(symbols))
	for i, s := range symbols {
		args[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	rows, err := r.db.Query(
		`SELECT p.id, p.asset_id, a.symbol, p.date, p.close
		 FROM asset_prices p
		 JOIN assets a ON a.id = p.asset_id
		 WHERE a.symbol IN (`+placeholders+`)
		   AND p.date = (SELECT MAX(p2.date) FROM asset_prices p2 WHERE p2.asset_id = p.asset_id)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Price
		if err := rows.Scan(&p.ID, &p.AssetID, &p.Symbol, &p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		out[p.Symbol] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	return out, nil
}

// LatestClose returns the latest close for a symbol, or (0, false) when the
// symbol has no price history.
func (r *PriceRepository) LatestClose(symbol string) (float64, bool, error) {
	latest, err := r.LatestBySymbols([]string{symbol})
	if err != nil {
		return 0, false, err
	}
	p, ok := latest[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return 0, false, nil
	}
	return p.Close, true, nil
}

// Series returns the (date, close) series for an asset within the window
// ending at its last known date, ordered by date ascending.
func (r *PriceRepository) Series(assetID int64, windowDays int) ([]Price, error) {
	var lastDate sql.NullString
	err := r.db.QueryRow(`SELECT MAX(date) FROM asset_prices WHERE asset_id = ?`, assetID).Scan(&lastDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get last price date: %w", err)
	}
	if !lastDate.Valid {
		return nil, nil
	}

	last, err := time.Parse("2006-01-02", lastDate.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last price date: %w", err)
	}
	cutoff := last.AddDate(0, 0, -windowDays).Format("2006-01-02")

	rows, err := r.db.Query(
		`SELECT id, asset_id, '', date, close FROM asset_prices
		 WHERE asset_id = ? AND date >= ? ORDER BY date ASC`,
		assetID, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query price series: %w", err)
	}
	defer rows.Close()

	var items []Price
	for rows.Next() {
		var p Price
		if err := rows.Scan(&p.ID, &p.AssetID, &p.Symbol, &p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		items = append(items, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price series: %w", err)
	}

	return items, nil
}

// History lists price rows newest first with optional symbol and date range
// filters, capped at limit.
func (r *PriceRepository) History(symbol, dateFrom, dateTo string, limit int) ([]Price, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	query := `SELECT p.id, p.asset_id, a.symbol, p.date, p.close
		FROM asset_prices p JOIN assets a ON a.id = p.asset_id`
	var conds []string
	var args []interface{}

	if symbol != "" {
		conds = append(conds, "a.symbol = ?")
		args = append(args, strings.ToUpper(strings.TrimSpace(symbol)))
	}
	if dateFrom != "" {
		conds = append(conds, "p.date >= ?")
		args = append(args, dateFrom)
	}
	if dateTo != "" {
		conds = append(conds, "p.date <= ?")
		args = append(args, dateTo)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY p.date DESC, p.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var items []Price
	for rows.Next() {
		var p Price
		if err := rows.Scan(&p.ID, &p.AssetID, &p.Symbol, &p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		items = append(items, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price history: %w", err)
	}

	return items, nil
}
