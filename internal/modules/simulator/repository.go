package simulator

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so mutations can run inside
// a transaction while reads go straight to the connection.
type dbtx interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

// Repository handles simulation database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new simulator repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "simulator").Logger(),
	}
}

// Create inserts a new simulation with default cash, day and seed.
func (r *Repository) Create(owner, name, preset string) (*Simulation, error) {
	if !ValidPreset(preset) {
		preset = PresetBalanced
	}
	now := time.Now().UTC()
	ts := now.Format(time.RFC3339)

	res, err := r.db.Exec(
		`INSERT INTO simulations (owner, name, preset, virtual_cash, current_day, seed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		owner, name, preset, DefaultVirtualCash, DefaultSeed, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation: %w", err)
	}

	return &Simulation{
		ID:          id,
		Owner:       owner,
		Name:        name,
		Preset:      preset,
		VirtualCash: DefaultVirtualCash,
		Seed:        DefaultSeed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetByID returns a simulation owned by owner, or nil when absent.
func (r *Repository) GetByID(q dbtx, id int64, owner string) (*Simulation, error) {
	row := q.QueryRow(
		`SELECT id, owner, name, preset, virtual_cash, current_day, seed, created_at, updated_at
		 FROM simulations WHERE id = ? AND owner = ?`,
		id, owner,
	)
	sim, err := scanSimulation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get simulation: %w", err)
	}
	return sim, nil
}

// ListByOwner returns the owner's simulations, newest first.
func (r *Repository) ListByOwner(owner string) ([]Simulation, error) {
	rows, err := r.db.Query(
		`SELECT id, owner, name, preset, virtual_cash, current_day, seed, created_at, updated_at
		 FROM simulations WHERE owner = ? ORDER BY created_at DESC, id DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list simulations: %w", err)
	}
	defer rows.Close()

	var sims []Simulation
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan simulation: %w", err)
		}
		sims = append(sims, *sim)
	}
	return sims, rows.Err()
}

// UpdateCash sets a simulation's virtual cash balance.
func (r *Repository) UpdateCash(q dbtx, simID int64, cash float64) error {
	_, err := q.Exec(
		`UPDATE simulations SET virtual_cash = ?, updated_at = ? WHERE id = ?`,
		cash, time.Now().UTC().Format(time.RFC3339), simID,
	)
	if err != nil {
		return fmt.Errorf("failed to update simulation cash: %w", err)
	}
	return nil
}

// UpdateDay sets a simulation's logical clock.
func (r *Repository) UpdateDay(q dbtx, simID int64, day int) error {
	_, err := q.Exec(
		`UPDATE simulations SET current_day = ?, updated_at = ? WHERE id = ?`,
		day, time.Now().UTC().Format(time.RFC3339), simID,
	)
	if err != nil {
		return fmt.Errorf("failed to update simulation day: %w", err)
	}
	return nil
}

// GetOrCreatePosition returns the position row for (simID, symbol), creating
// a zero row when absent.
func (r *Repository) GetOrCreatePosition(q dbtx, simID int64, symbol string) (*Position, error) {
	pos, err := r.getPosition(q, simID, symbol)
	if err != nil {
		return nil, err
	}
	if pos != nil {
		return pos, nil
	}

	ts := time.Now().UTC().Format(time.RFC3339)
	_, err = q.Exec(
		`INSERT INTO sim_positions (simulation_id, symbol, quantity, avg_price, updated_at)
		 VALUES (?, ?, 0, 0, ?)
		 ON CONFLICT (simulation_id, symbol) DO NOTHING`,
		simID, symbol, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sim position: %w", err)
	}
	return r.getPosition(q, simID, symbol)
}

func (r *Repository) getPosition(q dbtx, simID int64, symbol string) (*Position, error) {
	var p Position
	var updatedAt string
	err := q.QueryRow(
		`SELECT id, simulation_id, symbol, quantity, avg_price, updated_at
		 FROM sim_positions WHERE simulation_id = ? AND symbol = ?`,
		simID, symbol,
	).Scan(&p.ID, &p.SimulationID, &p.Symbol, &p.Quantity, &p.AvgPrice, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sim position: %w", err)
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

// UpdatePosition sets a position's quantity and average price.
func (r *Repository) UpdatePosition(q dbtx, posID int64, quantity, avgPrice float64) error {
	_, err := q.Exec(
		`UPDATE sim_positions SET quantity = ?, avg_price = ?, updated_at = ? WHERE id = ?`,
		quantity, avgPrice, time.Now().UTC().Format(time.RFC3339), posID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sim position: %w", err)
	}
	return nil
}

// ListPositions returns a simulation's positions ordered by symbol.
func (r *Repository) ListPositions(simID int64) ([]Position, error) {
	rows, err := r.db.Query(
		`SELECT id, simulation_id, symbol, quantity, avg_price, updated_at
		 FROM sim_positions WHERE simulation_id = ? ORDER BY symbol`,
		simID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sim positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var p Position
		var updatedAt string
		if err := rows.Scan(&p.ID, &p.SimulationID, &p.Symbol, &p.Quantity, &p.AvgPrice, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sim position: %w", err)
		}
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// RecordTrade appends one executed order to the trade tape.
func (r *Repository) RecordTrade(q dbtx, simID int64, symbol, side string, quantity, price float64, day int) (*Trade, error) {
	now := time.Now().UTC()
	res, err := q.Exec(
		`INSERT INTO sim_trades (simulation_id, symbol, side, quantity, price, day, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		simID, symbol, side, quantity, price, day, now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record sim trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to record sim trade: %w", err)
	}

	return &Trade{
		ID:           id,
		SimulationID: simID,
		Symbol:       symbol,
		Side:         side,
		Quantity:     quantity,
		Price:        price,
		Day:          day,
		CreatedAt:    now,
	}, nil
}

// ListTrades returns a simulation's most recent trades, newest first.
func (r *Repository) ListTrades(simID int64, limit int) ([]Trade, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	rows, err := r.db.Query(
		`SELECT id, simulation_id, symbol, side, quantity, price, day, created_at
		 FROM sim_trades WHERE simulation_id = ? ORDER BY id DESC LIMIT ?`,
		simID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sim trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		var createdAt string
		if err := rows.Scan(&t.ID, &t.SimulationID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.Day, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan sim trade: %w", err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSimulation(row rowScanner) (*Simulation, error) {
	var s Simulation
	var createdAt, updatedAt string
	err := row.Scan(&s.ID, &s.Owner, &s.Name, &s.Preset, &s.VirtualCash, &s.CurrentDay, &s.Seed, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &s, nil
}
