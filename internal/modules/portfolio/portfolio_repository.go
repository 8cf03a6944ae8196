package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PortfolioRepository handles portfolio database operations
type PortfolioRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *sql.DB, log zerolog.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

const portfolioColumns = `id, owner, name, base_currency, created_at, updated_at`

// Create inserts a new portfolio and returns it with its assigned id.
func (r *PortfolioRepository) Create(owner, name, baseCurrency string) (*Portfolio, error) {
	if name == "" {
		return nil, fmt.Errorf("failed to create portfolio: name is required")
	}
	if baseCurrency == "" {
		baseCurrency = CurrencyARS
	}

	now := time.Now().UTC()
	res, err := r.db.Exec(
		`INSERT INTO portfolios (owner, name, base_currency, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		owner, name, baseCurrency, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio id: %w", err)
	}

	r.log.Info().Int64("portfolio_id", id).Str("owner", owner).Msg("Portfolio created")

	return &Portfolio{
		ID:           id,
		Owner:        owner,
		Name:         name,
		BaseCurrency: baseCurrency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetByID returns a portfolio by id, or nil when it does not exist.
func (r *PortfolioRepository) GetByID(id int64) (*Portfolio, error) {
	row := r.db.QueryRow(`SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`, id)
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return p, nil
}

// ListByOwner returns the owner's portfolios, newest first.
func (r *PortfolioRepository) ListByOwner(owner string) ([]Portfolio, error) {
	rows, err := r.db.Query(
		`SELECT `+portfolioColumns+` FROM portfolios WHERE owner = ? ORDER BY created_at DESC, id DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var items []Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		items = append(items, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return items, nil
}

// GetOrCreateDefault returns the owner's oldest portfolio, creating the
// default one when none exists yet.
func (r *PortfolioRepository) GetOrCreateDefault(owner string) (*Portfolio, error) {
	row := r.db.QueryRow(
		`SELECT `+portfolioColumns+` FROM portfolios WHERE owner = ? ORDER BY id ASC LIMIT 1`, owner)
	p, err := scanPortfolio(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get default portfolio: %w", err)
	}

	return r.Create(owner, "Mi Portafolio", CurrencyARS)
}

// Rename updates a portfolio's display name.
func (r *PortfolioRepository) Rename(id int64, name string) error {
	if name == "" {
		return fmt.Errorf("failed to rename portfolio: name is required")
	}

	_, err := r.db.Exec(
		`UPDATE portfolios SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to rename portfolio: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(row rowScanner) (*Portfolio, error) {
	var p Portfolio
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Owner, &p.Name, &p.BaseCurrency, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}
