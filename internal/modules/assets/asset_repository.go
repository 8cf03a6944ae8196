package assets

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AssetRepository handles asset catalog database operations
type AssetRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *sql.DB, log zerolog.Logger) *AssetRepository {
	return &AssetRepository{
		db:  db,
		log: log.With().Str("repo", "asset").Logger(),
	}
}

const assetColumns = `id, symbol, name, asset_type, currency, created_at, updated_at`

// Create inserts a new asset. Symbols are stored uppercased and must be unique.
func (r *AssetRepository) Create(symbol, name string, assetType AssetType, currency string) (*Asset, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("failed to create asset: symbol is required")
	}
	if name == "" {
		name = symbol
	}
	if assetType == "" {
		assetType = TypeFCI
	}
	if !assetType.Valid() {
		return nil, fmt.Errorf("failed to create asset: invalid asset_type %q", assetType)
	}
	if currency == "" {
		currency = "ARS"
	}

	now := time.Now().UTC()
	res, err := r.db.Exec(
		`INSERT INTO assets (symbol, name, asset_type, currency, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		symbol, name, string(assetType), currency, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}

	id, _ := res.LastInsertId()
	r.log.Info().Str("symbol", symbol).Msg("Asset created")

	return &Asset{ID: id, Symbol: symbol, Name: name, AssetType: assetType, Currency: currency, CreatedAt: now, UpdatedAt: now}, nil
}

// GetBySymbol returns the asset for a symbol, or nil when missing.
func (r *AssetRepository) GetBySymbol(symbol string) (*Asset, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	row := r.db.QueryRow(`SELECT `+assetColumns+` FROM assets WHERE symbol = ?`, symbol)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset by symbol: %w", err)
	}
	return a, nil
}

// GetByID returns the asset by id, or nil when missing.
func (r *AssetRepository) GetByID(id int64) (*Asset, error) {
	row := r.db.QueryRow(`SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset by id: %w", err)
	}
	return a, nil
}

// GetOrCreate returns the asset for a symbol, creating it when it does not
// exist yet. Ingestion relies on this being idempotent by symbol.
func (r *AssetRepository) GetOrCreate(symbol, name string) (*Asset, error) {
	existing, err := r.GetBySymbol(symbol)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	created, err := r.Create(symbol, name, TypeFCI, "")
	if err == nil {
		return created, nil
	}

	// Lost a create race: the unique index rejected us, so the row exists now.
	if strings.Contains(err.Error(), "UNIQUE") {
		return r.GetBySymbol(symbol)
	}
	return nil, err
}

// List returns the full catalog ordered by symbol.
func (r *AssetRepository) List() ([]Asset, error) {
	rows, err := r.db.Query(`SELECT ` + assetColumns + ` FROM assets ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var items []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		items = append(items, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return items, nil
}

// CurrenciesBySymbols returns symbol -> currency for the given symbols.
func (r *AssetRepository) CurrenciesBySymbols(symbols []string) (map[string]string, error) {
	out := make(map[string]string, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(symbols)), ",")
	args := make([]interface{}, len(symbols))
	for i, s := range symbols {
		args[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	rows, err := r.db.Query(`SELECT symbol, currency FROM assets WHERE symbol IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset currencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var symbol, currency string
		if err := rows.Scan(&symbol, &currency); err != nil {
			return nil, fmt.Errorf("failed to scan asset currency: %w", err)
		}
		out[symbol] = currency
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset currencies: %w", err)
	}

	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row rowScanner) (*Asset, error) {
	var a Asset
	var assetType, createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.Symbol, &a.Name, &assetType, &a.Currency, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.AssetType = AssetType(assetType)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &a, nil
}
