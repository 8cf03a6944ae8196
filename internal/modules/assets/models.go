// Package assets provides the asset catalog and price history functionality.
package assets

import "time"

// AssetType classifies an asset in the catalog.
type AssetType string

const (
	TypeFCI    AssetType = "FCI"
	TypeBond   AssetType = "BOND"
	TypeStock  AssetType = "STOCK"
	TypeFX     AssetType = "FX"
	TypeCash   AssetType = "CASH"
	TypeCrypto AssetType = "CRYPTO"
	TypeOther  AssetType = "OTHER"
)

// Valid reports whether the asset type is one of the known values.
func (t AssetType) Valid() bool {
	switch t {
	case TypeFCI, TypeBond, TypeStock, TypeFX, TypeCash, TypeCrypto, TypeOther:
		return true
	}
	return false
}

// Asset is a catalog entry referenced by transactions and price rows.
type Asset struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	AssetType AssetType `json:"asset_type"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Price is one close in an asset's history. (asset, date) is unique.
type Price struct {
	ID      int64   `json:"id"`
	AssetID int64   `json:"asset_id"`
	Symbol  string  `json:"symbol"`
	Date    string  `json:"date"` // ISO date (yyyy-mm-dd)
	Close   float64 `json:"close"`
}

// LatestPrice is the most recent known close for a symbol, with its age
// relative to "today" as seen by the caller.
type LatestPrice struct {
	Symbol  string  `json:"symbol"`
	Date    string  `json:"date"`
	Close   float64 `json:"close"`
	AgeDays int     `json:"age_days"`
}

// StaleAfterDays marks a price as stale for rule purposes.
const StaleAfterDays = 14

// Stale reports whether the price is older than the staleness threshold.
func (p LatestPrice) Stale() bool {
	return p.AgeDays > StaleAfterDays
}
