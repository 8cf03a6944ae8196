// Package portfolio provides portfolio and transaction management functionality.
package portfolio

import "time"

// Currency codes supported as a portfolio base currency.
const (
	CurrencyARS = "ARS"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

// TxType classifies a transaction.
type TxType string

const (
	TxBuy      TxType = "BUY"
	TxSell     TxType = "SELL"
	TxDeposit  TxType = "DEPOSIT"
	TxWithdraw TxType = "WITHDRAW"
	TxDividend TxType = "DIVIDEND"
	TxFee      TxType = "FEE"
)

// Valid reports whether the transaction type is one of the known values.
func (t TxType) Valid() bool {
	switch t {
	case TxBuy, TxSell, TxDeposit, TxWithdraw, TxDividend, TxFee:
		return true
	}
	return false
}

// Portfolio is a user-owned container of transactions and recommendations.
type Portfolio struct {
	ID           int64     `json:"id"`
	Owner        string    `json:"owner"`
	Name         string    `json:"name"`
	BaseCurrency string    `json:"base_currency"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Transaction is an immutable portfolio movement. Ordering by (tx_date, id)
// is significant for last-known-price tie breaks elsewhere; the net-quantity
// fold itself is order independent.
type Transaction struct {
	ID          int64     `json:"id"`
	PortfolioID int64     `json:"portfolio_id"`
	AssetID     int64     `json:"asset_id"`
	Symbol      string    `json:"symbol"`
	TxType      TxType    `json:"tx_type"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	Fee         float64   `json:"fee"`
	TxDate      string    `json:"tx_date"` // ISO date (yyyy-mm-dd)
	Note        string    `json:"note"`
	CreatedAt   time.Time `json:"created_at"`
}
