package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TransactionRepository handles transaction database operations.
// Transactions are immutable: there are no update or delete operations.
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repo", "transaction").Logger(),
	}
}

// Create inserts a new transaction after validation.
func (r *TransactionRepository) Create(tx Transaction) (*Transaction, error) {
	if !tx.TxType.Valid() {
		return nil, fmt.Errorf("failed to create transaction: invalid tx_type %q", tx.TxType)
	}
	if tx.Quantity < 0 {
		return nil, fmt.Errorf("failed to create transaction: quantity must not be negative")
	}
	if tx.TxDate == "" {
		tx.TxDate = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", tx.TxDate); err != nil {
		return nil, fmt.Errorf("failed to create transaction: invalid tx_date %q", tx.TxDate)
	}
	tx.Note = truncateRunes(tx.Note, 240)

	now := time.Now().UTC()
	res, err := r.db.Exec(
		`INSERT INTO transactions (portfolio_id, asset_id, tx_type, quantity, price, fee, tx_date, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.PortfolioID, tx.AssetID, string(tx.TxType), tx.Quantity, tx.Price, tx.Fee, tx.TxDate, tx.Note,
		now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction id: %w", err)
	}
	tx.ID = id
	tx.CreatedAt = now

	r.log.Info().
		Int64("portfolio_id", tx.PortfolioID).
		Str("tx_type", string(tx.TxType)).
		Float64("quantity", tx.Quantity).
		Msg("Transaction created")

	return &tx, nil
}

// truncateRunes caps s at max characters without splitting a multi-byte rune.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// ListRecent returns the most recent transactions for a portfolio joined with
// the asset symbol, ordered by (tx_date DESC, id DESC), capped at limit.
func (r *TransactionRepository) ListRecent(portfolioID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 800
	}

	rows, err := r.db.Query(
		`SELECT t.id, t.portfolio_id, t.asset_id, a.symbol, t.tx_type, t.quantity, t.price, t.fee, t.tx_date, t.note, t.created_at
		 FROM transactions t
		 JOIN assets a ON a.id = t.asset_id
		 WHERE t.portfolio_id = ?
		 ORDER BY t.tx_date DESC, t.id DESC
		 LIMIT ?`,
		portfolioID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var items []Transaction
	for rows.Next() {
		var tx Transaction
		var txType, createdAt string
		if err := rows.Scan(&tx.ID, &tx.PortfolioID, &tx.AssetID, &tx.Symbol, &txType,
			&tx.Quantity, &tx.Price, &tx.Fee, &tx.TxDate, &tx.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.TxType = TxType(txType)
		tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		items = append(items, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return items, nil
}

// Count returns the total transaction count for a portfolio.
func (r *TransactionRepository) Count(portfolioID int64) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE portfolio_id = ?`, portfolioID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}
