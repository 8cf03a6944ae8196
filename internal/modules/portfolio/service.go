package portfolio

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Service orchestrates portfolio level queries that need both repositories.
type Service struct {
	portfolioRepo *PortfolioRepository
	txRepo        *TransactionRepository
	log           zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(portfolioRepo *PortfolioRepository, txRepo *TransactionRepository, log zerolog.Logger) *Service {
	return &Service{
		portfolioRepo: portfolioRepo,
		txRepo:        txRepo,
		log:           log.With().Str("service", "portfolio").Logger(),
	}
}

// Snapshot folds the portfolio's recent history into the holdings snapshot
// used by the rule engine and the AI evaluation context.
func (s *Service) Snapshot(portfolioID int64) (HoldingsSnapshot, error) {
	txs, err := s.txRepo.ListRecent(portfolioID, MaxSnapshotTransactions)
	if err != nil {
		return HoldingsSnapshot{}, fmt.Errorf("failed to build holdings snapshot: %w", err)
	}
	return BuildHoldingsSnapshot(txs), nil
}

// AISnapshot builds the JSON-serializable portfolio context sent to the
// external AI evaluation service. Holdings are approximate, folded from the
// most recent 200 transactions, net quantities only.
func (s *Service) AISnapshot(p *Portfolio) (map[string]interface{}, error) {
	txs, err := s.txRepo.ListRecent(p.ID, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to build AI snapshot: %w", err)
	}
	snap := BuildHoldingsSnapshot(txs)

	return map[string]interface{}{
		"id":            p.ID,
		"name":          p.Name,
		"base_currency": p.BaseCurrency,
		"holdings":      snap.Quantities(),
		"cash":          snap.Cash,
		"last_tx_count": snap.TxCount,
	}, nil
}
