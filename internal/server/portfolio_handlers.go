package server

import (
	"net/http"

	"github.com/tecnolok-2025/invpanel-pro/internal/modules/portfolio"
)

func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	items, err := s.portfolios.ListByOwner(owner(r))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list portfolios")
		s.writeError(w, http.StatusInternalServerError, "failed to list portfolios")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		BaseCurrency string `json:"base_currency"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	p, err := s.portfolios.Create(owner(r), req.Name, req.BaseCurrency)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.audit.Record(r, owner(r), "portfolio_create", map[string]interface{}{"portfolio_id": p.ID})
	s.writeJSON(w, http.StatusCreated, p)
}

// handleDefaultPortfolio returns the owner's default portfolio, creating it
// on first use.
func (s *Server) handleDefaultPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.portfolios.GetOrCreateDefault(owner(r))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get default portfolio")
		s.writeError(w, http.StatusInternalServerError, "failed to get default portfolio")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// ownedPortfolio loads a portfolio and verifies ownership.
func (s *Server) ownedPortfolio(w http.ResponseWriter, r *http.Request, id int64) *portfolio.Portfolio {
	p, err := s.portfolios.GetByID(id)
	if err != nil {
		s.log.Error().Err(err).Int64("portfolio_id", id).Msg("Failed to get portfolio")
		s.writeError(w, http.StatusInternalServerError, "failed to get portfolio")
		return nil
	}
	if p == nil || p.Owner != owner(r) {
		s.writeError(w, http.StatusNotFound, "portfolio not found")
		return nil
	}
	return p
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	p := s.ownedPortfolio(w, r, id)
	if p == nil {
		return
	}

	snap, err := s.snapshots.Snapshot(p.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("Failed to build holdings snapshot")
		s.writeError(w, http.StatusInternalServerError, "failed to build holdings snapshot")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio": p,
		"holdings":  snap.Holdings,
		"cash":      snap.Cash,
		"tx_count":  snap.TxCount,
	})
}

func (s *Server) handleRenamePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	p := s.ownedPortfolio(w, r, id)
	if p == nil {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if err := s.portfolios.Rename(p.ID, req.Name); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.audit.Record(r, owner(r), "portfolio_rename", map[string]interface{}{"portfolio_id": p.ID})
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	p := s.ownedPortfolio(w, r, id)
	if p == nil {
		return
	}

	limit := queryInt(r, "limit", 100)
	txs, err := s.txs.ListRecent(p.ID, limit)
	if err != nil {
		s.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("Failed to list transactions")
		s.writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"items": txs})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	p := s.ownedPortfolio(w, r, id)
	if p == nil {
		return
	}

	var req struct {
		Symbol   string  `json:"symbol"`
		TxType   string  `json:"tx_type"`
		Quantity float64 `json:"quantity"`
		Price    float64 `json:"price"`
		Fee      float64 `json:"fee"`
		TxDate   string  `json:"tx_date"`
		Note     string  `json:"note"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	asset, err := s.assets.GetOrCreate(req.Symbol, "")
	if err != nil {
		s.log.Error().Err(err).Str("symbol", req.Symbol).Msg("Failed to resolve asset")
		s.writeError(w, http.StatusInternalServerError, "failed to resolve asset")
		return
	}

	tx, err := s.txs.Create(portfolio.Transaction{
		PortfolioID: p.ID,
		AssetID:     asset.ID,
		TxType:      portfolio.TxType(req.TxType),
		Quantity:    req.Quantity,
		Price:       req.Price,
		Fee:         req.Fee,
		TxDate:      req.TxDate,
		Note:        req.Note,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx.Symbol = asset.Symbol

	s.audit.Record(r, owner(r), "tx_create", map[string]interface{}{
		"portfolio_id": p.ID,
		"tx_id":        tx.ID,
		"symbol":       asset.Symbol,
		"tx_type":      req.TxType,
	})
	s.writeJSON(w, http.StatusCreated, tx)
}
