package server

import (
	"net/http"
	"strconv"

	"github.com/tecnolok-2025/invpanel-pro/internal/modules/assets"
)

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	items, err := s.assets.List()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list assets")
		s.writeError(w, http.StatusInternalServerError, "failed to list assets")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol    string `json:"symbol"`
		Name      string `json:"name"`
		AssetType string `json:"asset_type"`
		Currency  string `json:"currency"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	asset, err := s.assets.Create(req.Symbol, req.Name, assets.AssetType(req.AssetType), req.Currency)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, asset)
}

// handlePriceHistory returns stored closes filtered by symbol and date range.
func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	history, err := s.prices.History(q.Get("symbol"), q.Get("date_from"), q.Get("date_to"), queryInt(r, "limit", 0))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query price history")
		s.writeError(w, http.StatusInternalServerError, "failed to query price history")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"items": history})
}

// handlePriceUpload ingests a CSV price file. With an asset_id form field the
// file is a per-asset date,close layout; without it each row must carry a
// symbol column.
func (s *Server) handlePriceUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("csv_file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "csv_file is required")
		return
	}
	defer file.Close()

	var target *assets.Asset
	if raw := r.FormValue("asset_id"); raw != "" {
		id, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil || id <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid asset_id")
			return
		}
		target, err = s.assets.GetByID(id)
		if err != nil {
			s.log.Error().Err(err).Int64("asset_id", id).Msg("Failed to get asset")
			s.writeError(w, http.StatusInternalServerError, "failed to get asset")
			return
		}
		if target == nil {
			s.writeError(w, http.StatusNotFound, "asset not found")
			return
		}
	}

	result, err := s.ingestor.Ingest(file, target)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.audit.Record(r, owner(r), "prices_upload", map[string]interface{}{
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"skipped":  result.Skipped,
	})
	s.writeJSON(w, http.StatusOK, result)
}
