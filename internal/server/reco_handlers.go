package server

import (
	"errors"
	"net/http"

	"github.com/tecnolok-2025/invpanel-pro/internal/modules/portfolio"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/recommendations"
)

// portfolioFromQuery resolves the portfolio_id query parameter, falling back
// to the owner's default portfolio when absent.
func (s *Server) portfolioFromQuery(w http.ResponseWriter, r *http.Request) *portfolio.Portfolio {
	if id := queryInt(r, "portfolio_id", 0); id > 0 {
		return s.ownedPortfolio(w, r, int64(id))
	}
	p, err := s.portfolios.GetOrCreateDefault(owner(r))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to resolve default portfolio")
		s.writeError(w, http.StatusInternalServerError, "failed to resolve portfolio")
		return nil
	}
	return p
}

// portfolioFromBody resolves a portfolio_id JSON field the same way.
func (s *Server) portfolioFromBody(w http.ResponseWriter, r *http.Request, id int64) *portfolio.Portfolio {
	if id > 0 {
		return s.ownedPortfolio(w, r, id)
	}
	p, err := s.portfolios.GetOrCreateDefault(owner(r))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to resolve default portfolio")
		s.writeError(w, http.StatusInternalServerError, "failed to resolve portfolio")
		return nil
	}
	return p
}

func (s *Server) handleListOpenOpportunities(w http.ResponseWriter, r *http.Request) {
	p := s.portfolioFromQuery(w, r)
	if p == nil {
		return
	}

	items, err := s.recoRepo.ListOpen(p.ID, queryInt(r, "limit", 100))
	if err != nil {
		s.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("Failed to list open opportunities")
		s.writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}

	last, err := s.reco.LastRun(p.ID)
	if err != nil {
		s.log.Warn().Err(err).Int64("portfolio_id", p.ID).Msg("Failed to read last generation record")
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":    items,
		"last_run": last,
		"policy":   s.reco.Policy(),
	})
}

// handleListOpportunitiesDB is the full-database screen: every status, with
// text and date filters.
func (s *Server) handleListOpportunitiesDB(w http.ResponseWriter, r *http.Request) {
	p := s.portfolioFromQuery(w, r)
	if p == nil {
		return
	}

	q := r.URL.Query()
	items, err := s.recoRepo.List(p.ID, recommendations.ListFilter{
		Query:    q.Get("q"),
		Status:   recommendations.Status(q.Get("status")),
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
		Limit:    queryInt(r, "limit", 0),
	})
	if err != nil {
		s.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("Failed to query opportunities")
		s.writeError(w, http.StatusInternalServerError, "failed to query opportunities")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleOpportunitiesLastRun(w http.ResponseWriter, r *http.Request) {
	p := s.portfolioFromQuery(w, r)
	if p == nil {
		return
	}

	last, err := s.reco.LastRun(p.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("Failed to read last generation record")
		s.writeError(w, http.StatusInternalServerError, "failed to read last generation record")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"last_run": last})
}

func (s *Server) handleGenerateOpportunities(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PortfolioID int64 `json:"portfolio_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	p := s.portfolioFromBody(w, r, req.PortfolioID)
	if p == nil {
		return
	}

	result, diag, err := s.reco.Generate(p)
	if err != nil {
		s.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("Opportunity generation failed")
		s.writeError(w, http.StatusInternalServerError, "opportunity generation failed")
		return
	}

	s.audit.Record(r, owner(r), "reco_generate", map[string]interface{}{
		"portfolio_id": p.ID,
		"created":      result.Created,
		"skipped":      result.Skipped,
		"failed":       result.Failed,
	})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": result,
		"diag":   diag,
	})
}

func (s *Server) handleSeedDemoOpportunities(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PortfolioID int64 `json:"portfolio_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	p := s.portfolioFromBody(w, r, req.PortfolioID)
	if p == nil {
		return
	}

	created, err := s.reco.SeedDemo(p)
	if err != nil {
		s.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("Demo seed failed")
		s.writeError(w, http.StatusInternalServerError, "demo seed failed")
		return
	}

	s.audit.Record(r, owner(r), "reco_demo_seed", map[string]interface{}{
		"portfolio_id": p.ID,
		"created":      created,
	})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"created": created})
}

func (s *Server) handleEvaluateOpportunities(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PortfolioID int64 `json:"portfolio_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	p := s.portfolioFromBody(w, r, req.PortfolioID)
	if p == nil {
		return
	}

	result, err := s.reco.EvaluateOpen(r.Context(), p)
	if err != nil {
		s.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("AI evaluation batch failed")
		s.writeError(w, http.StatusInternalServerError, "AI evaluation failed")
		return
	}

	s.audit.Record(r, owner(r), "reco_ai_eval", map[string]interface{}{
		"portfolio_id": p.ID,
		"evaluated":    result.Evaluated,
	})
	s.writeJSON(w, http.StatusOK, result)
}

// decision handles the shared shape of accept/ignore/reopen. The record's
// portfolio must belong to the caller; anything else is reported as not found.
func (s *Server) decision(
	w http.ResponseWriter, r *http.Request,
	event string,
	apply func(id int64, note string) (*recommendations.Recommendation, error),
) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}

	existing, err := s.recoRepo.GetByID(id)
	if err != nil {
		s.log.Error().Err(err).Int64("id", id).Msg("Failed to get opportunity")
		s.writeError(w, http.StatusInternalServerError, "failed to get opportunity")
		return
	}
	if existing == nil {
		s.writeError(w, http.StatusNotFound, "opportunity not found")
		return
	}
	p, err := s.portfolios.GetByID(existing.PortfolioID)
	if err != nil {
		s.log.Error().Err(err).Int64("portfolio_id", existing.PortfolioID).Msg("Failed to get portfolio")
		s.writeError(w, http.StatusInternalServerError, "failed to get opportunity")
		return
	}
	if p == nil || p.Owner != owner(r) {
		s.writeError(w, http.StatusNotFound, "opportunity not found")
		return
	}

	var req struct {
		Note string `json:"note"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	rec, err := apply(id, req.Note)
	if err != nil {
		var blocked *recommendations.BlockedError
		switch {
		case errors.As(err, &blocked):
			s.writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":     "blocked by governance",
				"min_score": blocked.MinScore,
				"ai_action": blocked.AIAction,
				"ai_score":  blocked.AIScore,
			})
		case errors.Is(err, recommendations.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "opportunity not found")
		case errors.Is(err, recommendations.ErrInvalidTransition):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.log.Error().Err(err).Int64("id", id).Str("event", event).Msg("Decision failed")
			s.writeError(w, http.StatusInternalServerError, "decision failed")
		}
		return
	}

	s.audit.Record(r, owner(r), event, map[string]interface{}{
		"id":     rec.ID,
		"code":   rec.Code,
		"status": rec.Status,
	})
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAcceptOpportunity(w http.ResponseWriter, r *http.Request) {
	s.decision(w, r, "reco_accept", s.reco.Accept)
}

func (s *Server) handleIgnoreOpportunity(w http.ResponseWriter, r *http.Request) {
	s.decision(w, r, "reco_ignore", s.reco.Ignore)
}

func (s *Server) handleReopenOpportunity(w http.ResponseWriter, r *http.Request) {
	s.decision(w, r, "reco_reopen", s.reco.Reopen)
}
