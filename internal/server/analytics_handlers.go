package server

import "net/http"

// handleAnalyticsRanking returns assets ranked by risk-adjusted return over
// the requested window.
func (s *Server) handleAnalyticsRanking(w http.ResponseWriter, r *http.Request) {
	window := queryInt(r, "window", 0)
	limit := queryInt(r, "limit", 0)

	ranked, err := s.analytics.RankAssets(window, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to rank assets")
		s.writeError(w, http.StatusInternalServerError, "failed to rank assets")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":  ranked,
		"window": window,
	})
}

// handleDailyAlert triggers the daily email digest. With ?dry_run=1 the
// message is composed but not sent.
func (s *Server) handleDailyAlert(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "1"

	result, err := s.alerts.SendDaily(dryRun)
	if err != nil {
		s.log.Error().Err(err).Msg("Daily alert failed")
		s.writeError(w, http.StatusInternalServerError, "daily alert failed")
		return
	}

	s.audit.Record(r, owner(r), "alert_daily", map[string]interface{}{
		"sent":    result.Sent,
		"dry_run": dryRun,
	})
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListAuditEvents(w http.ResponseWriter, r *http.Request) {
	items, err := s.auditRepo.ListRecent(queryInt(r, "limit", 100))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list audit events")
		s.writeError(w, http.StatusInternalServerError, "failed to list audit events")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}
