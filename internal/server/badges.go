package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// badgePayload is the counter set shown on the PWA icon and navigation.
type badgePayload struct {
	OpenOpportunities int    `json:"open_opportunities"`
	Timestamp         string `json:"ts"`
}

func (s *Server) badgeCounts(r *http.Request) (badgePayload, error) {
	p, err := s.portfolios.GetOrCreateDefault(owner(r))
	if err != nil {
		return badgePayload{}, err
	}
	open, err := s.recoRepo.OpenCount(p.ID)
	if err != nil {
		return badgePayload{}, err
	}
	return badgePayload{
		OpenOpportunities: open,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// handleBadges returns the current badge counters for polling clients.
func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	payload, err := s.badgeCounts(r)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute badge counts")
		s.writeError(w, http.StatusInternalServerError, "failed to compute badge counts")
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// handleBadgeStream pushes badge counters over a websocket every few seconds
// until the client disconnects.
func (s *Server) handleBadgeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := r.Context()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	send := func() error {
		payload, err := s.badgeCounts(r)
		if err != nil {
			return err
		}
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return wsjson.Write(writeCtx, conn, payload)
	}

	if err := send(); err != nil {
		s.log.Debug().Err(err).Msg("Badge stream write failed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := send(); err != nil {
				s.log.Debug().Err(err).Msg("Badge stream write failed")
				return
			}
		}
	}
}
