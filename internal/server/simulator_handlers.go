package server

import (
	"errors"
	"net/http"

	"github.com/tecnolok-2025/invpanel-pro/internal/modules/simulator"
)

func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	items, err := s.sims.List(owner(r))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list simulations")
		s.writeError(w, http.StatusInternalServerError, "failed to list simulations")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleCreateSimulation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Preset string `json:"preset"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	sim, err := s.sims.Create(owner(r), req.Name, req.Preset)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.audit.Record(r, owner(r), "sim_create", map[string]interface{}{"sim_id": sim.ID})
	s.writeJSON(w, http.StatusCreated, sim)
}

func (s *Server) handleSimulationDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}

	detail, err := s.sims.Detail(id, owner(r))
	if errors.Is(err, simulator.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "simulation not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Int64("sim_id", id).Msg("Failed to load simulation")
		s.writeError(w, http.StatusInternalServerError, "failed to load simulation")
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSimulationTrade(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}

	var order simulator.TradeOrder
	if !s.decodeJSON(w, r, &order) {
		return
	}

	trade, err := s.sims.Trade(id, owner(r), order)
	if err != nil {
		switch {
		case errors.Is(err, simulator.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "simulation not found")
		case errors.Is(err, simulator.ErrInsufficientCash),
			errors.Is(err, simulator.ErrInsufficientPosition),
			errors.Is(err, simulator.ErrInvalidOrder):
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.log.Error().Err(err).Int64("sim_id", id).Msg("Simulation trade failed")
			s.writeError(w, http.StatusInternalServerError, "simulation trade failed")
		}
		return
	}

	s.audit.Record(r, owner(r), "sim_trade", map[string]interface{}{
		"sim_id":   id,
		"trade_id": trade.ID,
		"symbol":   trade.Symbol,
		"side":     trade.Side,
	})
	s.writeJSON(w, http.StatusCreated, trade)
}

func (s *Server) handleSimulationAdvance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Days int `json:"days"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	sim, err := s.sims.Advance(id, owner(r), req.Days)
	if errors.Is(err, simulator.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "simulation not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Int64("sim_id", id).Msg("Simulation advance failed")
		s.writeError(w, http.StatusInternalServerError, "simulation advance failed")
		return
	}

	s.audit.Record(r, owner(r), "sim_advance", map[string]interface{}{
		"sim_id": id,
		"days":   req.Days,
	})
	s.writeJSON(w, http.StatusOK, sim)
}
