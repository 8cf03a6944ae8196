package simulator

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tecnolok-2025/invpanel-pro/internal/database"
)

// Sentinel errors surfaced to handlers.
var (
	ErrNotFound             = errors.New("simulation not found")
	ErrInvalidOrder         = errors.New("invalid order")
	ErrInsufficientCash     = errors.New("insufficient virtual cash")
	ErrInsufficientPosition = errors.New("insufficient position")
)

// CloseProvider returns the latest known close for a symbol, if any.
// Used to anchor the deterministic price generator to real history.
type CloseProvider interface {
	LatestClose(symbol string) (float64, bool, error)
}

// Service runs the paper-trading simulator. All trading is virtual: cash and
// positions live in the simulator tables and never touch the portfolio.
type Service struct {
	db     *sql.DB
	repo   *Repository
	closes CloseProvider
	log    zerolog.Logger
}

// NewService creates a new simulator service
func NewService(db *sql.DB, repo *Repository, closes CloseProvider, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		repo:   repo,
		closes: closes,
		log:    log.With().Str("service", "simulator").Logger(),
	}
}

// Create starts a new simulation for the owner.
func (s *Service) Create(owner, name, preset string) (*Simulation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidOrder)
	}
	return s.repo.Create(owner, name, preset)
}

// List returns the owner's simulations, newest first.
func (s *Service) List(owner string) ([]Simulation, error) {
	return s.repo.ListByOwner(owner)
}

// CurrentPrice returns the deterministic price for a symbol on the
// simulation's current day. The generator is anchored on the symbol's latest
// real close when history exists, otherwise on the default base.
func (s *Service) CurrentPrice(sim *Simulation, symbol string) float64 {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	base := DefaultBasePrice
	if last, ok, err := s.closes.LatestClose(symbol); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Latest close lookup failed, using default base")
	} else if ok {
		base = last
	}

	seed := sim.Seed
	if seed == 0 {
		seed = 1
	}
	price, _ := PriceFor(symbol, sim.CurrentDay, seed, base).Float64()
	return price
}

// Detail returns a simulation with its positions valued at current prices
// and the recent trade tape.
func (s *Service) Detail(id int64, owner string) (*Detail, error) {
	sim, err := s.repo.GetByID(s.db, id, owner)
	if err != nil {
		return nil, err
	}
	if sim == nil {
		return nil, ErrNotFound
	}

	positions, err := s.repo.ListPositions(sim.ID)
	if err != nil {
		return nil, err
	}
	trades, err := s.repo.ListTrades(sim.ID, 200)
	if err != nil {
		return nil, err
	}

	views := make([]PositionView, 0, len(positions))
	total := sim.VirtualCash
	for _, p := range positions {
		px := s.CurrentPrice(sim, p.Symbol)
		value := p.Quantity * px
		total += value
		views = append(views, PositionView{
			Symbol:   p.Symbol,
			Quantity: p.Quantity,
			AvgPrice: p.AvgPrice,
			Price:    px,
			Value:    value,
		})
	}

	return &Detail{
		Simulation: *sim,
		Positions:  views,
		Trades:     trades,
		TotalValue: total,
	}, nil
}

// Trade executes one order against a simulation atomically. BUY checks cash
// and moves the position to a weighted average cost; SELL checks the
// position and resets the average when it closes out. A failed check leaves
// the simulation untouched.
func (s *Service) Trade(id int64, owner string, order TradeOrder) (*Trade, error) {
	symbol := strings.ToUpper(strings.TrimSpace(order.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	}
	if order.Side != SideBuy && order.Side != SideSell {
		return nil, fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	}
	if order.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if order.Price < 0 {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidOrder)
	}

	var trade *Trade
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		sim, err := s.repo.GetByID(tx, id, owner)
		if err != nil {
			return err
		}
		if sim == nil {
			return ErrNotFound
		}

		px := order.Price
		if px == 0 {
			px = s.CurrentPrice(sim, symbol)
		}

		pos, err := s.repo.GetOrCreatePosition(tx, sim.ID, symbol)
		if err != nil {
			return err
		}

		switch order.Side {
		case SideBuy:
			cost := order.Quantity * px
			if sim.VirtualCash < cost {
				return ErrInsufficientCash
			}

			newQty := pos.Quantity + order.Quantity
			avg := px
			if pos.Quantity > 0 && pos.AvgPrice > 0 {
				avg = (pos.Quantity*pos.AvgPrice + order.Quantity*px) / newQty
			}
			if err := s.repo.UpdatePosition(tx, pos.ID, newQty, avg); err != nil {
				return err
			}
			if err := s.repo.UpdateCash(tx, sim.ID, sim.VirtualCash-cost); err != nil {
				return err
			}

		case SideSell:
			if pos.Quantity < order.Quantity {
				return ErrInsufficientPosition
			}

			newQty := pos.Quantity - order.Quantity
			avg := pos.AvgPrice
			if newQty <= 0 {
				newQty = 0
				avg = 0
			}
			if err := s.repo.UpdatePosition(tx, pos.ID, newQty, avg); err != nil {
				return err
			}
			if err := s.repo.UpdateCash(tx, sim.ID, sim.VirtualCash+order.Quantity*px); err != nil {
				return err
			}
		}

		trade, err = s.repo.RecordTrade(tx, sim.ID, symbol, order.Side, order.Quantity, px, sim.CurrentDay)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("sim_id", id).Str("symbol", symbol).Str("side", order.Side).
		Float64("quantity", order.Quantity).Float64("price", trade.Price).
		Msg("Simulation trade executed")
	return trade, nil
}

// Advance moves the simulation clock forward by days, clamped to 1..365 per
// call. Prices for every symbol change deterministically with the new day.
func (s *Service) Advance(id int64, owner string, days int) (*Simulation, error) {
	if days < MinAdvanceDays {
		days = MinAdvanceDays
	}
	if days > MaxAdvanceDays {
		days = MaxAdvanceDays
	}

	var sim *Simulation
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		var err error
		sim, err = s.repo.GetByID(tx, id, owner)
		if err != nil {
			return err
		}
		if sim == nil {
			return ErrNotFound
		}

		sim.CurrentDay += days
		return s.repo.UpdateDay(tx, sim.ID, sim.CurrentDay)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("sim_id", id).Int("days", days).Int("current_day", sim.CurrentDay).
		Msg("Simulation clock advanced")
	return sim, nil
}
