package simulator

import "time"

// Simulation presets. Presets label intent only; they do not change the
// price generator.
const (
	PresetConservative = "CONS"
	PresetBalanced     = "BAL"
	PresetAggressive   = "AGR"
)

// ValidPreset reports whether p is a known preset.
func ValidPreset(p string) bool {
	switch p {
	case PresetConservative, PresetBalanced, PresetAggressive:
		return true
	}
	return false
}

// Trade sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Defaults for new simulations.
const (
	DefaultVirtualCash = 1_000_000.0
	DefaultSeed        = 12345
)

// Advance bounds per request.
const (
	MinAdvanceDays = 1
	MaxAdvanceDays = 365
)

// Simulation is a paper-trading session with virtual cash and a logical
// clock. Nothing in it touches real money.
type Simulation struct {
	ID          int64     `json:"id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Preset      string    `json:"preset"`
	VirtualCash float64   `json:"virtual_cash"`
	CurrentDay  int       `json:"current_day"`
	Seed        int64     `json:"seed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Position is an open holding inside a simulation, kept at weighted average
// cost.
type Position struct {
	ID           int64     `json:"id"`
	SimulationID int64     `json:"simulation_id"`
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	AvgPrice     float64   `json:"avg_price"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Trade is one executed simulation order, stamped with the logical day it
// happened on.
type Trade struct {
	ID           int64     `json:"id"`
	SimulationID int64     `json:"simulation_id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price"`
	Day          int       `json:"day"`
	CreatedAt    time.Time `json:"created_at"`
}

// PositionView is a position valued at the current deterministic price.
type PositionView struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
	Price    float64 `json:"price"`
	Value    float64 `json:"value"`
}

// Detail is the full state of a simulation: cash, valued positions, and the
// recent trade tape.
type Detail struct {
	Simulation Simulation     `json:"simulation"`
	Positions  []PositionView `json:"positions"`
	Trades     []Trade        `json:"trades"`
	TotalValue float64        `json:"total_value"`
}

// TradeOrder is a trade request. Price zero means "use the deterministic
// price for the current day".
type TradeOrder struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
}
