package portfolio

import "sort"

// Negative and positive thresholds for the net-quantity fold. Quantities in
// (-epsilon, epsilon) are treated as flat and dropped from the snapshot.
const holdingsEpsilon = 1e-6

// MaxSnapshotTransactions caps how much history the snapshot builder folds.
const MaxSnapshotTransactions = 800

// Holding is a net positive position derived from transaction history.
type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
}

// HoldingsSnapshot is the folded view of a portfolio's transaction history.
// Holdings and NegativeSymbols are sorted by symbol so downstream consumers
// (rule codes, findings) are deterministic.
type HoldingsSnapshot struct {
	Holdings        []Holding          `json:"holdings"`
	NegativeSymbols []string           `json:"negative_symbols"`
	Cash            map[string]float64 `json:"cash"`
	TxCount         int                `json:"tx_count"`
}

// Quantities returns the positive holdings as a symbol -> quantity map.
func (s HoldingsSnapshot) Quantities() map[string]float64 {
	out := make(map[string]float64, len(s.Holdings))
	for _, h := range s.Holdings {
		out[h.Symbol] = h.Quantity
	}
	return out
}

// BuildHoldingsSnapshot folds a transaction list into net per-symbol
// quantities. BUY adds, SELL subtracts; DEPOSIT and WITHDRAW feed the cash
// map only (price carries the amount in the original data model); DIVIDEND
// and FEE are ignored. The fold is a sum, so input ordering does not matter.
func BuildHoldingsSnapshot(txs []Transaction) HoldingsSnapshot {
	net := make(map[string]float64)
	cash := make(map[string]float64)

	for _, tx := range txs {
		switch tx.TxType {
		case TxBuy:
			net[tx.Symbol] += tx.Quantity
		case TxSell:
			net[tx.Symbol] -= tx.Quantity
		case TxDeposit:
			cash[tx.Symbol] += tx.Price
		case TxWithdraw:
			cash[tx.Symbol] -= tx.Price
		}
	}

	snap := HoldingsSnapshot{Cash: cash, TxCount: len(txs)}
	for sym, qty := range net {
		if qty > holdingsEpsilon {
			snap.Holdings = append(snap.Holdings, Holding{Symbol: sym, Quantity: qty})
		} else if qty < -holdingsEpsilon {
			snap.NegativeSymbols = append(snap.NegativeSymbols, sym)
		}
	}

	sort.Slice(snap.Holdings, func(i, j int) bool { return snap.Holdings[i].Symbol < snap.Holdings[j].Symbol })
	sort.Strings(snap.NegativeSymbols)

	return snap
}
