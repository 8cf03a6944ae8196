package assets

import (
	"fmt"
	"sort"
	"time"
)

// PriceLookup resolves the latest known price per symbol with staleness
// computed against a caller-supplied "today". Keeping today explicit makes
// the rule engine and its tests deterministic.
type PriceLookup struct {
	priceRepo *PriceRepository
}

// NewPriceLookup creates a new price lookup
func NewPriceLookup(priceRepo *PriceRepository) *PriceLookup {
	return &PriceLookup{priceRepo: priceRepo}
}

// LookupResult is the outcome of resolving prices for a symbol set.
type LookupResult struct {
	Prices  map[string]LatestPrice `json:"prices"`
	Missing []string               `json:"missing"`
}

// StaleSymbols returns the stale symbols sorted by descending age.
func (r LookupResult) StaleSymbols() []LatestPrice {
	var stale []LatestPrice
	for _, p := range r.Prices {
		if p.Stale() {
			stale = append(stale, p)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		if stale[i].AgeDays != stale[j].AgeDays {
			return stale[i].AgeDays > stale[j].AgeDays
		}
		return stale[i].Symbol < stale[j].Symbol
	})
	return stale
}

// Resolve fetches the latest price per symbol. Symbols with no price history
// end up in Missing, sorted.
func (l *PriceLookup) Resolve(symbols []string, today time.Time) (LookupResult, error) {
	latest, err := l.priceRepo.LatestBySymbols(symbols)
	if err != nil {
		return LookupResult{}, fmt.Errorf("failed to resolve prices: %w", err)
	}

	result := LookupResult{Prices: make(map[string]LatestPrice, len(latest))}
	for _, sym := range symbols {
		p, ok := latest[sym]
		if !ok {
			result.Missing = append(result.Missing, sym)
			continue
		}

		age := 0
		if d, err := time.Parse("2006-01-02", p.Date); err == nil {
			age = int(today.Sub(d).Hours() / 24)
			if age < 0 {
				age = 0
			}
		}
		result.Prices[sym] = LatestPrice{Symbol: sym, Date: p.Date, Close: p.Close, AgeDays: age}
	}

	sort.Strings(result.Missing)
	return result, nil
}
