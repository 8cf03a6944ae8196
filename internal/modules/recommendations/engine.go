package recommendations

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tecnolok-2025/invpanel-pro/internal/modules/assets"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/portfolio"
)

// Rule thresholds. Boundaries are inclusive: a top weight of exactly 0.55 is
// HIGH, exactly 0.35 is MED.
const (
	concentrationHigh    = 0.55
	concentrationMed     = 0.35
	currencyExposureMin  = 0.25
	fragmentationSymbols = 10
	fragmentationSmall   = 5
	fragmentationWeight  = 0.01
	maxListedSymbols     = 10
	maxListedSmall       = 20
)

// SnapshotProvider folds a portfolio's transactions into a holdings snapshot.
type SnapshotProvider interface {
	Snapshot(portfolioID int64) (portfolio.HoldingsSnapshot, error)
}

// PriceResolver resolves latest prices with staleness for a symbol set.
type PriceResolver interface {
	Resolve(symbols []string, today time.Time) (assets.LookupResult, error)
}

// CurrencyProvider maps symbols to their trading currency.
type CurrencyProvider interface {
	CurrenciesBySymbols(symbols []string) (map[string]string, error)
}

// Engine turns a portfolio's holdings and price history into a deduplicated,
// auditable set of OPEN recommendations. Rules are small, explainable, and
// independently triggerable; each run appends zero or more candidates and
// persists them idempotently.
type Engine struct {
	snapshots  SnapshotProvider
	prices     PriceResolver
	currencies CurrencyProvider
	repo       *Repository
	log        zerolog.Logger

	now func() time.Time // injectable for tests
}

// NewEngine creates a new rule engine
func NewEngine(
	snapshots SnapshotProvider,
	prices PriceResolver,
	currencies CurrencyProvider,
	repo *Repository,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		snapshots:  snapshots,
		prices:     prices,
		currencies: currencies,
		repo:       repo,
		log:        log.With().Str("module", "reco_engine").Logger(),
		now:        time.Now,
	}
}

// Generate runs the rule set against the portfolio and persists the findings.
// Each candidate is persisted independently: duplicates of existing OPEN rows
// are skipped and single-row storage failures are logged and skipped, so one
// bad candidate never aborts the batch. When nothing was created the result
// carries a human-readable reason.
func (e *Engine) Generate(p *portfolio.Portfolio) (GenerateResult, error) {
	candidates, err := e.buildCandidates(p)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("failed to generate recommendations: %w", err)
	}

	var result GenerateResult
	for _, c := range candidates {
		switch e.repo.SafeCreate(p.ID, c) {
		case OutcomeCreated:
			result.Created++
		case OutcomeSkippedDuplicate:
			result.Skipped++
		case OutcomeFailed:
			result.Failed++
		}
	}

	if result.Created == 0 {
		switch {
		case result.Failed > 0:
			result.Reason = ReasonPersistFails
		case result.Skipped > 0:
			result.Reason = ReasonDuplicates
		default:
			result.Reason = ReasonNoTriggers
		}
	}

	e.log.Info().
		Int64("portfolio_id", p.ID).
		Int("candidates", len(candidates)).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("Recommendation generation complete")

	return result, nil
}

// Diagnose recomputes the generator's inputs and returns a structured report
// without mutating anything.
func (e *Engine) Diagnose(p *portfolio.Portfolio) (DiagnosticReport, error) {
	snap, err := e.snapshots.Snapshot(p.ID)
	if err != nil {
		return DiagnosticReport{}, fmt.Errorf("failed to diagnose generation: %w", err)
	}

	lookup, err := e.prices.Resolve(symbolsOf(snap.Holdings), e.now())
	if err != nil {
		return DiagnosticReport{}, fmt.Errorf("failed to diagnose generation: %w", err)
	}

	openCount, err := e.repo.OpenCount(p.ID)
	if err != nil {
		return DiagnosticReport{}, fmt.Errorf("failed to diagnose generation: %w", err)
	}

	return DiagnosticReport{
		PortfolioID:     p.ID,
		TxCount:         snap.TxCount,
		HoldingsCount:   len(snap.Holdings),
		NegativeSymbols: snap.NegativeSymbols,
		PricesAvailable: len(lookup.Prices),
		PricesMissing:   len(lookup.Missing),
		PricesStale:     len(lookup.StaleSymbols()),
		OpenCount:       openCount,
	}, nil
}

// buildCandidates runs the ordered rule checks and returns the findings.
func (e *Engine) buildCandidates(p *portfolio.Portfolio) ([]Candidate, error) {
	snap, err := e.snapshots.Snapshot(p.ID)
	if err != nil {
		return nil, err
	}

	var out []Candidate

	// 1. Data quality: negative net holdings point at missing or inconsistent
	// history. Only the first (lexicographically smallest) offender triggers a
	// finding per run to bound noise.
	if len(snap.NegativeSymbols) > 0 {
		sym := snap.NegativeSymbols[0]
		out = append(out, Candidate{
			Code:     fmt.Sprintf("NEG-HOLDINGS-%s-%d", sym, p.ID),
			Severity: SeverityHigh,
			Title:    fmt.Sprintf("Inconsistent holdings for %s", sym),
			Rationale: fmt.Sprintf(
				"The transaction history nets to a negative quantity for %s, which means sells exceed recorded buys. "+
					"Review the movement list for this symbol and add the missing BUY entries so analyses are trustworthy.", sym),
			Evidence: Evidence{
				"symbol":           sym,
				"negative_symbols": snap.NegativeSymbols,
			},
		})
	}

	// 2. Empty portfolio: nothing to analyze yet.
	if snap.TxCount == 0 {
		out = append(out, Candidate{
			Code:     fmt.Sprintf("SETUP-EMPTY-%d", p.ID),
			Severity: SeverityMed,
			Title:    "Portfolio has no movements yet",
			Rationale: "There are no transactions recorded, so no analysis can run. " +
				"Load your BUY/SELL history (and optionally price CSVs) to start receiving findings.",
			Evidence: Evidence{"tx_count": 0},
		})
		return out, nil
	}

	// 3. Transactions exist but everything is closed out.
	if len(snap.Holdings) == 0 {
		out = append(out, Candidate{
			Code:     fmt.Sprintf("NO-POSITIONS-%d", p.ID),
			Severity: SeverityLow,
			Title:    "No open positions",
			Rationale: "All recorded positions net to zero. If you still hold assets, the history is incomplete; " +
				"otherwise there is simply nothing to analyze right now.",
			Evidence: Evidence{"tx_count": snap.TxCount, "holdings_count": 0},
		})
		return out, nil
	}

	symbols := symbolsOf(snap.Holdings)
	lookup, err := e.prices.Resolve(symbols, e.now())
	if err != nil {
		return nil, err
	}

	// 4a. Missing prices.
	if len(lookup.Missing) > 0 {
		out = append(out, Candidate{
			Code:     fmt.Sprintf("MISSING-PRICES-%d", p.ID),
			Severity: SeverityMed,
			Title:    fmt.Sprintf("Missing prices for %d held symbol(s)", len(lookup.Missing)),
			Rationale: fmt.Sprintf(
				"No price history exists for: %s. Valuation and concentration checks ignore these symbols. "+
					"Upload a price CSV for them to get complete findings.", listSymbols(lookup.Missing, maxListedSymbols)),
			Evidence: Evidence{
				"missing_count":   len(lookup.Missing),
				"missing_symbols": capList(lookup.Missing, maxListedSymbols),
			},
		})
	}

	// 4b. Valuation.
	quantities := snap.Quantities()
	values := make(map[string]float64)
	total := 0.0
	for sym, lp := range lookup.Prices {
		v := quantities[sym] * lp.Close
		values[sym] = v
		total += v
	}

	if total <= 0 {
		out = append(out, Candidate{
			Code:     fmt.Sprintf("NO-VALUATION-%d", p.ID),
			Severity: SeverityMed,
			Title:    "Portfolio cannot be valued",
			Rationale: "None of the held symbols has a usable price, so total value and weights cannot be computed. " +
				"Upload price history to enable the remaining checks.",
			Evidence: Evidence{"holdings_count": len(snap.Holdings), "prices_available": len(lookup.Prices)},
		})
		// Nothing else can be computed against an unvaluable portfolio.
		return out, nil
	}

	// 4c. Concentration. Tie-break on equal weights: lexicographically
	// smallest symbol wins, which keeps the finding code deterministic.
	topSym := ""
	topWeight := 0.0
	for _, sym := range sortedKeys(values) {
		w := values[sym] / total
		if w > topWeight {
			topSym = sym
			topWeight = w
		}
	}
	if topWeight >= concentrationMed {
		sev := SeverityMed
		threshold := concentrationMed
		if topWeight >= concentrationHigh {
			sev = SeverityHigh
			threshold = concentrationHigh
		}
		out = append(out, Candidate{
			Code:     fmt.Sprintf("CONC-%s-%d", topSym, p.ID),
			Severity: sev,
			Title:    fmt.Sprintf("High concentration in %s (%.1f%%)", topSym, topWeight*100),
			Rationale: fmt.Sprintf(
				"%s represents %.1f%% of the portfolio's estimated value (threshold %.0f%%). "+
					"A single position this large ties your results to one asset; consider trimming it or diversifying into other instruments.",
				topSym, topWeight*100, threshold*100),
			Evidence: Evidence{
				"symbol":      topSym,
				"weight":      topWeight,
				"threshold":   threshold,
				"total_value": total,
			},
		})
	}

	// 4d. Currency exposure: largest non-base currency bucket by value.
	currencies, err := e.currencies.CurrenciesBySymbols(symbols)
	if err != nil {
		return nil, err
	}
	byCurrency := make(map[string]float64)
	for sym, v := range values {
		cur := currencies[sym]
		if cur == "" {
			cur = p.BaseCurrency
		}
		byCurrency[cur] += v
	}
	topCur := ""
	topCurValue := 0.0
	for _, cur := range sortedKeys(byCurrency) {
		if cur == p.BaseCurrency {
			continue
		}
		if byCurrency[cur] > topCurValue {
			topCur = cur
			topCurValue = byCurrency[cur]
		}
	}
	if topCur != "" && topCurValue/total >= currencyExposureMin {
		weight := topCurValue / total
		out = append(out, Candidate{
			Code:     fmt.Sprintf("FX-EXPOSURE-%s-%d", topCur, p.ID),
			Severity: SeverityMed,
			Title:    fmt.Sprintf("%.1f%% of value is in %s", weight*100, topCur),
			Rationale: fmt.Sprintf(
				"Assets priced in %s make up %.1f%% of the portfolio while its base currency is %s (threshold %.0f%%). "+
					"Exchange-rate swings will move your results; decide whether this exposure is intentional.",
				topCur, weight*100, p.BaseCurrency, currencyExposureMin*100),
			Evidence: Evidence{
				"currency":      topCur,
				"weight":        weight,
				"threshold":     currencyExposureMin,
				"base_currency": p.BaseCurrency,
			},
		})
	}

	// 4e. Stale prices.
	if stale := lookup.StaleSymbols(); len(stale) > 0 {
		listed := make([]string, 0, len(stale))
		for i, lp := range stale {
			if i == maxListedSymbols {
				break
			}
			listed = append(listed, fmt.Sprintf("%s (%dd)", lp.Symbol, lp.AgeDays))
		}
		out = append(out, Candidate{
			Code:     fmt.Sprintf("STALE-PRICES-%d", p.ID),
			Severity: SeverityLow,
			Title:    fmt.Sprintf("%d symbol(s) have prices older than %d days", len(stale), assets.StaleAfterDays),
			Rationale: fmt.Sprintf(
				"Latest prices are outdated for: %s. Findings based on them may no longer reflect reality; "+
					"upload fresher price history.", strings.Join(appendEllipsis(listed, len(stale)), ", ")),
			Evidence: Evidence{
				"stale_count":    len(stale),
				"stale_symbols":  listed,
				"threshold_days": assets.StaleAfterDays,
			},
		})
	}

	// 4f. Fragmentation: many positions, several of them negligible.
	if len(snap.Holdings) >= fragmentationSymbols {
		var small []string
		for _, sym := range sortedKeys(values) {
			if values[sym]/total < fragmentationWeight {
				small = append(small, sym)
			}
		}
		if len(small) >= fragmentationSmall {
			out = append(out, Candidate{
				Code:     fmt.Sprintf("FRAGMENTATION-%d", p.ID),
				Severity: SeverityLow,
				Title:    fmt.Sprintf("%d position(s) weigh less than 1%% each", len(small)),
				Rationale: fmt.Sprintf(
					"The portfolio holds %d symbols and %d of them individually represent under 1%% of total value (%s). "+
						"Positions this small add bookkeeping effort without moving results; consider consolidating.",
					len(snap.Holdings), len(small), listSymbols(small, maxListedSmall)),
				Evidence: Evidence{
					"holdings_count":   len(snap.Holdings),
					"small_count":      len(small),
					"small_symbols":    capList(small, maxListedSmall),
					"weight_threshold": fragmentationWeight,
				},
			})
		}
	}

	return out, nil
}

func symbolsOf(holdings []portfolio.Holding) []string {
	out := make([]string, len(holdings))
	for i, h := range holdings {
		out[i] = h.Symbol
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func capList(symbols []string, max int) []string {
	if len(symbols) <= max {
		return symbols
	}
	return symbols[:max]
}

func appendEllipsis(listed []string, totalCount int) []string {
	if totalCount > len(listed) {
		out := make([]string, len(listed), len(listed)+1)
		copy(out, listed)
		return append(out, "…")
	}
	return listed
}

func listSymbols(symbols []string, max int) string {
	listed := capList(symbols, max)
	return strings.Join(appendEllipsis(listed, len(symbols)), ", ")
}
