package recommendations

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecnolok-2025/invpanel-pro/internal/database"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/assets"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/portfolio"
)

type fakeSnapshots struct{ snap portfolio.HoldingsSnapshot }

func (f fakeSnapshots) Snapshot(int64) (portfolio.HoldingsSnapshot, error) { return f.snap, nil }

type fakePrices struct{ res assets.LookupResult }

func (f fakePrices) Resolve([]string, time.Time) (assets.LookupResult, error) { return f.res, nil }

type fakeCurrencies map[string]string

func (f fakeCurrencies) CurrenciesBySymbols([]string) (map[string]string, error) { return f, nil }

func testRepo(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(database.Schema)
	require.NoError(t, err)

	return NewRepository(db, log), db
}

func testEngine(t *testing.T, snap portfolio.HoldingsSnapshot, res assets.LookupResult, cur map[string]string) (*Engine, *Repository) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	repo, _ := testRepo(t)
	return NewEngine(fakeSnapshots{snap}, fakePrices{res}, fakeCurrencies(cur), repo, log), repo
}

var testPortfolio = &portfolio.Portfolio{ID: 1, Owner: "local", Name: "Test", BaseCurrency: "ARS"}

// holdingsOf builds a snapshot with one fresh ARS-priced holding per entry;
// the quantity doubles as the position value since every price is 1.
func holdingsOf(quantities map[string]float64) (portfolio.HoldingsSnapshot, assets.LookupResult) {
	var snap portfolio.HoldingsSnapshot
	res := assets.LookupResult{Prices: map[string]assets.LatestPrice{}}
	for sym, qty := range quantities {
		snap.Holdings = append(snap.Holdings, portfolio.Holding{Symbol: sym, Quantity: qty})
		res.Prices[sym] = assets.LatestPrice{Symbol: sym, Date: "2026-08-30", Close: 1, AgeDays: 0}
	}
	snap.TxCount = len(quantities)
	return snap, res
}

func openCodes(t *testing.T, repo *Repository) []string {
	t.Helper()
	items, err := repo.ListOpen(1, 0)
	require.NoError(t, err)
	codes := make([]string, len(items))
	for i, rec := range items {
		codes[i] = rec.Code
	}
	return codes
}

func TestGenerate_EmptyPortfolio(t *testing.T) {
	engine, repo := testEngine(t, portfolio.HoldingsSnapshot{}, assets.LookupResult{}, nil)

	result, err := engine.Generate(testPortfolio)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Contains(t, openCodes(t, repo), "SETUP-EMPTY-1")
}

func TestGenerate_NoOpenPositions(t *testing.T) {
	snap := portfolio.HoldingsSnapshot{TxCount: 4}
	engine, repo := testEngine(t, snap, assets.LookupResult{}, nil)

	result, err := engine.Generate(testPortfolio)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, []string{"NO-POSITIONS-1"}, openCodes(t, repo))
}

func TestGenerate_Idempotent(t *testing.T) {
	snap, res := holdingsOf(map[string]float64{"AAA": 60, "BBB": 40})
	engine, repo := testEngine(t, snap, res, nil)

	first, err := engine.Generate(testPortfolio)
	require.NoError(t, err)
	require.Greater(t, first.Created, 0)
	before := openCodes(t, repo)

	second, err := engine.Generate(testPortfolio)
	require.NoError(t, err)

	assert.Equal(t, 0, second.Created)
	assert.Equal(t, first.Created, second.Skipped, "every candidate is a duplicate on the second run")
	assert.Equal(t, ReasonDuplicates, second.Reason)
	assert.Equal(t, before, openCodes(t, repo), "the OPEN set is unchanged")
}

func TestGenerate_ConcentrationBoundaries(t *testing.T) {
	testCases := []struct {
		name         string
		quantities   map[string]float64
		wantCode     string
		wantSeverity Severity
	}{
		{
			name:         "exactly 0.55 is HIGH",
			quantities:   map[string]float64{"AAA": 55, "BBB": 45},
			wantCode:     "CONC-AAA-1",
			wantSeverity: SeverityHigh,
		},
		{
			name:         "0.45 is MED",
			quantities:   map[string]float64{"AAA": 45, "BBB": 30, "CCC": 25},
			wantCode:     "CONC-AAA-1",
			wantSeverity: SeverityMed,
		},
		{
			name:         "exactly 0.35 is MED",
			quantities:   map[string]float64{"AAA": 35, "BBB": 33, "CCC": 32},
			wantCode:     "CONC-AAA-1",
			wantSeverity: SeverityMed,
		},
		{
			name:       "0.349 triggers nothing",
			quantities: map[string]float64{"AAA": 34.9, "BBB": 33, "CCC": 32.1},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			snap, res := holdingsOf(tc.quantities)
			engine, repo := testEngine(t, snap, res, nil)

			_, err := engine.Generate(testPortfolio)
			require.NoError(t, err)

			codes := openCodes(t, repo)
			if tc.wantCode == "" {
				for _, code := range codes {
					assert.NotContains(t, code, "CONC-", "no concentration finding expected")
				}
				return
			}

			require.Contains(t, codes, tc.wantCode)
			rec := findByCode(t, repo, tc.wantCode)
			assert.Equal(t, tc.wantSeverity, rec.Severity)
		})
	}
}

func TestGenerate_ConcentrationTieBreak(t *testing.T) {
	// Two symbols at exactly 50% each: the lexicographically smallest wins so
	// the finding code stays deterministic across runs.
	snap, res := holdingsOf(map[string]float64{"ZZZ": 50, "AAA": 50})
	engine, repo := testEngine(t, snap, res, nil)

	_, err := engine.Generate(testPortfolio)
	require.NoError(t, err)

	codes := openCodes(t, repo)
	assert.Contains(t, codes, "CONC-AAA-1")
	assert.NotContains(t, codes, "CONC-ZZZ-1")
}

func TestGenerate_NegativeHoldings(t *testing.T) {
	snap, res := holdingsOf(map[string]float64{"AAA": 50, "BBB": 50})
	snap.NegativeSymbols = []string{"CCC", "DDD"}
	engine, repo := testEngine(t, snap, res, nil)

	_, err := engine.Generate(testPortfolio)
	require.NoError(t, err)

	codes := openCodes(t, repo)
	assert.Contains(t, codes, "NEG-HOLDINGS-CCC-1", "only the first negative symbol is flagged")
	assert.NotContains(t, codes, "NEG-HOLDINGS-DDD-1")
}

func TestGenerate_MissingPrices(t *testing.T) {
	snap, res := holdingsOf(map[string]float64{"AAA": 50, "BBB": 50})
	delete(res.Prices, "BBB")
	res.Missing = []string{"BBB"}
	engine, repo := testEngine(t, snap, res, nil)

	_, err := engine.Generate(testPortfolio)
	require.NoError(t, err)

	assert.Contains(t, openCodes(t, repo), "MISSING-PRICES-1")
}

func TestGenerate_NoValuationStopsFurtherChecks(t *testing.T) {
	snap, _ := holdingsOf(map[string]float64{"AAA": 50, "BBB": 50})
	res := assets.LookupResult{Prices: map[string]assets.LatestPrice{}, Missing: []string{"AAA", "BBB"}}
	engine, repo := testEngine(t, snap, res, nil)

	_, err := engine.Generate(testPortfolio)
	require.NoError(t, err)

	codes := openCodes(t, repo)
	assert.Contains(t, codes, "MISSING-PRICES-1")
	assert.Contains(t, codes, "NO-VALUATION-1")
	for _, code := range codes {
		assert.NotContains(t, code, "CONC-", "weight checks are skipped without a valuation")
	}
}

func TestGenerate_CurrencyExposure(t *testing.T) {
	snap, res := holdingsOf(map[string]float64{"AAA": 40, "BBB": 30, "CCC": 30})
	engine, repo := testEngine(t, snap, res, map[string]string{"AAA": "ARS", "BBB": "USD", "CCC": "ARS"})

	_, err := engine.Generate(testPortfolio)
	require.NoError(t, err)

	rec := findByCode(t, repo, "FX-EXPOSURE-USD-1")
	assert.Equal(t, SeverityMed, rec.Severity)
	assert.InDelta(t, 0.30, rec.Evidence["weight"].(float64), 1e-9)
}

func TestGenerate_CurrencyExposure_BelowThreshold(t *testing.T) {
	snap, res := holdingsOf(map[string]float64{"AAA": 76, "BBB": 24})
	engine, repo := testEngine(t, snap, res, map[string]string{"AAA": "ARS", "BBB": "USD"})

	_, err := engine.Generate(testPortfolio)
	require.NoError(t, err)

	for _, code := range openCodes(t, repo) {
		assert.NotContains(t, code, "FX-EXPOSURE-")
	}
}

func TestGenerate_StalePrices(t *testing.T) {
	snap, res := holdingsOf(map[string]float64{"AAA": 50, "BBB": 50})
	res.Prices["BBB"] = assets.LatestPrice{Symbol: "BBB", Date: "2026-08-01", Close: 1, AgeDays: 21}
	engine, repo := testEngine(t, snap, res, nil)

	_, err := engine.Generate(testPortfolio)
	require.NoError(t, err)

	rec := findByCode(t, repo, "STALE-PRICES-1")
	assert.Equal(t, SeverityLow, rec.Severity)
}

func TestGenerate_Fragmentation(t *testing.T) {
	quantities := map[string]float64{
		"BIG1": 30, "BIG2": 30, "BIG3": 33.5,
		"S01": 0.9, "S02": 0.9, "S03": 0.9, "S04": 0.9, "S05": 0.9,
		"T01": 0.9, "T02": 1.1,
	}
	snap, res := holdingsOf(quantities)
	engine, repo := testEngine(t, snap, res, nil)

	_, err := engine.Generate(testPortfolio)
	require.NoError(t, err)

	rec := findByCode(t, repo, "FRAGMENTATION-1")
	assert.Equal(t, SeverityLow, rec.Severity)
	assert.EqualValues(t, 6, rec.Evidence["small_count"], "six positions weigh under 1%")
}

func TestDiagnose_EmptyPortfolio(t *testing.T) {
	engine, _ := testEngine(t, portfolio.HoldingsSnapshot{}, assets.LookupResult{}, nil)

	report, err := engine.Diagnose(testPortfolio)
	require.NoError(t, err)

	assert.Zero(t, report.TxCount)
	assert.Zero(t, report.HoldingsCount)
	assert.Zero(t, report.PricesAvailable)
}

func TestDiagnose_CountsInputs(t *testing.T) {
	snap, res := holdingsOf(map[string]float64{"AAA": 60, "BBB": 40})
	snap.TxCount = 12
	snap.NegativeSymbols = []string{"CCC"}
	res.Prices["BBB"] = assets.LatestPrice{Symbol: "BBB", Date: "2026-08-01", Close: 1, AgeDays: 30}
	engine, _ := testEngine(t, snap, res, nil)

	report, err := engine.Diagnose(testPortfolio)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.PortfolioID)
	assert.Equal(t, 12, report.TxCount)
	assert.Equal(t, 2, report.HoldingsCount)
	assert.Equal(t, []string{"CCC"}, report.NegativeSymbols)
	assert.Equal(t, 2, report.PricesAvailable)
	assert.Equal(t, 1, report.PricesStale)
}

func findByCode(t *testing.T, repo *Repository, code string) Recommendation {
	t.Helper()
	items, err := repo.ListOpen(1, 0)
	require.NoError(t, err)
	for _, rec := range items {
		if rec.Code == code {
			return rec
		}
	}
	t.Fatalf("no OPEN recommendation with code %s", code)
	return Recommendation{}
}
