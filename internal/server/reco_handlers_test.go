package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecnolok-2025/invpanel-pro/internal/config"
	"github.com/tecnolok-2025/invpanel-pro/internal/database"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/assets"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/audit"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/portfolio"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/recommendations"
)

type stubSnapshots struct{}

func (stubSnapshots) Snapshot(int64) (portfolio.HoldingsSnapshot, error) {
	return portfolio.HoldingsSnapshot{}, nil
}

type stubPrices struct{}

func (stubPrices) Resolve([]string, time.Time) (assets.LookupResult, error) {
	return assets.LookupResult{}, nil
}

type stubCurrencies struct{}

func (stubCurrencies) CurrenciesBySymbols([]string) (map[string]string, error) {
	return nil, nil
}

// newDecisionTestServer wires the portfolio and recommendation stores over one
// in-memory database, enough for the opportunity decision routes.
func newDecisionTestServer(t *testing.T) (*Server, *portfolio.PortfolioRepository, *recommendations.Repository) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(database.Schema)
	require.NoError(t, err)

	portfolioRepo := portfolio.NewPortfolioRepository(db, log)
	recoRepo := recommendations.NewRepository(db, log)
	lifecycle := recommendations.NewLifecycle(recoRepo, log)
	engine := recommendations.NewEngine(stubSnapshots{}, stubPrices{}, stubCurrencies{}, recoRepo, log)
	recoSvc := recommendations.NewService(
		engine, recoRepo,
		recommendations.NewDiagCache(db, log),
		lifecycle,
		nil, stubPrices{}, nil,
		config.AIConfig{}, log,
	)
	auditRepo := audit.NewRepository(db, log)

	srv := New(Config{
		Log:           log,
		Config:        &config.Config{Port: 0, DevMode: true},
		PortfolioRepo: portfolioRepo,
		RecoRepo:      recoRepo,
		RecoSvc:       recoSvc,
		AuditRepo:     auditRepo,
		AuditRecorder: audit.NewRecorder(auditRepo, log),
	})
	return srv, portfolioRepo, recoRepo
}

// seedOwnedOpportunity creates a portfolio for owner and one OPEN row in it.
func seedOwnedOpportunity(t *testing.T, portfolios *portfolio.PortfolioRepository, recos *recommendations.Repository, owner string) int64 {
	t.Helper()

	p, err := portfolios.Create(owner, "Cartera", "ARS")
	require.NoError(t, err)

	outcome := recos.SafeCreate(p.ID, recommendations.Candidate{
		Code:      "CONC-AAA-" + owner,
		Severity:  recommendations.SeverityHigh,
		Title:     "Finding",
		Rationale: "r",
	})
	require.Equal(t, recommendations.OutcomeCreated, outcome)

	items, err := recos.ListOpen(p.ID, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	return items[0].ID
}

func postDecision(srv *Server, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"note":""}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", user)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	return rr
}

func TestDecision_RejectsForeignOwner(t *testing.T) {
	srv, portfolios, recos := newDecisionTestServer(t)
	id := seedOwnedOpportunity(t, portfolios, recos, "alice")

	rr := postDecision(srv, fmt.Sprintf("/api/opportunities/%d/ignore", id), "bob")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rec, err := recos.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, recommendations.StatusOpen, rec.Status, "another owner's decision must not transition the row")
}

func TestDecision_AllowsOwner(t *testing.T) {
	srv, portfolios, recos := newDecisionTestServer(t)
	id := seedOwnedOpportunity(t, portfolios, recos, "alice")

	rr := postDecision(srv, fmt.Sprintf("/api/opportunities/%d/ignore", id), "alice")
	assert.Equal(t, http.StatusOK, rr.Code)

	rec, err := recos.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, recommendations.StatusIgnored, rec.Status)
}

func TestDecision_UnknownIDIsNotFound(t *testing.T) {
	srv, _, _ := newDecisionTestServer(t)

	rr := postDecision(srv, "/api/opportunities/999/accept", "alice")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
