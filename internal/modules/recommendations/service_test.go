package recommendations

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecnolok-2025/invpanel-pro/internal/config"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/ai"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/assets"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/portfolio"
)

type fakeAISnapshots struct{ ctx map[string]interface{} }

func (f fakeAISnapshots) AISnapshot(*portfolio.Portfolio) (map[string]interface{}, error) {
	return f.ctx, nil
}

// fakeEvaluator records every request and replies with a fixed evaluation.
type fakeEvaluator struct {
	eval ai.Evaluation
	reqs []ai.Request
}

func (f *fakeEvaluator) Evaluate(_ context.Context, req ai.Request) ai.Evaluation {
	f.reqs = append(f.reqs, req)
	return f.eval
}

func testService(t *testing.T, snap portfolio.HoldingsSnapshot, res assets.LookupResult, eval *fakeEvaluator, aiCfg config.AIConfig) (*Service, *Repository) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	repo, db := testRepo(t)

	engine := NewEngine(fakeSnapshots{snap}, fakePrices{res}, fakeCurrencies(nil), repo, log)
	svc := NewService(
		engine, repo,
		NewDiagCache(db, log),
		NewLifecycle(repo, log),
		fakeAISnapshots{ctx: map[string]interface{}{"holdings": snap.Quantities()}},
		fakePrices{res},
		eval, aiCfg, log,
	)
	return svc, repo
}

func TestSeedDemo_OnlyWhenEmpty(t *testing.T) {
	svc, repo := testService(t, portfolio.HoldingsSnapshot{}, assets.LookupResult{}, &fakeEvaluator{}, config.AIConfig{})

	created, err := svc.SeedDemo(testPortfolio)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	codes := openCodes(t, repo)
	assert.Contains(t, codes, "FND-ALPHA-1")
	assert.Contains(t, codes, "FND-BETA-1")
	assert.Contains(t, codes, "FND-GAMMA-1")

	created, err = svc.SeedDemo(testPortfolio)
	require.NoError(t, err)
	assert.Equal(t, 0, created, "a non-empty inbox is left untouched")
}

func TestGenerate_CachesLastRun(t *testing.T) {
	snap, res := holdingsOf(map[string]float64{"AAA": 60, "BBB": 40})
	svc, _ := testService(t, snap, res, &fakeEvaluator{}, config.AIConfig{})

	result, report, err := svc.Generate(testPortfolio)
	require.NoError(t, err)
	require.Greater(t, result.Created, 0)
	assert.Equal(t, result.Created, report.OpenCount, "diagnostics run after persistence")

	last, err := svc.LastRun(testPortfolio.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, result.Created, last.Created)
	assert.Equal(t, report, last.Diag)
	assert.False(t, last.Timestamp.IsZero())
}

func TestLastRun_NilWhenNeverGenerated(t *testing.T) {
	svc, _ := testService(t, portfolio.HoldingsSnapshot{}, assets.LookupResult{}, &fakeEvaluator{}, config.AIConfig{})

	last, err := svc.LastRun(99)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestEvaluateOpen_PersistsAIFields(t *testing.T) {
	snap, res := holdingsOf(map[string]float64{"AAA": 60, "BBB": 40})
	eval := &fakeEvaluator{eval: ai.Evaluation{
		Score:      82,
		Confidence: 71,
		Action:     "enter",
		Summary:    "Concentration is actionable.",
		Reasons:    map[string]interface{}{"rule": "concentration"},
	}}
	svc, repo := testService(t, snap, res, eval, config.AIConfig{APIKey: "k", MinScore: 70, MaxEvalPerBatch: 5})

	_, _, err := svc.Generate(testPortfolio)
	require.NoError(t, err)

	result, err := svc.EvaluateOpen(context.Background(), testPortfolio)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Failed)
	require.Greater(t, result.Evaluated, 0)
	assert.Len(t, eval.reqs, result.Evaluated)

	// The request carries the price context for the held symbols.
	req := eval.reqs[0]
	assert.Contains(t, req.Prices, "AAA")
	assert.Equal(t, "ARS", req.Constraints.Currency)
	assert.NotEmpty(t, req.Recommendation.Code)

	items, err := repo.ListOpen(testPortfolio.ID, 0)
	require.NoError(t, err)
	for _, rec := range items {
		require.NotNil(t, rec.AIScore)
		assert.Equal(t, 82, *rec.AIScore)
		assert.Equal(t, "ENTER", rec.AIAction, "actions are stored upper-cased")
		assert.Equal(t, "Concentration is actionable.", rec.AISummary)
		require.NotNil(t, rec.AIEvaluatedAt)
	}
}

func TestEvaluateOpen_RespectsBatchLimit(t *testing.T) {
	snap, res := holdingsOf(map[string]float64{"AAA": 60, "BBB": 40})
	eval := &fakeEvaluator{eval: ai.Evaluation{Action: "HOLD"}}
	svc, repo := testService(t, snap, res, eval, config.AIConfig{APIKey: "k", MaxEvalPerBatch: 1})

	// Two OPEN rows, limit one per batch.
	require.Equal(t, OutcomeCreated, repo.SafeCreate(1, Candidate{Code: "X-1", Severity: SeverityLow, Title: "a", Rationale: "r"}))
	require.Equal(t, OutcomeCreated, repo.SafeCreate(1, Candidate{Code: "X-2", Severity: SeverityLow, Title: "b", Rationale: "r"}))

	result, err := svc.EvaluateOpen(context.Background(), testPortfolio)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evaluated)
	assert.Len(t, eval.reqs, 1)
}

func TestEvaluateOpen_EmptyInbox(t *testing.T) {
	eval := &fakeEvaluator{}
	svc, _ := testService(t, portfolio.HoldingsSnapshot{}, assets.LookupResult{}, eval, config.AIConfig{APIKey: "k"})

	result, err := svc.EvaluateOpen(context.Background(), testPortfolio)
	require.NoError(t, err)
	assert.Equal(t, EvalBatchResult{}, result)
	assert.Empty(t, eval.reqs)
}

func TestPolicy_DerivedFromConfig(t *testing.T) {
	svc, _ := testService(t, portfolio.HoldingsSnapshot{}, assets.LookupResult{}, &fakeEvaluator{},
		config.AIConfig{APIKey: "k", MinScore: 70, GovernanceRequired: true})

	policy := svc.Policy()
	assert.True(t, policy.Gated())
	assert.Equal(t, 70, policy.MinScore)

	svc, _ = testService(t, portfolio.HoldingsSnapshot{}, assets.LookupResult{}, &fakeEvaluator{},
		config.AIConfig{MinScore: 70, GovernanceRequired: true})
	assert.False(t, svc.Policy().Gated(), "without an API key the gate is off")
}
