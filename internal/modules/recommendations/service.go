package recommendations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tecnolok-2025/invpanel-pro/internal/config"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/ai"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/portfolio"
)

// AISnapshotProvider builds the JSON-serializable portfolio context for the
// external evaluator.
type AISnapshotProvider interface {
	AISnapshot(p *portfolio.Portfolio) (map[string]interface{}, error)
}

// Evaluator scores one recommendation. Implementations never return errors;
// failures degrade to a NEEDS_DATA evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context, req ai.Request) ai.Evaluation
}

// EvalBatchResult reports the outcome of one AI evaluation batch.
type EvalBatchResult struct {
	Evaluated int `json:"evaluated"`
	Failed    int `json:"failed"` // persist failures, not evaluator fallbacks
}

// Service orchestrates generation, diagnostics caching, the demo seed, the
// governed lifecycle and AI evaluation batches for the recommendations inbox.
type Service struct {
	engine    *Engine
	repo      *Repository
	diag      *DiagCache
	lifecycle *Lifecycle
	aiSnaps   AISnapshotProvider
	prices    PriceResolver
	evaluator Evaluator
	aiCfg     config.AIConfig
	log       zerolog.Logger

	now func() time.Time
}

// NewService creates a new recommendations service
func NewService(
	engine *Engine,
	repo *Repository,
	diag *DiagCache,
	lifecycle *Lifecycle,
	aiSnaps AISnapshotProvider,
	prices PriceResolver,
	evaluator Evaluator,
	aiCfg config.AIConfig,
	log zerolog.Logger,
) *Service {
	return &Service{
		engine:    engine,
		repo:      repo,
		diag:      diag,
		lifecycle: lifecycle,
		aiSnaps:   aiSnaps,
		prices:    prices,
		evaluator: evaluator,
		aiCfg:     aiCfg,
		log:       log.With().Str("service", "recommendations").Logger(),
		now:       time.Now,
	}
}

// Policy returns the governance policy derived from the current AI config.
func (s *Service) Policy() GovernancePolicy {
	return GovernancePolicy{
		AIConfigured:        s.aiCfg.Configured(),
		GovernanceRequired:  s.aiCfg.GovernanceRequired,
		MinScore:            s.aiCfg.MinScore,
		AllowManualOverride: s.aiCfg.AllowManualOverride,
	}
}

// Generate runs the rule engine, then captures and caches a diagnostic report
// so a zero-created run stays explainable after the fact. Diagnostics are
// taken after the run so the OPEN count reflects the rows just created.
func (s *Service) Generate(p *portfolio.Portfolio) (GenerateResult, DiagnosticReport, error) {
	result, err := s.engine.Generate(p)
	if err != nil {
		return GenerateResult{}, DiagnosticReport{}, err
	}

	report, err := s.engine.Diagnose(p)
	if err != nil {
		// The run itself succeeded; log and return it with an empty report.
		s.log.Warn().Err(err).Int64("portfolio_id", p.ID).Msg("Post-generation diagnostics failed")
		report = DiagnosticReport{PortfolioID: p.ID}
	}

	s.diag.Put(p.ID, LastGeneration{
		Created:   result.Created,
		Reason:    result.Reason,
		Diag:      report,
		Timestamp: s.now().UTC(),
	})

	return result, report, nil
}

// LastRun returns the cached record of the most recent generation run, or nil
// when no run has been cached for the portfolio.
func (s *Service) LastRun(portfolioID int64) (*LastGeneration, error) {
	return s.diag.Get(portfolioID)
}

// Accept transitions an OPEN recommendation to ACCEPTED under the current
// governance policy.
func (s *Service) Accept(id int64, note string) (*Recommendation, error) {
	return s.lifecycle.Accept(id, note, s.Policy())
}

// Ignore transitions an OPEN recommendation to IGNORED.
func (s *Service) Ignore(id int64, note string) (*Recommendation, error) {
	return s.lifecycle.Ignore(id, note)
}

// Reopen transitions a decided recommendation back to OPEN.
func (s *Service) Reopen(id int64, note string) (*Recommendation, error) {
	return s.lifecycle.Reopen(id, note)
}

// Demo candidates seeded into an empty inbox so the decision flow can be
// exercised without real holdings.
func demoCandidates(portfolioID int64) []Candidate {
	return []Candidate{
		{
			Code:     fmt.Sprintf("FND-ALPHA-%d", portfolioID),
			Severity: SeverityHigh,
			Title:    "Revisar concentración simulada en FND-ALPHA",
			Rationale: "Registro de demostración: simula una posición dominante. " +
				"Úselo para probar el flujo de aceptación y descarte.",
			Evidence: Evidence{"demo": true, "weight": 0.61},
		},
		{
			Code:     fmt.Sprintf("FND-BETA-%d", portfolioID),
			Severity: SeverityMed,
			Title:    "Revisar exposición cambiaria simulada en FND-BETA",
			Rationale: "Registro de demostración: simula exposición a moneda extranjera " +
				"por encima del umbral de revisión.",
			Evidence: Evidence{"demo": true, "exposure": 0.31, "currency": "USD"},
		},
		{
			Code:     fmt.Sprintf("FND-GAMMA-%d", portfolioID),
			Severity: SeverityLow,
			Title:    "Precios simulados desactualizados para FND-GAMMA",
			Rationale: "Registro de demostración: simula precios sin actualizar. " +
				"Ignórelo o reábralo para probar las transiciones.",
			Evidence: Evidence{"demo": true, "age_days": 21},
		},
	}
}

// SeedDemo inserts three fixed demo recommendations when the portfolio's
// inbox is empty. A non-empty inbox is left untouched and reported as zero
// created.
func (s *Service) SeedDemo(p *portfolio.Portfolio) (int, error) {
	open, err := s.repo.OpenCount(p.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to seed demo recommendations: %w", err)
	}
	if open > 0 {
		return 0, nil
	}

	created := 0
	for _, c := range demoCandidates(p.ID) {
		if s.repo.SafeCreate(p.ID, c) == OutcomeCreated {
			created++
		}
	}
	s.log.Info().Int64("portfolio_id", p.ID).Int("created", created).Msg("Seeded demo recommendations")
	return created, nil
}

// EvaluateOpen runs an AI evaluation batch over the portfolio's OPEN
// recommendations, newest first, capped to the per-batch limit. Each item
// is isolated: the evaluator itself never fails, and a persist failure on one
// row is logged and does not stop the batch.
func (s *Service) EvaluateOpen(ctx context.Context, p *portfolio.Portfolio) (EvalBatchResult, error) {
	limit := s.aiCfg.MaxEvalPerBatch
	if limit <= 0 {
		limit = 5
	}

	open, err := s.repo.ListOpen(p.ID, limit)
	if err != nil {
		return EvalBatchResult{}, fmt.Errorf("failed to evaluate recommendations: %w", err)
	}
	if len(open) == 0 {
		return EvalBatchResult{}, nil
	}

	portfolioCtx, err := s.aiSnaps.AISnapshot(p)
	if err != nil {
		return EvalBatchResult{}, fmt.Errorf("failed to evaluate recommendations: %w", err)
	}
	pricesCtx := s.priceContext(portfolioCtx)

	var result EvalBatchResult
	for _, rec := range open {
		ev := s.evaluator.Evaluate(ctx, ai.Request{
			Recommendation: ai.RecommendationContext{
				Code:      rec.Code,
				Severity:  string(rec.Severity),
				Title:     rec.Title,
				Rationale: rec.Rationale,
				Evidence:  rec.Evidence,
				Status:    string(rec.Status),
			},
			Portfolio: portfolioCtx,
			Prices:    pricesCtx,
			Constraints: ai.Constraints{
				Currency:   p.BaseCurrency,
				Horizon:    "medium_term",
				RiskPolicy: "conservative",
			},
		})

		err := s.repo.UpdateAIFields(
			rec.ID, ev.Score, ev.Confidence,
			strings.ToUpper(ev.Action), ev.Summary, Evidence(ev.Reasons),
			s.now().UTC(),
		)
		if err != nil {
			s.log.Error().Err(err).Int64("id", rec.ID).Str("code", rec.Code).
				Msg("Failed to persist AI evaluation")
			result.Failed++
			continue
		}
		result.Evaluated++
	}

	s.log.Info().Int64("portfolio_id", p.ID).
		Int("evaluated", result.Evaluated).Int("failed", result.Failed).
		Msg("AI evaluation batch complete")
	return result, nil
}

// priceContext resolves latest prices for the symbols present in the
// portfolio context. Resolution failures degrade to an empty map; the
// evaluator handles missing data.
func (s *Service) priceContext(portfolioCtx map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}

	holdings, ok := portfolioCtx["holdings"].(map[string]float64)
	if !ok || len(holdings) == 0 {
		return out
	}
	symbols := make([]string, 0, len(holdings))
	for sym := range holdings {
		symbols = append(symbols, sym)
	}

	lookup, err := s.prices.Resolve(symbols, s.now())
	if err != nil {
		s.log.Warn().Err(err).Msg("Price resolution for AI context failed")
		return out
	}
	for sym, p := range lookup.Prices {
		out[sym] = map[string]interface{}{
			"close":    p.Close,
			"date":     p.Date,
			"age_days": p.AgeDays,
		}
	}
	if len(lookup.Missing) > 0 {
		out["_missing"] = lookup.Missing
	}
	return out
}
