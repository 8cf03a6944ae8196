package recommendations

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles recommendation database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new recommendation repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "recommendation").Logger(),
	}
}

const recommendationColumns = `id, portfolio_id, code, severity, title, rationale, evidence,
	status, decision_note, ai_score, ai_confidence, ai_action, ai_summary, ai_reasons,
	ai_evaluated_at, created_at, updated_at`

// CreateOutcome describes what SafeCreate did with one candidate.
type CreateOutcome int

const (
	// OutcomeCreated - a new OPEN row was inserted.
	OutcomeCreated CreateOutcome = iota
	// OutcomeSkippedDuplicate - an OPEN row with the same code already exists.
	OutcomeSkippedDuplicate
	// OutcomeFailed - the insert failed; logged, never propagated.
	OutcomeFailed
)

// SafeCreate persists a candidate as an OPEN recommendation unless an OPEN
// row with the same (portfolio, code) already exists. Storage failures are
// logged with the rule code and swallowed so one bad candidate never aborts
// a generation batch.
func (r *Repository) SafeCreate(portfolioID int64, c Candidate) CreateOutcome {
	var existing int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM recommendations WHERE portfolio_id = ? AND code = ? AND status = 'OPEN'`,
		portfolioID, c.Code,
	).Scan(&existing)
	if err != nil {
		r.log.Error().Err(err).Str("code", c.Code).Int64("portfolio_id", portfolioID).
			Msg("Reco create precheck failed")
		return OutcomeFailed
	}
	if existing > 0 {
		return OutcomeSkippedDuplicate
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.Exec(
		`INSERT INTO recommendations
		 (portfolio_id, code, severity, title, rationale, evidence, status, ai_action, ai_summary, ai_reasons, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'OPEN', 'HOLD', '', '{}', ?, ?)`,
		portfolioID, c.Code, string(c.Severity), c.Title, c.Rationale, c.Evidence.JSON(), now, now,
	)
	if err != nil {
		// The partial unique index resolves check-then-act races: the loser
		// lands here and the candidate counts as skipped, not failed.
		if strings.Contains(err.Error(), "UNIQUE") {
			r.log.Debug().Str("code", c.Code).Int64("portfolio_id", portfolioID).
				Msg("Reco create lost uniqueness race, treating as duplicate")
			return OutcomeSkippedDuplicate
		}
		r.log.Error().Err(err).Str("code", c.Code).Int64("portfolio_id", portfolioID).
			Msg("Reco create failed")
		return OutcomeFailed
	}

	return OutcomeCreated
}

// GetByID returns a recommendation by id, or nil when missing.
func (r *Repository) GetByID(id int64) (*Recommendation, error) {
	row := r.db.QueryRow(`SELECT `+recommendationColumns+` FROM recommendations WHERE id = ?`, id)
	rec, err := scanRecommendation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return rec, nil
}

// ListOpen returns a portfolio's OPEN recommendations, newest first.
func (r *Repository) ListOpen(portfolioID int64, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(
		`SELECT `+recommendationColumns+` FROM recommendations
		 WHERE portfolio_id = ? AND status = 'OPEN'
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		portfolioID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query open recommendations: %w", err)
	}
	defer rows.Close()

	return collectRecommendations(rows)
}

// OpenCount returns how many OPEN recommendations a portfolio has.
func (r *Repository) OpenCount(portfolioID int64) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM recommendations WHERE portfolio_id = ? AND status = 'OPEN'`,
		portfolioID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count open recommendations: %w", err)
	}
	return n, nil
}

// List returns all recommendations for a portfolio with optional filters,
// newest first, capped at 500 rows.
func (r *Repository) List(portfolioID int64, filter ListFilter) ([]Recommendation, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	query := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE portfolio_id = ?`
	args := []interface{}{portfolioID}

	if filter.Query != "" {
		query += ` AND (title LIKE ? OR code LIKE ?)`
		like := "%" + filter.Query + "%"
		args = append(args, like, like)
	}
	if filter.Status != "" && filter.Status.Valid() {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.DateFrom != "" {
		query += ` AND created_at >= ?`
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		// created_at is RFC3339; the trailing suffix keeps the bound inclusive
		// for the whole day.
		query += ` AND created_at <= ?`
		args = append(args, filter.DateTo+"T23:59:59Z")
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	return collectRecommendations(rows)
}

// UpdateStatus transitions a recommendation and stores the decision note.
func (r *Repository) UpdateStatus(id int64, status Status, note string) error {
	if !status.Valid() {
		return fmt.Errorf("failed to update recommendation status: invalid status %q", status)
	}
	note = truncateRunes(note, 240)

	_, err := r.db.Exec(
		`UPDATE recommendations SET status = ?, decision_note = CASE WHEN ? != '' THEN ? ELSE decision_note END, updated_at = ? WHERE id = ?`,
		string(status), note, note, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update recommendation status: %w", err)
	}
	return nil
}

// UpdateAIFields stores the outcome of one AI evaluation.
func (r *Repository) UpdateAIFields(id int64, score, confidence int, action, summary string, reasons Evidence, evaluatedAt time.Time) error {
	_, err := r.db.Exec(
		`UPDATE recommendations
		 SET ai_score = ?, ai_confidence = ?, ai_action = ?, ai_summary = ?, ai_reasons = ?, ai_evaluated_at = ?, updated_at = ?
		 WHERE id = ?`,
		score, confidence, action, summary, reasons.JSON(),
		evaluatedAt.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update AI fields: %w", err)
	}
	return nil
}

// truncateRunes caps s at max characters without splitting a multi-byte rune.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecommendation(row rowScanner) (*Recommendation, error) {
	var rec Recommendation
	var severity, status, evidence, reasons, createdAt, updatedAt string
	var aiScore, aiConfidence sql.NullInt64
	var aiEvaluatedAt sql.NullString

	if err := row.Scan(&rec.ID, &rec.PortfolioID, &rec.Code, &severity, &rec.Title, &rec.Rationale,
		&evidence, &status, &rec.DecisionNote, &aiScore, &aiConfidence, &rec.AIAction,
		&rec.AISummary, &reasons, &aiEvaluatedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	rec.Severity = Severity(severity)
	rec.Status = Status(status)
	_ = json.Unmarshal([]byte(evidence), &rec.Evidence)
	_ = json.Unmarshal([]byte(reasons), &rec.AIReasons)

	if aiScore.Valid {
		v := int(aiScore.Int64)
		rec.AIScore = &v
	}
	if aiConfidence.Valid {
		v := int(aiConfidence.Int64)
		rec.AIConfidence = &v
	}
	if aiEvaluatedAt.Valid {
		if t, err := time.Parse(time.RFC3339, aiEvaluatedAt.String); err == nil {
			rec.AIEvaluatedAt = &t
		}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &rec, nil
}

func collectRecommendations(rows *sql.Rows) ([]Recommendation, error) {
	var items []Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recommendations: %w", err)
	}
	return items, nil
}
