package recommendations

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Named lifecycle outcomes. These are expected business conditions, not
// generic failures, so callers can surface specific messages.
var (
	// ErrGovernanceBlocked - acceptance rejected by the AI governance gate.
	ErrGovernanceBlocked = errors.New("blocked by AI governance")
	// ErrNotFound - the recommendation does not exist.
	ErrNotFound = errors.New("recommendation not found")
	// ErrInvalidTransition - the requested transition is not in the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// BlockedError carries the gate parameters so the caller can explain exactly
// what is required instead of showing a generic error.
type BlockedError struct {
	MinScore int
	AIAction string
	AIScore  *int
}

func (e *BlockedError) Error() string {
	score := "unset"
	if e.AIScore != nil {
		score = fmt.Sprintf("%d", *e.AIScore)
	}
	return fmt.Sprintf("blocked by AI governance: action ENTER and score >= %d required (current action=%s score=%s)",
		e.MinScore, e.AIAction, score)
}

// Unwrap lets errors.Is match ErrGovernanceBlocked.
func (e *BlockedError) Unwrap() error {
	return ErrGovernanceBlocked
}

// Lifecycle applies status transitions under an explicit governance policy.
//
// State machine:
//
//	OPEN -> ACCEPTED  (gated when the policy demands it)
//	OPEN -> IGNORED   (unconditional)
//	ACCEPTED|IGNORED -> OPEN (reopen, unconditional administrative override)
type Lifecycle struct {
	repo *Repository
	log  zerolog.Logger
}

// NewLifecycle creates a new lifecycle service
func NewLifecycle(repo *Repository, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		repo: repo,
		log:  log.With().Str("service", "reco_lifecycle").Logger(),
	}
}

// Accept transitions OPEN -> ACCEPTED. When the policy gates acceptance, the
// record's AI action must be ENTER and its score present and at least
// MinScore (inclusive); otherwise a BlockedError is returned and no state
// changes. The manual-override flag bypasses the gate.
func (l *Lifecycle) Accept(id int64, note string, policy GovernancePolicy) (*Recommendation, error) {
	rec, err := l.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if rec.Status != StatusOpen {
		return nil, fmt.Errorf("%w: cannot accept a %s recommendation", ErrInvalidTransition, rec.Status)
	}

	if policy.Gated() && !policy.AllowManualOverride {
		actionOK := strings.ToUpper(rec.AIAction) == AIActionEnter
		scoreOK := rec.AIScore != nil && *rec.AIScore >= policy.MinScore
		if !actionOK || !scoreOK {
			l.log.Info().
				Int64("rec_id", id).
				Str("ai_action", rec.AIAction).
				Int("min_score", policy.MinScore).
				Msg("Acceptance blocked by governance gate")
			return nil, &BlockedError{MinScore: policy.MinScore, AIAction: rec.AIAction, AIScore: rec.AIScore}
		}
	}

	if err := l.repo.UpdateStatus(id, StatusAccepted, note); err != nil {
		return nil, err
	}
	l.log.Info().Int64("rec_id", id).Msg("Recommendation accepted")
	return l.repo.GetByID(id)
}

// Ignore transitions OPEN -> IGNORED. Always allowed.
func (l *Lifecycle) Ignore(id int64, note string) (*Recommendation, error) {
	rec, err := l.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if rec.Status != StatusOpen {
		return nil, fmt.Errorf("%w: cannot ignore a %s recommendation", ErrInvalidTransition, rec.Status)
	}

	if err := l.repo.UpdateStatus(id, StatusIgnored, note); err != nil {
		return nil, err
	}
	l.log.Info().Int64("rec_id", id).Msg("Recommendation ignored")
	return l.repo.GetByID(id)
}

// Reopen transitions ACCEPTED or IGNORED back to OPEN. No governance check:
// re-opening does not accept anything.
func (l *Lifecycle) Reopen(id int64, note string) (*Recommendation, error) {
	rec, err := l.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if rec.Status == StatusOpen {
		return nil, fmt.Errorf("%w: recommendation is already OPEN", ErrInvalidTransition)
	}

	if err := l.repo.UpdateStatus(id, StatusOpen, note); err != nil {
		return nil, err
	}
	l.log.Info().Int64("rec_id", id).Msg("Recommendation reopened")
	return l.repo.GetByID(id)
}
