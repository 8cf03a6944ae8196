// Package recommendations provides the opportunity generation engine and the
// recommendation lifecycle (governance) functionality.
package recommendations

import (
	"encoding/json"
	"time"
)

// Severity classifies how urgent a finding is.
type Severity string

const (
	SeverityLow  Severity = "LOW"
	SeverityMed  Severity = "MED"
	SeverityHigh Severity = "HIGH"
)

// Status is the lifecycle state of a recommendation.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusAccepted Status = "ACCEPTED"
	StatusIgnored  Status = "IGNORED"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAccepted, StatusIgnored:
		return true
	}
	return false
}

// AI actions the external evaluator may return.
const (
	AIActionEnter     = "ENTER"
	AIActionExit      = "EXIT"
	AIActionHold      = "HOLD"
	AIActionIgnore    = "IGNORE"
	AIActionNeedsData = "NEEDS_DATA"
)

// Evidence is the structured numeric basis of a finding. It must contain
// enough raw numbers to reconstruct the finding (weights, thresholds,
// affected symbols).
type Evidence map[string]interface{}

// JSON renders the evidence payload for storage. Failures degrade to "{}"
// rather than blocking a create.
func (e Evidence) JSON() string {
	if len(e) == 0 {
		return "{}"
	}
	b, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Recommendation is a persisted finding with a lifecycle and optional AI
// annotation. (portfolio, code) is the dedup key: at most one OPEN row per
// pair may exist at any time.
type Recommendation struct {
	ID           int64    `json:"id"`
	PortfolioID  int64    `json:"portfolio_id"`
	Code         string   `json:"code"`
	Severity     Severity `json:"severity"`
	Title        string   `json:"title"`
	Rationale    string   `json:"rationale"`
	Evidence     Evidence `json:"evidence"`
	Status       Status   `json:"status"`
	DecisionNote string   `json:"decision_note"`

	AIScore       *int       `json:"ai_score"`
	AIConfidence  *int       `json:"ai_confidence"`
	AIAction      string     `json:"ai_action"`
	AISummary     string     `json:"ai_summary"`
	AIReasons     Evidence   `json:"ai_reasons"`
	AIEvaluatedAt *time.Time `json:"ai_evaluated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Candidate is a finding proposed by the rule engine before persistence.
type Candidate struct {
	Code      string
	Severity  Severity
	Title     string
	Rationale string
	Evidence  Evidence
}

// GenerateResult reports the outcome of one generation run.
type GenerateResult struct {
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
	Reason  string `json:"reason,omitempty"` // set when Created == 0
}

// Zero-created reasons surfaced to the operator.
const (
	ReasonNoTriggers   = "no trigger conditions met"
	ReasonDuplicates   = "duplicates of existing OPEN records"
	ReasonPersistFails = "persistence failures occurred"
)

// DiagnosticReport explains the inputs the generator saw without mutating
// anything. Used to answer "why did generation return 0".
type DiagnosticReport struct {
	PortfolioID     int64    `json:"portfolio_id" msgpack:"portfolio_id"`
	TxCount         int      `json:"tx_count" msgpack:"tx_count"`
	HoldingsCount   int      `json:"holdings_count" msgpack:"holdings_count"`
	NegativeSymbols []string `json:"negative_symbols" msgpack:"negative_symbols"`
	PricesAvailable int      `json:"prices_available" msgpack:"prices_available"`
	PricesMissing   int      `json:"prices_missing" msgpack:"prices_missing"`
	PricesStale     int      `json:"prices_stale" msgpack:"prices_stale"`
	OpenCount       int      `json:"open_opportunities" msgpack:"open_opportunities"`
}

// LastGeneration is the cached record of the most recent generation run for a
// portfolio, surfaced next to the inbox so a zero result is explainable.
type LastGeneration struct {
	Created   int              `json:"created" msgpack:"created"`
	Reason    string           `json:"reason" msgpack:"reason"`
	Diag      DiagnosticReport `json:"diag" msgpack:"diag"`
	Timestamp time.Time        `json:"ts" msgpack:"ts"`
}

// GovernancePolicy is the explicit configuration value passed into lifecycle
// transitions. Tests vary it per case; there is no ambient global state.
type GovernancePolicy struct {
	AIConfigured        bool
	GovernanceRequired  bool
	MinScore            int
	AllowManualOverride bool
}

// Gated reports whether OPEN -> ACCEPTED must pass the AI gate.
func (p GovernancePolicy) Gated() bool {
	return p.AIConfigured && p.GovernanceRequired
}

// ListFilter narrows the recommendation database listing.
type ListFilter struct {
	Query    string // matches title or code, case-insensitive substring
	Status   Status // empty = all
	DateFrom string // ISO date, inclusive
	DateTo   string // ISO date, inclusive
	Limit    int    // capped at 500
}
