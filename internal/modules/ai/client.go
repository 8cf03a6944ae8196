// Package ai provides the external AI evaluation adapter.
//
// The adapter never fails upward: unreachable service, missing credentials,
// and malformed responses all converge to a NEEDS_DATA fallback result with
// the failure mode recorded in the reasons payload. Callers branch on the
// returned action only, never on errors.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tecnolok-2025/invpanel-pro/internal/config"
)

// Failure modes recorded in the fallback reasons payload.
const (
	failureMissingAPIKey = "missing_api_key"
	failureRequest       = "request_failed"
	failureBadStatus     = "bad_status"
	failureUnparseable   = "unparseable_response"
)

// Request is the JSON-serializable evaluation context sent to the service.
type Request struct {
	Recommendation RecommendationContext  `json:"recommendation"`
	Portfolio      map[string]interface{} `json:"portfolio"`
	Prices         map[string]interface{} `json:"prices"`
	Constraints    Constraints            `json:"constraints"`
}

// RecommendationContext is the slice of a recommendation the evaluator sees.
type RecommendationContext struct {
	Code      string                 `json:"code"`
	Severity  string                 `json:"severity"`
	Title     string                 `json:"title"`
	Rationale string                 `json:"rationale"`
	Evidence  map[string]interface{} `json:"evidence"`
	Status    string                 `json:"status"`
}

// Constraints frame the evaluation for the model.
type Constraints struct {
	Currency   string `json:"currency"`
	Horizon    string `json:"horizon"`
	RiskPolicy string `json:"risk_policy"`
}

// Evaluation is the bounded, schema-validated result. The shape is identical
// on success and failure.
type Evaluation struct {
	Score      int                    `json:"score"`      // 0..100
	Confidence int                    `json:"confidence"` // 0..100
	Action     string                 `json:"action"`     // ENTER, EXIT, HOLD, IGNORE, NEEDS_DATA
	Summary    string                 `json:"summary"`    // <= 800 chars
	Reasons    map[string]interface{} `json:"reasons"`
}

// Evaluator calls an OpenAI-style chat-completions endpoint to score one
// recommendation.
type Evaluator struct {
	cfg        config.AIConfig
	httpClient *http.Client
	log        zerolog.Logger
}

// NewEvaluator creates a new AI evaluator
func NewEvaluator(cfg config.AIConfig, log zerolog.Logger) *Evaluator {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Evaluator{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log.With().Str("component", "ai_evaluator").Logger(),
	}
}

const systemPrompt = "You are a quantitative and risk analyst evaluating an investment opportunity " +
	"for a retail user. Never promise returns. Prioritize capital protection. " +
	"If data is missing (price, history, position), return NEEDS_DATA. " +
	"Respond with a single JSON object: {\"score\":0-100,\"confidence\":0-100," +
	"\"action\":\"ENTER|EXIT|HOLD|IGNORE|NEEDS_DATA\",\"summary\":string,\"reasons\":object}."

// chat-completions request/response envelopes (OpenAI wire format).
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Evaluate scores one recommendation. It never returns an error: every
// failure mode degrades to the NEEDS_DATA fallback.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) Evaluation {
	if !e.cfg.Configured() {
		return fallback(failureMissingAPIKey, "AI is not configured (missing API key).")
	}

	userPayload, err := json.Marshal(req)
	if err != nil {
		return fallback(failureRequest, "Could not serialize the evaluation context.")
	}

	body, err := json.Marshal(chatRequest{
		Model: e.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(userPayload)},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return fallback(failureRequest, "Could not build the evaluation request.")
	}

	url := fmt.Sprintf("%s/chat/completions", e.cfg.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fallback(failureRequest, "Could not build the evaluation request.")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		e.log.Warn().Err(err).Str("code", req.Recommendation.Code).Msg("AI evaluation request failed")
		return fallback(failureRequest, "The AI service could not be reached.")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		e.log.Warn().Int("status", resp.StatusCode).Str("body", string(raw)).
			Str("code", req.Recommendation.Code).Msg("AI evaluation returned non-200")
		return fallback(failureBadStatus, fmt.Sprintf("The AI service returned status %d.", resp.StatusCode))
	}

	var envelope chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || len(envelope.Choices) == 0 {
		return fallback(failureUnparseable, "The AI service response could not be parsed.")
	}

	var ev Evaluation
	if err := json.Unmarshal([]byte(envelope.Choices[0].Message.Content), &ev); err != nil {
		return fallback(failureUnparseable, "The AI service returned malformed JSON.")
	}

	return sanitize(ev)
}

// sanitize clamps the evaluation into its contract: scores bounded to 0..100,
// action restricted to the enum, summary capped at 800 chars.
func sanitize(ev Evaluation) Evaluation {
	ev.Score = clamp(ev.Score)
	ev.Confidence = clamp(ev.Confidence)

	switch ev.Action {
	case "ENTER", "EXIT", "HOLD", "IGNORE", "NEEDS_DATA":
	default:
		ev.Action = "NEEDS_DATA"
	}

	if runes := []rune(ev.Summary); len(runes) > 800 {
		ev.Summary = string(runes[:800])
	}
	if ev.Reasons == nil {
		ev.Reasons = map[string]interface{}{}
	}
	return ev
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func fallback(mode, summary string) Evaluation {
	return Evaluation{
		Score:      0,
		Confidence: 0,
		Action:     "NEEDS_DATA",
		Summary:    summary,
		Reasons:    map[string]interface{}{"error": mode},
	}
}
