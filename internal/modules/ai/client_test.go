package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/tecnolok-2025/invpanel-pro/internal/config"
)

func testRequest() Request {
	return Request{
		Recommendation: RecommendationContext{
			Code:      "CONC-AAA-1",
			Severity:  "HIGH",
			Title:     "High concentration in AAA",
			Rationale: "AAA represents most of the portfolio value.",
			Evidence:  map[string]interface{}{"weight": 0.61},
			Status:    "OPEN",
		},
		Portfolio:   map[string]interface{}{"holdings": map[string]float64{"AAA": 10}},
		Prices:      map[string]interface{}{"AAA": map[string]interface{}{"close": 100.0}},
		Constraints: Constraints{Currency: "ARS", Horizon: "medium_term", RiskPolicy: "conservative"},
	}
}

// chatServer returns an httptest server speaking the chat-completions wire
// format with a fixed message content.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var envelope struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&envelope)) && assert.Len(t, envelope.Messages, 2) {
			assert.Equal(t, "system", envelope.Messages[0].Role)
			assert.Contains(t, envelope.Messages[1].Content, "CONC-AAA-1")
		}

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestEvaluator(baseURL string) *Evaluator {
	return NewEvaluator(config.AIConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "gpt-4o-mini",
	}, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestEvaluate_MissingAPIKey(t *testing.T) {
	ev := NewEvaluator(config.AIConfig{}, zerolog.New(nil).Level(zerolog.Disabled))

	result := ev.Evaluate(context.Background(), testRequest())

	assert.Equal(t, "NEEDS_DATA", result.Action)
	assert.Equal(t, 0, result.Score)
	assert.Equal(t, 0, result.Confidence)
	assert.Equal(t, "missing_api_key", result.Reasons["error"])
}

func TestEvaluate_Success(t *testing.T) {
	srv := chatServer(t, `{"score":82,"confidence":73,"action":"ENTER","summary":"Trim the position.","reasons":{"rule":"concentration"}}`)
	ev := newTestEvaluator(srv.URL)

	result := ev.Evaluate(context.Background(), testRequest())

	assert.Equal(t, 82, result.Score)
	assert.Equal(t, 73, result.Confidence)
	assert.Equal(t, "ENTER", result.Action)
	assert.Equal(t, "Trim the position.", result.Summary)
	assert.Equal(t, "concentration", result.Reasons["rule"])
}

func TestEvaluate_ServiceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	ev := newTestEvaluator(srv.URL)

	result := ev.Evaluate(context.Background(), testRequest())

	assert.Equal(t, "NEEDS_DATA", result.Action)
	assert.Equal(t, "request_failed", result.Reasons["error"])
}

func TestEvaluate_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	ev := newTestEvaluator(srv.URL)

	result := ev.Evaluate(context.Background(), testRequest())

	assert.Equal(t, "NEEDS_DATA", result.Action)
	assert.Equal(t, "bad_status", result.Reasons["error"])
	assert.Contains(t, result.Summary, "429")
}

func TestEvaluate_MalformedContent(t *testing.T) {
	srv := chatServer(t, "I cannot answer in JSON, sorry.")
	ev := newTestEvaluator(srv.URL)

	result := ev.Evaluate(context.Background(), testRequest())

	assert.Equal(t, "NEEDS_DATA", result.Action)
	assert.Equal(t, "unparseable_response", result.Reasons["error"])
}

func TestEvaluate_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	t.Cleanup(srv.Close)
	ev := newTestEvaluator(srv.URL)

	result := ev.Evaluate(context.Background(), testRequest())

	assert.Equal(t, "NEEDS_DATA", result.Action)
	assert.Equal(t, "unparseable_response", result.Reasons["error"])
}

func TestEvaluate_SanitizesOutOfContractValues(t *testing.T) {
	long := strings.Repeat("x", 900)
	srv := chatServer(t, `{"score":150,"confidence":-5,"action":"SHORT_EVERYTHING","summary":"`+long+`"}`)
	ev := newTestEvaluator(srv.URL)

	result := ev.Evaluate(context.Background(), testRequest())

	assert.Equal(t, 100, result.Score)
	assert.Equal(t, 0, result.Confidence)
	assert.Equal(t, "NEEDS_DATA", result.Action, "unknown actions collapse to NEEDS_DATA")
	assert.Len(t, result.Summary, 800)
	assert.NotNil(t, result.Reasons)
}

func TestEvaluate_TruncatesSummaryOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("análisis ñoño ", 80)
	srv := chatServer(t, `{"score":60,"confidence":60,"action":"HOLD","summary":"`+long+`"}`)
	ev := newTestEvaluator(srv.URL)

	result := ev.Evaluate(context.Background(), testRequest())

	assert.Equal(t, "HOLD", result.Action)
	assert.True(t, utf8.ValidString(result.Summary), "truncation must not split a rune")
	assert.Equal(t, 800, utf8.RuneCountInString(result.Summary))
	assert.True(t, strings.HasPrefix(long, result.Summary))
}

func TestEvaluate_ContextCancellation(t *testing.T) {
	srv := chatServer(t, `{"score":50,"confidence":50,"action":"HOLD","summary":"ok"}`)
	ev := newTestEvaluator(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := ev.Evaluate(ctx, testRequest())

	assert.Equal(t, "NEEDS_DATA", result.Action)
	assert.Equal(t, "request_failed", result.Reasons["error"])
}
