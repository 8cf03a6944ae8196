// Package audit records an append-only trail of sensitive actions. Recording
// is best-effort: a failed write is logged and dropped so auditing never
// breaks the action being audited.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxUserAgent = 400

// Event is one recorded action.
type Event struct {
	ID        string                 `json:"id"`
	Actor     string                 `json:"actor,omitempty"`
	EventType string                 `json:"event_type"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Details   map[string]interface{} `json:"details"`
	CreatedAt time.Time              `json:"created_at"`
}

// Repository handles audit event database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new audit repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "audit").Logger(),
	}
}

// Insert appends one event. The trail is append-only: there is no update or
// delete path.
func (r *Repository) Insert(e Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		details = []byte("{}")
	}

	_, err = r.db.Exec(
		`INSERT INTO audit_events (id, actor, event_type, ip_address, user_agent, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Actor, e.EventType, e.IPAddress, e.UserAgent, string(details),
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListRecent returns the newest events, most recent first.
func (r *Repository) ListRecent(limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(
		`SELECT id, actor, event_type, ip_address, user_agent, details, created_at
		 FROM audit_events ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var actor, ip sql.NullString
		var details, createdAt string
		if err := rows.Scan(&e.ID, &actor, &e.EventType, &ip, &e.UserAgent, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Actor = actor.String
		e.IPAddress = ip.String
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			e.Details = map[string]interface{}{}
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Recorder is the write-side facade used by handlers and services.
type Recorder struct {
	repo *Repository
	log  zerolog.Logger
}

// NewRecorder creates a new audit recorder
func NewRecorder(repo *Repository, log zerolog.Logger) *Recorder {
	return &Recorder{
		repo: repo,
		log:  log.With().Str("component", "audit").Logger(),
	}
}

// Record appends an event with request context. Failures are logged and
// swallowed.
func (rec *Recorder) Record(req *http.Request, actor, eventType string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}

	e := Event{
		ID:        uuid.NewString(),
		Actor:     actor,
		EventType: eventType,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if req != nil {
		e.IPAddress = clientIP(req)
		e.UserAgent = truncate(req.UserAgent(), maxUserAgent)
	}

	if err := rec.repo.Insert(e); err != nil {
		rec.log.Warn().Err(err).Str("event_type", eventType).Msg("Failed to record audit event")
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
