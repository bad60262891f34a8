package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ActionCreate  = "CREATE"
	ActionUpdate  = "UPDATE"
	ActionDelete  = "DELETE"
	ActionConsume = "CONSUME"
	ActionSend    = "SEND"
)

type Event struct {
	ID             string `json:"id"`
	OrganisationID string `json:"organisation_id"`
	UserID         string `json:"user_id"`
	Action         string `json:"action"`
	ResourceType   string `json:"resource_type"`
	ResourceID     string `json:"resource_id"`
	Summary        string `json:"summary"`
	CreatedAt      int64  `json:"created_at"`
}

// Logger appends events to the audit_logs table. Writing an event never
// fails the operation it describes; failures are logged. A nil Logger
// discards events.
type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

func (l *Logger) Log(ctx context.Context, e Event) {
	if l == nil {
		return
	}

	e.ID = uuid.New().String()
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, organisation_id, user_id, action, resource_type, resource_id, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.OrganisationID, e.UserID, e.Action, e.ResourceType, e.ResourceID, e.Summary, e.CreatedAt)
	if err != nil {
		log.Error().Err(err).
			Str("action", e.Action).
			Str("resource_type", e.ResourceType).
			Str("resource_id", e.ResourceID).
			Msg("failed to write audit event")
	}
}

// List returns the newest events first.
func (l *Logger) List(ctx context.Context, limit, offset int) ([]*Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, organisation_id, user_id, action, resource_type, resource_id, summary, created_at
		FROM audit_logs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.OrganisationID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &e.Summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
