// Package audit persists the append-only trail of privileged actions and
// alert escalations.
package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kurban-cebimde/live-backend/internal/models"
)

// Appender is the write surface consumed by moderation and telemetry.
type Appender interface {
	Append(ctx context.Context, e *models.AuditEvent) error
}

// Repository handles audit_events persistence. Rows are append-only; there
// is no update or delete path.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an audit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts one audit event.
func (r *Repository) Append(ctx context.Context, e *models.AuditEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	const q = `INSERT INTO audit_events (id, session_id, actor, action, outcome, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`
	_, err := r.pool.Exec(ctx, q, e.ID, e.SessionID, e.Actor, e.Action, e.Outcome, e.Detail)
	return err
}

// ListBySession returns events for a session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.AuditEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	const q = `SELECT id, session_id, actor, action, outcome, detail, created_at
		FROM audit_events WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Actor, &e.Action, &e.Outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

var _ Appender = (*Repository)(nil)
