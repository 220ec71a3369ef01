package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit outcomes.
const (
	AuditOutcomeOK       = "ok"
	AuditOutcomeFailed   = "failed"
	AuditOutcomeTimedOut = "timed_out"
)

// AuditEvent is one append-only record of a privileged action or an alert
// escalation against a session.
type AuditEvent struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
