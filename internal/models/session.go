package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the broadcast lifecycle state.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusPrelive   SessionStatus = "prelive"
	StatusLive      SessionStatus = "live"
	StatusPaused    SessionStatus = "paused"
	StatusEnded     SessionStatus = "ended"
	StatusError     SessionStatus = "error"
)

// Terminal reports whether the status admits no further transitions
// (error can only be reset to a fresh scheduled session with a new room).
func (s SessionStatus) Terminal() bool {
	return s == StatusEnded || s == StatusError
}

// Session is one scheduled-to-ended broadcast bound to a provider room.
// started_at is set iff status is live, paused or ended; ended_at iff ended.
type Session struct {
	ID          uuid.UUID     `json:"id"`
	Title       string        `json:"title"`
	RoomName    string        `json:"room_name"`
	Status      SessionStatus `json:"status"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	PublisherID *uuid.UUID    `json:"publisher_id,omitempty"`
	DonationIDs []string      `json:"donation_ids,omitempty"`
	MediaIDs    []string      `json:"media_ids,omitempty"`
	LastAlert   string        `json:"last_alert,omitempty"`
	Recording   bool          `json:"recording"`
	BackupLive  bool          `json:"backup_live"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Joinable reports whether a viewer may request a token for this session.
func (s *Session) Joinable() bool {
	return s.Status == StatusPrelive || s.Status == StatusLive
}
