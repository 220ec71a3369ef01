// Package provider abstracts the external media room provider (SFU). The
// transport itself is consumed, never implemented: the backend mints native
// join tokens, creates and tears down rooms, and exposes per-participant
// connection statistics.
package provider

import (
	"context"
	"time"

	"github.com/kurban-cebimde/live-backend/internal/models"
)

// RoomInfo describes a room created at the provider.
type RoomInfo struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomParticipant is a provider-side view of a connected identity.
type RoomParticipant struct {
	Identity  string `json:"identity"`
	Publisher bool   `json:"publisher"`
}

// RoomProvider is the capability interface over the external SFU.
// All methods performing network I/O take a context and must not block
// callers working on other sessions.
type RoomProvider interface {
	// Name identifies the backend ("livekit", "zego").
	Name() string
	// URL is the client-facing connection URL handed out with tokens.
	URL() string
	CreateRoom(ctx context.Context, roomName string) (*RoomInfo, error)
	DeleteRoom(ctx context.Context, roomName string) error
	// MintToken produces a native provider credential for one identity in
	// one room. Minting is local signing; no network round-trip.
	MintToken(roomName, identity string, perms models.Permissions, ttl time.Duration) (string, error)
	ListParticipants(ctx context.Context, roomName string) ([]RoomParticipant, error)
	GetStats(ctx context.Context, roomName string) ([]models.ParticipantStat, error)
	RemoveParticipant(ctx context.Context, roomName, identity string) error
	// StartRecording begins a server-side egress; returns the provider's
	// recording id used to correlate the recording-ready webhook.
	StartRecording(ctx context.Context, roomName string) (string, error)
	StopRecording(ctx context.Context, roomName, recordingID string) error
}
