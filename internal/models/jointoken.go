package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the capability role a join token grants inside a room.
type Role string

const (
	RolePublisher Role = "publisher"
	RoleViewer    Role = "viewer"
	RoleModerator Role = "moderator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RolePublisher || r == RoleViewer || r == RoleModerator
}

// Permissions is the capability bitset carried by a join token.
type Permissions struct {
	CanPublish   bool `json:"can_publish"`
	CanSubscribe bool `json:"can_subscribe"`
	CanModerate  bool `json:"can_moderate"`
}

// PermissionsForRole returns the role-dependent permission set.
// Publisher and viewer tokens never carry CanModerate.
func PermissionsForRole(role Role) Permissions {
	switch role {
	case RolePublisher:
		return Permissions{CanPublish: true, CanSubscribe: true}
	case RoleModerator:
		return Permissions{CanPublish: true, CanSubscribe: true, CanModerate: true}
	default:
		return Permissions{CanSubscribe: true}
	}
}

// JoinToken is a short-lived credential authorizing one identity to join
// exactly one room. Not reusable after expiry or revocation.
type JoinToken struct {
	ID          uuid.UUID   `json:"id"`
	Identity    string      `json:"identity"`
	Role        Role        `json:"role"`
	RoomName    string      `json:"room_name"`
	Permissions Permissions `json:"permissions"`
	ExpiresAt   time.Time   `json:"expires_at"`
	Signed      string      `json:"token"`
	Provider    string      `json:"provider"`
	URL         string      `json:"url,omitempty"`
}
