// Package access answers one question for every surface uniformly: what may
// this actor do with this session. Handlers, the token issuer and the
// moderation controller all consume the same capability set instead of
// re-deriving role conditionals.
package access

import (
	"github.com/google/uuid"

	"github.com/kurban-cebimde/live-backend/internal/models"
)

// App-level roles carried in the identity JWT.
const (
	AppRoleAdmin    = "admin"
	AppRoleOperator = "operator"
	AppRoleUser     = "user"
)

// Actor is an authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// Capabilities is what an actor may do with one session.
type Capabilities struct {
	Publish  bool // may request a publisher token
	View     bool // may request a viewer token
	Moderate bool // may request a moderator token and invoke admin actions
	Operate  bool // may drive the session lifecycle (prepare/start/stop)
}

// PermissionsFor computes the capability set for an actor on a session.
// Admins moderate everything; the assigned publisher (or any operator when
// none is assigned yet) operates and publishes; viewing follows the default
// public visibility policy.
func PermissionsFor(actor Actor, session *models.Session) Capabilities {
	caps := Capabilities{View: true}
	if actor.Role == AppRoleAdmin {
		caps.Publish = true
		caps.Moderate = true
		caps.Operate = true
		return caps
	}
	if actor.Role == AppRoleOperator {
		if session.PublisherID == nil || *session.PublisherID == actor.UserID {
			caps.Publish = true
			caps.Operate = true
		}
	}
	return caps
}

// RoleAllowed reports whether the actor may request a join token of the
// given room role.
func RoleAllowed(caps Capabilities, role models.Role) bool {
	switch role {
	case models.RolePublisher:
		return caps.Publish
	case models.RoleModerator:
		return caps.Moderate
	case models.RoleViewer:
		return caps.View
	default:
		return false
	}
}
