package access

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/kurban-cebimde/live-backend/internal/models"
)

func TestPermissionsFor(t *testing.T) {
	operatorID := uuid.New()
	session := &models.Session{ID: uuid.New(), Status: models.StatusLive}

	caps := PermissionsFor(Actor{UserID: uuid.New(), Role: AppRoleAdmin}, session)
	assert.Equal(t, Capabilities{Publish: true, View: true, Moderate: true, Operate: true}, caps)

	// no assigned publisher: any operator may take the slot
	caps = PermissionsFor(Actor{UserID: operatorID, Role: AppRoleOperator}, session)
	assert.Equal(t, Capabilities{Publish: true, View: true, Operate: true}, caps)

	// assigned to someone else: view only
	other := uuid.New()
	session.PublisherID = &other
	caps = PermissionsFor(Actor{UserID: operatorID, Role: AppRoleOperator}, session)
	assert.Equal(t, Capabilities{View: true}, caps)

	// the assigned operator publishes
	session.PublisherID = &operatorID
	caps = PermissionsFor(Actor{UserID: operatorID, Role: AppRoleOperator}, session)
	assert.Equal(t, Capabilities{Publish: true, View: true, Operate: true}, caps)

	caps = PermissionsFor(Actor{UserID: uuid.New(), Role: AppRoleUser}, session)
	assert.Equal(t, Capabilities{View: true}, caps)
}

func TestRoleAllowed(t *testing.T) {
	viewerOnly := Capabilities{View: true}
	assert.True(t, RoleAllowed(viewerOnly, models.RoleViewer))
	assert.False(t, RoleAllowed(viewerOnly, models.RolePublisher))
	assert.False(t, RoleAllowed(viewerOnly, models.RoleModerator))

	full := Capabilities{Publish: true, View: true, Moderate: true, Operate: true}
	assert.True(t, RoleAllowed(full, models.RoleViewer))
	assert.True(t, RoleAllowed(full, models.RolePublisher))
	assert.True(t, RoleAllowed(full, models.RoleModerator))

	assert.False(t, RoleAllowed(full, models.Role("superadmin")))
}
