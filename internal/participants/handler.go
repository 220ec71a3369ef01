package participants

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/pkg/response"
)

// Handler exposes the read surface of the registry.
type Handler struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHandler creates a participants handler.
func NewHandler(registry *Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, logger: logger}
}

// ListActive handles GET /live/streams/:id/participants.
func (h *Handler) ListActive(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	response.OK(c, gin.H{
		"participants":   h.registry.ListActive(sessionID),
		"viewers_online": h.registry.ViewersOnline(sessionID),
	})
}

// History handles GET /live/streams/:id/participants/history.
func (h *Handler) History(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	response.OK(c, h.registry.History(sessionID))
}
