package tokens

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/internal/liveerrors"
	"github.com/kurban-cebimde/live-backend/internal/middleware"
	"github.com/kurban-cebimde/live-backend/internal/models"
	"github.com/kurban-cebimde/live-backend/pkg/response"
)

// Handler handles join-token HTTP endpoints.
type Handler struct {
	issuer     *Issuer
	iceServers []webrtc.ICEServer
	logger     *zap.Logger
}

// NewHandler creates a tokens handler. iceServers is handed to clients
// verbatim so mobile players can prime their peer connections.
func NewHandler(issuer *Issuer, iceServers []webrtc.ICEServer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{issuer: issuer, iceServers: iceServers, logger: logger}
}

// IssueRequest is the body for POST /live/token.
type IssueRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Role      string `json:"role" binding:"required"`
}

// Issue handles POST /live/token.
func (h *Handler) Issue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		response.BadRequest(c, "invalid session_id")
		return
	}
	actor := middleware.ActorFrom(c)

	token, err := h.issuer.Issue(c.Request.Context(), sessionID, actor, models.Role(req.Role))
	if err != nil {
		response.Fail(c, liveerrors.HTTPStatus(err), liveerrors.Code(err), err.Error())
		return
	}
	response.OK(c, gin.H{
		"token":       token.Signed,
		"identity":    token.Identity,
		"role":        token.Role,
		"room_name":   token.RoomName,
		"permissions": token.Permissions,
		"provider":    token.Provider,
		"url":         token.URL,
		"expires_at":  token.ExpiresAt,
		"ice_servers": h.iceServers,
	})
}
