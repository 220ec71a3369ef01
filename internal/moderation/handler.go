package moderation

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/internal/audit"
	"github.com/kurban-cebimde/live-backend/internal/liveerrors"
	"github.com/kurban-cebimde/live-backend/internal/middleware"
	"github.com/kurban-cebimde/live-backend/pkg/response"
)

// Handler exposes the moderation controller over HTTP. Routes are mounted
// behind the admin role middleware.
type Handler struct {
	ctrl   *Controller
	audit  *audit.Repository
	logger *zap.Logger
}

// NewHandler creates a moderation handler.
func NewHandler(ctrl *Controller, auditRepo *audit.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ctrl: ctrl, audit: auditRepo, logger: logger}
}

type actionRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Identity       string `json:"identity"`
	Message        string `json:"message"`
	Backup         bool   `json:"backup"`
}

func (h *Handler) bind(c *gin.Context) (uuid.UUID, string, actionRequest, bool) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, "", actionRequest{}, false
	}
	var req actionRequest
	_ = c.ShouldBindJSON(&req) // all fields optional for most actions
	actor := middleware.ActorFrom(c).UserID.String()
	return sessionID, actor, req, true
}

func (h *Handler) respond(c *gin.Context, res *ActionResult, err error) {
	if err != nil {
		response.Fail(c, liveerrors.HTTPStatus(err), liveerrors.Code(err), err.Error())
		return
	}
	response.OK(c, res)
}

// ForceEnd handles POST /admin/live/:id/force-end.
func (h *Handler) ForceEnd(c *gin.Context) {
	sessionID, actor, req, ok := h.bind(c)
	if !ok {
		return
	}
	res, err := h.ctrl.ForceEnd(c.Request.Context(), sessionID, actor, req.IdempotencyKey)
	h.respond(c, res, err)
}

// RestartRoom handles POST /admin/live/:id/restart-room.
func (h *Handler) RestartRoom(c *gin.Context) {
	sessionID, actor, req, ok := h.bind(c)
	if !ok {
		return
	}
	res, err := h.ctrl.RestartRoom(c.Request.Context(), sessionID, actor, req.IdempotencyKey)
	h.respond(c, res, err)
}

// RevokeToken handles POST /admin/live/:id/revoke-token.
func (h *Handler) RevokeToken(c *gin.Context) {
	sessionID, actor, req, ok := h.bind(c)
	if !ok {
		return
	}
	if req.Identity == "" {
		response.BadRequest(c, "identity required")
		return
	}
	res, err := h.ctrl.RevokeToken(c.Request.Context(), sessionID, actor, req.Identity, req.IdempotencyKey)
	h.respond(c, res, err)
}

// ToggleRecording handles POST /admin/live/:id/toggle-recording.
func (h *Handler) ToggleRecording(c *gin.Context) {
	sessionID, actor, req, ok := h.bind(c)
	if !ok {
		return
	}
	res, err := h.ctrl.ToggleRecording(c.Request.Context(), sessionID, actor, req.IdempotencyKey)
	h.respond(c, res, err)
}

// SendBanner handles POST /admin/live/:id/banner.
func (h *Handler) SendBanner(c *gin.Context) {
	sessionID, actor, req, ok := h.bind(c)
	if !ok {
		return
	}
	if req.Message == "" {
		response.BadRequest(c, "message required")
		return
	}
	res, err := h.ctrl.SendBanner(c.Request.Context(), sessionID, actor, req.Message, req.IdempotencyKey)
	h.respond(c, res, err)
}

// SwitchToBackup handles POST /admin/live/:id/backup.
func (h *Handler) SwitchToBackup(c *gin.Context) {
	sessionID, actor, req, ok := h.bind(c)
	if !ok {
		return
	}
	res, err := h.ctrl.SwitchToBackup(c.Request.Context(), sessionID, actor, req.Backup, req.IdempotencyKey)
	h.respond(c, res, err)
}

// AuditTrail handles GET /admin/live/:id/audit.
func (h *Handler) AuditTrail(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.audit.ListBySession(c.Request.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("list audit events failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		response.Internal(c, "failed to list audit events")
		return
	}
	response.OK(c, events)
}
