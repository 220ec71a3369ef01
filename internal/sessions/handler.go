package sessions

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/internal/liveerrors"
	"github.com/kurban-cebimde/live-backend/internal/models"
	"github.com/kurban-cebimde/live-backend/pkg/queue"
	"github.com/kurban-cebimde/live-backend/pkg/response"
)

// MetricsHistory exposes the retained telemetry of a session so the archive
// can be captured before the loop is torn down on stop.
type MetricsHistory interface {
	History(sessionID uuid.UUID, n int) []models.MetricsSnapshot
}

// Handler handles session lifecycle HTTP endpoints.
type Handler struct {
	service *Service
	metrics MetricsHistory
	queue   *queue.Queue
	logger  *zap.Logger
}

// NewHandler creates a sessions handler. metrics and q may be nil; stop then
// skips the archive job.
func NewHandler(service *Service, metrics MetricsHistory, q *queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, metrics: metrics, queue: q, logger: logger}
}

func fail(c *gin.Context, err error) {
	response.Fail(c, liveerrors.HTTPStatus(err), liveerrors.Code(err), err.Error())
}

// CreateRequest is the body for POST /live/create.
type CreateRequest struct {
	Title       string    `json:"title"`
	DonationIDs []string  `json:"donation_ids"`
	ScheduledAt time.Time `json:"scheduled_at"`
	PublisherID string    `json:"publisher_id"`
}

// transitionRequest carries the caller-supplied idempotency key for
// lifecycle commands.
type transitionRequest struct {
	TransitionID string `json:"transition_id"`
	Reason       string `json:"reason"`
}

// Create handles POST /live/create.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	var publisherID *uuid.UUID
	if req.PublisherID != "" {
		id, err := uuid.Parse(req.PublisherID)
		if err != nil {
			response.BadRequest(c, "invalid publisher_id")
			return
		}
		publisherID = &id
	}
	session, err := h.service.Create(c.Request.Context(), req.Title, req.DonationIDs, req.ScheduledAt, publisherID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, session)
}

func (h *Handler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func bindTransition(c *gin.Context) transitionRequest {
	var req transitionRequest
	_ = c.ShouldBindJSON(&req) // body is optional; an absent key means a fresh transition
	return req
}

// Prepare handles POST /live/sessions/:id/prepare.
func (h *Handler) Prepare(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	req := bindTransition(c)
	res, err := h.service.Prepare(c.Request.Context(), id, req.TransitionID)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, res)
}

// Start handles POST /live/sessions/:id/start.
func (h *Handler) Start(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	req := bindTransition(c)
	res, err := h.service.Start(c.Request.Context(), id, req.TransitionID)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, res)
}

// Pause handles POST /live/sessions/:id/pause.
func (h *Handler) Pause(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	req := bindTransition(c)
	res, err := h.service.Pause(c.Request.Context(), id, req.TransitionID)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, res)
}

// Resume handles POST /live/sessions/:id/resume.
func (h *Handler) Resume(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	req := bindTransition(c)
	res, err := h.service.Resume(c.Request.Context(), id, req.TransitionID)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, res)
}

// Stop handles POST /live/sessions/:id/stop. Telemetry history is captured before
// the loop is torn down so the archive job still carries it.
func (h *Handler) Stop(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	req := bindTransition(c)

	var history []models.MetricsSnapshot
	if h.metrics != nil {
		history = h.metrics.History(id, 0)
	}

	res, err := h.service.End(c.Request.Context(), id, req.TransitionID, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	h.enqueueArchive(c.Request.Context(), id, history)
	response.OK(c, res)
}

func (h *Handler) enqueueArchive(ctx context.Context, id uuid.UUID, history []models.MetricsSnapshot) {
	if h.queue == nil {
		return
	}
	var metrics json.RawMessage
	if len(history) > 0 {
		metrics, _ = json.Marshal(history)
	}
	if err := h.queue.EnqueueSessionArchive(ctx, queue.SessionArchivePayload{
		SessionID:   id,
		FinalStatus: string(models.StatusEnded),
		EndedAt:     time.Now(),
		Metrics:     metrics,
	}); err != nil {
		h.logger.Warn("enqueue session archive failed", zap.Error(err), zap.String("session_id", id.String()))
	}
}

// Reset handles POST /live/sessions/:id/reset. Only errored sessions can be reset;
// the result is a fresh scheduled session with a new room.
func (h *Handler) Reset(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	session, err := h.service.ResetError(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, session)
}

// Get handles GET /live/streams/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	session, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, session)
}

// List handles GET /live/streams.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sessions, err := h.service.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, sessions)
}

// Delete handles DELETE /live/sessions/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	response.NoContent(c)
}
