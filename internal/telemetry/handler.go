package telemetry

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/pkg/response"
)

// Handler exposes the pull surface of the aggregator.
type Handler struct {
	agg    *Aggregator
	logger *zap.Logger
}

// NewHandler creates a telemetry handler.
func NewHandler(agg *Aggregator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{agg: agg, logger: logger}
}

// Latest handles GET /live/streams/:id/metrics.
func (h *Handler) Latest(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	snap := h.agg.Poll(sessionID)
	if snap == nil {
		response.NotFound(c, "no telemetry for this session")
		return
	}
	response.OK(c, snap)
}

// History handles GET /live/streams/:id/metrics/history?n=30.
func (h *Handler) History(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	n, _ := strconv.Atoi(c.DefaultQuery("n", "0"))
	snaps := h.agg.History(sessionID, n)
	if snaps == nil {
		response.NotFound(c, "no telemetry for this session")
		return
	}
	response.OK(c, snaps)
}
