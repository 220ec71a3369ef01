package recordings

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/pkg/queue"
	"github.com/kurban-cebimde/live-backend/pkg/response"
)

// WebhookValidator authenticates provider webhook deliveries.
type WebhookValidator interface {
	ValidateWebhook(authHeader string) error
}

// egressEvent is the subset of the provider's webhook body the recording
// pipeline cares about.
type egressEvent struct {
	Event      string `json:"event"`
	EgressInfo struct {
		EgressID    string `json:"egress_id"`
		RoomName    string `json:"room_name"`
		FileResults []struct {
			Location string `json:"location"`
			Duration int64  `json:"duration"`
			Size     int64  `json:"size"`
		} `json:"file_results"`
	} `json:"egress_info"`
}

// WebhookHandler handles recording webhooks from the media provider.
type WebhookHandler struct {
	repo      *Repository
	queue     *queue.Queue
	validator WebhookValidator
	logger    *zap.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(repo *Repository, q *queue.Queue, validator WebhookValidator, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{repo: repo, queue: q, validator: validator, logger: logger}
}

// EgressEnded handles POST /webhooks/provider/egress. Validates the signed
// Authorization header, marks the recording as processing and enqueues the
// S3 transfer job.
func (h *WebhookHandler) EgressEnded(c *gin.Context) {
	if h.validator != nil {
		if err := h.validator.ValidateWebhook(c.GetHeader("Authorization")); err != nil {
			h.logger.Warn("webhook rejected", zap.Error(err))
			response.Unauthorized(c, "invalid webhook signature")
			return
		}
	}
	var body egressEvent
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if body.Event != "egress_ended" {
		// other lifecycle events are acknowledged but ignored here
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	if body.EgressInfo.EgressID == "" || len(body.EgressInfo.FileResults) == 0 {
		response.BadRequest(c, "egress_id and file_results required")
		return
	}

	rec, err := h.repo.GetByProviderID(c.Request.Context(), body.EgressInfo.EgressID)
	if err != nil {
		h.logger.Error("lookup recording failed", zap.Error(err), zap.String("egress_id", body.EgressInfo.EgressID))
		response.Internal(c, "failed to look up recording")
		return
	}
	if rec == nil {
		// egress we never started (e.g. triggered manually on the provider console)
		h.logger.Warn("egress_ended for unknown recording", zap.String("egress_id", body.EgressInfo.EgressID), zap.String("room", body.EgressInfo.RoomName))
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	file := body.EgressInfo.FileResults[0]
	if err := h.repo.UpdateOriginalURL(c.Request.Context(), rec.ID, file.Location); err != nil {
		h.logger.Error("update original_url failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "failed to update recording")
		return
	}

	if err := h.queue.EnqueueRecordingUpload(c.Request.Context(), queue.RecordingUploadPayload{
		RecordingID: rec.ID,
		SessionID:   rec.SessionID,
		OriginalURL: file.Location,
	}); err != nil {
		h.logger.Error("enqueue recording upload failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "failed to enqueue upload")
		return
	}

	h.logger.Info("egress_ended webhook processed",
		zap.String("recording_id", rec.ID.String()),
		zap.String("egress_id", body.EgressInfo.EgressID))
	c.JSON(http.StatusOK, gin.H{"success": true, "recording_id": rec.ID, "status": "processing"})
}
