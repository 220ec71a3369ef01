package participants

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/internal/models"
	"github.com/kurban-cebimde/live-backend/pkg/response"
)

// WebhookValidator authenticates provider webhook deliveries.
type WebhookValidator interface {
	ValidateWebhook(authHeader string) error
}

// SessionResolver maps a provider room name to its session.
type SessionResolver interface {
	LoadByRoomName(ctx context.Context, roomName string) (*models.Session, error)
}

// roomEvent is the subset of the provider's room webhook body the registry
// cares about.
type roomEvent struct {
	Event string `json:"event"`
	Room  struct {
		Name string `json:"name"`
	} `json:"room"`
	Participant struct {
		Identity   string `json:"identity"`
		Permission struct {
			CanPublish bool `json:"can_publish"`
		} `json:"permission"`
	} `json:"participant"`
	Track struct {
		Type   string `json:"type"`   // AUDIO / VIDEO
		Source string `json:"source"` // CAMERA / SCREEN_SHARE / ...
		Muted  bool   `json:"muted"`
	} `json:"track"`
}

// WebhookHandler feeds provider room events into the registry.
type WebhookHandler struct {
	registry  *Registry
	sessions  SessionResolver
	validator WebhookValidator
	logger    *zap.Logger
}

// NewWebhookHandler creates the room events webhook handler.
func NewWebhookHandler(registry *Registry, sessions SessionResolver, validator WebhookValidator, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{registry: registry, sessions: sessions, validator: validator, logger: logger}
}

// RoomEvent handles POST /webhooks/provider/events: participant and track
// lifecycle notifications from the media provider.
func (h *WebhookHandler) RoomEvent(c *gin.Context) {
	if h.validator != nil {
		if err := h.validator.ValidateWebhook(c.GetHeader("Authorization")); err != nil {
			h.logger.Warn("webhook rejected", zap.Error(err))
			response.Unauthorized(c, "invalid webhook signature")
			return
		}
	}
	var body roomEvent
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if body.Room.Name == "" {
		response.BadRequest(c, "room name required")
		return
	}

	session, err := h.sessions.LoadByRoomName(c.Request.Context(), body.Room.Name)
	if err != nil {
		h.logger.Error("session lookup failed", zap.Error(err), zap.String("room", body.Room.Name))
		response.Internal(c, "failed to resolve session")
		return
	}
	if session == nil {
		// a room this service never created; acknowledge and move on
		h.logger.Debug("event for unknown room", zap.String("room", body.Room.Name), zap.String("event", body.Event))
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	identity := body.Participant.Identity
	switch body.Event {
	case "participant_joined":
		role := models.RoleViewer
		if body.Participant.Permission.CanPublish {
			role = models.RolePublisher
		}
		if _, err := h.registry.OnJoin(session.ID, identity, role); err != nil {
			h.logger.Warn("join rejected",
				zap.String("session_id", session.ID.String()), zap.String("identity", identity), zap.Error(err))
		}
	case "participant_left":
		h.registry.OnLeave(session.ID, identity)
	case "track_published", "track_unpublished":
		on := body.Event == "track_published" && !body.Track.Muted
		h.registry.SetTrack(session.ID, identity, trackKind(body.Track.Type, body.Track.Source), on)
	default:
		// room_started/room_finished etc. carry no registry state
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func trackKind(typ, source string) models.TrackKind {
	if strings.EqualFold(source, "SCREEN_SHARE") {
		return models.TrackScreenshare
	}
	if strings.EqualFold(typ, "AUDIO") {
		return models.TrackAudio
	}
	return models.TrackVideo
}
