package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/internal/models"
	"github.com/kurban-cebimde/live-backend/pkg/retry"
)

const liveKitAPITokenTTL = 10 * time.Minute

// LiveKitConfig holds LiveKit cloud/server credentials.
type LiveKitConfig struct {
	URL       string // wss:// client URL
	APIKey    string
	APISecret string
}

// VideoGrant is the LiveKit room grant embedded in access tokens.
type VideoGrant struct {
	Room           string `json:"room,omitempty"`
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	RoomCreate     bool   `json:"roomCreate,omitempty"`
	RoomAdmin      bool   `json:"roomAdmin,omitempty"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
	Hidden         bool   `json:"hidden,omitempty"`
	Recorder       bool   `json:"recorder,omitempty"`
}

type liveKitClaims struct {
	Video VideoGrant `json:"video"`
	jwt.RegisteredClaims
}

// LiveKit is the default RoomProvider backend, talking to the LiveKit
// server API over HTTP and signing access tokens locally.
type LiveKit struct {
	cfg    LiveKitConfig
	http   *http.Client
	policy retry.Policy
	logger *zap.Logger
}

// NewLiveKit creates the LiveKit backend.
func NewLiveKit(cfg LiveKitConfig, policy retry.Policy, logger *zap.Logger) *LiveKit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveKit{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		policy: policy,
		logger: logger,
	}
}

// Name implements RoomProvider.
func (l *LiveKit) Name() string { return "livekit" }

// URL implements RoomProvider.
func (l *LiveKit) URL() string { return l.cfg.URL }

// MintToken signs a LiveKit access token with the video grant derived from
// the permission set. Moderator capability maps onto roomAdmin.
func (l *LiveKit) MintToken(roomName, identity string, perms models.Permissions, ttl time.Duration) (string, error) {
	if l.cfg.APIKey == "" || l.cfg.APISecret == "" {
		return "", fmt.Errorf("livekit: api key and secret required")
	}
	now := time.Now()
	claims := liveKitClaims{
		Video: VideoGrant{
			Room:           roomName,
			RoomJoin:       true,
			RoomAdmin:      perms.CanModerate,
			CanPublish:     perms.CanPublish,
			CanSubscribe:   perms.CanSubscribe,
			CanPublishData: perms.CanSubscribe,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    l.cfg.APIKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(l.cfg.APISecret))
}

// ValidateWebhook checks the Authorization token LiveKit attaches to webhook
// deliveries (a JWT signed with the API secret, issued by the API key).
func (l *LiveKit) ValidateWebhook(authHeader string) error {
	raw := strings.TrimPrefix(authHeader, "Bearer ")
	if raw == "" {
		return fmt.Errorf("livekit: missing webhook token")
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(l.cfg.APISecret), nil
	}, jwt.WithIssuer(l.cfg.APIKey))
	if err != nil {
		return fmt.Errorf("livekit: webhook token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("livekit: webhook token invalid")
	}
	return nil
}

// CreateRoom implements RoomProvider via the RoomService API.
func (l *LiveKit) CreateRoom(ctx context.Context, roomName string) (*RoomInfo, error) {
	body := map[string]interface{}{"name": roomName, "empty_timeout": 300}
	if err := l.call(ctx, "livekit.RoomService/CreateRoom", body, nil); err != nil {
		return nil, err
	}
	return &RoomInfo{Name: roomName, URL: l.cfg.URL, CreatedAt: time.Now()}, nil
}

// DeleteRoom implements RoomProvider.
func (l *LiveKit) DeleteRoom(ctx context.Context, roomName string) error {
	return l.call(ctx, "livekit.RoomService/DeleteRoom", map[string]string{"room": roomName}, nil)
}

type lkParticipant struct {
	Identity   string `json:"identity"`
	Permission struct {
		CanPublish bool `json:"can_publish"`
	} `json:"permission"`
	Tracks []struct {
		Type  string `json:"type"`
		Muted bool   `json:"muted"`
	} `json:"tracks"`
	ConnectionQuality string `json:"connection_quality"`
}

type lkParticipantList struct {
	Participants []lkParticipant `json:"participants"`
}

// ListParticipants implements RoomProvider.
func (l *LiveKit) ListParticipants(ctx context.Context, roomName string) ([]RoomParticipant, error) {
	var out lkParticipantList
	if err := l.call(ctx, "livekit.RoomService/ListParticipants", map[string]string{"room": roomName}, &out); err != nil {
		return nil, err
	}
	parts := make([]RoomParticipant, 0, len(out.Participants))
	for _, p := range out.Participants {
		parts = append(parts, RoomParticipant{
			Identity:  p.Identity,
			Publisher: p.Permission.CanPublish && len(p.Tracks) > 0,
		})
	}
	return parts, nil
}

// GetStats implements RoomProvider. LiveKit reports coarse connection
// quality per participant; it is mapped onto the rtt/loss scale the
// aggregator thresholds expect.
func (l *LiveKit) GetStats(ctx context.Context, roomName string) ([]models.ParticipantStat, error) {
	var out lkParticipantList
	if err := l.call(ctx, "livekit.RoomService/ListParticipants", map[string]string{"room": roomName}, &out); err != nil {
		return nil, err
	}
	stats := make([]models.ParticipantStat, 0, len(out.Participants))
	for _, p := range out.Participants {
		stats = append(stats, models.ParticipantStat{
			Identity:    p.Identity,
			RTTMs:       qualityRTT(p.ConnectionQuality),
			PacketLoss:  qualityLoss(p.ConnectionQuality),
			BitrateKbps: 0,
		})
	}
	return stats, nil
}

// RemoveParticipant implements RoomProvider.
func (l *LiveKit) RemoveParticipant(ctx context.Context, roomName, identity string) error {
	return l.call(ctx, "livekit.RoomService/RemoveParticipant", map[string]string{
		"room":     roomName,
		"identity": identity,
	}, nil)
}

type lkEgressInfo struct {
	EgressID string `json:"egress_id"`
}

// StartRecording implements RoomProvider using a room composite egress.
func (l *LiveKit) StartRecording(ctx context.Context, roomName string) (string, error) {
	var out lkEgressInfo
	err := l.call(ctx, "livekit.Egress/StartRoomCompositeEgress", map[string]interface{}{
		"room_name": roomName,
		"layout":    "speaker",
	}, &out)
	if err != nil {
		return "", err
	}
	return out.EgressID, nil
}

// StopRecording implements RoomProvider.
func (l *LiveKit) StopRecording(ctx context.Context, roomName, recordingID string) error {
	return l.call(ctx, "livekit.Egress/StopEgress", map[string]string{"egress_id": recordingID}, nil)
}

// call posts a Twirp request with a short-lived admin token, retrying per
// the shared policy. out may be nil when the response body is not needed.
func (l *LiveKit) call(ctx context.Context, method string, in interface{}, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("livekit: marshal %s: %w", method, err)
	}
	adminToken, err := l.adminToken()
	if err != nil {
		return err
	}
	endpoint := l.apiURL() + "/twirp/" + method
	return l.policy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+adminToken)
		resp, err := l.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("livekit: %s: status %d: %s", method, resp.StatusCode, string(snippet))
		}
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

func (l *LiveKit) adminToken() (string, error) {
	now := time.Now()
	claims := liveKitClaims{
		Video: VideoGrant{RoomCreate: true, RoomAdmin: true, CanSubscribe: true},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    l.cfg.APIKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(liveKitAPITokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(l.cfg.APISecret))
}

// apiURL converts the websocket client URL to the HTTP API base.
func (l *LiveKit) apiURL() string {
	u := l.cfg.URL
	u = strings.Replace(u, "wss://", "https://", 1)
	u = strings.Replace(u, "ws://", "http://", 1)
	return strings.TrimSuffix(u, "/")
}

func qualityRTT(q string) int {
	switch strings.ToLower(q) {
	case "excellent":
		return 50
	case "good":
		return 150
	case "poor":
		return 450
	case "lost":
		return 1000
	default:
		return 0
	}
}

func qualityLoss(q string) float64 {
	switch strings.ToLower(q) {
	case "excellent":
		return 0
	case "good":
		return 2
	case "poor":
		return 12
	case "lost":
		return 100
	default:
		return 0
	}
}
