// Package moderation implements the privileged operator surface: emergency
// controls built on the state machine, token issuer, participant registry
// and provider client. Every action is audited and idempotency-keyed.
package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/config"
	"github.com/kurban-cebimde/live-backend/internal/audit"
	"github.com/kurban-cebimde/live-backend/internal/liveerrors"
	"github.com/kurban-cebimde/live-backend/internal/models"
	"github.com/kurban-cebimde/live-backend/internal/provider"
	"github.com/kurban-cebimde/live-backend/internal/sessions"
)

// Moderation action names, recorded in audit events.
const (
	ActionForceEnd        = "force_end"
	ActionRestartRoom     = "restart_room"
	ActionRevokeToken     = "revoke_token"
	ActionToggleRecording = "toggle_recording"
	ActionSendBanner      = "send_banner"
	ActionSwitchBackup    = "switch_backup"
)

// ActionResult is returned by every moderation action.
type ActionResult struct {
	OK        bool      `json:"ok"`
	Action    string    `json:"action"`
	AppliedAt time.Time `json:"applied_at"`
}

// TokenControl is the issuer surface moderation needs.
type TokenControl interface {
	Revoke(ctx context.Context, sessionID uuid.UUID, identity string) error
	Reissue(ctx context.Context, sessionID uuid.UUID) (*models.JoinToken, error)
}

// RegistryControl is the participant surface moderation needs.
type RegistryControl interface {
	GetPublisher(sessionID uuid.UUID) *models.Participant
	DropAll(sessionID uuid.UUID)
}

// RecordingSink records recording lifecycle rows when egress starts.
type RecordingSink interface {
	TrackStarted(ctx context.Context, sessionID uuid.UUID, providerRecordingID string) error
}

// Broadcaster pushes side-channel messages to connected clients.
// Best-effort: delivery to every viewer is not guaranteed.
type Broadcaster interface {
	BroadcastToSession(sessionID uuid.UUID, event string, payload interface{})
}

// Controller executes privileged operator actions. State-affecting actions
// are synchronous: the session status is updated before the call returns.
type Controller struct {
	sessions   *sessions.Service
	tokens     TokenControl
	registry   RegistryControl
	provider   provider.RoomProvider
	audit      audit.Appender
	hub        Broadcaster
	recordings RecordingSink
	results    sessions.ResultStore
	cfg        config.LiveConfig
	logger     *zap.Logger
}

// NewController creates the moderation controller.
func NewController(svc *sessions.Service, tokens TokenControl, registry RegistryControl, prov provider.RoomProvider, auditRepo audit.Appender, hub Broadcaster, recordings RecordingSink, results sessions.ResultStore, cfg config.LiveConfig, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		sessions:   svc,
		tokens:     tokens,
		registry:   registry,
		provider:   prov,
		audit:      auditRepo,
		hub:        hub,
		recordings: recordings,
		results:    results,
		cfg:        cfg,
		logger:     logger,
	}
}

// do wraps an action with the moderation deadline, idempotency and the
// audit trail. A deadline overrun reports TimedOut without assuming the
// provider-side effect happened; the idempotency key makes a retry safe.
func (c *Controller) do(ctx context.Context, sessionID uuid.UUID, actor, action, idemKey string, fn func(ctx context.Context) error) (*ActionResult, error) {
	if idemKey == "" {
		idemKey = uuid.New().String()
	}
	cmdKey := "mod:" + action + ":" + idemKey

	if prev, err := c.results.Get(ctx, sessionID, cmdKey); err == nil && prev != nil {
		res := &ActionResult{OK: prev.ErrCode == "", Action: action, AppliedAt: prev.AppliedAt}
		if prev.ErrCode != "" {
			return res, &liveerrors.Error{Code: prev.ErrCode, Message: prev.ErrMsg}
		}
		return res, nil
	}

	timeout := time.Duration(c.cfg.ModerationTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(actionCtx)
	outcome := models.AuditOutcomeOK
	if err != nil {
		outcome = models.AuditOutcomeFailed
		if errors.Is(actionCtx.Err(), context.DeadlineExceeded) {
			outcome = models.AuditOutcomeTimedOut
			err = liveerrors.TimedOut(action + " exceeded the moderation deadline")
		}
	}

	applied := time.Now()
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	auditCtx, auditCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer auditCancel()
	if aerr := c.audit.Append(auditCtx, &models.AuditEvent{
		SessionID: sessionID,
		Actor:     actor,
		Action:    action,
		Outcome:   outcome,
		Detail:    detail,
	}); aerr != nil {
		c.logger.Error("audit append failed", zap.Error(aerr), zap.String("action", action))
	}

	res := sessions.CommandResult{AppliedAt: applied}
	if err != nil {
		res.ErrCode = liveerrors.Code(err)
		res.ErrMsg = err.Error()
	}
	if perr := c.results.Put(ctx, sessionID, cmdKey, res); perr != nil {
		c.logger.Warn("store moderation result", zap.Error(perr))
	}
	if err != nil {
		return &ActionResult{OK: false, Action: action, AppliedAt: applied}, err
	}
	return &ActionResult{OK: true, Action: action, AppliedAt: applied}, nil
}

// ForceEnd terminates the session immediately. Synchronous: the status is
// ended before this returns.
func (c *Controller) ForceEnd(ctx context.Context, sessionID uuid.UUID, actor, idemKey string) (*ActionResult, error) {
	return c.do(ctx, sessionID, actor, ActionForceEnd, idemKey, func(ctx context.Context) error {
		_, err := c.sessions.End(ctx, sessionID, "force-"+idemKey, "force ended by moderator")
		return err
	})
}

// RestartRoom drops all participants, mints a new room id and reissues the
// publisher token. Provider failures after bounded retries leave the
// session in error with an alert.
func (c *Controller) RestartRoom(ctx context.Context, sessionID uuid.UUID, actor, idemKey string) (*ActionResult, error) {
	return c.do(ctx, sessionID, actor, ActionRestartRoom, idemKey, func(ctx context.Context) error {
		session, err := c.sessions.ReplaceRoom(ctx, sessionID)
		if err != nil {
			return err
		}
		token, err := c.tokens.Reissue(ctx, sessionID)
		if err != nil {
			return err
		}
		c.hub.BroadcastToSession(sessionID, "room_restarted", map[string]interface{}{
			"room_name":  session.RoomName,
			"expires_at": token.ExpiresAt,
		})
		return nil
	})
}

// RevokeToken blocks the identity's future token use and kicks its live
// connection from the room.
func (c *Controller) RevokeToken(ctx context.Context, sessionID uuid.UUID, actor, identity, idemKey string) (*ActionResult, error) {
	return c.do(ctx, sessionID, actor, ActionRevokeToken, idemKey, func(ctx context.Context) error {
		if identity == "" {
			return liveerrors.InvalidState("identity required")
		}
		if err := c.tokens.Revoke(ctx, sessionID, identity); err != nil {
			return err
		}
		session, err := c.sessions.Get(ctx, sessionID)
		if err == nil {
			if rerr := c.provider.RemoveParticipant(ctx, session.RoomName, identity); rerr != nil {
				c.logger.Warn("kick after revoke", zap.Error(rerr), zap.String("identity", identity))
			}
		}
		return nil
	})
}

// ToggleRecording starts or stops the provider egress for a running session.
func (c *Controller) ToggleRecording(ctx context.Context, sessionID uuid.UUID, actor, idemKey string) (*ActionResult, error) {
	return c.do(ctx, sessionID, actor, ActionToggleRecording, idemKey, func(ctx context.Context) error {
		session, err := c.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != models.StatusLive && session.Status != models.StatusPaused {
			return liveerrors.InvalidState("recording can only be toggled on a running session")
		}
		if session.Recording {
			if err := c.provider.StopRecording(ctx, session.RoomName, ""); err != nil {
				return liveerrors.ProviderUnavailable("stop recording failed", err)
			}
			_, err = c.sessions.SetRecording(ctx, sessionID, false)
			return err
		}
		recID, err := c.provider.StartRecording(ctx, session.RoomName)
		if err != nil {
			return liveerrors.ProviderUnavailable("start recording failed", err)
		}
		if c.recordings != nil {
			if terr := c.recordings.TrackStarted(ctx, sessionID, recID); terr != nil {
				c.logger.Warn("track recording start", zap.Error(terr))
			}
		}
		_, err = c.sessions.SetRecording(ctx, sessionID, true)
		return err
	})
}

// SendBanner broadcasts an operator message to connected clients.
// Best-effort: not guaranteed to reach every viewer instantly.
func (c *Controller) SendBanner(ctx context.Context, sessionID uuid.UUID, actor, message, idemKey string) (*ActionResult, error) {
	return c.do(ctx, sessionID, actor, ActionSendBanner, idemKey, func(ctx context.Context) error {
		if message == "" {
			return liveerrors.InvalidState("message required")
		}
		c.hub.BroadcastToSession(sessionID, "banner", map[string]string{"message": message, "from": actor})
		return nil
	})
}

// SwitchToBackup flips the session to (or from) its backup stream source
// and notifies clients.
func (c *Controller) SwitchToBackup(ctx context.Context, sessionID uuid.UUID, actor string, backup bool, idemKey string) (*ActionResult, error) {
	return c.do(ctx, sessionID, actor, ActionSwitchBackup, idemKey, func(ctx context.Context) error {
		session, err := c.sessions.SetBackup(ctx, sessionID, backup)
		if err != nil {
			return err
		}
		c.hub.BroadcastToSession(sessionID, "stream_source", map[string]interface{}{
			"backup":    session.BackupLive,
			"room_name": session.RoomName,
		})
		return nil
	})
}

// OnAlert receives telemetry escalations, records them in the audit trail
// and surfaces them to the admin surface. Advisory only: it never forces a
// state transition (no auto force-end; emergencies stay human-in-the-loop).
func (c *Controller) OnAlert(sessionID uuid.UUID, alert models.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.audit.Append(ctx, &models.AuditEvent{
		SessionID: sessionID,
		Actor:     "telemetry",
		Action:    "alert_" + string(alert.Level),
		Outcome:   models.AuditOutcomeOK,
		Detail:    alert.Reason,
	}); err != nil {
		c.logger.Error("audit alert failed", zap.Error(err))
	}
	c.sessions.SetAlert(ctx, sessionID, string(alert.Level)+": "+alert.Reason)
	c.hub.BroadcastToSession(sessionID, "alert", alert)
}
