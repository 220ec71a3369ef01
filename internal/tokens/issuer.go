// Package tokens mints and revokes scoped join credentials for media rooms.
package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/config"
	"github.com/kurban-cebimde/live-backend/internal/access"
	"github.com/kurban-cebimde/live-backend/internal/liveerrors"
	"github.com/kurban-cebimde/live-backend/internal/models"
	"github.com/kurban-cebimde/live-backend/internal/provider"
)

// SessionLoader loads sessions for authorization and joinability checks.
type SessionLoader interface {
	Load(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// Issuer mints, revokes and rotates join tokens. Each token is scoped to
// exactly one room with a role-dependent TTL and permission set.
type Issuer struct {
	sessions SessionLoader
	provider provider.RoomProvider
	store    Store
	cfg      config.LiveConfig
	logger   *zap.Logger
}

// NewIssuer creates a token issuer.
func NewIssuer(sessions SessionLoader, prov provider.RoomProvider, store Store, cfg config.LiveConfig, logger *zap.Logger) *Issuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{sessions: sessions, provider: prov, store: store, cfg: cfg, logger: logger}
}

// TTL returns the role-dependent token lifetime.
func (i *Issuer) TTL(role models.Role) time.Duration {
	switch role {
	case models.RolePublisher:
		return hoursOrDefault(i.cfg.PublisherTTLHours, 4)
	case models.RoleModerator:
		return hoursOrDefault(i.cfg.ModeratorTTLHours, 2)
	default:
		if i.cfg.ViewerTTLMinutes <= 0 {
			return time.Hour
		}
		return time.Duration(i.cfg.ViewerTTLMinutes) * time.Minute
	}
}

func hoursOrDefault(h, fallback int) time.Duration {
	if h <= 0 {
		h = fallback
	}
	return time.Duration(h) * time.Hour
}

// Issue authorizes the actor and mints a join token for the session's room.
// Publisher and viewer tokens may be requested only while prelive or live
// (a publisher dropping during the pause grace window reconnects on its
// existing token); moderator tokens on any non-terminal session.
func (i *Issuer) Issue(ctx context.Context, sessionID uuid.UUID, actor access.Actor, role models.Role) (*models.JoinToken, error) {
	if !role.Valid() {
		return nil, liveerrors.Authorization(fmt.Sprintf("unknown role %q", role))
	}
	session, err := i.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, liveerrors.NotFound("session not found")
	}
	caps := access.PermissionsFor(actor, session)
	if !access.RoleAllowed(caps, role) {
		return nil, liveerrors.Authorization(fmt.Sprintf("actor may not join as %s", role))
	}
	if err := joinable(session, role); err != nil {
		return nil, err
	}

	identity := actor.UserID.String()
	revoked, err := i.store.IsRevoked(ctx, sessionID, identity)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, liveerrors.Authorization("identity is revoked for this session")
	}
	return i.mint(ctx, session, identity, role)
}

func joinable(session *models.Session, role models.Role) error {
	switch role {
	case models.RoleViewer:
		if !session.Joinable() {
			return liveerrors.SessionNotJoinable(fmt.Sprintf("viewers may not join a %s session", session.Status))
		}
	case models.RolePublisher:
		switch session.Status {
		case models.StatusPrelive, models.StatusLive:
		default:
			return liveerrors.SessionNotJoinable(fmt.Sprintf("publisher may not join a %s session", session.Status))
		}
	case models.RoleModerator:
		if session.Status.Terminal() {
			return liveerrors.SessionNotJoinable(fmt.Sprintf("session is %s", session.Status))
		}
	}
	return nil
}

func (i *Issuer) mint(ctx context.Context, session *models.Session, identity string, role models.Role) (*models.JoinToken, error) {
	perms := models.PermissionsForRole(role)
	ttl := i.TTL(role)
	signed, err := i.provider.MintToken(session.RoomName, identity, perms, ttl)
	if err != nil {
		return nil, liveerrors.ProviderUnavailable("token minting failed", err)
	}
	if role == models.RolePublisher {
		if err := i.store.SavePublisher(ctx, session.ID, identity, ttl); err != nil {
			return nil, err
		}
	}
	token := &models.JoinToken{
		ID:          uuid.New(),
		Identity:    identity,
		Role:        role,
		RoomName:    session.RoomName,
		Permissions: perms,
		ExpiresAt:   time.Now().Add(ttl),
		Signed:      signed,
		Provider:    i.provider.Name(),
		URL:         i.provider.URL(),
	}
	i.logger.Info("join token issued",
		zap.String("session_id", session.ID.String()),
		zap.String("identity", identity),
		zap.String("role", string(role)))
	return token, nil
}

// Revoke invalidates future token use for an identity on a session. The
// block lives as long as the longest token could.
func (i *Issuer) Revoke(ctx context.Context, sessionID uuid.UUID, identity string) error {
	maxTTL := i.TTL(models.RolePublisher)
	if err := i.store.Revoke(ctx, sessionID, identity, maxTTL); err != nil {
		return err
	}
	has, err := i.store.HasPublisher(ctx, sessionID)
	if err == nil && has {
		// the revoked identity may be the publisher; the next start will
		// require a fresh publisher token
		_ = i.store.ClearPublisher(ctx, sessionID)
	}
	i.logger.Info("token revoked",
		zap.String("session_id", sessionID.String()), zap.String("identity", identity))
	return nil
}

// Reissue rotates the publisher's token for a (possibly new) room without a
// full room restart.
func (i *Issuer) Reissue(ctx context.Context, sessionID uuid.UUID) (*models.JoinToken, error) {
	session, err := i.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, liveerrors.NotFound("session not found")
	}
	if session.PublisherID == nil {
		return nil, liveerrors.InvalidState("session has no assigned publisher")
	}
	return i.mint(ctx, session, session.PublisherID.String(), models.RolePublisher)
}

// HasPublisherToken reports whether an unexpired publisher token exists for
// the session. Consumed by the state machine's start guard.
func (i *Issuer) HasPublisherToken(sessionID uuid.UUID) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	has, err := i.store.HasPublisher(ctx, sessionID)
	if err != nil {
		i.logger.Warn("publisher token lookup failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		return false
	}
	return has
}
