package tokens

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurban-cebimde/live-backend/config"
	"github.com/kurban-cebimde/live-backend/internal/access"
	"github.com/kurban-cebimde/live-backend/internal/liveerrors"
	"github.com/kurban-cebimde/live-backend/internal/models"
	"github.com/kurban-cebimde/live-backend/internal/provider"
)

type sessionStub struct {
	mu      sync.Mutex
	session *models.Session
}

func (s *sessionStub) Load(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.ID != id {
		return nil, nil
	}
	cp := *s.session
	return &cp, nil
}

type mintProvider struct {
	mintErr error
	minted  []string
}

func (p *mintProvider) Name() string { return "fake" }
func (p *mintProvider) URL() string  { return "wss://sfu.example.com" }

func (p *mintProvider) MintToken(roomName, identity string, _ models.Permissions, _ time.Duration) (string, error) {
	if p.mintErr != nil {
		return "", p.mintErr
	}
	p.minted = append(p.minted, identity)
	return "signed-" + roomName + "-" + identity, nil
}

func (p *mintProvider) CreateRoom(_ context.Context, roomName string) (*provider.RoomInfo, error) {
	return &provider.RoomInfo{Name: roomName}, nil
}
func (p *mintProvider) DeleteRoom(_ context.Context, _ string) error { return nil }
func (p *mintProvider) ListParticipants(_ context.Context, _ string) ([]provider.RoomParticipant, error) {
	return nil, nil
}
func (p *mintProvider) GetStats(_ context.Context, _ string) ([]models.ParticipantStat, error) {
	return nil, nil
}
func (p *mintProvider) RemoveParticipant(_ context.Context, _, _ string) error { return nil }
func (p *mintProvider) StartRecording(_ context.Context, _ string) (string, error) {
	return "", nil
}
func (p *mintProvider) StopRecording(_ context.Context, _, _ string) error { return nil }

func testIssuer(session *models.Session) (*Issuer, *sessionStub, *mintProvider) {
	stub := &sessionStub{session: session}
	prov := &mintProvider{}
	cfg := config.LiveConfig{PublisherTTLHours: 4, ViewerTTLMinutes: 5, ModeratorTTLHours: 2}
	return NewIssuer(stub, prov, NewMemoryStore(), cfg, nil), stub, prov
}

func liveSession() *models.Session {
	return &models.Session{ID: uuid.New(), RoomName: "kc_d1_1700000000", Status: models.StatusLive}
}

func admin() access.Actor { return access.Actor{UserID: uuid.New(), Role: access.AppRoleAdmin} }
func user() access.Actor  { return access.Actor{UserID: uuid.New(), Role: access.AppRoleUser} }

func TestIssueViewer(t *testing.T) {
	session := liveSession()
	issuer, _, _ := testIssuer(session)
	actor := user()

	token, err := issuer.Issue(context.Background(), session.ID, actor, models.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, actor.UserID.String(), token.Identity)
	assert.Equal(t, session.RoomName, token.RoomName)
	assert.Equal(t, "fake", token.Provider)
	assert.Equal(t, models.Permissions{CanSubscribe: true}, token.Permissions)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), token.ExpiresAt, 5*time.Second)
	assert.NotEmpty(t, token.Signed)
}

func TestIssueUnknownRole(t *testing.T) {
	session := liveSession()
	issuer, _, _ := testIssuer(session)

	_, err := issuer.Issue(context.Background(), session.ID, user(), models.Role("superadmin"))
	require.Error(t, err)
	assert.Equal(t, liveerrors.CodeAuthorization, liveerrors.Code(err))
}

func TestIssueUnknownSession(t *testing.T) {
	issuer, _, _ := testIssuer(liveSession())

	_, err := issuer.Issue(context.Background(), uuid.New(), user(), models.RoleViewer)
	require.Error(t, err)
	assert.Equal(t, liveerrors.CodeNotFound, liveerrors.Code(err))
}

func TestIssueRoleAuthorization(t *testing.T) {
	session := liveSession()
	issuer, _, _ := testIssuer(session)
	ctx := context.Background()

	// plain users never publish or moderate
	_, err := issuer.Issue(ctx, session.ID, user(), models.RolePublisher)
	assert.Equal(t, liveerrors.CodeAuthorization, liveerrors.Code(err))
	_, err = issuer.Issue(ctx, session.ID, user(), models.RoleModerator)
	assert.Equal(t, liveerrors.CodeAuthorization, liveerrors.Code(err))

	// an operator who is not the assigned publisher may not publish
	other := uuid.New()
	session.PublisherID = &other
	_, err = issuer.Issue(ctx, session.ID, access.Actor{UserID: uuid.New(), Role: access.AppRoleOperator}, models.RolePublisher)
	assert.Equal(t, liveerrors.CodeAuthorization, liveerrors.Code(err))

	// the assigned publisher may
	assigned := access.Actor{UserID: other, Role: access.AppRoleOperator}
	token, err := issuer.Issue(ctx, session.ID, assigned, models.RolePublisher)
	require.NoError(t, err)
	assert.True(t, token.Permissions.CanPublish)
	assert.False(t, token.Permissions.CanModerate)

	// admins moderate
	token, err = issuer.Issue(ctx, session.ID, admin(), models.RoleModerator)
	require.NoError(t, err)
	assert.True(t, token.Permissions.CanModerate)
}

func TestIssueJoinability(t *testing.T) {
	session := liveSession()
	issuer, stub, _ := testIssuer(session)
	ctx := context.Background()

	set := func(status models.SessionStatus) {
		stub.mu.Lock()
		stub.session.Status = status
		stub.mu.Unlock()
	}

	set(models.StatusScheduled)
	_, err := issuer.Issue(ctx, session.ID, user(), models.RoleViewer)
	assert.Equal(t, liveerrors.CodeSessionNotJoinable, liveerrors.Code(err))

	set(models.StatusPaused)
	_, err = issuer.Issue(ctx, session.ID, user(), models.RoleViewer)
	assert.Equal(t, liveerrors.CodeSessionNotJoinable, liveerrors.Code(err))
	_, err = issuer.Issue(ctx, session.ID, admin(), models.RolePublisher)
	assert.Equal(t, liveerrors.CodeSessionNotJoinable, liveerrors.Code(err),
		"a paused publisher reconnects on its existing token, not a fresh one")
	_, err = issuer.Issue(ctx, session.ID, admin(), models.RoleModerator)
	assert.NoError(t, err, "moderators may join any non-terminal session")

	set(models.StatusEnded)
	_, err = issuer.Issue(ctx, session.ID, admin(), models.RoleModerator)
	assert.Equal(t, liveerrors.CodeSessionNotJoinable, liveerrors.Code(err))

	set(models.StatusPrelive)
	_, err = issuer.Issue(ctx, session.ID, user(), models.RoleViewer)
	assert.NoError(t, err, "viewers may join prelive")
}

func TestRevokeBlocksFutureIssue(t *testing.T) {
	session := liveSession()
	issuer, _, _ := testIssuer(session)
	ctx := context.Background()
	actor := user()

	_, err := issuer.Issue(ctx, session.ID, actor, models.RoleViewer)
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(ctx, session.ID, actor.UserID.String()))

	_, err = issuer.Issue(ctx, session.ID, actor, models.RoleViewer)
	require.Error(t, err)
	assert.Equal(t, liveerrors.CodeAuthorization, liveerrors.Code(err))
}

func TestPublisherTokenTracking(t *testing.T) {
	session := liveSession()
	issuer, _, _ := testIssuer(session)
	ctx := context.Background()
	actor := admin()

	assert.False(t, issuer.HasPublisherToken(session.ID))

	_, err := issuer.Issue(ctx, session.ID, actor, models.RolePublisher)
	require.NoError(t, err)
	assert.True(t, issuer.HasPublisherToken(session.ID))

	// revoking clears the tracked publisher so the next start requires a
	// fresh token
	require.NoError(t, issuer.Revoke(ctx, session.ID, actor.UserID.String()))
	assert.False(t, issuer.HasPublisherToken(session.ID))
}

func TestReissue(t *testing.T) {
	session := liveSession()
	issuer, _, _ := testIssuer(session)
	ctx := context.Background()

	_, err := issuer.Reissue(ctx, session.ID)
	require.Error(t, err)
	assert.Equal(t, liveerrors.CodeInvalidState, liveerrors.Code(err))

	pub := uuid.New()
	session.PublisherID = &pub
	token, err := issuer.Reissue(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, pub.String(), token.Identity)
	assert.Equal(t, models.RolePublisher, token.Role)
}

func TestMintFailure(t *testing.T) {
	session := liveSession()
	issuer, _, prov := testIssuer(session)
	prov.mintErr = errors.New("signing key missing")

	_, err := issuer.Issue(context.Background(), session.ID, user(), models.RoleViewer)
	require.Error(t, err)
	assert.Equal(t, liveerrors.CodeProviderUnavailable, liveerrors.Code(err))
}
