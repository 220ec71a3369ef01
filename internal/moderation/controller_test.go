package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurban-cebimde/live-backend/config"
	"github.com/kurban-cebimde/live-backend/internal/liveerrors"
	"github.com/kurban-cebimde/live-backend/internal/models"
	"github.com/kurban-cebimde/live-backend/internal/provider"
	"github.com/kurban-cebimde/live-backend/internal/sessions"
)

type memStore struct {
	mu sync.Mutex
	m  map[uuid.UUID]models.Session
}

func newMemStore() *memStore { return &memStore{m: make(map[uuid.UUID]models.Session)} }

func (s *memStore) Create(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.ID] = *sess
	return nil
}

func (s *memStore) Load(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if !ok {
		return nil, nil
	}
	cp := sess
	return &cp, nil
}

func (s *memStore) Save(_ context.Context, sess *models.Session) error { return s.Create(nil, sess) }

func (s *memStore) List(_ context.Context, _ int) ([]*models.Session, error) { return nil, nil }

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

type stubProvider struct {
	mu               sync.Mutex
	startRecs        int
	stopRecs         int
	removed          []string
	blockUntilCancel bool
}

func (p *stubProvider) Name() string { return "fake" }
func (p *stubProvider) URL() string  { return "wss://sfu.example.com" }

func (p *stubProvider) CreateRoom(_ context.Context, roomName string) (*provider.RoomInfo, error) {
	return &provider.RoomInfo{Name: roomName}, nil
}
func (p *stubProvider) DeleteRoom(_ context.Context, _ string) error { return nil }
func (p *stubProvider) MintToken(_, _ string, _ models.Permissions, _ time.Duration) (string, error) {
	return "signed", nil
}
func (p *stubProvider) ListParticipants(_ context.Context, _ string) ([]provider.RoomParticipant, error) {
	return nil, nil
}
func (p *stubProvider) GetStats(_ context.Context, _ string) ([]models.ParticipantStat, error) {
	return nil, nil
}

func (p *stubProvider) RemoveParticipant(_ context.Context, _, identity string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, identity)
	return nil
}

func (p *stubProvider) StartRecording(ctx context.Context, _ string) (string, error) {
	p.mu.Lock()
	block := p.blockUntilCancel
	p.startRecs++
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "egress-1", nil
}

func (p *stubProvider) StopRecording(_ context.Context, _, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopRecs++
	return nil
}

func (p *stubProvider) startCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startRecs
}

type stubRegistry struct{}

func (stubRegistry) GetPublisher(uuid.UUID) *models.Participant { return nil }
func (stubRegistry) DropAll(uuid.UUID)                          {}

type stubTelemetry struct{}

func (stubTelemetry) StartSession(uuid.UUID, string) {}
func (stubTelemetry) StopSession(uuid.UUID)          {}

type stubTokens struct {
	mu       sync.Mutex
	revoked  []string
	reissued int
}

func (s *stubTokens) Revoke(_ context.Context, _ uuid.UUID, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = append(s.revoked, identity)
	return nil
}

func (s *stubTokens) Reissue(_ context.Context, _ uuid.UUID) (*models.JoinToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reissued++
	return &models.JoinToken{Signed: "signed", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type hubRecorder struct {
	mu     sync.Mutex
	events []string
}

func (h *hubRecorder) BroadcastToSession(_ uuid.UUID, event string, _ interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *hubRecorder) count(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == event {
			n++
		}
	}
	return n
}

type auditRecorder struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (a *auditRecorder) Append(_ context.Context, e *models.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *e)
	return nil
}

func (a *auditRecorder) last() *models.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) == 0 {
		return nil
	}
	e := a.events[len(a.events)-1]
	return &e
}

func (a *auditRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

type recordingRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingRecorder) TrackStarted(_ context.Context, _ uuid.UUID, providerRecordingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, providerRecordingID)
	return nil
}

type fixture struct {
	ctrl   *Controller
	svc    *sessions.Service
	store  *memStore
	prov   *stubProvider
	tokens *stubTokens
	hub    *hubRecorder
	audit  *auditRecorder
	recs   *recordingRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	prov := &stubProvider{}
	hub := &hubRecorder{}
	auditRec := &auditRecorder{}
	recs := &recordingRecorder{}
	toks := &stubTokens{}
	cfg := config.LiveConfig{ModerationTimeoutSec: 1, StartTimeoutSec: 1, ResumeGraceSec: 60}
	results := sessions.NewMemoryResultStore()
	svc := sessions.NewService(store, prov, stubRegistry{}, stubTelemetry{}, results, hub, cfg, nil)
	ctrl := NewController(svc, toks, stubRegistry{}, prov, auditRec, hub, recs, results, cfg, nil)
	return &fixture{ctrl: ctrl, svc: svc, store: store, prov: prov, tokens: toks, hub: hub, audit: auditRec, recs: recs}
}

func (f *fixture) liveSession(t *testing.T) uuid.UUID {
	t.Helper()
	session, err := f.svc.Create(context.Background(), "mod-test", []string{"d1"}, time.Now(), nil)
	require.NoError(t, err)
	now := time.Now()
	session.Status = models.StatusLive
	session.StartedAt = &now
	require.NoError(t, f.store.Create(context.Background(), session))
	return session.ID
}

func (f *fixture) status(t *testing.T, id uuid.UUID) models.SessionStatus {
	t.Helper()
	session, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return session.Status
}

func TestSendBannerAuditedAndIdempotent(t *testing.T) {
	f := newFixture(t)
	sessionID := f.liveSession(t)
	ctx := context.Background()

	res, err := f.ctrl.SendBanner(ctx, sessionID, "admin-1", "stream resumes shortly", "key-1")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, ActionSendBanner, res.Action)
	assert.Equal(t, 1, f.hub.count("banner"))

	event := f.audit.last()
	require.NotNil(t, event)
	assert.Equal(t, ActionSendBanner, event.Action)
	assert.Equal(t, "admin-1", event.Actor)
	assert.Equal(t, models.AuditOutcomeOK, event.Outcome)

	// replay with the same key observes the stored result
	res, err = f.ctrl.SendBanner(ctx, sessionID, "admin-1", "stream resumes shortly", "key-1")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, f.hub.count("banner"), "replay must not re-broadcast")
	assert.Equal(t, 1, f.audit.count(), "replay must not re-audit")
}

func TestForceEndSynchronous(t *testing.T) {
	f := newFixture(t)
	sessionID := f.liveSession(t)

	res, err := f.ctrl.ForceEnd(context.Background(), sessionID, "admin-1", "fe-1")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, models.StatusEnded, f.status(t, sessionID))
	assert.Equal(t, ActionForceEnd, f.audit.last().Action)
}

func TestToggleRecordingLifecycle(t *testing.T) {
	f := newFixture(t)
	sessionID := f.liveSession(t)
	ctx := context.Background()

	_, err := f.ctrl.ToggleRecording(ctx, sessionID, "admin-1", "tr-1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.prov.startCount())
	assert.Equal(t, []string{"egress-1"}, f.recs.ids)

	session, err := f.svc.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, session.Recording)

	_, err = f.ctrl.ToggleRecording(ctx, sessionID, "admin-1", "tr-2")
	require.NoError(t, err)
	f.prov.mu.Lock()
	stops := f.prov.stopRecs
	f.prov.mu.Unlock()
	assert.Equal(t, 1, stops)

	session, err = f.svc.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, session.Recording)
}

func TestToggleRecordingRequiresRunningSession(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.Create(context.Background(), "scheduled", nil, time.Now(), nil)
	require.NoError(t, err)

	_, err = f.ctrl.ToggleRecording(context.Background(), session.ID, "admin-1", "tr-1")
	require.Error(t, err)
	assert.Equal(t, liveerrors.CodeInvalidState, liveerrors.Code(err))
	assert.Equal(t, models.AuditOutcomeFailed, f.audit.last().Outcome)
}

func TestModerationDeadline(t *testing.T) {
	f := newFixture(t)
	sessionID := f.liveSession(t)
	f.prov.blockUntilCancel = true
	ctx := context.Background()

	res, err := f.ctrl.ToggleRecording(ctx, sessionID, "admin-1", "slow-1")
	require.Error(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, liveerrors.CodeTimedOut, liveerrors.Code(err))
	assert.Equal(t, models.AuditOutcomeTimedOut, f.audit.last().Outcome)

	// the retry replays the recorded outcome without touching the provider
	calls := f.prov.startCount()
	_, err = f.ctrl.ToggleRecording(ctx, sessionID, "admin-1", "slow-1")
	require.Error(t, err)
	assert.Equal(t, liveerrors.CodeTimedOut, liveerrors.Code(err))
	assert.Equal(t, calls, f.prov.startCount())
}

func TestRevokeTokenKicksConnection(t *testing.T) {
	f := newFixture(t)
	sessionID := f.liveSession(t)

	res, err := f.ctrl.RevokeToken(context.Background(), sessionID, "admin-1", "viewer-9", "rv-1")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, []string{"viewer-9"}, f.tokens.revoked)
	assert.Equal(t, []string{"viewer-9"}, f.prov.removed)
}

func TestRestartRoom(t *testing.T) {
	f := newFixture(t)
	sessionID := f.liveSession(t)
	before, err := f.svc.Get(context.Background(), sessionID)
	require.NoError(t, err)

	res, err := f.ctrl.RestartRoom(context.Background(), sessionID, "admin-1", "rr-1")
	require.NoError(t, err)
	assert.True(t, res.OK)

	after, err := f.svc.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.NotEqual(t, before.RoomName, after.RoomName)
	assert.Equal(t, models.StatusLive, after.Status)
	assert.Equal(t, 1, f.tokens.reissued)
	assert.Equal(t, 1, f.hub.count("room_restarted"))
}

func TestSwitchToBackup(t *testing.T) {
	f := newFixture(t)
	sessionID := f.liveSession(t)

	_, err := f.ctrl.SwitchToBackup(context.Background(), sessionID, "admin-1", true, "sb-1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.hub.count("stream_source"))

	session, err := f.svc.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.True(t, session.BackupLive)
}

func TestOnAlertIsAdvisoryOnly(t *testing.T) {
	f := newFixture(t)
	sessionID := f.liveSession(t)

	f.ctrl.OnAlert(sessionID, models.Alert{
		Level:     models.AlertCrit,
		Reason:    "emergency intervention recommended: rtt 900ms above 400ms for pub",
		Timestamp: time.Now(),
	})

	event := f.audit.last()
	require.NotNil(t, event)
	assert.Equal(t, "alert_crit", event.Action)
	assert.Equal(t, "telemetry", event.Actor)
	assert.Equal(t, 1, f.hub.count("alert"))

	session, err := f.svc.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Contains(t, session.LastAlert, "crit")
	assert.Equal(t, models.StatusLive, session.Status, "even crit alerts never force a transition")
}
