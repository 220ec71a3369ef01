package sessions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/config"
	"github.com/kurban-cebimde/live-backend/internal/liveerrors"
	"github.com/kurban-cebimde/live-backend/internal/models"
	"github.com/kurban-cebimde/live-backend/internal/provider"
)

// Store is the session persistence surface, owned by the surrounding app
// and accessed through this interface.
type Store interface {
	Create(ctx context.Context, s *models.Session) error
	Load(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	List(ctx context.Context, limit int) ([]*models.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TokenCheck reports whether an unexpired publisher token exists for a
// session; start refuses to go live without one.
type TokenCheck interface {
	HasPublisherToken(sessionID uuid.UUID) bool
}

// TelemetryControl starts/stops the per-session telemetry loop.
type TelemetryControl interface {
	StartSession(sessionID uuid.UUID, roomName string)
	StopSession(sessionID uuid.UUID)
}

// RegistryControl is the slice of the participant registry the lifecycle needs.
type RegistryControl interface {
	DropAll(sessionID uuid.UUID)
}

// Broadcaster pushes session events to connected clients.
type Broadcaster interface {
	BroadcastToSession(sessionID uuid.UUID, event string, payload interface{})
}

const publisherPollInterval = 500 * time.Millisecond

// Service owns session lifecycle commands. Commands for one session are
// serialized through a per-session mutex and are idempotent per
// (sessionID, transitionID); different sessions proceed fully in parallel.
type Service struct {
	store     Store
	provider  provider.RoomProvider
	registry  RegistryControl
	telemetry TelemetryControl
	results   ResultStore
	hub       Broadcaster
	tokens    TokenCheck
	cfg       config.LiveConfig
	logger    *zap.Logger

	mu           sync.Mutex
	locks        map[uuid.UUID]*sync.Mutex
	resumeTimers map[uuid.UUID]*time.Timer
}

// NewService creates the session lifecycle service.
func NewService(store Store, prov provider.RoomProvider, registry RegistryControl, telem TelemetryControl, results ResultStore, hub Broadcaster, cfg config.LiveConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		provider:     prov,
		registry:     registry,
		telemetry:    telem,
		results:      results,
		hub:          hub,
		cfg:          cfg,
		logger:       logger,
		locks:        make(map[uuid.UUID]*sync.Mutex),
		resumeTimers: make(map[uuid.UUID]*time.Timer),
	}
}

// SetTokenCheck wires the token issuer after construction.
func (s *Service) SetTokenCheck(tc TokenCheck) { s.tokens = tc }

// lock returns the mutex serializing commands for one session.
func (s *Service) lock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	return m
}

// RoomName builds the provider room name: kc_<donation>_<unix>, following
// the channel naming the mobile clients already expect.
func RoomName(donationID string) string {
	ref := donationID
	if ref == "" {
		ref = uuid.New().String()[:8]
	}
	ref = strings.ReplaceAll(ref, " ", "")
	return fmt.Sprintf("kc_%s_%d", ref, time.Now().Unix())
}

// Create schedules a new session bound to a fresh room.
func (s *Service) Create(ctx context.Context, title string, donationIDs []string, scheduledAt time.Time, publisherID *uuid.UUID) (*models.Session, error) {
	donation := ""
	if len(donationIDs) > 0 {
		donation = donationIDs[0]
	}
	if title == "" {
		title = "Kurban Kesimi"
		if donation != "" {
			title = "Kurban Kesimi - " + donation
		}
	}
	if scheduledAt.IsZero() {
		scheduledAt = time.Now()
	}
	now := time.Now()
	session := &models.Session{
		ID:          uuid.New(),
		Title:       title,
		RoomName:    RoomName(donation),
		Status:      models.StatusScheduled,
		ScheduledAt: scheduledAt,
		PublisherID: publisherID,
		DonationIDs: donationIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session scheduled",
		zap.String("session_id", session.ID.String()), zap.String("room", session.RoomName))
	return session, nil
}

// Get loads one session.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, liveerrors.NotFound("session not found")
	}
	return session, nil
}

// List returns recent sessions.
func (s *Service) List(ctx context.Context, limit int) ([]*models.Session, error) {
	return s.store.List(ctx, limit)
}

// Delete removes a session record (admin listing parity; live sessions are
// ended, not deleted).
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if session.Status == models.StatusLive || session.Status == models.StatusPaused {
		return liveerrors.InvalidState("cannot delete a running session; end it first")
	}
	return s.store.Delete(ctx, id)
}

// command wraps a lifecycle transition with per-session locking and
// idempotency. fn mutates the loaded session; target is the status the
// transition reaches so a retry against an already-applied command observes
// the stored result.
func (s *Service) command(ctx context.Context, id uuid.UUID, transitionID, name string, target models.SessionStatus, fn func(session *models.Session) error) (*CommandResult, error) {
	if transitionID == "" {
		transitionID = name + ":" + uuid.New().String()
	} else {
		transitionID = name + ":" + transitionID
	}
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()

	if prev, err := s.results.Get(ctx, id, transitionID); err == nil && prev != nil {
		return prev, prevErr(prev)
	}

	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == target {
		// already applied by an earlier command; observe, don't double-apply
		res := CommandResult{Status: session.Status, AppliedAt: session.UpdatedAt}
		return &res, nil
	}

	err = fn(session)
	res := CommandResult{Status: session.Status, AppliedAt: time.Now()}
	if err != nil {
		res.ErrCode = liveerrors.Code(err)
		res.ErrMsg = err.Error()
	}
	if perr := s.results.Put(ctx, id, transitionID, res); perr != nil {
		s.logger.Warn("store command result", zap.Error(perr), zap.String("session_id", id.String()))
	}
	if err != nil {
		return &res, err
	}
	s.broadcastStatus(session)
	return &res, nil
}

func prevErr(res *CommandResult) error {
	if res.ErrCode == "" {
		return nil
	}
	return &liveerrors.Error{Code: res.ErrCode, Message: res.ErrMsg}
}

// Prepare runs pre-flight checks and moves scheduled→prelive.
func (s *Service) Prepare(ctx context.Context, id uuid.UUID, transitionID string) (*CommandResult, error) {
	return s.command(ctx, id, transitionID, TransitionPrepare, models.StatusPrelive, func(session *models.Session) error {
		if s.provider.URL() == "" {
			return liveerrors.ProviderUnavailable("media provider not configured", nil)
		}
		if session.Title == "" {
			return liveerrors.InvalidState("session needs a title before going prelive")
		}
		if err := apply(session, models.StatusPrelive); err != nil {
			return err
		}
		return s.store.Save(ctx, session)
	})
}

// Start moves prelive→live. It requires an unexpired publisher token,
// creates the provider room and waits a bounded time for the publisher to
// be confirmed in the room; on timeout or provider failure the session
// flips to error with an attached alert instead of being silently retried.
func (s *Service) Start(ctx context.Context, id uuid.UUID, transitionID string) (*CommandResult, error) {
	return s.command(ctx, id, transitionID, TransitionStart, models.StatusLive, func(session *models.Session) error {
		if session.Status != models.StatusPrelive {
			return liveerrors.InvalidState(fmt.Sprintf("start requires prelive, session is %s", session.Status))
		}
		if s.tokens != nil && !s.tokens.HasPublisherToken(id) {
			return liveerrors.Authorization("no valid publisher token issued for this session")
		}
		if _, err := s.provider.CreateRoom(ctx, session.RoomName); err != nil {
			s.failLocked(ctx, session, "room creation failed: "+err.Error())
			return liveerrors.ProviderUnavailable("room creation failed", err)
		}
		if err := s.awaitPublisher(ctx, session.RoomName); err != nil {
			s.failLocked(ctx, session, "publisher confirmation timed out")
			return err
		}
		if err := apply(session, models.StatusLive); err != nil {
			return err
		}
		if err := s.store.Save(ctx, session); err != nil {
			return err
		}
		s.telemetry.StartSession(session.ID, session.RoomName)
		s.logger.Info("session live",
			zap.String("session_id", session.ID.String()), zap.String("room", session.RoomName))
		return nil
	})
}

// awaitPublisher polls the provider until a publishing participant is
// visible in the room, bounded by the configured start timeout.
func (s *Service) awaitPublisher(ctx context.Context, roomName string) error {
	timeout := time.Duration(s.cfg.StartTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		parts, err := s.provider.ListParticipants(ctx, roomName)
		if err == nil {
			for _, p := range parts {
				if p.Publisher {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return liveerrors.TimedOut("provider did not confirm a publisher track in time")
		}
		select {
		case <-ctx.Done():
			return liveerrors.TimedOut("start cancelled while waiting for publisher confirmation")
		case <-time.After(publisherPollInterval):
		}
	}
}

// Pause moves live→paused and arms the resume grace window; if resume does
// not arrive in time the session auto-transitions to ended.
func (s *Service) Pause(ctx context.Context, id uuid.UUID, transitionID string) (*CommandResult, error) {
	return s.command(ctx, id, transitionID, TransitionPause, models.StatusPaused, func(session *models.Session) error {
		if err := apply(session, models.StatusPaused); err != nil {
			return err
		}
		if err := s.store.Save(ctx, session); err != nil {
			return err
		}
		grace := time.Duration(s.cfg.ResumeGraceSec) * time.Second
		if grace <= 0 {
			grace = 60 * time.Second
		}
		s.mu.Lock()
		if t, ok := s.resumeTimers[id]; ok {
			t.Stop()
		}
		s.resumeTimers[id] = time.AfterFunc(grace, func() {
			bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := s.End(bg, id, "resume-grace-"+id.String(), "resume grace window elapsed"); err != nil {
				s.logger.Warn("auto-end after pause grace failed", zap.Error(err), zap.String("session_id", id.String()))
			}
		})
		s.mu.Unlock()
		return nil
	})
}

// Resume moves paused→live within the grace window.
func (s *Service) Resume(ctx context.Context, id uuid.UUID, transitionID string) (*CommandResult, error) {
	return s.command(ctx, id, transitionID, TransitionResume, models.StatusLive, func(session *models.Session) error {
		if session.Status != models.StatusPaused {
			return liveerrors.InvalidState(fmt.Sprintf("resume requires paused, session is %s", session.Status))
		}
		s.stopResumeTimer(id)
		if err := apply(session, models.StatusLive); err != nil {
			return err
		}
		return s.store.Save(ctx, session)
	})
}

// End finalizes the session: recording stopped, room released, participants
// dropped, telemetry stopped.
func (s *Service) End(ctx context.Context, id uuid.UUID, transitionID, reason string) (*CommandResult, error) {
	return s.command(ctx, id, transitionID, TransitionEnd, models.StatusEnded, func(session *models.Session) error {
		if session.Status != models.StatusLive && session.Status != models.StatusPaused {
			return liveerrors.InvalidState(fmt.Sprintf("end requires live or paused, session is %s", session.Status))
		}
		s.stopResumeTimer(id)
		s.releaseRoom(ctx, session)
		if err := apply(session, models.StatusEnded); err != nil {
			return err
		}
		session.Recording = false
		if reason != "" {
			session.LastAlert = reason
		}
		if err := s.store.Save(ctx, session); err != nil {
			return err
		}
		s.logger.Info("session ended",
			zap.String("session_id", session.ID.String()), zap.String("reason", reason))
		return nil
	})
}

// releaseRoom tears down provider-side state; failures are logged, the
// session still ends.
func (s *Service) releaseRoom(ctx context.Context, session *models.Session) {
	if session.Recording {
		if err := s.provider.StopRecording(ctx, session.RoomName, ""); err != nil {
			s.logger.Warn("stop recording on end", zap.Error(err), zap.String("session_id", session.ID.String()))
		}
	}
	if err := s.provider.DeleteRoom(ctx, session.RoomName); err != nil {
		s.logger.Warn("delete room", zap.Error(err), zap.String("room", session.RoomName))
	}
	s.registry.DropAll(session.ID)
	s.telemetry.StopSession(session.ID)
}

// Fail flips a session to error with an attached alert. Used for
// state-critical provider failures; the caller still sees the original error.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, alert string) error {
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.failLocked(ctx, session, alert)
}

func (s *Service) failLocked(ctx context.Context, session *models.Session, alert string) error {
	if session.Status.Terminal() {
		return nil
	}
	if err := apply(session, models.StatusError); err != nil {
		return err
	}
	session.LastAlert = alert
	s.stopResumeTimer(session.ID)
	s.telemetry.StopSession(session.ID)
	s.registry.DropAll(session.ID)
	if err := s.store.Save(ctx, session); err != nil {
		return err
	}
	s.broadcastStatus(session)
	s.logger.Error("session errored",
		zap.String("session_id", session.ID.String()), zap.String("alert", alert))
	return nil
}

// ResetError turns an errored session into a fresh scheduled session with a
// new room, carrying over title and donation relations.
func (s *Service) ResetError(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()
	old, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.Status != models.StatusError {
		return nil, liveerrors.InvalidState("only errored sessions can be reset")
	}
	return s.Create(ctx, old.Title, old.DonationIDs, time.Now(), old.PublisherID)
}

// ReplaceRoom mints a fresh room for a running session: participants are
// dropped, the old room is released and telemetry re-attaches to the new
// room. Used by the emergency room restart.
func (s *Service) ReplaceRoom(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() || session.Status == models.StatusScheduled {
		return nil, liveerrors.InvalidState(fmt.Sprintf("cannot restart room while session is %s", session.Status))
	}
	if err := s.provider.DeleteRoom(ctx, session.RoomName); err != nil {
		s.logger.Warn("delete old room", zap.Error(err), zap.String("room", session.RoomName))
	}
	s.registry.DropAll(session.ID)
	s.telemetry.StopSession(session.ID)

	donation := ""
	if len(session.DonationIDs) > 0 {
		donation = session.DonationIDs[0]
	}
	session.RoomName = RoomName(donation)
	if _, err := s.provider.CreateRoom(ctx, session.RoomName); err != nil {
		s.failLocked(ctx, session, "room restart failed: "+err.Error())
		return nil, liveerrors.ProviderUnavailable("room restart failed", err)
	}
	if err := s.store.Save(ctx, session); err != nil {
		return nil, err
	}
	if session.Status == models.StatusLive || session.Status == models.StatusPaused {
		s.telemetry.StartSession(session.ID, session.RoomName)
	}
	s.broadcastStatus(session)
	s.logger.Info("room replaced",
		zap.String("session_id", session.ID.String()), zap.String("room", session.RoomName))
	return session, nil
}

// SetRecording flips the recording flag; the moderation controller owns the
// provider egress calls.
func (s *Service) SetRecording(ctx context.Context, id uuid.UUID, recording bool) (*models.Session, error) {
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.StatusLive && session.Status != models.StatusPaused {
		return nil, liveerrors.InvalidState(fmt.Sprintf("recording requires a running session, not %s", session.Status))
	}
	session.Recording = recording
	if err := s.store.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SetBackup flips the backup stream flag.
func (s *Service) SetBackup(ctx context.Context, id uuid.UUID, backup bool) (*models.Session, error) {
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.StatusLive && session.Status != models.StatusPaused {
		return nil, liveerrors.InvalidState(fmt.Sprintf("backup switch requires a running session, not %s", session.Status))
	}
	session.BackupLive = backup
	if err := s.store.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SetAlert records the latest advisory alert on the session.
func (s *Service) SetAlert(ctx context.Context, id uuid.UUID, alert string) {
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()
	session, err := s.Get(ctx, id)
	if err != nil {
		return
	}
	session.LastAlert = alert
	if err := s.store.Save(ctx, session); err != nil {
		s.logger.Warn("save alert", zap.Error(err), zap.String("session_id", id.String()))
	}
}

func (s *Service) stopResumeTimer(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.resumeTimers[id]; ok {
		t.Stop()
		delete(s.resumeTimers, id)
	}
}

func (s *Service) broadcastStatus(session *models.Session) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToSession(session.ID, "session_status", map[string]interface{}{
		"session_id": session.ID.String(),
		"status":     session.Status,
		"room_name":  session.RoomName,
	})
}
