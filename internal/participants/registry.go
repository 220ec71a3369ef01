// Package participants keeps the authoritative per-session list of
// connected identities and their track state. It is fed by provider webhook
// events and read by telemetry and moderation.
package participants

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/internal/liveerrors"
	"github.com/kurban-cebimde/live-backend/internal/models"
)

// Registry tracks participants across sessions. Mutations for one session
// are serialized through that session's roster lock; sessions never share
// state.
type Registry struct {
	mu             sync.RWMutex
	rosters        map[uuid.UUID]*roster
	grace          time.Duration
	allowCoPublish bool
	logger         *zap.Logger
}

type roster struct {
	mu      sync.Mutex
	active  map[string]*models.Participant
	history []*models.Participant // finalized lifecycle entries
	pending map[string]*time.Timer
}

// NewRegistry creates a registry. grace is the disconnect absorption window;
// a reconnect inside it reuses the existing record.
func NewRegistry(grace time.Duration, allowCoPublish bool, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rosters:        make(map[uuid.UUID]*roster),
		grace:          grace,
		allowCoPublish: allowCoPublish,
		logger:         logger,
	}
}

func (r *Registry) roster(sessionID uuid.UUID) *roster {
	r.mu.Lock()
	defer r.mu.Unlock()
	ro, ok := r.rosters[sessionID]
	if !ok {
		ro = &roster{
			active:  make(map[string]*models.Participant),
			pending: make(map[string]*time.Timer),
		}
		r.rosters[sessionID] = ro
	}
	return ro
}

// OnJoin registers an identity. A join inside the grace window after a drop
// cancels finalization and keeps the original JoinedAt. A second publisher
// is rejected while one is active unless co-publishing is allowed.
func (r *Registry) OnJoin(sessionID uuid.UUID, identity string, role models.Role) (*models.Participant, error) {
	ro := r.roster(sessionID)
	ro.mu.Lock()
	defer ro.mu.Unlock()

	if t, ok := ro.pending[identity]; ok {
		t.Stop()
		delete(ro.pending, identity)
		if p, ok := ro.active[identity]; ok {
			r.logger.Debug("participant reconnected within grace",
				zap.String("session_id", sessionID.String()), zap.String("identity", identity))
			return p, nil
		}
	}
	if p, ok := ro.active[identity]; ok {
		// identity unique per session; a duplicate join is the same participant
		return p, nil
	}
	if role == models.RolePublisher && !r.allowCoPublish {
		for _, p := range ro.active {
			if p.Role == models.RolePublisher {
				return nil, liveerrors.DuplicatePublisher("a publisher is already active in this room")
			}
		}
	}
	p := &models.Participant{
		Identity: identity,
		Role:     role,
		JoinedAt: time.Now(),
	}
	ro.active[identity] = p
	r.logger.Debug("participant joined",
		zap.String("session_id", sessionID.String()), zap.String("identity", identity), zap.String("role", string(role)))
	return p, nil
}

// OnTrackChange updates the track flags for a connected identity.
func (r *Registry) OnTrackChange(sessionID uuid.UUID, identity string, tracks models.TrackFlags) {
	ro := r.roster(sessionID)
	ro.mu.Lock()
	defer ro.mu.Unlock()
	if p, ok := ro.active[identity]; ok {
		p.Tracks = tracks
	}
}

// SetTrack flips a single track flag for a connected identity.
func (r *Registry) SetTrack(sessionID uuid.UUID, identity string, kind models.TrackKind, on bool) {
	ro := r.roster(sessionID)
	ro.mu.Lock()
	defer ro.mu.Unlock()
	if p, ok := ro.active[identity]; ok {
		p.Tracks.Set(kind, on)
	}
}

// OnLeave schedules finalization after the grace window. Transient drops
// that reconnect in time never surface as a leave.
func (r *Registry) OnLeave(sessionID uuid.UUID, identity string) {
	ro := r.roster(sessionID)
	ro.mu.Lock()
	defer ro.mu.Unlock()
	if _, ok := ro.active[identity]; !ok {
		return
	}
	if t, ok := ro.pending[identity]; ok {
		t.Stop()
	}
	ro.pending[identity] = time.AfterFunc(r.grace, func() {
		r.finalizeLeave(sessionID, identity)
	})
}

func (r *Registry) finalizeLeave(sessionID uuid.UUID, identity string) {
	ro := r.roster(sessionID)
	ro.mu.Lock()
	defer ro.mu.Unlock()
	delete(ro.pending, identity)
	p, ok := ro.active[identity]
	if !ok {
		return
	}
	now := time.Now()
	p.LeftAt = &now
	p.Tracks = models.TrackFlags{}
	delete(ro.active, identity)
	ro.history = append(ro.history, p)
	r.logger.Debug("participant left",
		zap.String("session_id", sessionID.String()), zap.String("identity", identity))
}

// ListActive returns the connected participants of a session.
func (r *Registry) ListActive(sessionID uuid.UUID) []*models.Participant {
	ro := r.roster(sessionID)
	ro.mu.Lock()
	defer ro.mu.Unlock()
	out := make([]*models.Participant, 0, len(ro.active))
	for _, p := range ro.active {
		out = append(out, p)
	}
	return out
}

// GetPublisher returns the active publisher, or nil when none is connected.
func (r *Registry) GetPublisher(sessionID uuid.UUID) *models.Participant {
	ro := r.roster(sessionID)
	ro.mu.Lock()
	defer ro.mu.Unlock()
	for _, p := range ro.active {
		if p.Role == models.RolePublisher {
			return p
		}
	}
	return nil
}

// ViewersOnline counts viewer-role participants with at least one active track.
func (r *Registry) ViewersOnline(sessionID uuid.UUID) int {
	ro := r.roster(sessionID)
	ro.mu.Lock()
	defer ro.mu.Unlock()
	n := 0
	for _, p := range ro.active {
		if p.Role == models.RoleViewer && p.Tracks.Active() {
			n++
		}
	}
	return n
}

// AttachMetrics stores the last telemetry reading on a participant record.
func (r *Registry) AttachMetrics(sessionID uuid.UUID, stat models.ParticipantStat) {
	ro := r.roster(sessionID)
	ro.mu.Lock()
	defer ro.mu.Unlock()
	if p, ok := ro.active[stat.Identity]; ok {
		s := stat
		p.Metrics = &s
	}
}

// DropAll finalizes every participant immediately (room restart, force end).
func (r *Registry) DropAll(sessionID uuid.UUID) {
	ro := r.roster(sessionID)
	ro.mu.Lock()
	defer ro.mu.Unlock()
	now := time.Now()
	for id, t := range ro.pending {
		t.Stop()
		delete(ro.pending, id)
	}
	for id, p := range ro.active {
		p.LeftAt = &now
		p.Tracks = models.TrackFlags{}
		ro.history = append(ro.history, p)
		delete(ro.active, id)
	}
}

// History returns finalized lifecycle entries for a session.
func (r *Registry) History(sessionID uuid.UUID) []*models.Participant {
	ro := r.roster(sessionID)
	ro.mu.Lock()
	defer ro.mu.Unlock()
	out := make([]*models.Participant, len(ro.history))
	copy(out, ro.history)
	return out
}
