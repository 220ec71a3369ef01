// Package sessions owns the broadcast lifecycle: the state machine, the
// per-session command serialization and the persistence of sessions.
package sessions

import (
	"fmt"
	"time"

	"github.com/kurban-cebimde/live-backend/internal/liveerrors"
	"github.com/kurban-cebimde/live-backend/internal/models"
)

// Transition names, used as audit actions and idempotency scopes.
const (
	TransitionPrepare = "prepare"
	TransitionStart   = "start"
	TransitionPause   = "pause"
	TransitionResume  = "resume"
	TransitionEnd     = "end"
	TransitionFail    = "fail"
)

// adjacency is the allowed status graph. ended and error are terminal;
// error is only left by resetting to a fresh scheduled session.
var adjacency = map[models.SessionStatus][]models.SessionStatus{
	models.StatusScheduled: {models.StatusPrelive},
	models.StatusPrelive:   {models.StatusLive, models.StatusError},
	models.StatusLive:      {models.StatusPaused, models.StatusEnded, models.StatusError},
	models.StatusPaused:    {models.StatusLive, models.StatusEnded, models.StatusError},
	models.StatusEnded:     {},
	models.StatusError:     {},
}

// CanTransition reports whether from→to is an edge of the lifecycle graph.
func CanTransition(from, to models.SessionStatus) bool {
	for _, next := range adjacency[from] {
		if next == to {
			return true
		}
	}
	return false
}

// apply moves the session to the target status, maintaining the
// startedAt/endedAt invariants. It returns InvalidState on a non-edge.
func apply(s *models.Session, to models.SessionStatus) error {
	if !CanTransition(s.Status, to) {
		return liveerrors.InvalidState(fmt.Sprintf("cannot transition %s from %s to %s", s.ID, s.Status, to))
	}
	now := time.Now()
	switch to {
	case models.StatusLive:
		if s.StartedAt == nil {
			s.StartedAt = &now
		}
	case models.StatusEnded:
		s.EndedAt = &now
	}
	s.Status = to
	s.UpdatedAt = now
	return nil
}
