package sessions

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurban-cebimde/live-backend/internal/liveerrors"
	"github.com/kurban-cebimde/live-backend/internal/models"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to models.SessionStatus }{
		{models.StatusScheduled, models.StatusPrelive},
		{models.StatusPrelive, models.StatusLive},
		{models.StatusPrelive, models.StatusError},
		{models.StatusLive, models.StatusPaused},
		{models.StatusLive, models.StatusEnded},
		{models.StatusLive, models.StatusError},
		{models.StatusPaused, models.StatusLive},
		{models.StatusPaused, models.StatusEnded},
		{models.StatusPaused, models.StatusError},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to models.SessionStatus }{
		{models.StatusScheduled, models.StatusLive},
		{models.StatusScheduled, models.StatusEnded},
		{models.StatusPrelive, models.StatusPaused},
		{models.StatusLive, models.StatusScheduled},
		{models.StatusEnded, models.StatusLive},
		{models.StatusEnded, models.StatusScheduled},
		{models.StatusError, models.StatusLive},
		{models.StatusError, models.StatusPrelive},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestApplySetsTimestamps(t *testing.T) {
	s := &models.Session{ID: uuid.New(), Status: models.StatusPrelive}

	require.NoError(t, apply(s, models.StatusLive))
	require.NotNil(t, s.StartedAt)
	assert.Nil(t, s.EndedAt)
	firstStart := *s.StartedAt

	require.NoError(t, apply(s, models.StatusPaused))
	require.NoError(t, apply(s, models.StatusLive))
	assert.Equal(t, firstStart, *s.StartedAt, "resume must not reset started_at")

	require.NoError(t, apply(s, models.StatusEnded))
	require.NotNil(t, s.EndedAt)
	assert.True(t, !s.EndedAt.Before(firstStart))
}

func TestApplyRejectsNonEdge(t *testing.T) {
	s := &models.Session{ID: uuid.New(), Status: models.StatusEnded}
	before := s.UpdatedAt

	err := apply(s, models.StatusLive)
	require.Error(t, err)
	assert.Equal(t, liveerrors.CodeInvalidState, liveerrors.Code(err))
	assert.Equal(t, models.StatusEnded, s.Status)
	assert.Equal(t, before, s.UpdatedAt, "failed apply must not touch the session")
}
