package participants

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurban-cebimde/live-backend/internal/liveerrors"
	"github.com/kurban-cebimde/live-backend/internal/models"
)

const testGrace = 40 * time.Millisecond

func TestJoinAndLeaveFinalizesAfterGrace(t *testing.T) {
	r := NewRegistry(testGrace, false, nil)
	sessionID := uuid.New()

	_, err := r.OnJoin(sessionID, "viewer-1", models.RoleViewer)
	require.NoError(t, err)
	assert.Len(t, r.ListActive(sessionID), 1)

	r.OnLeave(sessionID, "viewer-1")
	// still active inside the grace window
	assert.Len(t, r.ListActive(sessionID), 1)

	require.Eventually(t, func() bool {
		return len(r.ListActive(sessionID)) == 0
	}, time.Second, 10*time.Millisecond)

	history := r.History(sessionID)
	require.Len(t, history, 1)
	assert.Equal(t, "viewer-1", history[0].Identity)
	require.NotNil(t, history[0].LeftAt)
	assert.False(t, history[0].Connected())
}

func TestReconnectWithinGraceKeepsJoinedAt(t *testing.T) {
	r := NewRegistry(200*time.Millisecond, false, nil)
	sessionID := uuid.New()

	p, err := r.OnJoin(sessionID, "pub", models.RolePublisher)
	require.NoError(t, err)
	joined := p.JoinedAt

	r.OnLeave(sessionID, "pub")
	rejoined, err := r.OnJoin(sessionID, "pub", models.RolePublisher)
	require.NoError(t, err)
	assert.Equal(t, joined, rejoined.JoinedAt)

	// the cancelled finalization never fires
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, r.ListActive(sessionID), 1)
	assert.Empty(t, r.History(sessionID))
}

func TestDuplicateJoinReturnsSameParticipant(t *testing.T) {
	r := NewRegistry(testGrace, false, nil)
	sessionID := uuid.New()

	first, err := r.OnJoin(sessionID, "viewer-1", models.RoleViewer)
	require.NoError(t, err)
	second, err := r.OnJoin(sessionID, "viewer-1", models.RoleViewer)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, r.ListActive(sessionID), 1)
}

func TestSecondPublisherRejected(t *testing.T) {
	r := NewRegistry(testGrace, false, nil)
	sessionID := uuid.New()

	_, err := r.OnJoin(sessionID, "pub-1", models.RolePublisher)
	require.NoError(t, err)

	_, err = r.OnJoin(sessionID, "pub-2", models.RolePublisher)
	require.Error(t, err)
	assert.Equal(t, liveerrors.CodeDuplicatePublisher, liveerrors.Code(err))

	// a second publisher in another session is fine
	_, err = r.OnJoin(uuid.New(), "pub-2", models.RolePublisher)
	assert.NoError(t, err)
}

func TestCoPublishAllowed(t *testing.T) {
	r := NewRegistry(testGrace, true, nil)
	sessionID := uuid.New()

	_, err := r.OnJoin(sessionID, "pub-1", models.RolePublisher)
	require.NoError(t, err)
	_, err = r.OnJoin(sessionID, "pub-2", models.RolePublisher)
	require.NoError(t, err)
	assert.Len(t, r.ListActive(sessionID), 2)
}

func TestGetPublisher(t *testing.T) {
	r := NewRegistry(testGrace, false, nil)
	sessionID := uuid.New()

	assert.Nil(t, r.GetPublisher(sessionID))
	_, err := r.OnJoin(sessionID, "viewer-1", models.RoleViewer)
	require.NoError(t, err)
	_, err = r.OnJoin(sessionID, "pub", models.RolePublisher)
	require.NoError(t, err)

	p := r.GetPublisher(sessionID)
	require.NotNil(t, p)
	assert.Equal(t, "pub", p.Identity)
}

func TestViewersOnlineCountsActiveTracks(t *testing.T) {
	r := NewRegistry(testGrace, false, nil)
	sessionID := uuid.New()

	_, err := r.OnJoin(sessionID, "viewer-1", models.RoleViewer)
	require.NoError(t, err)
	_, err = r.OnJoin(sessionID, "viewer-2", models.RoleViewer)
	require.NoError(t, err)
	_, err = r.OnJoin(sessionID, "pub", models.RolePublisher)
	require.NoError(t, err)

	// joined but no media flowing yet
	assert.Equal(t, 0, r.ViewersOnline(sessionID))

	r.SetTrack(sessionID, "viewer-1", models.TrackVideo, true)
	r.SetTrack(sessionID, "pub", models.TrackVideo, true)
	assert.Equal(t, 1, r.ViewersOnline(sessionID), "publishers do not count as viewers")

	r.SetTrack(sessionID, "viewer-1", models.TrackVideo, false)
	assert.Equal(t, 0, r.ViewersOnline(sessionID))

	r.OnTrackChange(sessionID, "viewer-2", models.TrackFlags{Audio: true})
	assert.Equal(t, 1, r.ViewersOnline(sessionID))
}

func TestAttachMetrics(t *testing.T) {
	r := NewRegistry(testGrace, false, nil)
	sessionID := uuid.New()

	_, err := r.OnJoin(sessionID, "pub", models.RolePublisher)
	require.NoError(t, err)

	r.AttachMetrics(sessionID, models.ParticipantStat{Identity: "pub", RTTMs: 120, PacketLoss: 1.5})
	r.AttachMetrics(sessionID, models.ParticipantStat{Identity: "ghost", RTTMs: 999})

	active := r.ListActive(sessionID)
	require.Len(t, active, 1)
	require.NotNil(t, active[0].Metrics)
	assert.Equal(t, 120, active[0].Metrics.RTTMs)
}

func TestDropAllFinalizesImmediately(t *testing.T) {
	r := NewRegistry(time.Minute, false, nil)
	sessionID := uuid.New()

	_, err := r.OnJoin(sessionID, "pub", models.RolePublisher)
	require.NoError(t, err)
	_, err = r.OnJoin(sessionID, "viewer-1", models.RoleViewer)
	require.NoError(t, err)
	r.OnLeave(sessionID, "viewer-1") // pending, long grace

	r.DropAll(sessionID)
	assert.Empty(t, r.ListActive(sessionID))

	history := r.History(sessionID)
	require.Len(t, history, 2)
	for _, p := range history {
		assert.NotNil(t, p.LeftAt)
		assert.False(t, p.Tracks.Active())
	}

	// after DropAll a publisher may join again
	_, err = r.OnJoin(sessionID, "pub", models.RolePublisher)
	assert.NoError(t, err)
}
