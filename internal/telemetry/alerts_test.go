package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurban-cebimde/live-backend/internal/models"
)

func breachingSnap() *models.MetricsSnapshot {
	return &models.MetricsSnapshot{
		Timestamp:    time.Now(),
		Participants: []models.ParticipantStat{{Identity: "pub", RTTMs: 900, PacketLoss: 0}},
	}
}

func cleanSnap() *models.MetricsSnapshot {
	return &models.MetricsSnapshot{
		Timestamp:    time.Now(),
		Participants: []models.ParticipantStat{{Identity: "pub", RTTMs: 40, PacketLoss: 0.1}},
	}
}

func TestEscalatorLadder(t *testing.T) {
	e := newEscalator(400, 10, 3, 6, 0)

	alert := e.observe(breachingSnap())
	require.NotNil(t, alert, "first breach surfaces as info")
	assert.Equal(t, models.AlertInfo, alert.Level)
	assert.Contains(t, alert.Reason, "rtt")

	assert.Nil(t, e.observe(breachingSnap()), "same level does not re-emit")

	alert = e.observe(breachingSnap())
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertWarn, alert.Level)

	assert.Nil(t, e.observe(breachingSnap()))
	assert.Nil(t, e.observe(breachingSnap()))

	alert = e.observe(breachingSnap())
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertCrit, alert.Level)
	assert.Contains(t, alert.Reason, "emergency intervention recommended: ")
}

func TestEscalatorPacketLossBreach(t *testing.T) {
	e := newEscalator(400, 10, 3, 6, 0)
	snap := &models.MetricsSnapshot{
		Timestamp:    time.Now(),
		Participants: []models.ParticipantStat{{Identity: "pub", RTTMs: 40, PacketLoss: 25}},
	}
	alert := e.observe(snap)
	require.NotNil(t, alert)
	assert.Contains(t, alert.Reason, "packet loss")
}

func TestEscalatorEmitsEveryEscalationDespiteRateLimit(t *testing.T) {
	// production defaults: 3s polls put the info->warn step well inside the
	// 30s window; escalations must still surface
	e := newEscalator(400, 10, 3, 6, 30*time.Second)

	var levels []models.AlertLevel
	for i := 0; i < 6; i++ {
		if alert := e.observe(breachingSnap()); alert != nil {
			levels = append(levels, alert.Level)
		}
	}
	assert.Equal(t, []models.AlertLevel{models.AlertInfo, models.AlertWarn, models.AlertCrit}, levels)
}

func TestEscalatorSameLevelReAlertsAfterWindow(t *testing.T) {
	e := newEscalator(400, 10, 2, 99, 20*time.Millisecond)

	require.NotNil(t, e.observe(breachingSnap()))
	require.NotNil(t, e.observe(breachingSnap())) // warn
	assert.Nil(t, e.observe(breachingSnap()), "sustained warn is quiet inside the window")

	time.Sleep(30 * time.Millisecond)
	alert := e.observe(breachingSnap())
	require.NotNil(t, alert, "sustained warn re-alerts once the window opens")
	assert.Equal(t, models.AlertWarn, alert.Level)
	assert.Nil(t, e.observe(breachingSnap()), "window restarts after the re-alert")
}

func TestEscalatorRecovery(t *testing.T) {
	e := newEscalator(400, 10, 2, 4, 0)

	require.NotNil(t, e.observe(breachingSnap()))
	require.NotNil(t, e.observe(breachingSnap())) // warn

	assert.Nil(t, e.observe(cleanSnap()), "recovery resets the ladder")

	alert := e.observe(breachingSnap())
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertInfo, alert.Level, "ladder restarts from info")
}

func TestStaleSingleWarn(t *testing.T) {
	e := newEscalator(400, 10, 3, 6, 0)

	alert := e.observeStale()
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertWarn, alert.Level)
	assert.Contains(t, alert.Reason, "stale")

	assert.Nil(t, e.observeStale(), "a sustained stale episode alerts once")
	assert.Nil(t, e.observeStale())

	e.recover()
	assert.NotNil(t, e.observeStale(), "a new stale episode alerts again")
}
