package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurban-cebimde/live-backend/config"
	"github.com/kurban-cebimde/live-backend/internal/models"
)

type statsStub struct {
	mu    sync.Mutex
	stats []models.ParticipantStat
	err   error
}

func (s *statsStub) GetStats(_ context.Context, _ string) ([]models.ParticipantStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.ParticipantStat, len(s.stats))
	copy(out, s.stats)
	return out, nil
}

func (s *statsStub) set(stats []models.ParticipantStat, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	s.err = err
}

type counterStub struct {
	mu       sync.Mutex
	viewers  int
	attached []models.ParticipantStat
}

func (c *counterStub) ViewersOnline(_ uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewers
}

func (c *counterStub) AttachMetrics(_ uuid.UUID, stat models.ParticipantStat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = append(c.attached, stat)
}

// a poll interval of an hour keeps the background ticker out of the way so
// tests drive cycles through Tick.
func testTelemetryConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		PollIntervalSec:      3600,
		RingSize:             8,
		RTTThresholdMs:       400,
		LossThresholdPercent: 10,
		WarnAfter:            3,
		CritAfter:            6,
		StaleAfterFailures:   2,
	}
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (a *alertRecorder) sink(_ uuid.UUID, alert models.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
}

func (a *alertRecorder) all() []models.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Alert, len(a.alerts))
	copy(out, a.alerts)
	return out
}

func TestTickAndPoll(t *testing.T) {
	stats := &statsStub{}
	counter := &counterStub{viewers: 7}
	agg := NewAggregator(stats, counter, testTelemetryConfig(), nil, nil)
	sessionID := uuid.New()
	defer agg.StopSession(sessionID)

	assert.Nil(t, agg.Poll(sessionID), "no loop, no snapshot")

	agg.StartSession(sessionID, "room-1")
	stats.set([]models.ParticipantStat{{Identity: "pub", RTTMs: 80}}, nil)
	agg.Tick(sessionID)

	snap := agg.Poll(sessionID)
	require.NotNil(t, snap)
	assert.Equal(t, 7, snap.ViewersOnline)
	assert.False(t, snap.Stale)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, "pub", snap.Participants[0].Identity)
	assert.Len(t, counter.attached, 1, "stats are mirrored onto the registry")
}

func TestHistoryOldestFirst(t *testing.T) {
	stats := &statsStub{}
	counter := &counterStub{}
	agg := NewAggregator(stats, counter, testTelemetryConfig(), nil, nil)
	sessionID := uuid.New()
	defer agg.StopSession(sessionID)
	agg.StartSession(sessionID, "room-1")

	for i := 1; i <= 3; i++ {
		counter.mu.Lock()
		counter.viewers = i
		counter.mu.Unlock()
		agg.Tick(sessionID)
	}

	history := agg.History(sessionID, 0)
	require.Len(t, history, 3)
	assert.Equal(t, 1, history[0].ViewersOnline)
	assert.Equal(t, 3, history[2].ViewersOnline)

	history = agg.History(sessionID, 2)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].ViewersOnline)
}

func TestHistoryRingWraps(t *testing.T) {
	stats := &statsStub{}
	counter := &counterStub{}
	agg := NewAggregator(stats, counter, testTelemetryConfig(), nil, nil)
	sessionID := uuid.New()
	defer agg.StopSession(sessionID)
	agg.StartSession(sessionID, "room-1")

	for i := 1; i <= 12; i++ { // ring size is 8
		counter.mu.Lock()
		counter.viewers = i
		counter.mu.Unlock()
		agg.Tick(sessionID)
	}

	history := agg.History(sessionID, 0)
	require.Len(t, history, 8)
	assert.Equal(t, 5, history[0].ViewersOnline)
	assert.Equal(t, 12, history[7].ViewersOnline)
}

func TestStaleAfterConsecutiveFailures(t *testing.T) {
	stats := &statsStub{}
	counter := &counterStub{viewers: 3}
	rec := &alertRecorder{}
	agg := NewAggregator(stats, counter, testTelemetryConfig(), rec.sink, nil)
	sessionID := uuid.New()
	defer agg.StopSession(sessionID)
	agg.StartSession(sessionID, "room-1")

	stats.set([]models.ParticipantStat{{Identity: "pub", RTTMs: 80}}, nil)
	agg.Tick(sessionID)

	stats.set(nil, errors.New("provider down"))
	agg.Tick(sessionID)
	snap := agg.Poll(sessionID)
	require.NotNil(t, snap)
	assert.False(t, snap.Stale, "one failed poll is not stale yet")

	agg.Tick(sessionID)
	snap = agg.Poll(sessionID)
	require.NotNil(t, snap)
	assert.True(t, snap.Stale)
	assert.Len(t, snap.Participants, 1, "stale snapshots carry the last known readings")
	assert.Equal(t, 3, snap.ViewersOnline)

	// one warn for the episode, not one per stale tick
	agg.Tick(sessionID)
	alerts := rec.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertWarn, alerts[0].Level)

	// recovery clears staleness; a later episode warns again
	stats.set([]models.ParticipantStat{{Identity: "pub", RTTMs: 80}}, nil)
	agg.Tick(sessionID)
	assert.False(t, agg.Poll(sessionID).Stale)

	stats.set(nil, errors.New("provider down"))
	agg.Tick(sessionID)
	agg.Tick(sessionID)
	assert.Len(t, rec.all(), 2)
}

func TestAlertSinkReceivesEscalations(t *testing.T) {
	stats := &statsStub{}
	counter := &counterStub{}
	rec := &alertRecorder{}
	agg := NewAggregator(stats, counter, testTelemetryConfig(), rec.sink, nil)
	sessionID := uuid.New()
	defer agg.StopSession(sessionID)
	agg.StartSession(sessionID, "room-1")

	stats.set([]models.ParticipantStat{{Identity: "pub", RTTMs: 900}}, nil)
	agg.Tick(sessionID)

	alerts := rec.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertInfo, alerts[0].Level)
}

func TestSubscribeDropsOldestWhenSlow(t *testing.T) {
	stats := &statsStub{}
	counter := &counterStub{}
	agg := NewAggregator(stats, counter, testTelemetryConfig(), nil, nil)
	sessionID := uuid.New()
	defer agg.StopSession(sessionID)
	agg.StartSession(sessionID, "room-1")

	ch, cancel := agg.Subscribe(sessionID)
	defer cancel()

	total := subscriberBuffer + 4
	for i := 1; i <= total; i++ {
		counter.mu.Lock()
		counter.viewers = i
		counter.mu.Unlock()
		agg.Tick(sessionID)
	}

	first := <-ch
	assert.Equal(t, 5, first.ViewersOnline, "the oldest ticks are dropped, not the newest")

	var last models.MetricsSnapshot
	for i := 0; i < subscriberBuffer-1; i++ {
		last = <-ch
	}
	assert.Equal(t, total, last.ViewersOnline)
}

func TestStopSessionClosesSubscribers(t *testing.T) {
	agg := NewAggregator(&statsStub{}, &counterStub{}, testTelemetryConfig(), nil, nil)
	sessionID := uuid.New()
	agg.StartSession(sessionID, "room-1")

	ch, _ := agg.Subscribe(sessionID)
	agg.StopSession(sessionID)

	_, open := <-ch
	assert.False(t, open)
	assert.Nil(t, agg.Poll(sessionID))
}

func TestTickSink(t *testing.T) {
	stats := &statsStub{}
	counter := &counterStub{viewers: 2}
	agg := NewAggregator(stats, counter, testTelemetryConfig(), nil, nil)
	sessionID := uuid.New()
	defer agg.StopSession(sessionID)

	var mu sync.Mutex
	var got []models.MetricsSnapshot
	agg.SetTickSink(func(id uuid.UUID, snap models.MetricsSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, sessionID, id)
		got = append(got, snap)
	})

	agg.StartSession(sessionID, "room-1")
	agg.Tick(sessionID)
	agg.Tick(sessionID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].ViewersOnline)
}

func TestStartSessionIdempotent(t *testing.T) {
	stats := &statsStub{}
	agg := NewAggregator(stats, &counterStub{}, testTelemetryConfig(), nil, nil)
	sessionID := uuid.New()
	defer agg.StopSession(sessionID)

	agg.StartSession(sessionID, "room-1")
	agg.StartSession(sessionID, "room-1")
	agg.Tick(sessionID)
	assert.Len(t, agg.History(sessionID, 0), 1)
}
