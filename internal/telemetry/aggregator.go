// Package telemetry polls per-participant connection statistics from the
// media room provider and turns them into per-session snapshots, advisory
// alerts and a push/pull metrics surface.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurban-cebimde/live-backend/config"
	"github.com/kurban-cebimde/live-backend/internal/models"
)

// StatsSource is the slice of the provider the aggregator needs.
type StatsSource interface {
	GetStats(ctx context.Context, roomName string) ([]models.ParticipantStat, error)
}

// ViewerCounter is the slice of the participant registry the aggregator needs.
type ViewerCounter interface {
	ViewersOnline(sessionID uuid.UUID) int
	AttachMetrics(sessionID uuid.UUID, stat models.ParticipantStat)
}

// Aggregator runs one polling loop per active session. Snapshots live in a
// bounded ring buffer; nothing here is persisted.
type Aggregator struct {
	provider StatsSource
	registry ViewerCounter
	cfg      config.TelemetryConfig
	sink     AlertSink
	ticks    TickSink
	fan      *fanout
	logger   *zap.Logger

	mu    sync.Mutex
	loops map[uuid.UUID]*loop
}

type loop struct {
	cancel   context.CancelFunc
	roomName string

	mu       sync.Mutex
	ring     []models.MetricsSnapshot
	head     int
	count    int
	failures int
	esc      *escalator
}

// NewAggregator creates an aggregator. sink may be nil when alert delivery
// is wired later via SetAlertSink.
func NewAggregator(provider StatsSource, registry ViewerCounter, cfg config.TelemetryConfig, sink AlertSink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollIntervalSec <= 0 {
		cfg.PollIntervalSec = 3
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = 120
	}
	if cfg.StaleAfterFailures <= 0 {
		cfg.StaleAfterFailures = 2
	}
	return &Aggregator{
		provider: provider,
		registry: registry,
		cfg:      cfg,
		sink:     sink,
		fan:      newFanout(),
		logger:   logger,
	}
}

// SetAlertSink wires alert delivery (audit + broadcast).
func (a *Aggregator) SetAlertSink(sink AlertSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = sink
}

// TickSink receives every snapshot, stale ones included. Used to push
// metric ticks onto the WebSocket side channel.
type TickSink func(sessionID uuid.UUID, snap models.MetricsSnapshot)

// SetTickSink wires snapshot delivery to the side channel.
func (a *Aggregator) SetTickSink(sink TickSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ticks = sink
}

// StartSession begins the telemetry loop for a session's room. Idempotent.
func (a *Aggregator) StartSession(sessionID uuid.UUID, roomName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.loops[sessionID]; ok {
		return
	}
	if a.loops == nil {
		a.loops = make(map[uuid.UUID]*loop)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{
		cancel:   cancel,
		roomName: roomName,
		ring:     make([]models.MetricsSnapshot, a.cfg.RingSize),
		esc: newEscalator(
			a.cfg.RTTThresholdMs,
			a.cfg.LossThresholdPercent,
			a.cfg.WarnAfter,
			a.cfg.CritAfter,
			time.Duration(a.cfg.AlertMinIntervalSec)*time.Second,
		),
	}
	a.loops[sessionID] = l
	go a.run(ctx, sessionID, l)
	a.logger.Info("telemetry loop started",
		zap.String("session_id", sessionID.String()), zap.String("room", roomName))
}

// StopSession stops the loop and closes subscriber channels. Idempotent.
func (a *Aggregator) StopSession(sessionID uuid.UUID) {
	a.mu.Lock()
	l, ok := a.loops[sessionID]
	if ok {
		delete(a.loops, sessionID)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	l.cancel()
	a.fan.closeSession(sessionID)
	a.logger.Info("telemetry loop stopped", zap.String("session_id", sessionID.String()))
}

func (a *Aggregator) run(ctx context.Context, sessionID uuid.UUID, l *loop) {
	ticker := time.NewTicker(time.Duration(a.cfg.PollIntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx, sessionID, l)
		}
	}
}

// Tick performs one poll cycle. Exported for deterministic tests; the loop
// calls it on every ticker fire.
func (a *Aggregator) Tick(sessionID uuid.UUID) {
	a.mu.Lock()
	l, ok := a.loops[sessionID]
	a.mu.Unlock()
	if ok {
		a.tick(context.Background(), sessionID, l)
	}
}

func (a *Aggregator) tick(ctx context.Context, sessionID uuid.UUID, l *loop) {
	pollCtx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.PollIntervalSec)*time.Second)
	stats, err := a.provider.GetStats(pollCtx, l.roomName)
	cancel()

	l.mu.Lock()
	var snap models.MetricsSnapshot
	var alert *models.Alert
	if err != nil {
		l.failures++
		snap = models.MetricsSnapshot{Timestamp: time.Now(), Stale: l.failures >= a.cfg.StaleAfterFailures}
		if prev := l.latestLocked(); prev != nil {
			snap.Participants = prev.Participants
			snap.ViewersOnline = prev.ViewersOnline
		}
		if snap.Stale {
			alert = l.esc.observeStale()
		}
	} else {
		if l.failures >= a.cfg.StaleAfterFailures {
			l.esc.recover()
		}
		l.failures = 0
		snap = models.MetricsSnapshot{
			Timestamp:     time.Now(),
			Participants:  stats,
			ViewersOnline: a.registry.ViewersOnline(sessionID),
		}
		alert = l.esc.observe(&snap)
	}
	l.pushLocked(snap)
	l.mu.Unlock()

	if err != nil {
		a.logger.Debug("telemetry poll failed", zap.String("session_id", sessionID.String()), zap.Error(err))
	} else {
		for _, s := range stats {
			a.registry.AttachMetrics(sessionID, s)
		}
	}
	a.fan.publish(sessionID, snap)
	if a.ticks != nil {
		a.ticks(sessionID, snap)
	}
	if alert != nil && a.sink != nil {
		a.sink(sessionID, *alert)
	}
}

func (l *loop) pushLocked(snap models.MetricsSnapshot) {
	l.ring[l.head] = snap
	l.head = (l.head + 1) % len(l.ring)
	if l.count < len(l.ring) {
		l.count++
	}
}

func (l *loop) latestLocked() *models.MetricsSnapshot {
	if l.count == 0 {
		return nil
	}
	idx := (l.head - 1 + len(l.ring)) % len(l.ring)
	s := l.ring[idx]
	return &s
}

// Poll implements MetricsSource: the latest snapshot, or nil when the
// session has no telemetry loop.
func (a *Aggregator) Poll(sessionID uuid.UUID) *models.MetricsSnapshot {
	a.mu.Lock()
	l, ok := a.loops[sessionID]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latestLocked()
}

// History returns up to n most recent snapshots, oldest first.
func (a *Aggregator) History(sessionID uuid.UUID, n int) []models.MetricsSnapshot {
	a.mu.Lock()
	l, ok := a.loops[sessionID]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]models.MetricsSnapshot, 0, n)
	for i := l.count - n; i < l.count; i++ {
		idx := (l.head - l.count + i + 2*len(l.ring)) % len(l.ring)
		out = append(out, l.ring[idx])
	}
	return out
}

// Subscribe implements MetricsSource.
func (a *Aggregator) Subscribe(sessionID uuid.UUID) (<-chan models.MetricsSnapshot, func()) {
	return a.fan.subscribe(sessionID)
}

var _ MetricsSource = (*Aggregator)(nil)
