package telemetry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kurban-cebimde/live-backend/internal/models"
)

// AlertSink receives escalated alerts. Alerts are advisory input for the
// moderation surface; they never force a state transition by themselves.
type AlertSink func(sessionID uuid.UUID, alert models.Alert)

// escalator tracks consecutive threshold breaches for one session. Every
// level escalation emits; a sustained breach at the same level re-alerts at
// most once per rate-limit window instead of on every cycle.
type escalator struct {
	rttThresholdMs int
	lossThreshold  float64
	warnAfter      int
	critAfter      int
	minInterval    time.Duration

	breaches  int
	level     models.AlertLevel
	lastEmit  time.Time
	staleSent bool
}

func newEscalator(rttMs int, loss float64, warnAfter, critAfter int, minInterval time.Duration) *escalator {
	return &escalator{
		rttThresholdMs: rttMs,
		lossThreshold:  loss,
		warnAfter:      warnAfter,
		critAfter:      critAfter,
		minInterval:    minInterval,
	}
}

// observe evaluates one snapshot and returns an alert when the level
// escalates, or nil.
func (e *escalator) observe(snap *models.MetricsSnapshot) *models.Alert {
	breached := false
	var reason string
	for _, s := range snap.Participants {
		if s.RTTMs > e.rttThresholdMs {
			breached = true
			reason = fmt.Sprintf("rtt %dms above %dms for %s", s.RTTMs, e.rttThresholdMs, s.Identity)
			break
		}
		if s.PacketLoss > e.lossThreshold {
			breached = true
			reason = fmt.Sprintf("packet loss %.1f%% above %.1f%% for %s", s.PacketLoss, e.lossThreshold, s.Identity)
			break
		}
	}
	if !breached {
		e.breaches = 0
		e.level = ""
		return nil
	}

	e.breaches++
	next := models.AlertInfo
	if e.breaches >= e.critAfter {
		next = models.AlertCrit
	} else if e.breaches >= e.warnAfter {
		next = models.AlertWarn
	}
	if next == models.AlertCrit {
		reason = "emergency intervention recommended: " + reason
	}
	if next == e.level {
		// sustained breach at the same level: re-alert only after the window
		if e.minInterval <= 0 || time.Since(e.lastEmit) < e.minInterval {
			return nil
		}
	}
	e.level = next
	e.lastEmit = time.Now()
	return &models.Alert{Level: next, Reason: reason, Timestamp: snap.Timestamp}
}

// observeStale returns the single warn alert for sustained staleness; the
// flag resets on recovery so the next stale episode alerts again.
func (e *escalator) observeStale() *models.Alert {
	if e.staleSent {
		return nil
	}
	e.staleSent = true
	e.lastEmit = time.Now()
	return &models.Alert{
		Level:     models.AlertWarn,
		Reason:    "telemetry stale: provider stats unavailable",
		Timestamp: time.Now(),
	}
}

func (e *escalator) recover() { e.staleSent = false }
