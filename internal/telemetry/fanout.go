package telemetry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kurban-cebimde/live-backend/internal/models"
)

// MetricsSource is the transport-agnostic read surface over telemetry:
// pull the latest snapshot or subscribe to incremental ticks. Push- and
// pull-based consumers are interchangeable.
type MetricsSource interface {
	Poll(sessionID uuid.UUID) *models.MetricsSnapshot
	Subscribe(sessionID uuid.UUID) (<-chan models.MetricsSnapshot, func())
}

const subscriberBuffer = 16

// fanout delivers snapshots to per-subscriber bounded buffers. A slow
// consumer never blocks the producer: when a buffer is full the oldest
// tick is dropped. Ticks are latest-wins observability data.
type fanout struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[int]chan models.MetricsSnapshot
	next int
}

func newFanout() *fanout {
	return &fanout{subs: make(map[uuid.UUID]map[int]chan models.MetricsSnapshot)}
}

func (f *fanout) subscribe(sessionID uuid.UUID) (<-chan models.MetricsSnapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[sessionID] == nil {
		f.subs[sessionID] = make(map[int]chan models.MetricsSnapshot)
	}
	id := f.next
	f.next++
	ch := make(chan models.MetricsSnapshot, subscriberBuffer)
	f.subs[sessionID][id] = ch
	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if m, ok := f.subs[sessionID]; ok {
			if c, ok := m[id]; ok {
				delete(m, id)
				close(c)
			}
			if len(m) == 0 {
				delete(f.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

func (f *fanout) publish(sessionID uuid.UUID, snap models.MetricsSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[sessionID] {
		select {
		case ch <- snap:
		default:
			// full: drop the oldest tick, then enqueue the new one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (f *fanout) closeSession(sessionID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs[sessionID] {
		delete(f.subs[sessionID], id)
		close(ch)
	}
	delete(f.subs, sessionID)
}
