package models

import "time"

// ParticipantStat holds the last connection-quality reading for one identity.
type ParticipantStat struct {
	Identity    string  `json:"identity"`
	RTTMs       int     `json:"rtt_ms"`
	PacketLoss  float64 `json:"packet_loss_percent"`
	BitrateKbps int     `json:"bitrate_kbps"`
	FPS         int     `json:"fps,omitempty"`
}

// MetricsSnapshot is one telemetry tick for a session. Snapshots are
// observability data, held only in a bounded ring buffer, never persisted.
type MetricsSnapshot struct {
	Timestamp     time.Time         `json:"ts"`
	Participants  []ParticipantStat `json:"participants"`
	ViewersOnline int               `json:"viewers_online"`
	Stale         bool              `json:"stale"`
}

// AlertLevel is the escalation ladder for sustained quality breaches.
type AlertLevel string

const (
	AlertInfo AlertLevel = "info"
	AlertWarn AlertLevel = "warn"
	AlertCrit AlertLevel = "crit"
)

// Alert is an advisory raised by the telemetry aggregator. It never forces a
// state transition; emergency intervention stays human-in-the-loop.
type Alert struct {
	Level     AlertLevel `json:"level"`
	Reason    string     `json:"reason"`
	Timestamp time.Time  `json:"ts"`
}
