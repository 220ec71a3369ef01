package models

import "time"

// TrackFlags records which media tracks a participant currently publishes.
type TrackFlags struct {
	Audio       bool `json:"audio"`
	Video       bool `json:"video"`
	Screenshare bool `json:"screenshare"`
}

// Active reports whether at least one track is up.
func (t TrackFlags) Active() bool {
	return t.Audio || t.Video || t.Screenshare
}

// TrackKind names a single media track type.
type TrackKind string

const (
	TrackAudio       TrackKind = "audio"
	TrackVideo       TrackKind = "video"
	TrackScreenshare TrackKind = "screenshare"
)

// Set flips one track flag.
func (t *TrackFlags) Set(kind TrackKind, on bool) {
	switch kind {
	case TrackAudio:
		t.Audio = on
	case TrackVideo:
		t.Video = on
	case TrackScreenshare:
		t.Screenshare = on
	}
}

// Participant is a connected identity within one session. Identity is unique
// per session; a reconnect inside the grace window keeps the original
// JoinedAt instead of opening a new lifecycle entry.
type Participant struct {
	Identity string          `json:"identity"`
	Role     Role            `json:"role"`
	JoinedAt time.Time       `json:"joined_at"`
	LeftAt   *time.Time      `json:"left_at,omitempty"`
	Tracks   TrackFlags      `json:"tracks"`
	Metrics  *ParticipantStat `json:"metrics,omitempty"`
}

// Connected reports whether the participant has not been finalized as left.
func (p *Participant) Connected() bool { return p.LeftAt == nil }
