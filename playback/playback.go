// Package playback coordinates the shared "now playing" state and the one-shot
// command mailbox that many unsynchronized polling viewers converge on. All
// coordination is expressed as atomic store operations (conditional upserts,
// delete-and-return) rather than in-process locks, because concurrency here is
// cross-client: independent player instances with no shared memory.
package playback

import (
	"encoding/json"
	"errors"
	"time"
)

// Mailbox command kinds. One slot exists per (channel, kind); a new issuance
// overwrites any unconsumed prior entry rather than queuing.
const (
	KindSkip      = "skip"
	KindPrev      = "prev"
	KindForcePlay = "force_play"
	KindShuffle   = "shuffle"
	KindTopClips  = "top_clips"
)

// Kinds lists every mailbox command kind.
var Kinds = []string{KindSkip, KindPrev, KindForcePlay, KindShuffle, KindTopClips}

// ValidKind reports whether kind names a mailbox slot.
func ValidKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ErrNoState distinguishes "this channel never started playing" from "the
// current clip ended"; callers need both shapes.
var ErrNoState = errors.New("no playback state for channel")

// NowPlaying is the single mutable register row per channel. StartedAt is
// stamped fresh on every write, so it is monotonically non-decreasing for a
// given channel and any poller can derive elapsed time from it.
type NowPlaying struct {
	Channel       string    `json:"channel"`
	ClipID        string    `json:"clip_id"`
	Seq           int64     `json:"seq"`
	Title         string    `json:"title"`
	Duration      float64   `json:"duration_seconds"`
	PlaylistIndex int       `json:"playlist_index,omitempty"`
	PlaylistIDs   []string  `json:"playlist_ids,omitempty"`
	ControllerID  string    `json:"controller_id,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// State is the poller-facing view of the register. Active=false is a definite
// "never started" shape; Ended reports whether elapsed has crossed the clip's
// duration, which pollers use to decide between requesting the next clip and
// assuming the controller is lagging.
type State struct {
	Active          bool        `json:"active"`
	Clip            *NowPlaying `json:"clip,omitempty"`
	Elapsed         float64     `json:"elapsed_seconds"`
	Ended           bool        `json:"ended"`
	ControllerStale bool        `json:"controller_stale"`
}

// Command is one consumed mailbox entry.
type Command struct {
	Kind     string          `json:"kind"`
	Nonce    string          `json:"nonce"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	IssuedAt time.Time       `json:"issued_at"`
}

// ForcePlayPayload carries denormalized clip fields directly in the command.
// The authoritative source at force-play time is the moderator's lookup, not a
// later catalog read; the payload survives catalog changes between issue and poll.
type ForcePlayPayload struct {
	ClipID   string  `json:"clip_id"`
	Seq      int64   `json:"seq"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration_seconds"`
}
