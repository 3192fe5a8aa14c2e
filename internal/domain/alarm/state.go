package alarm

import (
	"sync/atomic"
	"time"
)

// FlagState is the interpretation of the remote alarm flag.
type FlagState int

const (
	// FlagUnknown means no valid value has been observed yet.
	FlagUnknown FlagState = iota
	// FlagDisarmed means the microcontroller alarm is silent.
	FlagDisarmed
	// FlagArmed means the microcontroller alarm is sounding.
	FlagArmed
)

// Raw flag values exchanged with the remote store.
const (
	ValueOff = "0"
	ValueOn  = "1"
)

// String returns a human readable name for logs.
func (f FlagState) String() string {
	switch f {
	case FlagArmed:
		return "armed"
	case FlagDisarmed:
		return "disarmed"
	default:
		return "unknown"
	}
}

// ParseFlag classifies a raw remote value. Only "0" and "1" are valid;
// anything else, including an empty payload, reports ok=false.
func ParseFlag(raw string) (state FlagState, ok bool) {
	switch raw {
	case ValueOn:
		return FlagArmed, true
	case ValueOff:
		return FlagDisarmed, true
	default:
		return FlagUnknown, false
	}
}

// FaceState is the debounced face-presence signal.
type FaceState struct {
	// LastSeenAt is the time of the last frame with at least one face; zero means none.
	LastSeenAt time.Time
	// Present is the debounced signal.
	Present bool
	// SignalSent reports that "face present" was written to the remote store.
	SignalSent bool
}

// SyncState is owned by the synchronization loop. AudioPlaying is the only
// field written from another goroutine (the playback task) and is atomic.
type SyncState struct {
	// AudioPlaying mirrors the playback task state.
	AudioPlaying atomic.Bool

	// CameraLastProbeAt is when the last health probe ran.
	CameraLastProbeAt time.Time
	// LastRemotePollAt is when the alarm flag was last polled.
	LastRemotePollAt time.Time
	// LastFrameAt is when a frame was last requested.
	LastFrameAt time.Time

	// Face is the debouncer state.
	Face FaceState

	// CycleID identifies the current alarm cycle; empty before the first arming.
	CycleID string
	// RemoteAlarm is the last valid observation of the remote flag.
	RemoteAlarm FlagState
	// FrameFailures counts consecutive frame acquisition failures.
	FrameFailures int
	// CameraHealthy is the result of the most recent health probe.
	CameraHealthy bool
}

// Snapshot is an immutable copy of SyncState. Host and CameraMode are filled
// in by the loop, which knows them.
type Snapshot struct {
	Host              *Actor
	TakenAt           time.Time
	CameraLastProbeAt time.Time
	LastRemotePollAt  time.Time
	LastFaceSeenAt    time.Time
	CycleID           string
	CameraMode        string
	RemoteAlarm       FlagState
	FrameFailures     int
	AudioPlaying      bool
	CameraHealthy     bool
	FacePresent       bool
	FaceSignalSent    bool
}

// Snapshot copies the state at the given time.
func (s *SyncState) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		TakenAt:           now,
		CameraLastProbeAt: s.CameraLastProbeAt,
		LastRemotePollAt:  s.LastRemotePollAt,
		LastFaceSeenAt:    s.Face.LastSeenAt,
		CycleID:           s.CycleID,
		RemoteAlarm:       s.RemoteAlarm,
		FrameFailures:     s.FrameFailures,
		AudioPlaying:      s.AudioPlaying.Load(),
		CameraHealthy:     s.CameraHealthy,
		FacePresent:       s.Face.Present,
		FaceSignalSent:    s.Face.SignalSent,
	}
}
