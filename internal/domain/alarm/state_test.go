package alarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestParseFlag verifies that only "0" and "1" are valid flag values.
func TestParseFlag(t *testing.T) {
	t.Parallel()

	state, ok := ParseFlag("1")
	require.True(t, ok)
	require.Equal(t, FlagArmed, state)

	state, ok = ParseFlag("0")
	require.True(t, ok)
	require.Equal(t, FlagDisarmed, state)

	for _, raw := range []string{"", "2", "on", " 1"} {
		state, ok = ParseFlag(raw)
		require.False(t, ok, raw)
		require.Equal(t, FlagUnknown, state)
	}
}

// TestSyncStateDefaults checks the lifecycle defaults of a fresh state.
func TestSyncStateDefaults(t *testing.T) {
	t.Parallel()

	var s SyncState

	snap := s.Snapshot(time.Unix(10, 0))
	require.Equal(t, FlagUnknown, snap.RemoteAlarm)
	require.False(t, snap.AudioPlaying)
	require.False(t, snap.CameraHealthy)
	require.False(t, snap.FacePresent)
	require.False(t, snap.FaceSignalSent)
	require.True(t, snap.LastFaceSeenAt.IsZero())
	require.Equal(t, "unknown", snap.RemoteAlarm.String())
}

// TestSnapshotIsDetached verifies a snapshot does not follow later mutations.
func TestSnapshotIsDetached(t *testing.T) {
	t.Parallel()

	var s SyncState

	s.AudioPlaying.Store(true)
	s.Face.Present = true

	snap := s.Snapshot(time.Now())

	s.AudioPlaying.Store(false)
	s.Face.Present = false

	require.True(t, snap.AudioPlaying)
	require.True(t, snap.FacePresent)
}

// TestActorString renders user@host and tolerates nil.
func TestActorString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "<unknown>", (*Actor)(nil).String())
	require.Equal(t, "o.shokin@desk", (&Actor{Hostname: "desk", Username: "o.shokin"}).String())
}

// TestObserversFanOut delivers each event to every observer in order and skips nil entries.
func TestObserversFanOut(t *testing.T) {
	t.Parallel()

	var got []string

	record := func(name string) Observer {
		return ObserverFunc(func(_ context.Context, event Event) {
			got = append(got, name+":"+string(event.Kind))
		})
	}

	observers := Observers{record("a"), nil, record("b")}
	observers.Observe(context.Background(), Event{Kind: EventFace, Active: true})

	require.Equal(t, []string{"a:face", "b:face"}, got)
}
