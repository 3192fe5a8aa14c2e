package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-silencer/internal/domain/alarm"
)

// errWriteFailed simulates a failing remote store.
var errWriteFailed = errors.New("write failed")

// fakeWriter records pin writes and fails while failing is set.
type fakeWriter struct {
	mu      sync.Mutex
	writes  []string
	failing bool
}

// WriteFlag implements FlagWriter.
func (w *fakeWriter) WriteFlag(_ context.Context, pin, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.failing {
		return errWriteFailed
	}

	w.writes = append(w.writes, pin+"="+value)

	return nil
}

// recorded returns a copy of the successful writes.
func (w *fakeWriter) recorded() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]string(nil), w.writes...)
}

// setup builds a debouncer with a 5s timeout that records its events.
func setup() (*Debouncer, *fakeWriter, *alarm.FaceState, *[]alarm.Event) {
	var (
		writer = &fakeWriter{}
		state  = &alarm.FaceState{}
		events []alarm.Event
	)

	observer := alarm.ObserverFunc(func(_ context.Context, event alarm.Event) {
		events = append(events, event)
	})

	return New(writer, "V4", 5*time.Second, state, observer), writer, state, &events
}

// TestObserve_ClearsOnlyAfterTimeout checks a positive frame followed by empty
// frames one second apart: one "1" write, then one "0" write once more than
// five seconds have passed.
func TestObserve_ClearsOnlyAfterTimeout(t *testing.T) {
	t.Parallel()

	debouncer, writer, state, events := setup()
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC)

	debouncer.Observe(ctx, start, 1)
	require.True(t, state.Present)
	require.True(t, state.SignalSent)
	require.Equal(t, []string{"V4=1"}, writer.recorded())

	// Elapsed 1..5 seconds: not strictly greater than the timeout yet.
	for i := 1; i <= 5; i++ {
		debouncer.Observe(ctx, start.Add(time.Duration(i)*time.Second), 0)
		require.True(t, state.Present, "cleared after %d seconds", i)
	}

	require.Equal(t, []string{"V4=1"}, writer.recorded())

	debouncer.Observe(ctx, start.Add(6*time.Second), 0)
	require.False(t, state.Present)
	require.False(t, state.SignalSent)
	require.Equal(t, []string{"V4=1", "V4=0"}, writer.recorded())

	debouncer.Observe(ctx, start.Add(7*time.Second), 0)
	require.Equal(t, []string{"V4=1", "V4=0"}, writer.recorded())

	require.Len(t, *events, 2)
	require.True(t, (*events)[0].Active)
	require.False(t, (*events)[1].Active)
	require.Equal(t, alarm.EventFace, (*events)[1].Kind)
}

// TestObserve_FlickerKeepsPresence refreshes the timer on every positive frame.
func TestObserve_FlickerKeepsPresence(t *testing.T) {
	t.Parallel()

	debouncer, writer, state, _ := setup()
	ctx := context.Background()
	start := time.Now()

	debouncer.Observe(ctx, start, 1)
	debouncer.Observe(ctx, start.Add(4*time.Second), 0)
	debouncer.Observe(ctx, start.Add(5*time.Second), 2)
	debouncer.Observe(ctx, start.Add(9*time.Second), 0)

	require.True(t, state.Present)
	require.Equal(t, start.Add(5*time.Second), state.LastSeenAt)
	require.Equal(t, []string{"V4=1"}, writer.recorded())
}

// TestObserve_RetriesFailedWrites keeps SignalSent unchanged when the store fails.
func TestObserve_RetriesFailedWrites(t *testing.T) {
	t.Parallel()

	debouncer, writer, state, _ := setup()
	ctx := context.Background()
	start := time.Now()

	writer.failing = true

	debouncer.Observe(ctx, start, 1)
	require.True(t, state.Present)
	require.False(t, state.SignalSent)

	writer.failing = false

	debouncer.Observe(ctx, start.Add(time.Second), 1)
	require.True(t, state.SignalSent)

	writer.failing = true

	debouncer.Observe(ctx, start.Add(10*time.Second), 0)
	require.False(t, state.Present)
	require.True(t, state.SignalSent)

	writer.failing = false

	debouncer.Observe(ctx, start.Add(11*time.Second), 0)
	require.False(t, state.SignalSent)
	require.Equal(t, []string{"V4=1", "V4=0"}, writer.recorded())
}

// TestReset clears tracking without touching the remote pin.
func TestReset(t *testing.T) {
	t.Parallel()

	debouncer, writer, state, _ := setup()
	ctx := context.Background()
	start := time.Now()

	debouncer.Observe(ctx, start, 1)
	debouncer.Reset(ctx)

	require.False(t, state.Present)
	require.False(t, state.SignalSent)
	require.True(t, state.LastSeenAt.IsZero())
	require.Equal(t, []string{"V4=1"}, writer.recorded())

	// The next face of the new cycle is signaled again.
	debouncer.Observe(ctx, start.Add(time.Second), 1)
	require.Equal(t, []string{"V4=1", "V4=1"}, writer.recorded())
}

// TestNew_NilObserver accepts a missing observer.
func TestNew_NilObserver(t *testing.T) {
	t.Parallel()

	state := &alarm.FaceState{}
	debouncer := New(&fakeWriter{}, "V4", time.Second, state, nil)

	require.NotPanics(t, func() {
		debouncer.Observe(context.Background(), time.Now(), 1)
	})
	require.True(t, state.Present)
}
