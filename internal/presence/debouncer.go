package presence

import (
	"context"
	"time"

	"github.com/oshokin/alarm-silencer/internal/domain/alarm"
	"github.com/oshokin/alarm-silencer/internal/logger"
)

// FlagWriter writes a remote pin.
type FlagWriter interface {
	WriteFlag(ctx context.Context, pin, value string) error
}

// Debouncer drives alarm.FaceState. Presence is set on the first positive
// frame and cleared only after more than timeout of empty frames. It is owned
// by the synchronization loop and is not safe for concurrent use.
type Debouncer struct {
	writer   FlagWriter
	observer alarm.Observer
	state    *alarm.FaceState
	pin      string
	timeout  time.Duration
}

// New creates a debouncer over state. A nil observer is allowed.
func New(
	writer FlagWriter,
	pin string,
	timeout time.Duration,
	state *alarm.FaceState,
	observer alarm.Observer,
) *Debouncer {
	if observer == nil {
		observer = alarm.Observers(nil)
	}

	return &Debouncer{
		writer:   writer,
		observer: observer,
		state:    state,
		pin:      pin,
		timeout:  timeout,
	}
}

// Observe feeds the number of faces found in a frame taken at now.
//
// A write that fails leaves SignalSent unchanged so it is retried on the next
// frame of the same kind.
func (d *Debouncer) Observe(ctx context.Context, now time.Time, detections int) {
	if detections > 0 {
		d.state.LastSeenAt = now

		if !d.state.Present {
			d.state.Present = true

			logger.InfoKV(ctx, "Face detected", "faces", detections)
			d.observer.Observe(ctx, alarm.Event{At: now, Kind: alarm.EventFace, Active: true})
		}

		if !d.state.SignalSent {
			d.send(ctx, alarm.ValueOn)
		}

		return
	}

	if d.state.Present && now.Sub(d.state.LastSeenAt) > d.timeout {
		d.state.Present = false

		logger.InfoKV(ctx, "No face detected",
			"since", d.state.LastSeenAt.Format(time.TimeOnly),
			"timeout", d.timeout,
		)
		d.observer.Observe(ctx, alarm.Event{At: now, Kind: alarm.EventFace, Active: false})
	}

	if !d.state.Present && d.state.SignalSent {
		d.send(ctx, alarm.ValueOff)
	}
}

// Reset forgets any tracked face without writing the remote pin, so a new
// alarm cycle starts from no-face.
func (d *Debouncer) Reset(ctx context.Context) {
	if d.state.Present || d.state.SignalSent || !d.state.LastSeenAt.IsZero() {
		logger.Debug(ctx, "Face tracking reset")
	}

	d.state.Present = false
	d.state.SignalSent = false
	d.state.LastSeenAt = time.Time{}
}

// send writes value to the face pin and records the outcome in SignalSent.
func (d *Debouncer) send(ctx context.Context, value string) {
	if err := d.writer.WriteFlag(ctx, d.pin, value); err != nil {
		logger.WarnKV(ctx, "Failed to update face pin", "pin", d.pin, "value", value, "error", err)
		return
	}

	d.state.SignalSent = value == alarm.ValueOn

	logger.InfoKV(ctx, "Face pin updated", "pin", d.pin, "value", value)
}
