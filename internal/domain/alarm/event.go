package alarm

import (
	"context"
	"time"
)

// EventKind names the state that changed.
type EventKind string

// Event kinds, one per transition logged by the loop.
const (
	EventAlarm  EventKind = "alarm"
	EventFace   EventKind = "face"
	EventCamera EventKind = "camera"
	EventAudio  EventKind = "audio"
)

// Event describes a single state transition.
type Event struct {
	// At is when the transition was observed.
	At time.Time
	// Kind is the state that changed.
	Kind EventKind
	// CycleID is the alarm cycle the event belongs to.
	CycleID string
	// Active is the new value: armed, face present, camera healthy or audio playing.
	Active bool
}

// Observer receives state transitions. Implementations must not block the loop.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, event Event) {
	f(ctx, event)
}

// Observers fans an event out to every observer in order.
type Observers []Observer

// Observe implements Observer.
func (o Observers) Observe(ctx context.Context, event Event) {
	for _, observer := range o {
		if observer != nil {
			observer.Observe(ctx, event)
		}
	}
}

// Actor identifies the host running the silencer.
type Actor struct {
	// Hostname is the machine name.
	Hostname string
	// Username is the system user running the process.
	Username string
}

// String renders the actor as user@host.
func (a *Actor) String() string {
	if a == nil {
		return "<unknown>"
	}

	return a.Username + "@" + a.Hostname
}
