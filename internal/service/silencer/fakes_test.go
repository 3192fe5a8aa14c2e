package silencer

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/alarm-silencer/internal/camera"
	domain "github.com/oshokin/alarm-silencer/internal/domain/alarm"
	"github.com/oshokin/alarm-silencer/internal/vision"
)

// errFake is returned by failing fakes.
var errFake = errors.New("fake failure")

// fakeFlags serves a sequence of alarm flag values; the last value repeats.
type fakeFlags struct {
	mu      sync.Mutex
	values  []string
	writes  []string
	reads   int
	readErr error
}

// ReadFlag implements FlagStore.
func (f *fakeFlags) ReadFlag(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++

	if f.readErr != nil {
		return "", f.readErr
	}

	if len(f.values) == 0 {
		return "", nil
	}

	value := f.values[0]
	if len(f.values) > 1 {
		f.values = f.values[1:]
	}

	return value, nil
}

// WriteFlag implements FlagStore.
func (f *fakeFlags) WriteFlag(_ context.Context, pin, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes = append(f.writes, pin+"="+value)

	return nil
}

// set replaces the remaining flag values.
func (f *fakeFlags) set(values ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.values = values
}

// recordedWrites returns a copy of the face pin writes.
func (f *fakeFlags) recordedWrites() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.writes...)
}

// readCount returns the number of flag reads.
func (f *fakeFlags) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.reads
}

// fakeCamera returns frames or queued errors and a configurable health result.
type fakeCamera struct {
	mu           sync.Mutex
	frameErrs    []error
	healthErr    error
	mode         camera.Mode
	healthChecks int
	frames       int
	closed       bool
}

// Next implements FrameSource. Queued errors are consumed first; nil entries are good frames.
func (c *fakeCamera) Next(context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames++

	if len(c.frameErrs) > 0 {
		err := c.frameErrs[0]
		c.frameErrs = c.frameErrs[1:]

		if err != nil {
			return nil, err
		}
	}

	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

// CheckHealth implements FrameSource.
func (c *fakeCamera) CheckHealth(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthChecks++

	if c.healthErr != nil {
		return 0, c.healthErr
	}

	return 4096, nil
}

// Mode implements FrameSource.
func (c *fakeCamera) Mode() camera.Mode {
	return c.mode
}

// Close implements FrameSource.
func (c *fakeCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}

// fakePlayer flips the shared playing flag like the audio controller.
type fakePlayer struct {
	playing *atomic.Bool
	starts  int
	stops   int
}

// Start implements Player.
func (p *fakePlayer) Start(context.Context) bool {
	if p.playing.Load() {
		return false
	}

	p.playing.Store(true)
	p.starts++

	return true
}

// Stop implements Player.
func (p *fakePlayer) Stop() bool {
	if !p.playing.Load() {
		return false
	}

	p.playing.Store(false)
	p.stops++

	return true
}

// scriptedDetector returns queued face counts; zero once the queue is empty.
type scriptedDetector struct {
	counts []int
	err    error
}

// detector returns the vision.Detector view of d.
func (d *scriptedDetector) detector() vision.Detector {
	return vision.DetectorFunc(func(*image.Gray) ([]image.Rectangle, error) {
		if d.err != nil {
			return nil, d.err
		}

		if len(d.counts) == 0 {
			return nil, nil
		}

		n := d.counts[0]
		d.counts = d.counts[1:]

		return make([]image.Rectangle, n), nil
	})
}

// fakePreview records shown frames and asks to quit after quitAfter frames.
type fakePreview struct {
	shown     int
	quitAfter int
	overlays  []vision.Overlay
}

// Show implements vision.Preview.
func (p *fakePreview) Show(_ image.Image, _ []image.Rectangle, overlay vision.Overlay) bool {
	p.shown++
	p.overlays = append(p.overlays, overlay)

	return p.quitAfter > 0 && p.shown >= p.quitAfter
}

// Close implements vision.Preview.
func (p *fakePreview) Close() error {
	return nil
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	now time.Time
}

// Now returns the current fake time.
func (c *fakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward.
func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// eventLog records emitted events.
type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

// Observe implements domain.Observer.
func (e *eventLog) Observe(_ context.Context, event domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = append(e.events, event)
}

// ofKind returns the recorded events of kind.
func (e *eventLog) ofKind(kind domain.EventKind) []domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	var events []domain.Event

	for _, event := range e.events {
		if event.Kind == kind {
			events = append(events, event)
		}
	}

	return events
}
