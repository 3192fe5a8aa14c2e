package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/alarm-silencer/internal/logger"
)

// Sink plays a clip on an output device.
type Sink interface {
	// Play blocks until clip has been played or ctx is canceled.
	Play(ctx context.Context, clip *Clip) error
}

// Controller repeats the alarm pattern on a background goroutine.
//
// The playing flag is shared with the synchronization loop: it is set by
// Start and cleared by the playback goroutine when it exits, whether stopped
// or failed.
type Controller struct {
	sink    Sink
	playing *atomic.Bool
	pattern []*Clip

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a stopped controller. A nil playing flag gets a private one.
func NewController(sink Sink, pattern []*Clip, playing *atomic.Bool) *Controller {
	if len(pattern) == 0 {
		pattern = Beep(BeepSampleRate)
	}

	if playing == nil {
		playing = new(atomic.Bool)
	}

	return &Controller{
		sink:    sink,
		playing: playing,
		pattern: pattern,
	}
}

// Playing reports whether the playback goroutine is running.
func (c *Controller) Playing() bool {
	return c.playing.Load()
}

// Start begins playback and reports whether it did. It is a no-op while
// already playing. Playback ends on Stop or on a sink error; canceling ctx
// does not end it, so the caller's Stop always observes the playback.
func (c *Controller) Start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playing.Load() {
		return false
	}

	// A goroutine that stopped on its own may still be unwinding.
	c.reapLocked()

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.cancel = cancel
	c.done = done
	c.playing.Store(true)

	logger.Info(ctx, "Starting alarm sound")

	go c.play(taskCtx, done)

	return true
}

// Stop halts playback, waits for the goroutine to exit and reports whether
// anything was playing.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasPlaying := c.playing.Load()

	c.reapLocked()

	return wasPlaying
}

// reapLocked cancels and waits for the current goroutine, if any.
func (c *Controller) reapLocked() {
	if c.cancel == nil {
		return
	}

	c.cancel()
	<-c.done

	c.cancel = nil
	c.done = nil
}

// play repeats the pattern until ctx is canceled or the sink fails.
func (c *Controller) play(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	defer c.playing.Store(false)

	for repetition := 1; ; repetition++ {
		for _, clip := range c.pattern {
			if ctx.Err() != nil {
				logger.Info(ctx, "Alarm sound stopped")
				return
			}

			if err := c.sink.Play(ctx, clip); err != nil {
				if ctx.Err() != nil {
					logger.Info(ctx, "Alarm sound stopped")
					return
				}

				logger.ErrorKV(ctx, "Alarm playback failed", "clip", clip.Name, "repetition", repetition, "error", err)

				return
			}
		}
	}
}

// SilentSink waits for the clip duration without producing sound. It keeps
// the playback state machine running when no output device is wanted.
type SilentSink struct{}

// Play implements Sink.
func (SilentSink) Play(ctx context.Context, clip *Clip) error {
	timer := time.NewTimer(clip.Duration())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
