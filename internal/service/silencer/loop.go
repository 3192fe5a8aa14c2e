package silencer

import (
	"context"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/alarm-silencer/internal/camera"
	domain "github.com/oshokin/alarm-silencer/internal/domain/alarm"
	"github.com/oshokin/alarm-silencer/internal/logger"
	"github.com/oshokin/alarm-silencer/internal/presence"
	repository "github.com/oshokin/alarm-silencer/internal/repository/state"
	"github.com/oshokin/alarm-silencer/internal/vision"
)

// FlagStore reads and writes remote pins.
type FlagStore interface {
	ReadFlag(ctx context.Context, pin string) (string, error)
	WriteFlag(ctx context.Context, pin, value string) error
}

// FrameSource acquires camera frames and probes camera health.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
	CheckHealth(ctx context.Context) (int, error)
	Mode() camera.Mode
	Close() error
}

// Player controls local alarm playback.
type Player interface {
	// Start begins playback and reports whether it did.
	Start(ctx context.Context) bool
	// Stop halts playback and reports whether anything was playing.
	Stop() bool
}

// LoopConfig holds pins and cadences.
type LoopConfig struct {
	// AlarmPin is polled for the alarm flag.
	AlarmPin string
	// FacePin receives the debounced face signal.
	FacePin string
	// PollInterval paces remote flag reads.
	PollInterval time.Duration
	// HealthInterval throttles camera health probes.
	HealthInterval time.Duration
	// FrameInterval paces still captures.
	FrameInterval time.Duration
	// StreamFrameInterval paces stream reads.
	StreamFrameInterval time.Duration
	// NoFaceTimeout is the face debounce window.
	NoFaceTimeout time.Duration
	// MaxFrameFailures consecutive failures while playing force-stop audio.
	MaxFrameFailures int
	// AudioOnly skips frames and detection.
	AudioOnly bool
}

// Dependencies are the loop collaborators. Preview, Observer, Repository,
// Host, Clock, NewCycleID and Heartbeat are optional.
type Dependencies struct {
	Flags      FlagStore
	Camera     FrameSource
	Detector   vision.Detector
	Player     Player
	Preview    vision.Preview
	Observer   domain.Observer
	Repository repository.Repository
	Host       *domain.Actor
	Clock      func() time.Time
	NewCycleID func() string
	Heartbeat  func()
}

// Loop is the synchronization loop. It owns SyncState; only the playback
// goroutine touches state.AudioPlaying concurrently.
type Loop struct {
	cfg       LoopConfig
	deps      Dependencies
	state     *domain.SyncState
	debouncer *presence.Debouncer

	// audioReported is the playback state last announced as an event.
	audioReported bool
}

// NewLoop wires the collaborators around state.
func NewLoop(cfg LoopConfig, state *domain.SyncState, deps Dependencies) *Loop {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	if deps.NewCycleID == nil {
		deps.NewCycleID = uuid.NewString
	}

	l := &Loop{
		cfg:   cfg,
		deps:  deps,
		state: state,
	}

	l.debouncer = presence.New(deps.Flags, cfg.FacePin, cfg.NoFaceTimeout, &state.Face, domain.ObserverFunc(l.emit))

	return l
}

// State returns the loop state. It must only be read from the loop goroutine.
func (l *Loop) State() *domain.SyncState {
	return l.state
}

// Run ticks until ctx is canceled or the preview asks to quit, then stops
// audio, closes the camera and saves a final snapshot.
func (l *Loop) Run(ctx context.Context) error {
	logger.InfoKV(ctx, "Synchronization loop started",
		"alarm_pin", l.cfg.AlarmPin,
		"face_pin", l.cfg.FacePin,
		"poll_interval", l.cfg.PollInterval,
		"camera_mode", l.deps.Camera.Mode(),
		"audio_only", l.cfg.AudioOnly,
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")
			l.shutdown(context.WithoutCancel(ctx))

			return nil
		case <-timer.C:
		}

		if quit := l.Tick(ctx); quit {
			logger.Info(ctx, "Preview closed, exiting")
			l.shutdown(ctx)

			return nil
		}

		timer.Reset(l.untilNextTick(l.deps.Clock()))
	}
}

// Tick runs one iteration: the remote poll when due, then the frame when due.
// It reports whether the preview asked to quit.
func (l *Loop) Tick(ctx context.Context) bool {
	if l.deps.Heartbeat != nil {
		l.deps.Heartbeat()
	}

	l.reportAudio(ctx, l.deps.Clock())

	if now := l.deps.Clock(); l.pollDue(now) {
		l.pollRemote(ctx, now)
	}

	if l.cfg.AudioOnly {
		return false
	}

	if now := l.deps.Clock(); l.frameDue(now) {
		return l.processFrame(ctx, now)
	}

	return false
}

// pollDue reports whether the poll interval elapsed.
func (l *Loop) pollDue(now time.Time) bool {
	return l.state.LastRemotePollAt.IsZero() || now.Sub(l.state.LastRemotePollAt) >= l.cfg.PollInterval
}

// frameDue reports whether the frame interval of the current mode elapsed.
func (l *Loop) frameDue(now time.Time) bool {
	return l.state.LastFrameAt.IsZero() || now.Sub(l.state.LastFrameAt) >= l.frameInterval()
}

// frameInterval returns the pacing of the current camera mode.
func (l *Loop) frameInterval() time.Duration {
	if l.deps.Camera.Mode() == camera.ModeStream {
		return l.cfg.StreamFrameInterval
	}

	return l.cfg.FrameInterval
}

// untilNextTick returns how long to sleep before the earliest deadline.
func (l *Loop) untilNextTick(now time.Time) time.Duration {
	next := l.state.LastRemotePollAt.Add(l.cfg.PollInterval)

	if !l.cfg.AudioOnly {
		if frameAt := l.state.LastFrameAt.Add(l.frameInterval()); frameAt.Before(next) {
			next = frameAt
		}
	}

	return max(next.Sub(now), 0)
}

// pollRemote reads the alarm flag and reacts to it.
func (l *Loop) pollRemote(ctx context.Context, now time.Time) {
	l.state.LastRemotePollAt = now

	raw, err := l.deps.Flags.ReadFlag(ctx, l.cfg.AlarmPin)
	if err != nil {
		logger.WarnKV(ctx, "Failed to read alarm flag", "pin", l.cfg.AlarmPin, "error", err)
		return
	}

	flag, ok := domain.ParseFlag(raw)
	if !ok {
		logger.WarnKV(ctx, "Unexpected alarm flag value", "pin", l.cfg.AlarmPin, "value", raw)
		return
	}

	previous := l.state.RemoteAlarm
	l.state.RemoteAlarm = flag

	if flag != previous {
		logger.InfoKV(ctx, "Alarm flag changed", "from", previous, "to", flag)
	}

	switch flag {
	case domain.FlagArmed:
		if previous != domain.FlagArmed {
			l.onArmed(ctx, now)
		}

		l.ensurePlaying(ctx, now)
	case domain.FlagDisarmed:
		if previous != domain.FlagDisarmed {
			l.onDisarmed(ctx, now)
		}
	case domain.FlagUnknown:
		// ParseFlag never reports ok with an unknown flag.
	}
}

// onArmed starts a new alarm cycle.
func (l *Loop) onArmed(ctx context.Context, now time.Time) {
	l.state.CycleID = l.deps.NewCycleID()
	l.debouncer.Reset(ctx)

	logger.InfoKV(ctx, "Alarm armed", "cycle_id", l.state.CycleID)
	l.emit(ctx, domain.Event{At: now, Kind: domain.EventAlarm, Active: true})
}

// onDisarmed ends the current alarm cycle.
func (l *Loop) onDisarmed(ctx context.Context, now time.Time) {
	logger.InfoKV(ctx, "Alarm disarmed", "cycle_id", l.state.CycleID)

	l.stopAudio(ctx, now)
	l.debouncer.Reset(ctx)
	l.emit(ctx, domain.Event{At: now, Kind: domain.EventAlarm, Active: false})
}

// ensurePlaying starts audio while armed, but only on a healthy camera.
func (l *Loop) ensurePlaying(ctx context.Context, now time.Time) {
	if l.state.AudioPlaying.Load() {
		return
	}

	if l.healthDue(now) {
		l.checkHealth(ctx, now)
	}

	if !l.state.CameraHealthy {
		logger.WarnKV(ctx, "Alarm armed but camera is not working, audio blocked until the camera recovers",
			"cycle_id", l.state.CycleID,
			"last_probe", l.state.CameraLastProbeAt.Format(time.TimeOnly),
		)

		return
	}

	if l.deps.Player.Start(ctx) {
		logger.InfoKV(ctx, "Alarm sound started", "cycle_id", l.state.CycleID)

		l.audioReported = true
		l.emit(ctx, domain.Event{At: now, Kind: domain.EventAudio, Active: true})
	}
}

// stopAudio stops playback and reports it when something was playing.
func (l *Loop) stopAudio(ctx context.Context, now time.Time) {
	if !l.deps.Player.Stop() {
		return
	}

	logger.InfoKV(ctx, "Alarm sound stopped", "cycle_id", l.state.CycleID)

	l.audioReported = false
	l.emit(ctx, domain.Event{At: now, Kind: domain.EventAudio, Active: false})
}

// reportAudio announces playback that ended on its own.
func (l *Loop) reportAudio(ctx context.Context, now time.Time) {
	if !l.audioReported || l.state.AudioPlaying.Load() {
		return
	}

	logger.WarnKV(ctx, "Alarm sound ended unexpectedly", "cycle_id", l.state.CycleID)

	l.audioReported = false
	l.emit(ctx, domain.Event{At: now, Kind: domain.EventAudio, Active: false})
}

// healthDue reports whether a new health probe may run.
func (l *Loop) healthDue(now time.Time) bool {
	return l.state.CameraLastProbeAt.IsZero() || now.Sub(l.state.CameraLastProbeAt) >= l.cfg.HealthInterval
}

// checkHealth probes the camera and records the result.
func (l *Loop) checkHealth(ctx context.Context, now time.Time) {
	l.state.CameraLastProbeAt = now

	size, err := l.deps.Camera.CheckHealth(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Camera health check failed", "error", err)
		l.setCameraHealthy(ctx, now, false)

		return
	}

	logger.InfoKV(ctx, "Camera is healthy", "response_bytes", size)
	l.setCameraHealthy(ctx, now, true)
}

// setCameraHealthy records camera health and announces changes.
func (l *Loop) setCameraHealthy(ctx context.Context, now time.Time, healthy bool) {
	if l.state.CameraHealthy == healthy {
		return
	}

	l.state.CameraHealthy = healthy
	l.emit(ctx, domain.Event{At: now, Kind: domain.EventCamera, Active: healthy})
}

// processFrame acquires, detects and debounces one frame.
func (l *Loop) processFrame(ctx context.Context, now time.Time) bool {
	l.state.LastFrameAt = now

	img, err := l.deps.Camera.Next(ctx)
	if err != nil {
		l.state.FrameFailures++

		logger.WarnKV(ctx, "Frame acquisition failed",
			"failures", l.state.FrameFailures,
			"mode", l.deps.Camera.Mode(),
			"error", err,
		)

		if l.state.FrameFailures >= l.cfg.MaxFrameFailures && l.state.AudioPlaying.Load() {
			logger.ErrorKV(ctx, "Camera failing while alarm sound is playing, stopping audio",
				"failures", l.state.FrameFailures,
				"cycle_id", l.state.CycleID,
			)

			l.stopAudio(ctx, now)
			l.setCameraHealthy(ctx, now, false)
		}

		return false
	}

	l.state.FrameFailures = 0

	faces, err := l.deps.Detector.Detect(vision.ToGray(img))
	if err != nil {
		logger.DebugKV(ctx, "Face detection failed, assuming no faces", "error", err)

		faces = nil
	}

	l.debouncer.Observe(ctx, now, len(faces))

	if l.deps.Preview == nil {
		return false
	}

	return l.deps.Preview.Show(img, faces, vision.Overlay{
		Faces:        len(faces),
		AlarmPlaying: l.state.AudioPlaying.Load(),
	})
}

// emit stamps the cycle id, notifies observers and persists a snapshot.
func (l *Loop) emit(ctx context.Context, event domain.Event) {
	if event.CycleID == "" {
		event.CycleID = l.state.CycleID
	}

	if l.deps.Observer != nil {
		l.deps.Observer.Observe(ctx, event)
	}

	l.persist(ctx, event.At)
}

// persist saves a snapshot when a repository is configured.
func (l *Loop) persist(ctx context.Context, now time.Time) {
	if l.deps.Repository == nil {
		return
	}

	snapshot := l.snapshot(now)
	if err := l.deps.Repository.Save(ctx, &snapshot); err != nil {
		logger.WarnKV(ctx, "Failed to save state snapshot", "error", err)
	}
}

// snapshot copies the state with host and camera mode.
func (l *Loop) snapshot(now time.Time) domain.Snapshot {
	snapshot := l.state.Snapshot(now)
	snapshot.Host = l.deps.Host
	snapshot.CameraMode = l.deps.Camera.Mode().String()

	return snapshot
}

// shutdown releases resources after the last tick.
func (l *Loop) shutdown(ctx context.Context) {
	now := l.deps.Clock()

	l.stopAudio(ctx, now)

	if err := l.deps.Camera.Close(); err != nil {
		logger.WarnKV(ctx, "Failed to close camera", "error", err)
	}

	l.persist(ctx, now)

	logger.Info(ctx, "Synchronization loop stopped")
}
