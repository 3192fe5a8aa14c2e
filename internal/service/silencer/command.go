package silencer

import (
	"context"
	"fmt"
	"image"
	"io"
	"net"
	"sync"

	"github.com/oshokin/alarm-silencer/internal/api/grpc/health"
	"github.com/oshokin/alarm-silencer/internal/audio"
	"github.com/oshokin/alarm-silencer/internal/blynk"
	"github.com/oshokin/alarm-silencer/internal/camera"
	"github.com/oshokin/alarm-silencer/internal/config"
	domain "github.com/oshokin/alarm-silencer/internal/domain/alarm"
	"github.com/oshokin/alarm-silencer/internal/logger"
	"github.com/oshokin/alarm-silencer/internal/notify/mqtt"
	repository "github.com/oshokin/alarm-silencer/internal/repository/state"
	"github.com/oshokin/alarm-silencer/internal/service/common"
	"github.com/oshokin/alarm-silencer/internal/version"
	"github.com/oshokin/alarm-silencer/internal/vision"
)

// Sink is an audio output device that must be released.
type Sink interface {
	audio.Sink
	io.Closer
}

// Options controls the run command. The factories keep OpenCV and PortAudio
// out of this package.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Preview forces the preview window on.
	Preview bool
	// AudioOnly forces frame processing off.
	AudioOnly bool
	// NewDetector loads the face detector.
	NewDetector func(cfg config.Detector) (vision.Detector, error)
	// NewSink opens the audio output device.
	NewSink func() (Sink, error)
	// NewPreview opens the preview window.
	NewPreview func() (vision.Preview, error)
}

// Run loads configuration, probes the camera and runs the synchronization
// loop until ctx is canceled or the preview is closed. Startup failures are
// returned; once the loop runs every failure is logged and absorbed.
//
//nolint:funlen,cyclop // Linear wiring of optional components.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-silencer")

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Command line flags can only enable these modes.
	cfg.Loop.Preview = cfg.Loop.Preview || opts.Preview
	cfg.Loop.AudioOnly = cfg.Loop.AudioOnly || opts.AudioOnly

	level, _ := logger.ParseLogLevel(cfg.LogLevel)
	logger.SetLevel(level)

	logger.InfoKV(ctx, "Starting alarm silencer", version.Fields()...)

	// Two silencers would fight over the speakers and the face pin.
	if err = common.EnsureSingleInstance(); err != nil {
		return err
	}

	// Detect current system actor for events and snapshots.
	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	flags, err := blynk.New(cfg.Blynk.Server, cfg.Blynk.Token, blynk.WithCallTimeout(cfg.Blynk.Timeout))
	if err != nil {
		return fmt.Errorf("create blynk client: %w", err)
	}

	feed := camera.NewFeed(camera.OptionsFromConfig(&cfg.Camera))

	// Frames are needed to silence the alarm, so the camera must answer at
	// startup. Audio-only mode reads no frames; health checks still gate
	// playback there.
	if cfg.Loop.AudioOnly {
		logger.Info(ctx, "Audio-only mode, skipping camera discovery")
	} else if err = feed.Probe(ctx); err != nil {
		return fmt.Errorf("probe camera: %w", err)
	}

	detector, err := newDetector(cfg, opts)
	if err != nil {
		_ = feed.Close()
		return err
	}

	defer func() {
		_ = detector.Close()
	}()

	state := new(domain.SyncState)

	sink, err := newSink(cfg, opts)
	if err != nil {
		_ = feed.Close()
		return err
	}

	defer func() {
		_ = sink.Close()
	}()

	player := audio.NewController(sink, audio.LoadClipOrBeep(ctx, cfg.Audio.Clip), &state.AudioPlaying)

	preview, err := newPreview(cfg, opts)
	if err != nil {
		_ = feed.Close()
		return err
	}

	if preview != nil {
		defer func() {
			_ = preview.Close()
		}()
	}

	// Background components stop with runCtx after the loop returned.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var (
		wg        sync.WaitGroup
		observers domain.Observers
	)

	if cfg.MQTT.Broker != "" {
		mqttOpts := mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      cfg.MQTT.QoS,
			Host:     actor,
		}

		client, connectErr := mqtt.Connect(ctx, mqttOpts)
		if connectErr != nil {
			logger.WarnKV(ctx, "MQTT mirror disabled", "broker", cfg.MQTT.Broker, "error", connectErr)
		} else {
			defer client.Close()

			mirror := mqtt.NewMirror(client, mqttOpts)
			observers = append(observers, mirror)

			wg.Go(func() {
				mirror.Run(runCtx)
			})
		}
	}

	if cfg.Status.ListenAddress != "" {
		lc := net.ListenConfig{}

		lis, listenErr := lc.Listen(ctx, "tcp", cfg.Status.ListenAddress)
		if listenErr != nil {
			_ = feed.Close()
			return fmt.Errorf("listen on %s: %w", cfg.Status.ListenAddress, listenErr)
		}

		statusServer := health.NewServer()
		statusServer.SetLoopServing(true)
		observers = append(observers, statusServer)

		wg.Go(func() {
			if serveErr := statusServer.Serve(runCtx, lis); serveErr != nil {
				logger.ErrorKV(runCtx, "Status server failed", "error", serveErr)
			}
		})
	}

	systemd := newNotifier(ctx)

	loop := NewLoop(loopConfig(cfg), state, Dependencies{
		Flags:      flags,
		Camera:     feed,
		Detector:   detector,
		Player:     player,
		Preview:    preview,
		Observer:   observers,
		Repository: repository.NewFileRepository(cfg.Status.StateFile),
		Host:       actor,
		Heartbeat:  systemd.heartbeat,
	})

	systemd.ready(ctx)

	err = loop.Run(ctx)

	systemd.stopping(context.WithoutCancel(ctx))
	cancelRun()
	wg.Wait()

	return err
}

// loopConfig extracts the loop settings.
func loopConfig(cfg *config.Config) LoopConfig {
	return LoopConfig{
		AlarmPin:            cfg.Blynk.AlarmPin,
		FacePin:             cfg.Blynk.FacePin,
		PollInterval:        cfg.Loop.PollInterval,
		HealthInterval:      cfg.Camera.HealthInterval,
		FrameInterval:       cfg.Camera.FrameInterval,
		StreamFrameInterval: cfg.Camera.StreamFrameInterval,
		NoFaceTimeout:       cfg.Detector.NoFaceTimeout,
		MaxFrameFailures:    cfg.Camera.MaxFrameFailures,
		AudioOnly:           cfg.Loop.AudioOnly,
	}
}

// newDetector loads the detector unless frames are skipped.
func newDetector(cfg *config.Config, opts *Options) (vision.Detector, error) {
	if cfg.Loop.AudioOnly || opts.NewDetector == nil {
		return vision.DetectorFunc(noFaces), nil
	}

	detector, err := opts.NewDetector(cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("load face detector: %w", err)
	}

	return detector, nil
}

// newSink opens the audio device unless audio is disabled.
func newSink(cfg *config.Config, opts *Options) (Sink, error) {
	if cfg.Audio.Disabled || opts.NewSink == nil {
		return silentSink{}, nil
	}

	sink, err := opts.NewSink()
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}

	return sink, nil
}

// newPreview opens the preview window when requested.
func newPreview(cfg *config.Config, opts *Options) (vision.Preview, error) {
	if !cfg.Loop.Preview || cfg.Loop.AudioOnly || opts.NewPreview == nil {
		return nil, nil //nolint:nilnil // No preview is a valid result.
	}

	preview, err := opts.NewPreview()
	if err != nil {
		return nil, fmt.Errorf("open preview: %w", err)
	}

	return preview, nil
}

// noFaces is the detector used when frames are never processed.
func noFaces(*image.Gray) ([]image.Rectangle, error) {
	return nil, nil
}

// silentSink adapts audio.SilentSink to Sink.
type silentSink struct {
	audio.SilentSink
}

// Close does nothing.
func (silentSink) Close() error {
	return nil
}
