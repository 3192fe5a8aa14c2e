package checker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/alarm-silencer/internal/audio"
	"github.com/oshokin/alarm-silencer/internal/blynk"
	"github.com/oshokin/alarm-silencer/internal/camera"
	"github.com/oshokin/alarm-silencer/internal/config"
	domain "github.com/oshokin/alarm-silencer/internal/domain/alarm"
	"github.com/oshokin/alarm-silencer/internal/logger"
	"github.com/oshokin/alarm-silencer/internal/service/silencer"
)

// Options controls the diagnostics.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ExtraPins are read in addition to the alarm and face pins.
	ExtraPins []string
	// Monitor watches the alarm pin for changes for this long.
	Monitor time.Duration
	// PollInterval paces monitoring; DefaultPollInterval when zero.
	PollInterval time.Duration
	// WriteFace writes "1" then "0" to the face pin. This stops a sounding alarm.
	WriteFace bool
	// AudioTest plays the alarm for this long.
	AudioTest time.Duration
	// NewSink opens the audio output; silent playback when nil.
	NewSink func() (silencer.Sink, error)
}

// DefaultPollInterval paces monitoring of the alarm pin.
const DefaultPollInterval = time.Second

// ErrCheckFailed is returned when at least one check failed.
var ErrCheckFailed = errors.New("diagnostics failed")

// Run reads the pins, probes the camera and optionally exercises the face
// pin, the alarm pin monitor and the audio output. Every check runs even when
// an earlier one failed.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-check")

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	client, err := blynk.New(cfg.Blynk.Server, cfg.Blynk.Token, blynk.WithCallTimeout(cfg.Blynk.Timeout))
	if err != nil {
		return fmt.Errorf("create blynk client: %w", err)
	}

	var failed []error

	pins := append([]string{cfg.Blynk.AlarmPin, cfg.Blynk.FacePin}, opts.ExtraPins...)
	failed = append(failed, readPins(ctx, client, pins)...)

	if opts.WriteFace {
		failed = append(failed, writeFace(ctx, client, cfg.Blynk.FacePin)...)
	}

	failed = append(failed, checkCamera(ctx, &cfg.Camera)...)

	if opts.AudioTest > 0 {
		if err = playAudio(ctx, cfg, opts); err != nil {
			failed = append(failed, err)
		}
	}

	if opts.Monitor > 0 {
		monitor(ctx, client, cfg.Blynk.AlarmPin, opts)
	}

	if len(failed) > 0 {
		logger.ErrorKV(ctx, "Diagnostics finished with failures", "failures", len(failed))
		return fmt.Errorf("%w: %w", ErrCheckFailed, errors.Join(failed...))
	}

	logger.Info(ctx, "All checks passed")

	return nil
}

// readPins reads and logs every pin.
func readPins(ctx context.Context, client *blynk.Client, pins []string) []error {
	var failed []error

	for _, pin := range pins {
		value, err := client.ReadFlag(ctx, pin)
		if err != nil {
			logger.ErrorKV(ctx, "Pin read failed", "pin", pin, "error", err)
			failed = append(failed, err)

			continue
		}

		flag, ok := domain.ParseFlag(value)
		logger.InfoKV(ctx, "Pin read", "pin", pin, "value", value, "flag", flag, "valid", ok)
	}

	return failed
}

// writeFace toggles the face pin on and off.
func writeFace(ctx context.Context, client *blynk.Client, pin string) []error {
	var failed []error

	for _, value := range []string{domain.ValueOn, domain.ValueOff} {
		if err := client.WriteFlag(ctx, pin, value); err != nil {
			logger.ErrorKV(ctx, "Pin write failed", "pin", pin, "value", value, "error", err)
			failed = append(failed, err)

			continue
		}

		logger.InfoKV(ctx, "Pin written", "pin", pin, "value", value)
	}

	return failed
}

// checkCamera probes the stream and capture endpoints and runs a health check.
func checkCamera(ctx context.Context, cfg *config.Camera) []error {
	feed := camera.NewFeed(camera.OptionsFromConfig(cfg))

	defer func() {
		_ = feed.Close()
	}()

	var failed []error

	if err := feed.Probe(ctx); err != nil {
		logger.ErrorKV(ctx, "Camera probe failed", "error", err)
		failed = append(failed, err)
	} else {
		logger.InfoKV(ctx, "Camera probe succeeded", "mode", feed.Mode())
	}

	size, err := feed.CheckHealth(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Camera health check failed", "error", err)
		return append(failed, err)
	}

	logger.InfoKV(ctx, "Camera is healthy", "response_bytes", size)

	return failed
}

// playAudio plays the alarm pattern for opts.AudioTest.
func playAudio(ctx context.Context, cfg *config.Config, opts *Options) error {
	var sink audio.Sink = audio.SilentSink{}

	if opts.NewSink != nil && !cfg.Audio.Disabled {
		deviceSink, err := opts.NewSink()
		if err != nil {
			logger.ErrorKV(ctx, "Audio output unavailable", "error", err)
			return fmt.Errorf("open audio output: %w", err)
		}

		defer func() {
			_ = deviceSink.Close()
		}()

		sink = deviceSink
	}

	controller := audio.NewController(sink, audio.LoadClipOrBeep(ctx, cfg.Audio.Clip), nil)
	controller.Start(ctx)

	timer := time.NewTimer(opts.AudioTest)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	if !controller.Stop() {
		return errors.New("alarm playback ended early")
	}

	logger.InfoKV(ctx, "Audio test finished", "duration", opts.AudioTest)

	return nil
}

// monitor logs changes of the alarm pin until opts.Monitor elapsed or ctx is canceled.
func monitor(ctx context.Context, client *blynk.Client, pin string, opts *Options) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ctx = logger.WithKV(ctx, "pin", pin)

	logger.InfoKV(ctx, "Monitoring alarm pin", "duration", opts.Monitor, "interval", interval)

	monitorCtx, cancel := context.WithTimeout(ctx, opts.Monitor)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *string

	for {
		select {
		case <-monitorCtx.Done():
			logger.Info(ctx, "Monitoring finished")
			return
		case <-ticker.C:
			value, err := client.ReadFlag(monitorCtx, pin)
			if err != nil {
				logger.WarnKV(ctx, "Pin read failed", "error", err)
				continue
			}

			if last != nil && *last == value {
				continue
			}

			flag, _ := domain.ParseFlag(value)
			logger.InfoKV(ctx, "Alarm pin changed", "value", value, "flag", flag)

			last = &value
		}
	}
}
