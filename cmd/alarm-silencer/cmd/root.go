package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-silencer/internal/audio/portaudio"
	"github.com/oshokin/alarm-silencer/internal/config"
	"github.com/oshokin/alarm-silencer/internal/logger"
	"github.com/oshokin/alarm-silencer/internal/service/silencer"
	"github.com/oshokin/alarm-silencer/internal/version"
	"github.com/oshokin/alarm-silencer/internal/vision"
	"github.com/oshokin/alarm-silencer/internal/vision/cascade"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string

	// rootCmd runs the synchronization loop.
	rootCmd = &cobra.Command{
		Use:   "alarm-silencer",
		Short: "Play the ESP32-CAM alarm locally and silence it when a face shows up.",
		Long: `Companion process for the ESP32-CAM alarm clock.

Polls the Blynk alarm pin every second. While the alarm is armed and the camera
answers a health check, the alarm sound plays on this computer. Camera frames
are scanned for faces; the first face writes "1" to the face pin so the clock
stops the alarm, and "0" is written once no face was seen for the debounce
timeout.

Audio never starts while the camera is unhealthy, and it is stopped when frames
keep failing, so a broken camera cannot silently disable the alarm.`,
		Args: cobra.NoArgs,
		RunE: runSilencer,
	}
)

// Execute runs the alarm-silencer CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()

	// os.Exit skips deferred calls.
	logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}

// notifyContext cancels on SIGTERM or SIGINT.
func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// newDetector loads the Haar cascade.
func newDetector(cfg config.Detector) (vision.Detector, error) {
	detector, err := cascade.NewDetector(cfg.CascadeFile, cascade.Params{
		ScaleFactor:  cfg.ScaleFactor,
		MinNeighbors: *cfg.MinNeighbors,
		MinSize:      *cfg.MinSize,
	})
	if err != nil {
		return nil, err
	}

	return detector, nil
}

// newSink opens the default audio output.
func newSink() (silencer.Sink, error) {
	sink, err := portaudio.NewSink()
	if err != nil {
		return nil, err
	}

	return sink, nil
}

// newPreview opens the OpenCV window.
func newPreview() (vision.Preview, error) {
	return cascade.NewWindow(), nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Config flag is shared by every subcommand.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")

	bindRunFlags(rootCmd)
}
