package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-silencer/internal/service/checker"
)

var (
	// checkOptions collects the check flags.
	checkOptions checker.Options

	// checkCmd runs one-shot diagnostics.
	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Check the Blynk pins, the camera and the audio output.",
		Long: `Run one-shot diagnostics against the configured devices.

Reads the alarm and face pins (and any --pin), probes the camera stream and
still capture endpoints and runs a health check. Optionally toggles the face
pin, plays the alarm for a few seconds and watches the alarm pin for changes.
Exits with a non-zero status when any check failed.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := notifyContext()
			defer stop()

			checkOptions.ConfigPath = configPath
			checkOptions.NewSink = newSink

			return checker.Run(ctx, &checkOptions)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := checkCmd.Flags()
	flags.StringSliceVar(&checkOptions.ExtraPins, "pin", nil, "additional virtual pins to read, e.g. --pin V0,V1")
	flags.BoolVar(&checkOptions.WriteFace, "write-face", false, `write "1" then "0" to the face pin (stops a sounding alarm)`)
	flags.DurationVar(&checkOptions.AudioTest, "audio-test", 0, "play the alarm for this long, e.g. 3s")
	flags.DurationVar(&checkOptions.Monitor, "monitor", 0, "log alarm pin changes for this long, e.g. 5m")
	flags.DurationVar(&checkOptions.PollInterval, "interval", checker.DefaultPollInterval, "alarm pin monitoring interval")

	rootCmd.AddCommand(checkCmd)
}
