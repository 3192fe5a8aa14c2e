package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-silencer/internal/service/silencer"
)

var (
	// preview shows the camera window with detections.
	preview bool
	// audioOnly skips face detection.
	audioOnly bool

	// runCmd is an explicit alias of the root action.
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the synchronization loop (default).",
		Args:  cobra.NoArgs,
		RunE:  runSilencer,
	}
)

// runSilencer runs the loop until SIGTERM, SIGINT or the preview is closed.
func runSilencer(_ *cobra.Command, _ []string) error {
	// Setup graceful shutdown handling.
	ctx, stop := notifyContext()
	defer stop()

	return silencer.Run(ctx, &silencer.Options{
		ConfigPath:  configPath,
		Preview:     preview,
		AudioOnly:   audioOnly,
		NewDetector: newDetector,
		NewSink:     newSink,
		NewPreview:  newPreview,
	})
}

// bindRunFlags registers the loop flags on command.
func bindRunFlags(command *cobra.Command) {
	command.Flags().BoolVarP(&preview, "preview", "p", false, "show the camera preview window (press q to quit)")
	command.Flags().BoolVarP(&audioOnly, "audio-only", "a", false, "follow the alarm pin without face detection")
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	bindRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
