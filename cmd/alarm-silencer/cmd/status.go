package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-silencer/internal/service/status"
)

// statusCmd prints the last snapshot and the live health.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the last recorded state of the silencer.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return status.Run(cmd.Context(), &status.Options{
			ConfigPath: configPath,
			Out:        cmd.OutOrStdout(),
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(statusCmd)
}
