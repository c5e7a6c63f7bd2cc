package cli

import (
	"github.com/spf13/cobra"

	"github.com/ThurX360/WIZFUT/internal/app"
)

var (
	replayFile   string
	replayDryRun bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run one CSV snapshot through the detection pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ReplayOptions{
			Path:   replayFile,
			DryRun: replayDryRun,
		}
		return getApp().Replay(cmd.Context(), opts)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayFile, "file", "", "Path to the CSV snapshot to replay")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "Evaluate detectors without persisting or notifying")
}
