package cli

import (
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/replay_capture/internal/app"
	"github.com/dgnsrekt/replay_capture/internal/config"
)

type Dependencies struct {
	App    *app.App
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "replay_recorder",
		Short: "Record canvas game replays to MP4",
		Long:  "Opens each replay link in a browser, unlocks its audio, captures the canvas with sound and transcodes the capture to MP4.\nWith BATCH_MODE=true and no subcommand, runs the batch over TARGETS_FILE.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !deps.Config.BatchMode {
				return cmd.Help()
			}
			return runBatch(cmd, deps, deps.Config.TargetsFile)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewBatchCmd(deps))
	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewCompressCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
