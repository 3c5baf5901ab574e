package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/replay_capture/internal/output"
	"github.com/dgnsrekt/replay_capture/internal/types"
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var title string
	var duration time.Duration
	var headless bool

	cmd := &cobra.Command{
		Use:   "record <url>",
		Short: "Record a single replay link",
		Long:  "Records one replay. Without --title the output file is named after the game label found on the page.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyOverrides(cmd, deps.Config, duration, headless)
			if err := deps.Config.Validate(); err != nil {
				return err
			}
			f := output.NewFormatter(os.Stdout)

			rt, err := deps.App.Start(cmd.Context(), "record")
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := withInterrupt(cmd.Context(), rt.Sessions.Interrupt)
			defer stop()

			target := types.CaptureTarget{Identifier: title, SourceURL: args[0], DisplayTitle: title}
			rep := rt.Sessions.Run(ctx, target)
			f.Session(rep)
			if !rep.Succeeded() {
				return fmt.Errorf("recording failed: %s", rep.ErrorKind)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "n", "", "Name for the output file")
	addSessionFlags(cmd, deps.Config, &duration, &headless)

	return cmd
}
