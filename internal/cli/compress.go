package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/replay_capture/internal/output"
	"github.com/dgnsrekt/replay_capture/internal/transcode"
)

func NewCompressCmd(deps *Dependencies) *cobra.Command {
	var src, dst string

	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Re-encode recordings into a smaller mp4/ copy",
		Long:  "Re-encodes every recording in the output directory into <dir>/mp4, skipping files that already have a compressed copy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(os.Stdout)
			t := transcode.New(deps.Config.FFmpegPath, transcode.CompressArgs(), deps.Config.TranscodeTimeout)

			ctx, stop := withInterrupt(cmd.Context(), nil)
			defer stop()

			sum, err := transcode.NewCompressor(t, src, dst).Run(ctx)
			if err != nil {
				return err
			}
			f.CompressSummary(sum)
			return nil
		},
	}

	cmd.Flags().StringVarP(&src, "src", "s", deps.Config.OutputDir, "Directory holding the recordings")
	cmd.Flags().StringVarP(&dst, "dst", "o", "", "Destination directory (default <src>/mp4)")

	return cmd
}
