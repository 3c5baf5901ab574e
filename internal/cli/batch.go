package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/replay_capture/internal/batch"
	"github.com/dgnsrekt/replay_capture/internal/config"
	"github.com/dgnsrekt/replay_capture/internal/notify"
	"github.com/dgnsrekt/replay_capture/internal/output"
)

const notifyTimeout = 10 * time.Second

func NewBatchCmd(deps *Dependencies) *cobra.Command {
	var targets string
	var duration time.Duration
	var headless bool

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Record every replay in the targets file",
		Long:  "Records each replay in the targets file one at a time, skipping replays that already have an MP4 in the output directory.\nCtrl+C finishes the current capture and stops the batch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyOverrides(cmd, deps.Config, duration, headless)
			return runBatch(cmd, deps, targets)
		},
	}

	cmd.Flags().StringVarP(&targets, "targets", "t", deps.Config.TargetsFile, "JSON file of {title, replayUrl} items")
	addSessionFlags(cmd, deps.Config, &duration, &headless)

	return cmd
}

// addSessionFlags registers the flags shared by batch and record.
func addSessionFlags(cmd *cobra.Command, cfg *config.Config, duration *time.Duration, headless *bool) {
	cmd.Flags().DurationVarP(duration, "duration", "d", cfg.RecordDuration, "Recording length")
	cmd.Flags().BoolVar(headless, "headless", cfg.Headless, "Run the browser headless")
}

// applyOverrides copies flags the operator set onto the configuration.
func applyOverrides(cmd *cobra.Command, cfg *config.Config, duration time.Duration, headless bool) {
	if cmd.Flags().Changed("duration") {
		cfg.RecordDuration = duration
		if cfg.MaxRecording < duration {
			cfg.MaxRecording = duration
		}
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = headless
	}
}

func runBatch(cmd *cobra.Command, deps *Dependencies, targetsFile string) error {
	f := output.NewFormatter(os.Stdout)

	targets, err := batch.LoadTargets(targetsFile)
	if err != nil {
		return err
	}
	if err := deps.Config.Validate(); err != nil {
		return err
	}

	rt, err := deps.App.Start(cmd.Context(), "batch")
	if err != nil {
		return err
	}
	defer rt.Close()
	if addr := rt.ControlAddr(); addr != "" {
		f.Info(fmt.Sprintf("control api on http://%s/docs", addr))
	}

	ctx, stop := withInterrupt(cmd.Context(), rt.Sessions.Interrupt)
	defer stop()

	sum := rt.Batch.RunBatch(ctx, targets)
	f.BatchSummary(sum)

	if url := deps.Config.NotifyURL; url != "" {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		client := &http.Client{Timeout: notifyTimeout}
		if err := notify.SendSummary(nctx, client, url, "batch", sum); err != nil {
			slog.Warn("batch notification failed", "error", err)
		}
	}
	return nil
}
