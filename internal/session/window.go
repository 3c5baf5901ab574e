package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/replay_capture/internal/capture"
	"github.com/dgnsrekt/replay_capture/internal/types"
	"github.com/dgnsrekt/replay_capture/internal/unlock"
)

// Reasons a recording window ends.
const (
	EndDuration    = "duration"
	EndMarker      = "end_marker"
	EndTimerDrop   = "audio_timer_drop"
	EndMaxDuration = "max_duration"
	EndInterrupted = "interrupted"
)

// Audio timer thresholds for the event window: a replay that was playing
// sound (above timerActive) and falls below timerIdle has ended.
const (
	timerActive = 20
	timerIdle   = 5
)

// hold keeps the sink recording until the window policy says stop or ctx is
// cancelled. It never touches the sink itself.
func (s *sessionRun) hold(ctx context.Context, page Page, sink *capture.Sink, h *unlock.Heuristic) string {
	if s.c.opts.Profile.Window == types.WindowEvent {
		return s.holdUntilEvent(ctx, page, sink, h)
	}
	return s.holdFixed(ctx, sink)
}

func (s *sessionRun) holdFixed(ctx context.Context, sink *capture.Sink) string {
	d := s.c.opts.RecordDuration
	slog.Info("session recording", "id", s.id, "window", types.WindowFixed, "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	progress := time.NewTicker(s.c.opts.ProgressInterval)
	defer progress.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return EndInterrupted
		case <-timer.C:
			return EndDuration
		case <-progress.C:
			info := sink.Info()
			slog.Info("session recording progress",
				"id", s.id,
				"elapsed", time.Since(start).Round(time.Second),
				"remaining", (d - time.Since(start)).Round(time.Second),
				"bytes", info.Bytes,
			)
		}
	}
}

// holdUntilEvent ends on the page's end marker text or a drop in the audio
// timer, capped by the max recording duration. The timer thresholds are
// observational and have not been validated across titles.
func (s *sessionRun) holdUntilEvent(ctx context.Context, page Page, sink *capture.Sink, h *unlock.Heuristic) string {
	maxD := s.c.opts.MaxRecording
	slog.Info("session recording", "id", s.id, "window", types.WindowEvent, "max_duration", maxD)

	limit := time.NewTimer(maxD)
	defer limit.Stop()
	poll := time.NewTicker(s.c.opts.EventPoll)
	defer poll.Stop()
	progress := time.NewTicker(s.c.opts.ProgressInterval)
	defer progress.Stop()

	markerExpr := jsHeadingContains(s.c.opts.EndMarker)
	var lastOn float64
	for {
		select {
		case <-ctx.Done():
			return EndInterrupted
		case <-limit.C:
			return EndMaxDuration
		case <-progress.C:
			slog.Info("session recording progress", "id", s.id, "bytes", sink.Info().Bytes, "audio_timer", lastOn)
		case <-poll.C:
			if s.c.opts.EndMarker != "" {
				var over bool
				if err := page.Evaluate(ctx, markerExpr, &over); err == nil && over {
					return EndMarker
				}
			}
			probe, err := h.Sample(ctx, page)
			if err != nil {
				slog.Debug("session audio timer read failed", "id", s.id, "error", err)
				continue
			}
			if lastOn > timerActive && probe.On < timerIdle {
				return EndTimerDrop
			}
			lastOn = probe.On
		}
	}
}
