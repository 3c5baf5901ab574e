package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/replay_capture/internal/session"
	"github.com/dgnsrekt/replay_capture/internal/types"
)

// Runner executes one capture session.
type Runner interface {
	Run(ctx context.Context, target types.CaptureTarget) session.Report
}

// Ledger answers whether a target already has a final artifact.
type Ledger interface {
	Completed(identifier string) (string, bool, error)
}

// Failure is one failed batch item.
type Failure struct {
	Identifier string       `json:"identifier"`
	Kind       session.Kind `json:"kind"`
	Message    string       `json:"message"`
}

// Summary counts batch outcomes. Total counts every input item.
type Summary struct {
	Total        int       `json:"total"`
	Completed    int       `json:"completed"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	Excluded     int       `json:"excluded"`
	NotAttempted int       `json:"not_attempted"`
	Interrupted  bool      `json:"interrupted"`
	Failures     []Failure `json:"failures,omitempty"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d completed, %d skipped, %d failed, %d excluded, %d not attempted of %d",
		s.Completed, s.Skipped, s.Failed, s.Excluded, s.NotAttempted, s.Total)
}

// Clean reports whether every attempted item completed and nothing was
// interrupted.
func (s Summary) Clean() bool {
	return s.Failed == 0 && !s.Interrupted && s.NotAttempted == 0
}

// Progress is the live view of a running batch.
type Progress struct {
	Running bool                `json:"running"`
	Index   int                 `json:"index"`
	Queued  int                 `json:"queued"`
	Current types.CaptureTarget `json:"current"`
	Summary Summary             `json:"summary"`
}

// Orchestrator drives sessions over a target list, one at a time.
type Orchestrator struct {
	runner Runner
	ledger Ledger
	pace   time.Duration
	onItem func(Progress)
	sleep  func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex // protects: progress
	progress Progress
}

// New creates an orchestrator that waits pace between items.
func New(runner Runner, ledger Ledger, pace time.Duration) *Orchestrator {
	return &Orchestrator{runner: runner, ledger: ledger, pace: pace, sleep: sleepCtx}
}

// OnItem registers fn to receive progress after every item.
func (o *Orchestrator) OnItem(fn func(Progress)) *Orchestrator {
	o.onItem = fn
	return o
}

// Progress returns a copy of the current progress.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := o.progress
	p.Summary.Failures = append([]Failure(nil), p.Summary.Failures...)
	return p
}

func (o *Orchestrator) setProgress(fn func(p *Progress)) {
	o.mu.Lock()
	fn(&o.progress)
	p := o.progress
	o.mu.Unlock()
	if o.onItem != nil {
		o.onItem(p)
	}
}

// RunBatch processes targets in order. Items without a URL are excluded and
// items already in the ledger are skipped. A failed item never stops the
// batch; cancelling ctx finishes the in-flight session and stops.
func (o *Orchestrator) RunBatch(ctx context.Context, targets []types.CaptureTarget) Summary {
	sum := Summary{Total: len(targets)}
	queue := make([]types.CaptureTarget, 0, len(targets))
	for _, t := range targets {
		if !t.HasURL() {
			sum.Excluded++
			continue
		}
		queue = append(queue, t)
	}
	slog.Info("batch start", "total", sum.Total, "queued", len(queue), "excluded", sum.Excluded)
	o.setProgress(func(p *Progress) { *p = Progress{Running: true, Queued: len(queue), Summary: sum} })

	for i, t := range queue {
		pos := fmt.Sprintf("[%d/%d]", i+1, len(queue))
		if ctx.Err() != nil {
			sum.NotAttempted = len(queue) - i
			sum.Interrupted = true
			slog.Warn("batch interrupted", "not_attempted", sum.NotAttempted)
			break
		}

		if path, done, err := o.ledger.Completed(t.Identifier); err != nil {
			slog.Warn("batch ledger check failed, recording anyway", "item", pos, "identifier", t.Identifier, "error", err)
		} else if done {
			sum.Skipped++
			slog.Info("batch skip, already recorded", "item", pos, "identifier", t.Identifier, "path", path)
			o.setProgress(func(p *Progress) { p.Index = i + 1; p.Current = t; p.Summary = sum })
			continue
		}

		slog.Info("batch item", "item", pos, "identifier", t.Identifier, "url", t.SourceURL)
		o.setProgress(func(p *Progress) { p.Index = i + 1; p.Current = t })
		rep := o.runOne(ctx, t)
		if rep.Succeeded() {
			sum.Completed++
			slog.Info("batch item complete", "item", pos, "identifier", t.Identifier, "output", rep.FinalPath)
		} else {
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{Identifier: t.Identifier, Kind: rep.ErrorKind, Message: rep.Error})
			slog.Error("batch item failed", "item", pos, "identifier", t.Identifier, "kind", rep.ErrorKind, "error", rep.Error)
		}
		o.setProgress(func(p *Progress) { p.Summary = sum })

		if rep.Interrupted || rep.ErrorKind == session.KindInterrupted || ctx.Err() != nil {
			sum.NotAttempted = len(queue) - i - 1
			sum.Interrupted = true
			slog.Warn("batch stopping after interrupted session", "not_attempted", sum.NotAttempted)
			break
		}
		if i < len(queue)-1 {
			if err := o.sleep(ctx, o.pace); err != nil {
				sum.NotAttempted = len(queue) - i - 1
				sum.Interrupted = true
				slog.Warn("batch interrupted while pacing", "not_attempted", sum.NotAttempted)
				break
			}
		}
	}

	slog.Info("batch done",
		"total", sum.Total,
		"completed", sum.Completed,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"excluded", sum.Excluded,
		"not_attempted", sum.NotAttempted,
	)
	for _, f := range sum.Failures {
		slog.Info("batch failure", "identifier", f.Identifier, "kind", f.Kind, "message", f.Message)
	}
	o.setProgress(func(p *Progress) { p.Running = false; p.Summary = sum })
	return sum
}

// runOne converts a panic in the session into a failed report.
func (o *Orchestrator) runOne(ctx context.Context, t types.CaptureTarget) (rep session.Report) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("session panic: %v", r)
			slog.Error("batch recovered panic", "identifier", t.Identifier, "error", err)
			rep = session.Report{
				Target:    t,
				Status:    session.StatusFailed,
				ErrorKind: session.KindInternal,
				Error:     err.Error(),
			}
		}
	}()
	return o.runner.Run(ctx, t)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
