package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgnsrekt/replay_capture/internal/session"
)

// withInterrupt returns a context cancelled by the first SIGINT or SIGTERM.
// That signal also interrupts the active session so it finalizes what it
// has recorded. Later signals are logged and ignored until stop is called.
func withInterrupt(parent context.Context, interrupt func(reason string) bool) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go watchSignals(sigCh, done, interrupt, cancel)
	return ctx, func() {
		signal.Stop(sigCh)
		close(done)
		cancel(nil)
	}
}

func watchSignals(sigCh <-chan os.Signal, done <-chan struct{}, interrupt func(string) bool, cancel context.CancelCauseFunc) {
	stopping := false
	for {
		select {
		case <-done:
			return
		case sig := <-sigCh:
			if stopping {
				slog.Warn("signal ignored while finalizing", "signal", sig.String())
				continue
			}
			stopping = true
			reason := "signal " + sig.String()
			active := interrupt != nil && interrupt(reason)
			slog.Warn("interrupt received, finishing current capture", "signal", sig.String(), "session_active", active)
			cancel(fmt.Errorf("%w: %s", session.ErrOperatorStop, reason))
		}
	}
}
