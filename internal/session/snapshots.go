package session

import (
	"context"
	"log/slog"

	"github.com/dgnsrekt/replay_capture/internal/snapshot"
	"github.com/dgnsrekt/replay_capture/internal/unlock"
)

// snapEvery spaces out frames during long fallback loops.
const snapEvery = 30

// observeGesture returns an unlock observer that saves a frame for the first
// gesture, every snapEvery-th gesture, and the gesture that unlocked audio.
func (s *sessionRun) observeGesture(page Page) unlock.Observer {
	return func(ctx context.Context, g unlock.Gesture, unlocked bool) {
		if !unlocked {
			s.gestures++
			if s.gestures != 1 && s.gestures%snapEvery != 0 {
				return
			}
		}
		img, err := page.Screenshot(ctx)
		if err != nil {
			slog.Debug("session snapshot failed", "id", s.id, "error", err)
			return
		}
		reason := snapshot.ReasonGesture
		if unlocked {
			reason = snapshot.ReasonUnlocked
		}
		meta, err := s.c.snapshots.SaveFrame(snapshot.Frame{
			SessionID:     s.id,
			Target:        s.snapshot().Target.Identifier,
			Reason:        reason,
			Strategy:      g.Strategy,
			Attempt:       g.Attempt,
			X:             g.X,
			Y:             g.Y,
			ViewportWidth: s.c.opts.Profile.Surface.Width,
			Image:         img,
		})
		if err != nil {
			slog.Debug("session snapshot save failed", "id", s.id, "error", err)
			return
		}
		slog.Debug("session snapshot saved", "id", s.id, "snapshot", meta.ID, "strategy", g.Strategy, "attempt", g.Attempt)
	}
}
