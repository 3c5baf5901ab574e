package unlock

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/replay_capture/internal/types"
)

// Page is the slice of the engine the heuristic drives.
type Page interface {
	Evaluate(ctx context.Context, expr string, out any) error
	PointerMove(ctx context.Context, x, y float64) error
	PointerDown(ctx context.Context, x, y float64) error
	PointerUp(ctx context.Context, x, y float64) error
}

// AudioProbe is one sample of the page's sound timers.
type AudioProbe struct {
	On  float64 `json:"on"`
	Off float64 `json:"off"`
}

// Gesture describes a performed click for observers.
type Gesture struct {
	Strategy string
	Attempt  int
	X, Y     float64
}

// Observer is notified after every gesture and once more on success.
type Observer func(ctx context.Context, g Gesture, unlocked bool)

// Result is the outcome of an unlock attempt. Unlocked false is not an error.
type Result struct {
	Unlocked bool          `json:"unlocked"`
	Gestures int           `json:"gestures"`
	Probes   int           `json:"probes"`
	Strategy string        `json:"strategy,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Heuristic interprets a Plan under an UnlockPolicy.
type Heuristic struct {
	plan     Plan
	policy   types.UnlockPolicy
	timeout  time.Duration
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(plan Plan, policy types.UnlockPolicy, timeout time.Duration) *Heuristic {
	return &Heuristic{plan: plan, policy: policy, timeout: timeout, sleep: sleepCtx}
}

// WithObserver sets a gesture observer.
func (h *Heuristic) WithObserver(o Observer) *Heuristic {
	h.observer = o
	return h
}

// Prime runs the plan's programmatic sound init. Failure is only logged.
func (h *Heuristic) Prime(ctx context.Context, page Page) {
	if h.plan.Prime == "" {
		return
	}
	var primed bool
	if err := page.Evaluate(ctx, h.plan.Prime, &primed); err != nil {
		slog.Debug("unlock prime failed", "error", err)
		return
	}
	slog.Info("unlock prime", "primed", primed)
}

// Probe samples the audio timers. Evaluation errors read as silence.
func (h *Heuristic) Probe(ctx context.Context, page Page) (AudioProbe, bool) {
	p, err := h.Sample(ctx, page)
	if err != nil {
		slog.Debug("unlock probe failed", "error", err)
		return AudioProbe{}, false
	}
	return p, h.enabled(p)
}

// Sample reads the audio timers and reports evaluation errors, so callers
// can tell a failed read apart from a silent page.
func (h *Heuristic) Sample(ctx context.Context, page Page) (AudioProbe, error) {
	var p AudioProbe
	if err := page.Evaluate(ctx, h.probeExpr(), &p); err != nil {
		return AudioProbe{}, err
	}
	return p, nil
}

func (h *Heuristic) enabled(p AudioProbe) bool {
	if h.plan.Probe.Predicate == PredicateOnGtOff {
		return p.On > p.Off
	}
	return p.On > 0
}

func (h *Heuristic) probeExpr() string {
	return `(() => {
const read = (f) => { try { return Number(f()) || 0; } catch (e) { return 0; } };
return {on: read(() => ` + h.plan.Probe.On + `), off: read(() => ` + h.plan.Probe.Off + `)};
})()`
}

// Unlock tries to get audio playing. It polls before the first gesture and
// after every gesture, and stops at the first positive poll, so it never
// clicks while sound is already on.
func (h *Heuristic) Unlock(ctx context.Context, page Page, surface types.Box) Result {
	start := time.Now()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	r := &run{h: h, page: page}

	if r.poll(ctx) {
		slog.Info("unlock audio already on", "probes", r.res.Probes)
		return r.finish(start, "initial")
	}

	if h.policy != types.UnlockSingleProbe {
		candidates := h.plan.Candidates(surface)
		slog.Info("unlock ranked scan", "candidates", len(candidates), "policy", h.policy)
		for i, c := range candidates {
			if ctx.Err() != nil {
				return r.fail(start)
			}
			r.gesture(ctx, c, i+1)
			if err := h.sleep(ctx, h.plan.Gesture.settle()); err != nil {
				return r.fail(start)
			}
			if r.poll(ctx) {
				r.notify(ctx, c, i+1, true)
				return r.finish(start, c.Strategy)
			}
		}
	}

	fb := h.plan.FallbackCandidate(surface)
	maxAttempts := h.plan.Fallback.MaxAttempts
	if h.policy == types.UnlockExhaustive {
		maxAttempts = 0
	}
	interval := time.Duration(h.plan.Fallback.IntervalMS) * time.Millisecond
	slog.Info("unlock fallback loop", "x", fb.X, "y", fb.Y, "max_attempts", maxAttempts)
	for attempt := 1; maxAttempts == 0 || attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		r.gesture(ctx, fb, attempt)
		if attempt%10 == 0 {
			slog.Info("unlock fallback still silent", "attempt", attempt)
		}
		if err := h.sleep(ctx, interval); err != nil {
			break
		}
		if r.poll(ctx) {
			r.notify(ctx, fb, attempt, true)
			return r.finish(start, fb.Strategy)
		}
	}
	return r.fail(start)
}

type run struct {
	h            *Heuristic
	page         Page
	res          Result
	lastX, lastY float64
	moved        bool
}

func (r *run) poll(ctx context.Context) bool {
	r.res.Probes++
	_, ok := r.h.Probe(ctx, r.page)
	return ok
}

// gesture performs move, press, dwell, release, pause. Errors are logged and
// the gesture still counts.
func (r *run) gesture(ctx context.Context, c Candidate, attempt int) {
	r.res.Gestures++
	g := r.h.plan.Gesture

	fromX, fromY := c.X, c.Y
	if r.moved {
		fromX, fromY = r.lastX, r.lastY
	}
	for i := 1; i <= g.MoveSteps; i++ {
		t := float64(i) / float64(g.MoveSteps)
		if err := r.page.PointerMove(ctx, fromX+(c.X-fromX)*t, fromY+(c.Y-fromY)*t); err != nil {
			slog.Debug("unlock pointer move failed", "error", err)
			break
		}
	}
	r.lastX, r.lastY, r.moved = c.X, c.Y, true

	if err := r.page.PointerDown(ctx, c.X, c.Y); err != nil {
		slog.Debug("unlock pointer down failed", "strategy", c.Strategy, "error", err)
	} else {
		_ = r.h.sleep(ctx, g.dwell())
		if err := r.page.PointerUp(ctx, c.X, c.Y); err != nil {
			slog.Debug("unlock pointer up failed", "strategy", c.Strategy, "error", err)
		}
	}
	_ = r.h.sleep(ctx, g.pause())

	slog.Debug("unlock gesture", "strategy", c.Strategy, "attempt", attempt, "x", c.X, "y", c.Y)
	r.notify(ctx, c, attempt, false)
}

func (r *run) notify(ctx context.Context, c Candidate, attempt int, unlocked bool) {
	if r.h.observer == nil {
		return
	}
	r.h.observer(ctx, Gesture{Strategy: c.Strategy, Attempt: attempt, X: c.X, Y: c.Y}, unlocked)
}

func (r *run) finish(start time.Time, strategy string) Result {
	r.res.Unlocked = true
	r.res.Strategy = strategy
	r.res.Duration = time.Since(start)
	slog.Info("unlock audio on",
		"strategy", strategy,
		"gestures", r.res.Gestures,
		"probes", r.res.Probes,
		"duration_ms", r.res.Duration.Milliseconds(),
	)
	return r.res
}

func (r *run) fail(start time.Time) Result {
	r.res.Duration = time.Since(start)
	slog.Warn("unlock exhausted without audio",
		"gestures", r.res.Gestures,
		"probes", r.res.Probes,
		"duration_ms", r.res.Duration.Milliseconds(),
	)
	return r.res
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
