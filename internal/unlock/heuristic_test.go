package unlock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/replay_capture/internal/types"
)

// fakePage reports audio on once onAfterClicks clicks have landed. A
// negative threshold means never.
type fakePage struct {
	mu            sync.Mutex
	onAfterClicks int
	downs         int
	moves         int
	probes        int
	probeErr      error
	clicksWhileOn int
	primed        bool
}

func (f *fakePage) soundOn() bool {
	return f.onAfterClicks >= 0 && f.downs >= f.onAfterClicks
}

func (f *fakePage) Evaluate(ctx context.Context, expr string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := out.(type) {
	case *AudioProbe:
		f.probes++
		if f.probeErr != nil {
			return f.probeErr
		}
		if f.soundOn() {
			*v = AudioProbe{On: 12.5, Off: 0}
		} else {
			*v = AudioProbe{On: 0, Off: 3}
		}
	case *bool:
		f.primed = strings.Contains(expr, "SoundLoader")
		*v = f.primed
	}
	return nil
}

func (f *fakePage) PointerMove(ctx context.Context, x, y float64) error {
	f.mu.Lock()
	f.moves++
	f.mu.Unlock()
	return nil
}

func (f *fakePage) PointerDown(ctx context.Context, x, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.soundOn() {
		f.clicksWhileOn++
	}
	f.downs++
	return nil
}

func (f *fakePage) PointerUp(ctx context.Context, x, y float64) error { return nil }

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testHeuristic(t *testing.T, policy types.UnlockPolicy) *Heuristic {
	t.Helper()
	plan, err := DefaultPlan()
	if err != nil {
		t.Fatalf("DefaultPlan() error = %v", err)
	}
	plan.Fallback.MaxAttempts = 7
	h := New(plan, policy, 0)
	h.sleep = noSleep
	return h
}

var surface = types.Box{X: 0, Y: 0, Width: 390, Height: 844}

func TestUnlockFirstPollSuccessMakesNoGestures(t *testing.T) {
	page := &fakePage{onAfterClicks: 0}
	res := testHeuristic(t, types.UnlockBoundedScan).Unlock(context.Background(), page, surface)

	if !res.Unlocked {
		t.Fatal("Unlocked = false; want true")
	}
	if res.Gestures != 0 || page.downs != 0 {
		t.Fatalf("gestures = %d, downs = %d; want 0", res.Gestures, page.downs)
	}
	if res.Strategy != "initial" {
		t.Fatalf("Strategy = %q; want initial", res.Strategy)
	}
}

func TestUnlockStopsAtFirstSuccess(t *testing.T) {
	page := &fakePage{onAfterClicks: 2}
	res := testHeuristic(t, types.UnlockBoundedScan).Unlock(context.Background(), page, surface)

	if !res.Unlocked {
		t.Fatal("Unlocked = false; want true")
	}
	if res.Gestures != 2 {
		t.Fatalf("Gestures = %d; want 2", res.Gestures)
	}
	if res.Strategy != "sound-icon" {
		t.Fatalf("Strategy = %q; want sound-icon", res.Strategy)
	}
	if page.clicksWhileOn != 0 {
		t.Fatalf("clicked %d times while audio was on", page.clicksWhileOn)
	}
	if page.moves != 2*5 {
		t.Fatalf("moves = %d; want 5 steps per gesture", page.moves)
	}
}

func TestUnlockNeverSucceedsReturnsFalse(t *testing.T) {
	page := &fakePage{onAfterClicks: -1}
	h := testHeuristic(t, types.UnlockBoundedScan)
	res := h.Unlock(context.Background(), page, surface)

	if res.Unlocked {
		t.Fatal("Unlocked = true; want false")
	}
	want := len(h.plan.Candidates(surface)) + 7
	if res.Gestures != want {
		t.Fatalf("Gestures = %d; want %d", res.Gestures, want)
	}
}

func TestUnlockSingleProbeSkipsRankedStrategies(t *testing.T) {
	page := &fakePage{onAfterClicks: -1}
	res := testHeuristic(t, types.UnlockSingleProbe).Unlock(context.Background(), page, surface)
	if res.Gestures != 7 {
		t.Fatalf("Gestures = %d; want only the 7 fallback attempts", res.Gestures)
	}
}

func TestUnlockExhaustiveStopsOnCancel(t *testing.T) {
	page := &fakePage{onAfterClicks: -1}
	h := testHeuristic(t, types.UnlockExhaustive)
	ctx, cancel := context.WithCancel(context.Background())
	var n int
	h.WithObserver(func(ctx context.Context, g Gesture, unlocked bool) {
		n++
		if g.Strategy == "fallback" && g.Attempt == 50 {
			cancel()
		}
	})

	res := h.Unlock(ctx, page, surface)
	if res.Unlocked {
		t.Fatal("Unlocked = true; want false")
	}
	if want := len(h.plan.Candidates(surface)) + 50; res.Gestures != want {
		t.Fatalf("Gestures = %d; want %d (past the bounded max)", res.Gestures, want)
	}
	if n != res.Gestures {
		t.Fatalf("observer calls = %d; want %d", n, res.Gestures)
	}
}

func TestProbeErrorReadsAsSilence(t *testing.T) {
	page := &fakePage{onAfterClicks: 0, probeErr: errors.New("execution context destroyed")}
	h := testHeuristic(t, types.UnlockBoundedScan)
	if _, ok := h.Probe(context.Background(), page); ok {
		t.Fatal("Probe() ok = true; want false on evaluation error")
	}
}

func TestSampleSurfacesEvaluationError(t *testing.T) {
	h := testHeuristic(t, types.UnlockBoundedScan)
	page := &fakePage{probeErr: errors.New("execution context destroyed")}
	if _, err := h.Sample(context.Background(), page); err == nil {
		t.Fatal("Sample() error = nil; want the evaluation error")
	}
	page = &fakePage{onAfterClicks: -1}
	if p, err := h.Sample(context.Background(), page); err != nil || p.On != 0 {
		t.Fatalf("Sample(silent) = %+v, %v; want zero probe and nil error", p, err)
	}
}

func TestPredicateOnGtOff(t *testing.T) {
	h := testHeuristic(t, types.UnlockBoundedScan)
	h.plan.Probe.Predicate = PredicateOnGtOff
	if h.enabled(AudioProbe{On: 2, Off: 5}) {
		t.Fatal("enabled(on<off) = true; want false")
	}
	if !h.enabled(AudioProbe{On: 6, Off: 5}) {
		t.Fatal("enabled(on>off) = false; want true")
	}
}

func TestPrimeEvaluatesPlanScript(t *testing.T) {
	page := &fakePage{}
	testHeuristic(t, types.UnlockBoundedScan).Prime(context.Background(), page)
	if !page.primed {
		t.Fatal("prime script not evaluated")
	}
}
