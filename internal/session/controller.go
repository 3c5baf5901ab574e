package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/replay_capture/internal/capture"
	"github.com/dgnsrekt/replay_capture/internal/snapshot"
	"github.com/dgnsrekt/replay_capture/internal/storage"
	"github.com/dgnsrekt/replay_capture/internal/types"
	"github.com/dgnsrekt/replay_capture/internal/unlock"
)

// Page is everything a session needs from one browser page.
type Page interface {
	unlock.Page
	capture.Source
	Navigate(ctx context.Context, url string) error
	WaitSurface(ctx context.Context, selector string) error
	SurfaceBox(ctx context.Context, selector string) (types.Box, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// PageOpener opens a fresh page in a fresh browser context.
type PageOpener func(ctx context.Context) (Page, error)

// Transcoder converts the raw capture into the delivery format.
type Transcoder interface {
	Transcode(ctx context.Context, in, out string) error
}

// Journal receives one record per finished session.
type Journal interface {
	Write(record any) error
}

// SnapshotSaver stores annotated debug frames.
type SnapshotSaver interface {
	SaveFrame(f snapshot.Frame) (snapshot.Meta, error)
}

// Options are the per-session timings and policies.
type Options struct {
	Profile          types.Profile
	SurfaceSelector  string
	NavTimeout       time.Duration
	NavAttempts      int
	SurfaceTimeout   time.Duration
	PageSettle       time.Duration
	RecordDuration   time.Duration
	MaxRecording     time.Duration
	EndMarker        string
	EventPoll        time.Duration
	ProgressInterval time.Duration
	FinalizeTimeout  time.Duration
	KeepRaw          bool
	Stream           types.StreamOptions
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		Profile:          types.DefaultProfile(),
		SurfaceSelector:  "canvas",
		NavTimeout:       120 * time.Second,
		NavAttempts:      3,
		SurfaceTimeout:   30 * time.Second,
		PageSettle:       5 * time.Second,
		RecordDuration:   60 * time.Second,
		MaxRecording:     300 * time.Second,
		EndMarker:        "Replay over",
		EventPoll:        500 * time.Millisecond,
		ProgressInterval: 5 * time.Second,
		FinalizeTimeout:  30 * time.Second,
		Stream:           types.DefaultStreamOptions(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SurfaceSelector == "" {
		o.SurfaceSelector = d.SurfaceSelector
	}
	if o.NavAttempts <= 0 {
		o.NavAttempts = d.NavAttempts
	}
	if o.EventPoll <= 0 {
		o.EventPoll = d.EventPoll
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = d.ProgressInterval
	}
	if o.FinalizeTimeout <= 0 {
		o.FinalizeTimeout = d.FinalizeTimeout
	}
	if o.MaxRecording <= 0 {
		o.MaxRecording = d.MaxRecording
	}
	return o
}

// Controller runs capture sessions one at a time.
type Controller struct {
	open       PageOpener
	ledger     *storage.Ledger
	plan       unlock.Plan
	unlockWait time.Duration
	transcoder Transcoder
	opts       Options

	journal   Journal
	snapshots SnapshotSaver
	onStage   func(Report)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	active *sessionRun
}

// NewController wires a controller. unlockTimeout bounds the whole unlock
// stage; zero leaves it to the plan's own limits.
func NewController(open PageOpener, ledger *storage.Ledger, plan unlock.Plan, unlockTimeout time.Duration, tc Transcoder, opts Options) *Controller {
	return &Controller{
		open:       open,
		ledger:     ledger,
		plan:       plan,
		unlockWait: unlockTimeout,
		transcoder: tc,
		opts:       opts.withDefaults(),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// WithJournal appends every finished report to j.
func (c *Controller) WithJournal(j Journal) *Controller {
	c.journal = j
	return c
}

// WithSnapshots stores annotated frames of unlock gestures in s.
func (c *Controller) WithSnapshots(s SnapshotSaver) *Controller {
	c.snapshots = s
	return c
}

// OnStage registers fn to receive a copy of the report after every
// transition. fn runs on the session goroutine and must not block.
func (c *Controller) OnStage(fn func(Report)) *Controller {
	c.onStage = fn
	return c
}

// Active returns the in-flight session report.
func (c *Controller) Active() (Report, bool) {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return Report{}, false
	}
	return s.snapshot(), true
}

// Interrupt asks the in-flight session to stop. A session that is already
// recording finalizes its capture normally. Returns false when idle.
func (c *Controller) Interrupt(reason string) bool {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return false
	}
	slog.Warn("session interrupt requested", "id", s.id, "reason", reason)
	s.cancel(fmt.Errorf("%w: %s", ErrOperatorStop, reason))
	return true
}

// Run executes one session to a terminal status. Every failure is reported
// in the returned Report, never panicked or returned as an error.
func (c *Controller) Run(ctx context.Context, target types.CaptureTarget) Report {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s := &sessionRun{
		c:      c,
		id:     uuid.NewString(),
		cancel: cancel,
	}
	s.report = Report{
		ID:        s.id,
		Target:    target,
		Status:    StatusPending,
		Stages:    []Status{StatusPending},
		StartedAt: c.now(),
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		s.fail(newError(KindInternal, "another session is active", nil))
		return s.snapshot()
	}
	c.active = s
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
	}()

	slog.Info("session start", "id", s.id, "identifier", target.Identifier, "url", target.SourceURL)
	s.execute(ctx)

	rep := s.snapshot()
	logArgs := []any{"id", s.id, "identifier", target.Identifier, "status", rep.Status, "duration", rep.Duration().Round(time.Millisecond)}
	if rep.Status == StatusFailed {
		slog.Error("session failed", append(logArgs, "kind", rep.ErrorKind, "error", rep.Error)...)
	} else {
		slog.Info("session complete", append(logArgs, "output", rep.FinalPath, "interrupted", rep.Interrupted)...)
	}
	if c.journal != nil {
		if err := c.journal.Write(rep); err != nil {
			slog.Warn("session journal write failed", "id", s.id, "error", err)
		}
	}
	return rep
}

// sessionRun is the state of one Run call.
type sessionRun struct {
	c      *Controller
	id     string
	cancel context.CancelCauseFunc

	mu     sync.Mutex // protects: report
	report Report

	startedAt    time.Time
	sink         *capture.Sink
	finalizeOnce sync.Once
	gestures     int
}

func (s *sessionRun) snapshot() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report.clone()
}

func (s *sessionRun) update(fn func(r *Report)) {
	s.mu.Lock()
	fn(&s.report)
	s.mu.Unlock()
}

func (s *sessionRun) transition(to Status) {
	s.mu.Lock()
	from := s.report.Status
	if err := checkTransition(from, to); err != nil {
		s.mu.Unlock()
		slog.Error("session transition rejected", "id", s.id, "error", err)
		return
	}
	s.report.Status = to
	s.report.Stages = append(s.report.Stages, to)
	if to.IsTerminal() {
		s.report.EndedAt = s.c.now()
	}
	rep := s.report.clone()
	s.mu.Unlock()

	slog.Info("session stage", "id", s.id, "from", from, "to", to)
	if s.c.onStage != nil {
		s.c.onStage(rep)
	}
}

func (s *sessionRun) warn(kind Kind, msg string) {
	slog.Warn("session warning", "id", s.id, "kind", kind, "message", msg)
	s.update(func(r *Report) {
		r.Warnings = append(r.Warnings, Warning{Kind: kind, Message: msg})
	})
}

func (s *sessionRun) fail(err *Error) {
	s.update(func(r *Report) {
		r.ErrorKind = err.Kind
		r.Error = err.Error()
	})
	s.transition(StatusFailed)
}

// failCtx classifies err as an interrupt when ctx was cancelled. An err that
// already carries a session kind keeps it; otherwise kind applies.
func (s *sessionRun) failCtx(ctx context.Context, kind Kind, msg string, err error) {
	if ctx.Err() != nil {
		s.fail(newError(KindInterrupted, msg, context.Cause(ctx)))
		return
	}
	if k := KindOf(err); k != KindInternal && k != KindNone {
		kind = k
	}
	s.fail(newError(kind, msg, err))
}

func (s *sessionRun) execute(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session panic recovered", "id", s.id, "panic", r)
			if s.sink != nil {
				cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.c.opts.FinalizeTimeout)
				_ = s.sink.Close(cctx)
				cancel()
			}
			if !s.snapshot().Status.IsTerminal() {
				s.fail(newError(KindInternal, fmt.Sprintf("panic: %v", r), nil))
			}
		}
	}()

	target := s.snapshot().Target
	page, err := s.c.open(ctx)
	if err != nil {
		s.failCtx(ctx, KindEngine, "open page", err)
		return
	}
	defer func() {
		if err := page.Close(); err != nil {
			slog.Debug("session page close failed", "id", s.id, "error", err)
		}
	}()

	s.transition(StatusNavigating)
	if err := s.navigate(ctx, page, target.SourceURL); err != nil {
		s.failCtx(ctx, KindNavigation, "load "+target.SourceURL, err)
		return
	}
	s.update(func(r *Report) { r.PageLoaded = true })
	if err := s.c.sleep(ctx, s.c.opts.PageSettle); err != nil {
		s.failCtx(ctx, KindInterrupted, "page settle", err)
		return
	}

	h := unlock.New(s.c.plan, s.c.opts.Profile.Unlock, s.c.unlockWait)
	if s.c.snapshots != nil {
		h.WithObserver(s.observeGesture(page))
	}
	h.Prime(ctx, page)

	s.transition(StatusUnlockingAudio)
	box := s.locateSurface(ctx, page)
	res := h.Unlock(ctx, page, box)
	s.update(func(r *Report) {
		r.Unlock = res
		r.AudioUnlocked = res.Unlocked
	})
	if ctx.Err() != nil {
		s.failCtx(ctx, KindInterrupted, "audio unlock", ctx.Err())
		return
	}
	if !res.Unlocked {
		s.warn(KindAudioUnlockExhausted, fmt.Sprintf("audio not confirmed after %d gestures", res.Gestures))
	}

	// Recording begins once the sink is open; an interrupt while the
	// recorder starts is a pre-recording interrupt.
	s.startedAt = s.c.now()
	temp := s.c.ledger.TempPath(s.startedAt)
	sink, err := capture.Open(ctx, page, temp, s.c.opts.Stream)
	if err != nil {
		s.failCtx(ctx, KindCapture, "open capture", err)
		return
	}
	s.sink = sink
	s.transition(StatusRecording)
	s.update(func(r *Report) {
		r.StartedAtMs = s.startedAt.UnixMilli()
		r.TempPath = temp
	})

	label := probeLabel(ctx, page)
	s.update(func(r *Report) { r.Label = label })
	slog.Info("session label", "id", s.id, "label", label)

	reason := s.hold(ctx, page, sink, h)
	s.update(func(r *Report) { r.EndReason = reason })
	s.finalize(ctx)
}

// navigate loads url and reloads while the page shows the application error
// marker, up to NavAttempts loads.
func (s *sessionRun) navigate(ctx context.Context, page Page, url string) error {
	expr := jsHeadingContains(appErrorMarker)
	for attempt := 1; attempt <= s.c.opts.NavAttempts; attempt++ {
		nctx, cancel := context.WithTimeout(ctx, s.c.opts.NavTimeout)
		err := page.Navigate(nctx, url)
		cancel()
		if err != nil {
			return err
		}
		if err := s.c.sleep(ctx, time.Second); err != nil {
			return err
		}
		var broken bool
		if err := page.Evaluate(ctx, expr, &broken); err != nil || !broken {
			return nil
		}
		slog.Warn("session page shows application error, reloading", "id", s.id, "attempt", attempt, "max", s.c.opts.NavAttempts)
	}
	return errors.New("page kept showing application error")
}

// locateSurface returns the render surface box, or the configured viewport
// when the surface never appears.
func (s *sessionRun) locateSurface(ctx context.Context, page Page) types.Box {
	sel := s.c.opts.SurfaceSelector
	wctx, cancel := context.WithTimeout(ctx, s.c.opts.SurfaceTimeout)
	defer cancel()
	if err := page.WaitSurface(wctx, sel); err == nil {
		if box, err := page.SurfaceBox(ctx, sel); err == nil && !box.Empty() {
			s.update(func(r *Report) { r.SurfaceFound = true })
			return box
		}
	}
	if ctx.Err() == nil {
		s.warn(KindSurfaceNotFound, fmt.Sprintf("%q not found, using viewport", sel))
	}
	size := s.c.opts.Profile.Surface
	return types.Box{Width: float64(size.Width), Height: float64(size.Height)}
}

// finalize closes the capture, checks it, transcodes and promotes it. It
// runs at most once per session and ignores cancellation of ctx.
func (s *sessionRun) finalize(ctx context.Context) {
	s.finalizeOnce.Do(func() { s.doFinalize(ctx) })
}

func (s *sessionRun) doFinalize(parent context.Context) {
	if parent.Err() != nil {
		cause := context.Cause(parent)
		slog.Warn("session interrupted while recording, finalizing", "id", s.id, "cause", cause)
		s.update(func(r *Report) { r.Interrupted = true })
		s.warn(KindInterruptedFinalize, cause.Error())
	}
	base := context.WithoutCancel(parent)
	ctx, cancel := context.WithTimeout(base, s.c.opts.FinalizeTimeout)
	defer cancel()

	s.transition(StatusFinalizing)
	if err := s.sink.Close(ctx); err != nil {
		slog.Warn("session capture close reported errors", "id", s.id, "error", err)
	}
	temp := s.sink.Path()

	var size int64
	if fi, err := os.Stat(temp); err == nil {
		size = fi.Size()
	}
	s.update(func(r *Report) { r.RawBytes = size })
	if size == 0 {
		if err := os.Remove(temp); err != nil && !os.IsNotExist(err) {
			slog.Debug("session remove empty capture failed", "path", temp, "error", err)
		}
		s.fail(newError(KindEmptyCapture, "capture produced no data", nil))
		return
	}

	s.transition(StatusTranscoding)
	rep := s.snapshot()
	name := rep.Target.Identifier
	if name == "" {
		name = rep.Label
	}
	final := s.c.ledger.FinalPath(name, s.startedAt)
	part := final + storage.PartialSuffix

	if err := s.c.transcoder.Transcode(base, temp, part); err != nil {
		removeQuiet(part)
		s.fail(newError(KindTranscode, "transcode "+temp, err))
		return
	}
	art, err := s.c.ledger.Promote(part, final)
	if err != nil {
		removeQuiet(part)
		s.fail(newError(KindTranscode, "promote "+part, err))
		return
	}
	if !s.c.opts.KeepRaw {
		removeQuiet(temp)
	}

	s.update(func(r *Report) {
		r.FinalPath = art.Path
		r.OutputBytes = art.SizeBytes
	})
	s.transition(StatusComplete)
}

func removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Debug("session cleanup failed", "path", path, "error", err)
	}
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
