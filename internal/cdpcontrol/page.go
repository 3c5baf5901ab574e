package cdpcontrol

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/replay_capture/internal/types"
)

// Browser opens pages from a chromedp allocator context.
type Browser struct {
	allocCtx    context.Context
	profile     types.Profile
	userAgent   string
	evalTimeout time.Duration
}

func NewBrowser(allocCtx context.Context, profile types.Profile, userAgent string, evalTimeout time.Duration) *Browser {
	return &Browser{
		allocCtx:    allocCtx,
		profile:     profile,
		userAgent:   userAgent,
		evalTimeout: evalTimeout,
	}
}

// Page is one browser tab. Commands on a page are serialized; only the
// binding listener runs concurrently and it never issues commands.
type Page struct {
	tabCtx      context.Context
	cancel      context.CancelFunc
	evalTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

// OpenPage starts a fresh tab with the profile's viewport emulation. The tab
// lives until Close, independent of ctx, so a cancelled session can still
// finalize against it.
func (b *Browser) OpenPage(ctx context.Context) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.allocCtx)

	// The first Run allocates the browser and must use the tab context itself.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			cancel()
			return nil, newError(CodeCDPUnavailable, "start browser tab failed", err)
		}
	case <-ctx.Done():
		cancel()
		return nil, newError(CodeCDPUnavailable, "start browser tab interrupted", ctx.Err())
	}

	p := &Page{tabCtx: tabCtx, cancel: cancel, evalTimeout: b.evalTimeout}

	s := b.profile.Surface
	emulate := []chromedp.EmulateViewportOption{chromedp.EmulateScale(s.DeviceScale)}
	if s.Mobile {
		emulate = append(emulate, chromedp.EmulateMobile, chromedp.EmulateTouch)
	}
	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(s.Width), int64(s.Height), emulate...),
	}
	if b.userAgent != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(b.userAgent).Do(ctx)
		}))
	}
	if err := p.run(ctx, 30*time.Second, actions...); err != nil {
		p.Close()
		return nil, newError(CodeCDPUnavailable, "configure page emulation failed", err)
	}
	slog.Debug("cdpcontrol page opened", "width", s.Width, "height", s.Height, "scale", s.DeviceScale)
	return p, nil
}

// run executes actions against the tab, bounded by ctx and timeout.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	slog.Info("cdpcontrol navigate", "url", url)
	if err := p.run(ctx, 0, chromedp.Navigate(url)); err != nil {
		return newError(CodeNavigation, "navigate failed", err)
	}
	return nil
}

// WaitSurface blocks until selector is visible or ctx expires.
func (p *Page) WaitSurface(ctx context.Context, selector string) error {
	if err := p.run(ctx, 0, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return newError(CodeSurfaceNotFound, "render surface not visible", err)
	}
	return nil
}

// SurfaceBox returns the bounding box of the first element matching selector.
func (p *Page) SurfaceBox(ctx context.Context, selector string) (types.Box, error) {
	var box types.Box
	if err := p.Evaluate(ctx, jsSurfaceBox(selector), &box); err != nil {
		return types.Box{}, err
	}
	if box.Empty() {
		return types.Box{}, newError(CodeSurfaceNotFound, "render surface has no box", nil)
	}
	return box, nil
}

// Evaluate runs a JS expression and decodes its JSON value into out.
func (p *Page) Evaluate(ctx context.Context, expr string, out any) error {
	return p.evaluate(ctx, expr, out, false)
}

func (p *Page) evaluate(ctx context.Context, expr string, out any, userGesture bool) error {
	var raw string
	opt := func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true).WithUserGesture(userGesture)
	}
	err := p.run(ctx, p.evalTimeout, chromedp.Evaluate(wrapExpr(expr), &raw, opt))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}
	return decodeEnvelope(raw, out)
}

// PointerMove moves the mouse to (x, y) in CSS pixels.
func (p *Page) PointerMove(ctx context.Context, x, y float64) error {
	return p.mouse(ctx, input.DispatchMouseEvent(input.MouseMoved, x, y))
}

// PointerDown presses the left button at (x, y).
func (p *Page) PointerDown(ctx context.Context, x, y float64) error {
	return p.mouse(ctx, input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).
		WithClickCount(1))
}

// PointerUp releases the left button at (x, y).
func (p *Page) PointerUp(ctx context.Context, x, y float64) error {
	return p.mouse(ctx, input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).
		WithClickCount(1))
}

func (p *Page) mouse(ctx context.Context, ev *input.DispatchMouseEventParams) error {
	err := p.run(ctx, p.evalTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return ev.Do(ctx)
	}))
	if err != nil {
		return newError(CodeInputFailure, "dispatch mouse event failed", err)
	}
	return nil
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, p.evalTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, newError(CodeEvalFailure, "screenshot failed", err)
	}
	return buf, nil
}

// Close shuts the tab down, and with a local allocator the browser too.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		slog.Debug("cdpcontrol page closed")
	})
	return nil
}
