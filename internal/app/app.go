package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dgnsrekt/replay_capture/internal/api"
	"github.com/dgnsrekt/replay_capture/internal/batch"
	"github.com/dgnsrekt/replay_capture/internal/browser"
	"github.com/dgnsrekt/replay_capture/internal/cdpcontrol"
	"github.com/dgnsrekt/replay_capture/internal/config"
	"github.com/dgnsrekt/replay_capture/internal/controller"
	"github.com/dgnsrekt/replay_capture/internal/netutil"
	"github.com/dgnsrekt/replay_capture/internal/relay"
	"github.com/dgnsrekt/replay_capture/internal/session"
	"github.com/dgnsrekt/replay_capture/internal/snapshot"
	"github.com/dgnsrekt/replay_capture/internal/storage"
	"github.com/dgnsrekt/replay_capture/internal/transcode"
	"github.com/dgnsrekt/replay_capture/internal/unlock"
)

const (
	journalBuffer    = 64
	journalMaxSizeMB = 50
	shutdownTimeout  = 10 * time.Second
)

// App holds the long-lived pieces built from configuration. Browser and
// control server are started per run with Start.
type App struct {
	Config     *config.Config
	Control    *config.ControlConfig
	Ledger     *storage.Ledger
	Transcoder *transcode.Transcoder
	Plan       unlock.Plan
	Snapshots  *snapshot.Store
	Broker     *relay.Broker
}

func New(cfg *config.Config, control *config.ControlConfig) (*App, error) {
	ledger, err := storage.NewLedger(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("opening output dir: %w", err)
	}

	plan, err := loadPlan(cfg.UnlockPlanFile)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Control:    control,
		Ledger:     ledger,
		Transcoder: transcode.New(cfg.FFmpegPath, deliveryArgs(cfg), cfg.TranscodeTimeout),
		Plan:       plan,
		Broker:     relay.NewBroker(),
	}
	if cfg.DebugSnapshots {
		if a.Snapshots, err = snapshot.NewStore(cfg.SnapshotDir); err != nil {
			return nil, fmt.Errorf("opening snapshot dir: %w", err)
		}
	}
	return a, nil
}

func loadPlan(path string) (unlock.Plan, error) {
	if path == "" {
		return unlock.DefaultPlan()
	}
	plan, err := unlock.LoadPlan(path)
	if err != nil {
		return unlock.Plan{}, fmt.Errorf("loading unlock plan %s: %w", path, err)
	}
	return plan, nil
}

// deliveryArgs scales the output to the emulated viewport when asked.
// libx264 with yuv420p needs even dimensions.
func deliveryArgs(cfg *config.Config) transcode.Args {
	args := transcode.DeliveryArgs()
	if cfg.ScaleOutput {
		args.Scale = fmt.Sprintf("%d:%d", cfg.Profile.Surface.Width&^1, cfg.Profile.Surface.Height&^1)
	}
	return args
}

// SessionOptions maps configuration onto the session controller options.
func (a *App) SessionOptions() session.Options {
	cfg := a.Config
	opts := session.DefaultOptions()
	opts.Profile = cfg.Profile
	opts.SurfaceSelector = cfg.SurfaceSelector
	opts.NavTimeout = cfg.NavTimeout
	opts.SurfaceTimeout = cfg.SurfaceTimeout
	opts.PageSettle = cfg.PageSettle
	opts.RecordDuration = cfg.RecordDuration
	opts.MaxRecording = cfg.MaxRecording
	opts.EndMarker = cfg.EndMarker
	opts.FinalizeTimeout = cfg.FinalizeTimeout
	opts.KeepRaw = cfg.KeepRaw
	opts.Stream = cfg.StreamOptions()
	return opts
}

// Runtime is one started recorder: browser allocator, session controller,
// batch orchestrator and the optional control server.
type Runtime struct {
	Sessions *session.Controller
	Batch    *batch.Orchestrator

	allocCancel context.CancelFunc
	journal     *storage.Journal
	server      *http.Server
	listener    net.Listener
}

// Start builds a runtime. mode names the run in the control API status.
// The browser outlives cancellation of ctx so an interrupted session can
// still finalize; Close releases it.
func (a *App) Start(ctx context.Context, mode string) (*Runtime, error) {
	cfg := a.Config
	launcher := browser.NewLauncher(browser.Config{
		ExecutablePath: cfg.ExecutablePath,
		CDPURL:         cfg.CDPURL,
		Headless:       cfg.Headless,
		UserAgent:      cfg.UserAgent,
		Profile:        cfg.Profile,
	})
	allocCtx, allocCancel, err := launcher.Allocator(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("starting browser allocator: %w", err)
	}
	rt := &Runtime{allocCancel: allocCancel}

	b := cdpcontrol.NewBrowser(allocCtx, cfg.Profile, cfg.UserAgent, cfg.EvalTimeout())
	opener := func(ctx context.Context) (session.Page, error) {
		page, err := b.OpenPage(ctx)
		if err != nil {
			return nil, err
		}
		return page, nil
	}

	rel := relay.NewRelay(a.Broker)
	rt.Sessions = session.NewController(opener, a.Ledger, a.Plan, cfg.UnlockTimeout, a.Transcoder, a.SessionOptions()).
		OnStage(rel.Stage)
	if cfg.JournalFile != "" {
		if rt.journal, err = storage.NewJournal(cfg.JournalFile, journalBuffer, journalMaxSizeMB); err != nil {
			rt.Close()
			return nil, fmt.Errorf("opening session journal: %w", err)
		}
		rt.Sessions.WithJournal(rt.journal)
	}
	if a.Snapshots != nil {
		rt.Sessions.WithSnapshots(a.Snapshots)
	}
	rt.Batch = batch.New(rt.Sessions, a.Ledger, cfg.PaceDelay).OnItem(rel.Progress)

	if a.Control != nil && a.Control.Enabled() {
		if err := rt.serve(a, mode); err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *Runtime) serve(a *App, mode string) error {
	ln, err := netutil.Listen(a.Control.BindAddr, a.Control.PortCandidates, a.Control.AutoFallback)
	if err != nil {
		return fmt.Errorf("binding control api: %w", err)
	}
	svc := controller.NewService(mode, rt.Sessions, rt.Batch, a.Ledger, a.Snapshots, a.Broker)
	rt.listener = ln
	rt.server = &http.Server{Handler: api.NewServer(svc, a.Broker)}

	addr := ln.Addr().String()
	go func() {
		slog.Info("control api listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := rt.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control api server failed", "error", err)
		}
	}()
	return nil
}

// ControlAddr is the control API address, empty when it is not running.
func (rt *Runtime) ControlAddr() string {
	if rt.listener == nil {
		return ""
	}
	return rt.listener.Addr().String()
}

// Close stops the control server, flushes the journal and releases the
// browser allocator.
func (rt *Runtime) Close() {
	if rt.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := rt.server.Shutdown(ctx); err != nil {
			slog.Error("control api shutdown failed", "error", err)
		}
		cancel()
	}
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			slog.Warn("session journal close failed", "error", err)
		}
	}
	if rt.allocCancel != nil {
		rt.allocCancel()
	}
}
