package config

import (
	"testing"
	"time"

	"github.com/dgnsrekt/replay_capture/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OutputDir != "./recordings" {
		t.Fatalf("OutputDir = %q; want %q", cfg.OutputDir, "./recordings")
	}
	if cfg.RecordDuration != 60*time.Second {
		t.Fatalf("RecordDuration = %s; want 60s", cfg.RecordDuration)
	}
	if cfg.Profile.Surface.Width != 390 || cfg.Profile.Surface.Height != 844 {
		t.Fatalf("surface = %dx%d; want 390x844", cfg.Profile.Surface.Width, cfg.Profile.Surface.Height)
	}
	if cfg.Profile.Window != types.WindowFixed {
		t.Fatalf("Window = %q; want %q", cfg.Profile.Window, types.WindowFixed)
	}
	if cfg.Profile.Unlock != types.UnlockBoundedScan {
		t.Fatalf("Unlock = %q; want %q", cfg.Profile.Unlock, types.UnlockBoundedScan)
	}
	if cfg.Headless {
		t.Fatal("Headless = true; want false by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOCKER_MODE", "true")
	t.Setenv("RECORD_DURATION_SEC", "15")
	t.Setenv("AUDIO_UNLOCK_POLICY", "Exhaustive")
	t.Setenv("PUPPETEER_EXECUTABLE_PATH", "/usr/bin/chromium")
	t.Setenv("EVAL_TIMEOUT_MS", "10")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Headless {
		t.Fatal("Headless = false; want true when DOCKER_MODE is set")
	}
	if cfg.RecordDuration != 15*time.Second {
		t.Fatalf("RecordDuration = %s; want 15s", cfg.RecordDuration)
	}
	if cfg.Profile.Unlock != types.UnlockExhaustive {
		t.Fatalf("Unlock = %q; want %q", cfg.Profile.Unlock, types.UnlockExhaustive)
	}
	if cfg.ExecutablePath != "/usr/bin/chromium" {
		t.Fatalf("ExecutablePath = %q; want /usr/bin/chromium", cfg.ExecutablePath)
	}
	if cfg.EvalTimeoutMS != 1000 {
		t.Fatalf("EvalTimeoutMS = %d; want floor of 1000", cfg.EvalTimeoutMS)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q; want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RECORD_WINDOW_POLICY", "forever")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil; want error for unknown window policy")
	}
}

func TestLoadControl(t *testing.T) {
	t.Setenv("CONTROL_BIND_ADDR", "127.0.0.1:9000")
	t.Setenv("CONTROL_PORT_CANDIDATES", " 127.0.0.1:9001 ,,127.0.0.1:9002")

	cfg := LoadControl()
	if !cfg.Enabled() {
		t.Fatal("Enabled() = false; want true")
	}
	if len(cfg.PortCandidates) != 2 || cfg.PortCandidates[1] != "127.0.0.1:9002" {
		t.Fatalf("PortCandidates = %v; want two trimmed entries", cfg.PortCandidates)
	}
}
