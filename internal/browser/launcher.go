package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/replay_capture/internal/types"
)

// Config holds browser launch configuration.
type Config struct {
	ExecutablePath string
	CDPURL         string
	Headless       bool
	UserAgent      string
	UserDataDir    string
	Profile        types.Profile
}

// Launcher builds the chromedp allocator a capture session runs in. Every
// context derived from the allocator with chromedp.NewContext gets its own
// browser process (local) or its own tab (remote).
type Launcher struct {
	cfg Config
}

// flag is a single command-line switch. A false bool removes a switch that
// chromedp enables by default.
type flag struct {
	name  string
	value any
}

// NewLauncher creates a new browser launcher with the given config.
func NewLauncher(cfg Config) *Launcher {
	return &Launcher{cfg: cfg}
}

// DetectBrowser finds an available Chrome/Chromium binary.
func DetectBrowser() (string, error) {
	candidates := []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried %s)", strings.Join(candidates, ", "))
}

// Allocator returns an allocator context. With a CDP URL configured it
// attaches to that browser, otherwise it launches a local one per session.
func (l *Launcher) Allocator(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if l.cfg.CDPURL != "" {
		if err := waitForCDP(ctx, l.cfg.CDPURL, 15*time.Second); err != nil {
			return nil, nil, fmt.Errorf("waiting for CDP: %w", err)
		}
		slog.Info("browser using remote CDP endpoint", "cdp_url", l.cfg.CDPURL)
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, l.cfg.CDPURL)
		return allocCtx, cancel, nil
	}

	execPath := l.cfg.ExecutablePath
	if execPath == "" {
		if detected, err := DetectBrowser(); err == nil {
			execPath = detected
		} else {
			slog.Debug("browser detection failed, leaving lookup to chromedp", "error", err)
		}
	}
	slog.Info("browser exec allocator",
		"exec_path", execPath,
		"headless", l.cfg.Headless,
		"acceleration", l.cfg.Profile.Acceleration,
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, l.execOptions(execPath)...)
	return allocCtx, cancel, nil
}

func (l *Launcher) execOptions(execPath string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	if l.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(l.cfg.UserDataDir))
	}
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	s := l.cfg.Profile.Surface
	opts = append(opts, chromedp.WindowSize(s.Width, s.Height))
	for _, f := range l.flags() {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	return opts
}

func (l *Launcher) flags() []flag {
	flags := []flag{
		// Replays must be audible to the tab capture.
		{"mute-audio", false},
		{"enable-automation", false},
		{"autoplay-policy", "no-user-gesture-required"},
		{"auto-accept-this-tab-capture", true},
		{"use-fake-ui-for-media-stream", true},
		{"enable-usermedia-screen-capturing", true},
		{"allow-http-screen-capture", true},
		{"disable-dev-shm-usage", true},
		{"disable-background-timer-throttling", true},
		{"disable-backgrounding-occluded-windows", true},
		{"disable-renderer-backgrounding", true},
		{"no-sandbox", true},
	}
	if !l.cfg.Headless {
		flags = append(flags, flag{"headless", false}, flag{"hide-scrollbars", false})
	}
	return append(flags, accelerationFlags(l.cfg.Profile.Acceleration)...)
}

func accelerationFlags(mode types.AccelerationMode) []flag {
	switch mode {
	case types.AccelerationGPU:
		return []flag{
			{"enable-webgl", true},
			{"enable-gpu", true},
			{"use-gl", "egl"},
			{"ignore-gpu-blocklist", true},
			{"enable-gpu-rasterization", true},
			{"enable-zero-copy", true},
			{"disable-gpu", false},
		}
	case types.AccelerationSoftware:
		return []flag{
			{"disable-gpu", true},
			{"use-gl", "swiftshader"},
			{"enable-unsafe-swiftshader", true},
		}
	}
	return nil
}

// waitForCDP polls the CDP /json/version endpoint until it responds.
func waitForCDP(ctx context.Context, cdpURL string, timeout time.Duration) error {
	if !strings.HasPrefix(cdpURL, "http://") && !strings.HasPrefix(cdpURL, "https://") {
		return nil
	}
	url := strings.TrimRight(cdpURL, "/") + "/json/version"
	deadline := time.After(timeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("CDP did not become ready within %s at %s", timeout, url)
		case <-ticker.C:
			resp, err := client.Get(url)
			if err != nil {
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}
