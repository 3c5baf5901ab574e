package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgnsrekt/replay_capture/internal/types"
)

func flagMap(flags []flag) map[string]any {
	m := make(map[string]any, len(flags))
	for _, f := range flags {
		m[f.name] = f.value
	}
	return m
}

func TestFlagsKeepAudioAudible(t *testing.T) {
	l := NewLauncher(Config{Headless: true, Profile: types.DefaultProfile()})
	m := flagMap(l.flags())

	if v, ok := m["mute-audio"]; !ok || v != false {
		t.Fatalf("mute-audio = %v; want false", v)
	}
	if v := m["autoplay-policy"]; v != "no-user-gesture-required" {
		t.Fatalf("autoplay-policy = %v; want no-user-gesture-required", v)
	}
	if v := m["auto-accept-this-tab-capture"]; v != true {
		t.Fatalf("auto-accept-this-tab-capture = %v; want true", v)
	}
	if _, ok := m["headless"]; ok {
		t.Fatal("headless flag overridden in headless mode")
	}
}

func TestFlagsVisibleBrowser(t *testing.T) {
	l := NewLauncher(Config{Headless: false, Profile: types.DefaultProfile()})
	m := flagMap(l.flags())
	if v, ok := m["headless"]; !ok || v != false {
		t.Fatalf("headless = %v; want false", v)
	}
}

func TestAccelerationFlags(t *testing.T) {
	gpu := flagMap(accelerationFlags(types.AccelerationGPU))
	if gpu["use-gl"] != "egl" || gpu["ignore-gpu-blocklist"] != true {
		t.Fatalf("gpu flags = %v; want egl with blocklist ignored", gpu)
	}

	sw := flagMap(accelerationFlags(types.AccelerationSoftware))
	if sw["disable-gpu"] != true {
		t.Fatalf("software flags = %v; want disable-gpu", sw)
	}

	if got := accelerationFlags(types.AccelerationAuto); len(got) != 0 {
		t.Fatalf("auto flags = %v; want none", got)
	}
}

func TestWaitForCDPReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := waitForCDP(context.Background(), srv.URL, 2*time.Second); err != nil {
		t.Fatalf("waitForCDP() error = %v", err)
	}
}

func TestWaitForCDPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := waitForCDP(context.Background(), srv.URL, 600*time.Millisecond); err == nil {
		t.Fatal("waitForCDP() error = nil; want timeout")
	}
}

func TestWaitForCDPSkipsWebSocketURL(t *testing.T) {
	if err := waitForCDP(context.Background(), "ws://127.0.0.1:1/devtools/browser/x", time.Millisecond); err != nil {
		t.Fatalf("waitForCDP() error = %v; want nil for ws URL", err)
	}
}
