package types

import (
	"fmt"
	"strings"
)

// AccelerationMode selects the browser's rendering path.
type AccelerationMode string

const (
	AccelerationAuto     AccelerationMode = "auto"
	AccelerationGPU      AccelerationMode = "gpu"
	AccelerationSoftware AccelerationMode = "software"
)

// WindowPolicy decides when a recording stops.
type WindowPolicy string

const (
	// WindowFixed records for a fixed duration.
	WindowFixed WindowPolicy = "fixed"
	// WindowEvent stops on page signals. Deprecated: its end detection
	// thresholds were never validated against real replays.
	WindowEvent WindowPolicy = "event"
)

// UnlockPolicy bounds how hard the sound-unlock heuristic tries.
type UnlockPolicy string

const (
	UnlockSingleProbe UnlockPolicy = "single"
	UnlockBoundedScan UnlockPolicy = "bounded"
	UnlockExhaustive  UnlockPolicy = "exhaustive"
)

// SurfaceSize is the emulated viewport the replay renders into.
type SurfaceSize struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	DeviceScale float64 `json:"device_scale"`
	Mobile      bool    `json:"mobile"`
}

// Profile is the one knob set that distinguishes capture variants.
type Profile struct {
	Surface      SurfaceSize      `json:"surface"`
	Acceleration AccelerationMode `json:"acceleration"`
	Window       WindowPolicy     `json:"window"`
	Unlock       UnlockPolicy     `json:"unlock"`
}

// DefaultProfile is an iPhone-sized portrait viewport with fixed-duration
// recording and a bounded unlock scan.
func DefaultProfile() Profile {
	return Profile{
		Surface:      SurfaceSize{Width: 390, Height: 844, DeviceScale: 3, Mobile: true},
		Acceleration: AccelerationAuto,
		Window:       WindowFixed,
		Unlock:       UnlockBoundedScan,
	}
}

func ParseAccelerationMode(s string) (AccelerationMode, error) {
	switch m := AccelerationMode(strings.ToLower(strings.TrimSpace(s))); m {
	case AccelerationAuto, AccelerationGPU, AccelerationSoftware:
		return m, nil
	case "":
		return AccelerationAuto, nil
	}
	return "", fmt.Errorf("unknown acceleration mode %q", s)
}

func ParseWindowPolicy(s string) (WindowPolicy, error) {
	switch p := WindowPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case WindowFixed, WindowEvent:
		return p, nil
	case "":
		return WindowFixed, nil
	}
	return "", fmt.Errorf("unknown recording window policy %q", s)
}

func ParseUnlockPolicy(s string) (UnlockPolicy, error) {
	switch p := UnlockPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case UnlockSingleProbe, UnlockBoundedScan, UnlockExhaustive:
		return p, nil
	case "":
		return UnlockBoundedScan, nil
	}
	return "", fmt.Errorf("unknown audio unlock policy %q", s)
}
