package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgnsrekt/replay_capture/internal/types"
)

const defaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"

// Config holds all configuration for the replay recorder.
type Config struct {
	// Output and input
	OutputDir   string
	TargetsFile string
	BatchMode   bool
	KeepRaw     bool

	// Browser
	Headless       bool
	ExecutablePath string
	CDPURL         string
	UserAgent      string
	Profile        types.Profile

	// Session timing
	NavTimeout      time.Duration
	SurfaceTimeout  time.Duration
	PageSettle      time.Duration
	EvalTimeoutMS   int
	RecordDuration  time.Duration
	MaxRecording    time.Duration
	EndMarker       string
	UnlockPlanFile  string
	UnlockTimeout   time.Duration
	FinalizeTimeout time.Duration
	PaceDelay       time.Duration
	SurfaceSelector string

	// Stream
	VideoBitsPerSecond int
	TimesliceMS        int

	// Transcoder
	FFmpegPath       string
	TranscodeTimeout time.Duration
	ScaleOutput      bool

	// Logging and diagnostics
	LogLevel       string
	LogFile        string
	JournalFile    string
	DebugSnapshots bool
	SnapshotDir    string
	NotifyURL      string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	profile := types.DefaultProfile()
	var err error
	if profile.Acceleration, err = types.ParseAccelerationMode(os.Getenv("ACCELERATION_MODE")); err != nil {
		return nil, err
	}
	if profile.Window, err = types.ParseWindowPolicy(os.Getenv("RECORD_WINDOW_POLICY")); err != nil {
		return nil, err
	}
	if profile.Unlock, err = types.ParseUnlockPolicy(os.Getenv("AUDIO_UNLOCK_POLICY")); err != nil {
		return nil, err
	}
	profile.Surface.Width = getEnvIntOrDefault("VIEWPORT_WIDTH", profile.Surface.Width)
	profile.Surface.Height = getEnvIntOrDefault("VIEWPORT_HEIGHT", profile.Surface.Height)
	profile.Surface.DeviceScale = getEnvFloatOrDefault("DEVICE_SCALE_FACTOR", profile.Surface.DeviceScale)
	profile.Surface.Mobile = getEnvBoolOrDefault("MOBILE_EMULATION", profile.Surface.Mobile)

	cfg := &Config{
		OutputDir:   getEnvOrDefault("RECORDINGS_DIR", "./recordings"),
		TargetsFile: getEnvOrDefault("TARGETS_FILE", "./replays.json"),
		BatchMode:   getEnvBoolOrDefault("BATCH_MODE", false),
		KeepRaw:     getEnvBoolOrDefault("KEEP_RAW_CAPTURE", false),

		Headless:       getEnvBoolOrDefault("HEADLESS", getEnvBoolOrDefault("DOCKER_MODE", false)),
		ExecutablePath: getEnvOrDefault("CHROME_EXECUTABLE_PATH", os.Getenv("PUPPETEER_EXECUTABLE_PATH")),
		CDPURL:         os.Getenv("CHROMIUM_CDP_URL"),
		UserAgent:      getEnvOrDefault("USER_AGENT", defaultUserAgent),
		Profile:        profile,

		NavTimeout:      getEnvSecondsOrDefault("NAV_TIMEOUT_SEC", 120),
		SurfaceTimeout:  getEnvSecondsOrDefault("SURFACE_TIMEOUT_SEC", 30),
		PageSettle:      time.Duration(getEnvIntOrDefault("PAGE_SETTLE_MS", 5000)) * time.Millisecond,
		EvalTimeoutMS:   getEnvIntOrDefault("EVAL_TIMEOUT_MS", 5000),
		RecordDuration:  getEnvSecondsOrDefault("RECORD_DURATION_SEC", 60),
		MaxRecording:    getEnvSecondsOrDefault("RECORD_MAX_DURATION_SEC", 300),
		EndMarker:       getEnvOrDefault("RECORD_END_MARKER", "Replay over"),
		UnlockPlanFile:  os.Getenv("AUDIO_UNLOCK_PLAN"),
		UnlockTimeout:   getEnvSecondsOrDefault("AUDIO_UNLOCK_TIMEOUT_SEC", 180),
		FinalizeTimeout: getEnvSecondsOrDefault("FINALIZE_TIMEOUT_SEC", 30),
		PaceDelay:       getEnvSecondsOrDefault("BATCH_PACE_SEC", 5),
		SurfaceSelector: getEnvOrDefault("SURFACE_SELECTOR", "canvas"),

		VideoBitsPerSecond: getEnvIntOrDefault("VIDEO_BITS_PER_SECOND", 8_000_000),
		TimesliceMS:        getEnvIntOrDefault("CAPTURE_TIMESLICE_MS", 1000),

		FFmpegPath:       getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		TranscodeTimeout: getEnvSecondsOrDefault("TRANSCODE_TIMEOUT_SEC", 600),
		ScaleOutput:      getEnvBoolOrDefault("SCALE_OUTPUT", true),

		LogLevel:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFile:        getEnvOrDefault("LOG_FILE", "logs/replay_recorder.log"),
		JournalFile:    getEnvOrDefault("JOURNAL_FILE", "logs/sessions.jsonl"),
		DebugSnapshots: getEnvBoolOrDefault("DEBUG_SNAPSHOTS", false),
		SnapshotDir:    getEnvOrDefault("SNAPSHOT_DIR", "./snapshots"),
		NotifyURL:      os.Getenv("NOTIFY_URL"),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.TimesliceMS < 100 {
		cfg.TimesliceMS = 100
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no session could run with.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("RECORDINGS_DIR must not be empty")
	}
	if c.Profile.Surface.Width <= 0 || c.Profile.Surface.Height <= 0 {
		return fmt.Errorf("viewport %dx%d is not usable", c.Profile.Surface.Width, c.Profile.Surface.Height)
	}
	if c.RecordDuration <= 0 {
		return fmt.Errorf("RECORD_DURATION_SEC must be positive")
	}
	if c.MaxRecording < c.RecordDuration && c.Profile.Window == types.WindowEvent {
		return fmt.Errorf("RECORD_MAX_DURATION_SEC (%s) is shorter than RECORD_DURATION_SEC (%s)", c.MaxRecording, c.RecordDuration)
	}
	return nil
}

// EvalTimeout returns the per-evaluation deadline.
func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

// StreamOptions returns the recorder settings for the capture stream.
func (c *Config) StreamOptions() types.StreamOptions {
	opts := types.DefaultStreamOptions()
	opts.VideoBitsPerSecond = c.VideoBitsPerSecond
	opts.TimesliceMS = c.TimesliceMS
	return opts
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvSecondsOrDefault(key string, defaultVal int) time.Duration {
	return time.Duration(getEnvIntOrDefault(key, defaultVal)) * time.Second
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
