package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/replay_capture/internal/app"
	"github.com/dgnsrekt/replay_capture/internal/cli"
	"github.com/dgnsrekt/replay_capture/internal/config"
	"github.com/dgnsrekt/replay_capture/internal/output"
)

func main() {
	if err := run(); err != nil {
		output.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("logger setup failed: %w", err)
	}

	control := config.LoadControl()
	slog.Info("replay recorder config loaded",
		"output_dir", cfg.OutputDir,
		"targets_file", cfg.TargetsFile,
		"batch_mode", cfg.BatchMode,
		"headless", cfg.Headless,
		"cdp_url", cfg.CDPURL,
		"window_policy", cfg.Profile.Window,
		"unlock_policy", cfg.Profile.Unlock,
		"record_duration", cfg.RecordDuration,
		"control_bind_addr", control.BindAddr,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	application, err := app.New(cfg, control)
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}

	deps := &cli.Dependencies{
		App:    application,
		Config: cfg,
	}

	return cli.NewRootCmd(deps).Execute()
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
