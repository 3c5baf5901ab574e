package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

// maxOutputTail bounds how much ffmpeg output an Error carries. The useful
// diagnostics are at the end.
const maxOutputTail = 4096

// Args is the fixed encoder contract.
type Args struct {
	VideoCodec   string
	CRF          int
	Preset       string
	PixelFormat  string
	AudioCodec   string
	AudioBitrate string
	FastStart    bool
	Scale        string // "W:H", empty keeps the source size
	Format       string
}

// DeliveryArgs produces the normalized delivery artifact.
func DeliveryArgs() Args {
	return Args{
		VideoCodec:   "libx264",
		CRF:          23,
		Preset:       "veryfast",
		PixelFormat:  "yuv420p",
		AudioCodec:   "aac",
		AudioBitrate: "192k",
		FastStart:    true,
		Format:       "mp4",
	}
}

// CompressArgs trades encode time for size in the compression pass.
func CompressArgs() Args {
	a := DeliveryArgs()
	a.CRF = 28
	a.Preset = "slow"
	a.AudioBitrate = "128k"
	return a
}

func (a Args) build(in, out string) []string {
	args := []string{"-hide_banner", "-y", "-i", in}
	if a.Scale != "" {
		args = append(args, "-vf", "scale="+a.Scale)
	}
	args = append(args,
		"-c:v", a.VideoCodec,
		"-crf", strconv.Itoa(a.CRF),
		"-preset", a.Preset,
		"-pix_fmt", a.PixelFormat,
		"-c:a", a.AudioCodec,
		"-b:a", a.AudioBitrate,
	)
	if a.FastStart {
		args = append(args, "-movflags", "+faststart")
	}
	if a.Format != "" {
		args = append(args, "-f", a.Format)
	}
	return append(args, out)
}

// Error is a non-zero ffmpeg exit.
type Error struct {
	ExitCode int
	Output   string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d: %v", e.ExitCode, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// runFunc executes bin and returns its combined output and exit code.
type runFunc func(ctx context.Context, bin string, args []string) ([]byte, int, error)

// Transcoder runs ffmpeg synchronously with a fixed argument contract.
type Transcoder struct {
	bin     string
	args    Args
	timeout time.Duration
	run     runFunc
}

func New(bin string, args Args, timeout time.Duration) *Transcoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Transcoder{bin: bin, args: args, timeout: timeout, run: execRun}
}

// Transcode converts in to out. out is written in place; callers promote it.
func (t *Transcoder) Transcode(ctx context.Context, in, out string) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	args := t.args.build(in, out)
	start := time.Now()
	slog.Info("transcode start", "in", in, "out", out, "crf", t.args.CRF, "preset", t.args.Preset)

	output, code, err := t.run(ctx, t.bin, args)
	if err != nil {
		tail := tailString(output, maxOutputTail)
		slog.Error("transcode failed", "in", in, "exit_code", code, "error", err, "output_tail", tail)
		return &Error{ExitCode: code, Output: tail, Cause: err}
	}
	slog.Info("transcode done", "out", out, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Available reports whether the ffmpeg binary can be found.
func (t *Transcoder) Available() (string, error) {
	return exec.LookPath(t.bin)
}

func execRun(ctx context.Context, bin string, args []string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, exitErr.ExitCode(), err
		}
		return out, -1, err
	}
	return out, 0, nil
}

func tailString(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[len(b)-max:])
}
