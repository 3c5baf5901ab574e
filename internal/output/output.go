package output

import (
	"fmt"
	"io"
	"time"

	"github.com/dgnsrekt/replay_capture/internal/batch"
	"github.com/dgnsrekt/replay_capture/internal/session"
	"github.com/dgnsrekt/replay_capture/internal/transcode"
)

// Formatter prints operator-facing results. Logs go through slog; this is
// only the end-of-run summary a person reads.
type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

// Session prints one finished capture.
func (f *Formatter) Session(rep session.Report) {
	name := rep.Target.Identifier
	if name == "" {
		name = rep.Label
	}
	if !rep.Succeeded() {
		fmt.Fprintf(f.w, "❌ %s: %s (%s)\n", name, rep.Error, rep.ErrorKind)
		return
	}
	note := ""
	if rep.Interrupted {
		note = ", interrupted"
	}
	if !rep.AudioUnlocked {
		note += ", no audio"
	}
	fmt.Fprintf(f.w, "🎬 %s: %s (%s%s)\n", name, rep.FinalPath, formatDuration(rep.Duration()), note)
}

// BatchSummary prints the totals and every failed item.
func (f *Formatter) BatchSummary(sum batch.Summary) {
	fmt.Fprintf(f.w, "\n📊 Batch: %s\n", sum)
	for _, fail := range sum.Failures {
		fmt.Fprintf(f.w, "  ❌ %s: %s (%s)\n", fail.Identifier, fail.Message, fail.Kind)
	}
	if sum.Interrupted {
		f.Warning("batch stopped by interrupt")
	}
}

func (f *Formatter) CompressSummary(sum transcode.CompressSummary) {
	fmt.Fprintf(f.w, "\n📦 Compress: %d compressed, %d skipped, %d failed\n", sum.Compressed, sum.Skipped, sum.Failed)
	for _, fail := range sum.Failures {
		fmt.Fprintf(f.w, "  ❌ %s\n", fail)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
