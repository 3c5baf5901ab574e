package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CompressSummary counts the outcome of a compression pass.
type CompressSummary struct {
	Compressed int      `json:"compressed"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Failures   []string `json:"failures,omitempty"`
}

// Compressor re-encodes every media file in a directory into a nested
// output folder.
type Compressor struct {
	t      *Transcoder
	srcDir string
	dstDir string
}

// NewCompressor writes into <srcDir>/mp4 unless dstDir is given.
func NewCompressor(t *Transcoder, srcDir, dstDir string) *Compressor {
	if dstDir == "" {
		dstDir = filepath.Join(srcDir, "mp4")
	}
	return &Compressor{t: t, srcDir: srcDir, dstDir: dstDir}
}

// Run compresses every .mp4/.webm file directly under srcDir. A file whose
// normalized counterpart already exists is skipped; one failure does not
// stop the pass.
func (c *Compressor) Run(ctx context.Context) (CompressSummary, error) {
	var sum CompressSummary
	inputs, err := c.inputs()
	if err != nil {
		return sum, err
	}
	if err := os.MkdirAll(c.dstDir, 0o755); err != nil {
		return sum, fmt.Errorf("create compress dir: %w", err)
	}
	slog.Info("compress pass start", "src", c.srcDir, "dst", c.dstDir, "files", len(inputs))

	for i, in := range inputs {
		if ctx.Err() != nil {
			slog.Warn("compress pass interrupted", "remaining", len(inputs)-i)
			break
		}
		base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		out := filepath.Join(c.dstDir, base+".mp4")
		if _, err := os.Stat(out); err == nil {
			sum.Skipped++
			slog.Info("compress skip", "progress", fmt.Sprintf("%d/%d", i+1, len(inputs)), "file", filepath.Base(out))
			continue
		}

		slog.Info("compress file", "progress", fmt.Sprintf("%d/%d", i+1, len(inputs)), "file", filepath.Base(in))
		partial := out + ".part"
		if err := c.t.Transcode(ctx, in, partial); err != nil {
			c.removePartial(partial)
			sum.Failed++
			sum.Failures = append(sum.Failures, filepath.Base(in))
			continue
		}
		if err := promote(partial, out); err != nil {
			c.removePartial(partial)
			slog.Error("compress promote failed", "file", filepath.Base(in), "error", err)
			sum.Failed++
			sum.Failures = append(sum.Failures, filepath.Base(in))
			continue
		}
		sum.Compressed++
	}

	slog.Info("compress pass done",
		"compressed", sum.Compressed,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
	)
	return sum, nil
}

func (c *Compressor) inputs() ([]string, error) {
	entries, err := os.ReadDir(c.srcDir)
	if err != nil {
		return nil, fmt.Errorf("read recordings dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "temp_recording_") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".mp4", ".webm":
			out = append(out, filepath.Join(c.srcDir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (c *Compressor) removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("compress remove partial failed", "path", path, "error", err)
	}
}

func promote(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", src)
	}
	return os.Rename(src, dst)
}
