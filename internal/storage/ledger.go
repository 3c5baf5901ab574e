package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// FinalExt is the extension of delivered artifacts.
	FinalExt = ".mp4"
	// RawExt is the extension of raw engine captures.
	RawExt = ".webm"
	// PartialSuffix marks a transcode output that has not been promoted yet.
	PartialSuffix = ".part"

	tempPrefix  = "temp_recording_"
	unknownName = "unknown_replay"
)

// ErrEmptyFile is returned when a file that should carry media has no bytes.
var ErrEmptyFile = errors.New("file is empty")

// Artifact is a finished media file in the output directory.
type Artifact struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	Format    string    `json:"format"`
	ModTime   time.Time `json:"mod_time"`
}

// Ledger treats the output directory as the record of completed work. A
// target is done exactly when a promoted artifact for it exists.
type Ledger struct {
	dir string
}

// NewLedger creates the output directory if needed.
func NewLedger(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Ledger{dir: dir}, nil
}

func (l *Ledger) Dir() string { return l.dir }

// FinalPath returns <dir>/<sanitized name>_<epochMs>.mp4.
func (l *Ledger) FinalPath(name string, startedAt time.Time) string {
	safe := SanitizeName(name)
	if safe == "" {
		safe = unknownName
	}
	return filepath.Join(l.dir, fmt.Sprintf("%s_%d%s", safe, startedAt.UnixMilli(), FinalExt))
}

// TempPath returns the raw capture path for a session started at startedAt.
// It lives in the output directory so promotion never crosses filesystems.
func (l *Ledger) TempPath(startedAt time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s%d%s", tempPrefix, startedAt.UnixMilli(), RawExt))
}

// Completed reports the artifact already produced for identifier, if any.
func (l *Ledger) Completed(identifier string) (string, bool, error) {
	safe := SanitizeName(identifier)
	if safe == "" {
		return "", false, nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read output dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if matchesArtifact(e.Name(), safe) {
			return filepath.Join(l.dir, e.Name()), true, nil
		}
	}
	return "", false, nil
}

// matchesArtifact requires the exact <safe>_<digits>.mp4 shape so that one
// identifier that prefixes another does not count as done.
func matchesArtifact(name, safe string) bool {
	if !strings.HasPrefix(name, safe+"_") || !strings.HasSuffix(name, FinalExt) {
		return false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, safe+"_"), FinalExt)
	if stamp == "" {
		return false
	}
	for _, r := range stamp {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Promote atomically renames src to dst, refusing empty files.
func (l *Ledger) Promote(src, dst string) (Artifact, error) {
	info, err := os.Stat(src)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat %s: %w", src, err)
	}
	if info.Size() == 0 {
		return Artifact{}, fmt.Errorf("promote %s: %w", src, ErrEmptyFile)
	}
	if err := os.Rename(src, dst); err != nil {
		return Artifact{}, fmt.Errorf("promote %s: %w", src, err)
	}
	return Artifact{
		Path:      dst,
		Name:      filepath.Base(dst),
		SizeBytes: info.Size(),
		Format:    strings.TrimPrefix(filepath.Ext(dst), "."),
		ModTime:   info.ModTime(),
	}, nil
}

// List returns delivered artifacts sorted by name.
func (l *Ledger) List() ([]Artifact, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}
	out := make([]Artifact, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != FinalExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Artifact{
			Path:      filepath.Join(l.dir, e.Name()),
			Name:      e.Name(),
			SizeBytes: info.Size(),
			Format:    strings.TrimPrefix(FinalExt, "."),
			ModTime:   info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
