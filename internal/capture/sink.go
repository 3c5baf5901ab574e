package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/replay_capture/internal/types"
)

// Source opens the engine's combined audio/video stream.
type Source interface {
	OpenStream(ctx context.Context, opts types.StreamOptions) (types.MediaStream, error)
}

// Sink writes one media stream to one temporary file. A session owns exactly
// one sink and must Close it before reading the file.
type Sink struct {
	path   string
	file   *os.File
	stream types.MediaStream

	written atomic.Int64
	chunks  atomic.Int64

	mu       sync.Mutex // protects: writeErr, status, closedAt
	writeErr error
	status   string // "recording" | "closing" | "closed"
	openedAt time.Time
	closedAt time.Time

	writerDone chan struct{}
	closeOnce  sync.Once
	closed     chan struct{}
	closeErr   error
}

// Info is a snapshot of sink progress.
type Info struct {
	Path     string    `json:"path"`
	Status   string    `json:"status"`
	Bytes    int64     `json:"bytes"`
	Chunks   int64     `json:"chunks"`
	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at,omitempty"`
}

// Open creates path exclusively, starts the stream, and begins writing.
func Open(ctx context.Context, src Source, path string, opts types.StreamOptions) (*Sink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	stream, err := src.OpenStream(ctx, opts)
	if err != nil {
		_ = file.Close()
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Debug("capture: remove unused file failed", "path", path, "error", rmErr)
		}
		return nil, fmt.Errorf("open media stream: %w", err)
	}

	s := &Sink{
		path:       path,
		file:       file,
		stream:     stream,
		status:     "recording",
		openedAt:   time.Now(),
		writerDone: make(chan struct{}),
		closed:     make(chan struct{}),
	}
	go s.writerLoop()
	slog.Info("capture sink opened", "path", path)
	return s, nil
}

// writerLoop drains the stream until it closes. After a write error it keeps
// draining so the stream producer is never blocked.
func (s *Sink) writerLoop() {
	defer close(s.writerDone)
	for chunk := range s.stream.Chunks() {
		s.mu.Lock()
		failed := s.writeErr != nil
		s.mu.Unlock()
		if failed {
			continue
		}
		n, err := s.file.Write(chunk)
		s.written.Add(int64(n))
		s.chunks.Add(1)
		if err != nil {
			slog.Error("capture: write chunk failed", "path", s.path, "error", err)
			s.mu.Lock()
			s.writeErr = err
			s.mu.Unlock()
		}
	}
}

// Close stops the stream, waits for the writer to drain, then flushes and
// closes the file. The first caller does the work; concurrent callers wait
// for it, and every later call is a no-op returning nil.
func (s *Sink) Close(ctx context.Context) error {
	first := false
	s.closeOnce.Do(func() {
		first = true
		s.closeErr = s.close(ctx)
		close(s.closed)
	})
	if !first {
		<-s.closed
		return nil
	}
	return s.closeErr
}

func (s *Sink) close(ctx context.Context) error {
	s.setStatus("closing")
	stopErr := s.stream.Stop(ctx)
	if stopErr != nil {
		slog.Warn("capture: stream stop reported error", "path", s.path, "error", stopErr)
	}

	select {
	case <-s.writerDone:
	case <-ctx.Done():
		slog.Warn("capture: writer did not drain before deadline", "path", s.path)
	}

	var errs []error
	if err := s.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync capture file: %w", err))
	}
	if err := s.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close capture file: %w", err))
	}
	s.mu.Lock()
	if s.writeErr != nil {
		errs = append(errs, fmt.Errorf("write capture file: %w", s.writeErr))
	}
	s.status = "closed"
	s.closedAt = time.Now()
	s.mu.Unlock()

	slog.Info("capture sink closed",
		"path", s.path,
		"bytes", s.written.Load(),
		"chunks", s.chunks.Load(),
	)
	return errors.Join(errs...)
}

func (s *Sink) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Sink) Path() string { return s.path }

// Info returns a thread-safe snapshot of the sink state.
func (s *Sink) Info() Info {
	s.mu.Lock()
	status, closedAt := s.status, s.closedAt
	s.mu.Unlock()
	return Info{
		Path:     s.path,
		Status:   status,
		Bytes:    s.written.Load(),
		Chunks:   s.chunks.Load(),
		OpenedAt: s.openedAt,
		ClosedAt: closedAt,
	}
}
