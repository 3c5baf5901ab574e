package cdpcontrol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/replay_capture/internal/types"
)

// flushWait bounds how long Stop waits for the recorder's final chunk.
const flushWait = 10 * time.Second

type evaluator interface {
	Evaluate(ctx context.Context, expr string, out any) error
}

type chunkMessage struct {
	Seq   int    `json:"seq"`
	Data  string `json:"data"`
	End   bool   `json:"end"`
	Error string `json:"error"`
}

// mediaStream receives recorder chunks from the page binding. The listener
// only queues raw payloads; decoding happens on the pump goroutine so the CDP
// event loop is never blocked.
type mediaStream struct {
	page evaluator
	info StreamInfo

	mu      sync.Mutex // protects: pending, forced, closed
	pending []string
	forced  bool
	closed  bool
	wake    chan struct{}

	chunks   chan []byte
	done     chan struct{}
	received atomic.Int64

	stopOnce sync.Once
	stopErr  error
}

func newMediaStream(page evaluator) *mediaStream {
	return &mediaStream{
		page:   page,
		wake:   make(chan struct{}, 1),
		chunks: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

// OpenStream starts a combined audio/video recorder on the page.
func (p *Page) OpenStream(ctx context.Context, opts types.StreamOptions) (types.MediaStream, error) {
	s := newMediaStream(p)

	if err := p.run(ctx, p.evalTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return runtime.AddBinding(chunkBinding).Do(ctx)
	})); err != nil {
		return nil, newError(CodeStreamUnavailable, "install capture binding failed", err)
	}
	chromedp.ListenTarget(p.tabCtx, func(ev any) {
		if called, ok := ev.(*runtime.EventBindingCalled); ok && called.Name == chunkBinding {
			s.enqueue(called.Payload)
		}
	})
	go s.pump()

	// getDisplayMedia needs transient activation, which the evaluation grants.
	if err := p.evaluate(ctx, jsStartRecorder(opts), &s.info, true); err != nil {
		s.force()
		for range s.chunks {
		}
		return nil, newError(CodeStreamUnavailable, "start recorder failed", err)
	}
	if s.info.AudioTracks == 0 {
		slog.Warn("cdpcontrol stream has no audio track", "mime_type", s.info.MimeType)
	}
	slog.Info("cdpcontrol stream started",
		"mime_type", s.info.MimeType,
		"audio_tracks", s.info.AudioTracks,
		"video_tracks", s.info.VideoTracks,
		"timeslice_ms", opts.TimesliceMS,
	)
	return s, nil
}

func (s *mediaStream) Chunks() <-chan []byte { return s.chunks }

// enqueue is called from the CDP event loop and must never block.
func (s *mediaStream) enqueue(payload string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, payload)
	s.mu.Unlock()
	s.signal()
}

func (s *mediaStream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// force ends the stream after whatever is already queued.
func (s *mediaStream) force() {
	s.mu.Lock()
	s.forced = true
	s.mu.Unlock()
	s.signal()
}

func (s *mediaStream) pump() {
	defer close(s.done)
	defer close(s.chunks)
	defer func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		forced := s.forced
		s.mu.Unlock()

		for _, raw := range batch {
			var msg chunkMessage
			if err := json.Unmarshal([]byte(raw), &msg); err != nil {
				slog.Warn("cdpcontrol stream: bad chunk message", "error", err)
				continue
			}
			if msg.Error != "" {
				slog.Warn("cdpcontrol stream: recorder error", "error", msg.Error)
				continue
			}
			if msg.End {
				slog.Debug("cdpcontrol stream: end marker", "chunks", s.received.Load())
				return
			}
			data, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				slog.Warn("cdpcontrol stream: base64 decode failed", "seq", msg.Seq, "error", err)
				continue
			}
			s.received.Add(1)
			s.chunks <- data
		}

		if len(batch) > 0 {
			continue
		}
		if forced {
			return
		}
		<-s.wake
	}
}

// Stop flushes the recorder and closes the chunk channel. Safe to call more
// than once; later calls return the first result.
func (s *mediaStream) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { s.stopErr = s.stop(ctx) })
	return s.stopErr
}

func (s *mediaStream) stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, flushWait)
	defer cancel()

	var stopped bool
	evalErr := s.page.Evaluate(ctx, jsStopRecorder(), &stopped)
	if evalErr != nil || !stopped {
		s.force()
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		s.force()
		<-s.done
		return newError(CodeStreamUnavailable, "recorder did not flush before deadline", ctx.Err())
	}
	if evalErr != nil {
		return newError(CodeStreamUnavailable, "stop recorder failed", evalErr)
	}
	return nil
}
