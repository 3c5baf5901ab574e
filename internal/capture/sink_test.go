package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dgnsrekt/replay_capture/internal/types"
)

type fakeStream struct {
	ch    chan []byte
	tail  [][]byte
	stops atomic.Int32
	once  sync.Once
}

func (f *fakeStream) Chunks() <-chan []byte { return f.ch }

func (f *fakeStream) Stop(ctx context.Context) error {
	f.stops.Add(1)
	f.once.Do(func() {
		for _, c := range f.tail {
			f.ch <- c
		}
		close(f.ch)
	})
	return nil
}

type fakeSource struct {
	stream *fakeStream
	err    error
}

func (f *fakeSource) OpenStream(ctx context.Context, opts types.StreamOptions) (types.MediaStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func TestSinkWritesChunksAndFlushesTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp_recording_1.webm")
	stream := &fakeStream{ch: make(chan []byte, 4), tail: [][]byte{[]byte("cd")}}
	stream.ch <- []byte("ab")

	s, err := Open(context.Background(), &fakeSource{stream: stream}, path, types.DefaultStreamOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	if string(data) != "abcd" {
		t.Fatalf("capture = %q; want %q", data, "abcd")
	}
	if info := s.Info(); info.Status != "closed" || info.Bytes != 4 || info.Chunks != 2 {
		t.Fatalf("Info() = %+v; want closed with 4 bytes in 2 chunks", info)
	}
}

func TestSinkCloseIsIdempotentAcrossGoroutines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp_recording_2.webm")
	stream := &fakeStream{ch: make(chan []byte, 1)}
	s, err := Open(context.Background(), &fakeSource{stream: stream}, path, types.DefaultStreamOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Close(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Close() error = %v; want nil", err)
		}
	}
	if got := stream.stops.Load(); got != 1 {
		t.Fatalf("stream stopped %d times; want 1", got)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("late Close() error = %v; want nil", err)
	}
}

func TestOpenRemovesFileWhenStreamFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp_recording_3.webm")
	_, err := Open(context.Background(), &fakeSource{err: errors.New("no tab capture")}, path, types.DefaultStreamOptions())
	if err == nil {
		t.Fatal("Open() error = nil; want stream error")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("capture file left behind: %v", statErr)
	}
}

func TestOpenRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp_recording_4.webm")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	stream := &fakeStream{ch: make(chan []byte)}
	if _, err := Open(context.Background(), &fakeSource{stream: stream}, path, types.DefaultStreamOptions()); err == nil {
		t.Fatal("Open() error = nil; want exists error")
	}
}
