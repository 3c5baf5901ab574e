package cdpcontrol

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeEvaluator struct {
	stopped bool
	err     error
	onStop  func()
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, expr string, out any) error {
	if f.err != nil {
		return f.err
	}
	if b, ok := out.(*bool); ok {
		*b = f.stopped
	}
	if f.onStop != nil {
		go f.onStop()
	}
	return nil
}

func chunkPayload(seq int, data string) string {
	return fmt.Sprintf(`{"seq":%d,"data":%q}`, seq, base64.StdEncoding.EncodeToString([]byte(data)))
}

func collect(t *testing.T, s *mediaStream) []string {
	t.Helper()
	var got []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c, ok := <-s.Chunks():
			if !ok {
				return got
			}
			got = append(got, string(c))
		case <-timeout:
			t.Error("chunk channel never closed")
			return got
		}
	}
}

func TestMediaStreamDeliversInOrderUntilEnd(t *testing.T) {
	s := newMediaStream(&fakeEvaluator{})
	go s.pump()

	s.enqueue(chunkPayload(0, "aa"))
	s.enqueue(`{"error":"transient"}`)
	s.enqueue(chunkPayload(1, "bb"))
	s.enqueue(`{"end":true}`)
	s.enqueue(chunkPayload(2, "late"))

	got := collect(t, s)
	if len(got) != 2 || got[0] != "aa" || got[1] != "bb" {
		t.Fatalf("chunks = %q; want [aa bb]", got)
	}
	if s.received.Load() != 2 {
		t.Fatalf("received = %d; want 2", s.received.Load())
	}
}

func TestMediaStreamStopWaitsForEndMarker(t *testing.T) {
	var s *mediaStream
	ev := &fakeEvaluator{stopped: true}
	s = newMediaStream(ev)
	ev.onStop = func() {
		s.enqueue(chunkPayload(5, "tail"))
		s.enqueue(`{"end":true}`)
	}
	go s.pump()
	s.enqueue(chunkPayload(4, "head"))

	results := make(chan []string, 1)
	go func() { results <- collect(t, s) }()

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	got := <-results
	if len(got) != 2 || got[1] != "tail" {
		t.Fatalf("chunks = %q; want [head tail]", got)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v; want nil", err)
	}
}

func TestMediaStreamStopForcesWhenRecorderGone(t *testing.T) {
	s := newMediaStream(&fakeEvaluator{err: errors.New("target closed")})
	go s.pump()
	s.enqueue(chunkPayload(0, "only"))

	results := make(chan []string, 1)
	go func() { results <- collect(t, s) }()

	err := s.Stop(context.Background())
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeStreamUnavailable {
		t.Fatalf("Stop() error = %v; want %s", err, CodeStreamUnavailable)
	}
	if got := <-results; len(got) != 1 || got[0] != "only" {
		t.Fatalf("chunks = %q; want [only]", got)
	}
}

func TestMediaStreamEnqueueAfterCloseIsIgnored(t *testing.T) {
	s := newMediaStream(&fakeEvaluator{})
	go s.pump()
	s.force()
	<-s.done

	s.enqueue(chunkPayload(0, "x"))
	s.mu.Lock()
	pending := len(s.pending)
	s.mu.Unlock()
	if pending != 0 {
		t.Fatalf("pending = %d; want 0 after close", pending)
	}
}
