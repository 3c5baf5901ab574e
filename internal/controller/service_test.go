package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgnsrekt/replay_capture/internal/batch"
	"github.com/dgnsrekt/replay_capture/internal/cdpcontrol"
	"github.com/dgnsrekt/replay_capture/internal/session"
	"github.com/dgnsrekt/replay_capture/internal/storage"
)

type stubSessions struct {
	active      *session.Report
	interrupted []string
}

func (s *stubSessions) Active() (session.Report, bool) {
	if s.active == nil {
		return session.Report{}, false
	}
	return *s.active, true
}

func (s *stubSessions) Interrupt(reason string) bool {
	if s.active == nil {
		return false
	}
	s.interrupted = append(s.interrupted, reason)
	return true
}

type stubProgress struct{ p batch.Progress }

func (s stubProgress) Progress() batch.Progress { return s.p }

type stubStreams struct {
	clients int
	dropped int64
}

func (s stubStreams) ClientCount() int { return s.clients }
func (s stubStreams) Dropped() int64   { return s.dropped }

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var coded *cdpcontrol.CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("error type = %T; want *cdpcontrol.CodedError", err)
	}
	return coded.Code
}

func TestRequireNonEmpty(t *testing.T) {
	s := &Service{}
	if err := s.requireNonEmpty("Big Win X", "identifier"); err != nil {
		t.Fatalf("requireNonEmpty() = %v; want nil", err)
	}
	err := s.requireNonEmpty("   ", "identifier")
	if code := codeOf(t, err); code != cdpcontrol.CodeValidation {
		t.Fatalf("requireNonEmpty() code = %q; want %q", code, cdpcontrol.CodeValidation)
	}
	if err.(*cdpcontrol.CodedError).Message != "identifier is required" {
		t.Fatalf("requireNonEmpty() message = %q", err.(*cdpcontrol.CodedError).Message)
	}
}

func TestStopSession(t *testing.T) {
	sessions := &stubSessions{}
	s := NewService("batch", sessions, nil, nil, nil, nil)

	_, err := s.StopSession(context.Background(), "")
	if code := codeOf(t, err); code != cdpcontrol.CodeConflict {
		t.Fatalf("StopSession(idle) code = %q; want %q", code, cdpcontrol.CodeConflict)
	}

	sessions.active = &session.Report{ID: "s1", Status: session.StatusRecording}
	rep, err := s.StopSession(context.Background(), "")
	if err != nil || rep.ID != "s1" {
		t.Fatalf("StopSession() = %+v, %v; want s1", rep, err)
	}
	if len(sessions.interrupted) != 1 || sessions.interrupted[0] != "control api stop" {
		t.Fatalf("interrupt reasons = %v; want default reason", sessions.interrupted)
	}
}

func TestStatusIncludesSessionAndBatch(t *testing.T) {
	sessions := &stubSessions{active: &session.Report{ID: "s1", Status: session.StatusUnlockingAudio}}
	progress := stubProgress{p: batch.Progress{Running: true, Index: 3, Queued: 10}}
	s := NewService("batch", sessions, progress, nil, nil, stubStreams{clients: 2, dropped: 7})

	st, err := s.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Session == nil || st.Session.Status != session.StatusUnlockingAudio {
		t.Fatalf("Session = %+v; want unlocking_audio", st.Session)
	}
	if st.Batch == nil || st.Batch.Index != 3 || st.StreamClients != 2 || st.StreamDropped != 7 || st.Mode != "batch" {
		t.Fatalf("Status() = %+v", st)
	}
}

func TestArtifactsAndDisabledSnapshots(t *testing.T) {
	ledger, err := storage.NewLedger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ledger.Dir(), "Big_Win_X_1700000000000.mp4"), []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewService("batch", &stubSessions{}, nil, ledger, nil, nil)

	arts, err := s.ListArtifacts(context.Background())
	if err != nil || len(arts) != 1 {
		t.Fatalf("ListArtifacts() = %v, %v; want 1 artifact", arts, err)
	}
	if _, err := s.ArtifactFor(context.Background(), "Big Win X"); err != nil {
		t.Fatalf("ArtifactFor() error = %v", err)
	}
	_, err = s.ArtifactFor(context.Background(), "Wolf Gold")
	if code := codeOf(t, err); code != cdpcontrol.CodeNotFound {
		t.Fatalf("ArtifactFor(missing) code = %q; want %q", code, cdpcontrol.CodeNotFound)
	}
	_, err = s.ListSnapshots(context.Background(), "")
	if code := codeOf(t, err); code != cdpcontrol.CodeDisabled {
		t.Fatalf("ListSnapshots() code = %q; want %q", code, cdpcontrol.CodeDisabled)
	}
}
