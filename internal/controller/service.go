package controller

import (
	"context"
	"strings"
	"time"

	"github.com/dgnsrekt/replay_capture/internal/batch"
	"github.com/dgnsrekt/replay_capture/internal/cdpcontrol"
	"github.com/dgnsrekt/replay_capture/internal/session"
	"github.com/dgnsrekt/replay_capture/internal/snapshot"
	"github.com/dgnsrekt/replay_capture/internal/storage"
)

// Sessions is the slice of the session controller the service uses.
type Sessions interface {
	Active() (session.Report, bool)
	Interrupt(reason string) bool
}

// BatchProgress reports the running batch, if any.
type BatchProgress interface {
	Progress() batch.Progress
}

// StreamStats reports event stream subscribers. *relay.Broker satisfies it.
type StreamStats interface {
	ClientCount() int
	Dropped() int64
}

// Status is the control API view of the recorder.
type Status struct {
	Mode          string          `json:"mode"`
	StartedAt     time.Time       `json:"started_at"`
	Uptime        string          `json:"uptime"`
	Session       *session.Report `json:"session,omitempty"`
	Batch         *batch.Progress `json:"batch,omitempty"`
	StreamClients int             `json:"stream_clients"`
	StreamDropped int64           `json:"stream_dropped"`
}

// Service wraps recorder state for the control API.
type Service struct {
	mode      string
	sessions  Sessions
	batch     BatchProgress
	ledger    *storage.Ledger
	snaps     *snapshot.Store
	streams   StreamStats
	startedAt time.Time
}

// NewService creates a service. progress, snaps and streams may be nil.
func NewService(mode string, sessions Sessions, progress BatchProgress, ledger *storage.Ledger, snaps *snapshot.Store, streams StreamStats) *Service {
	return &Service{
		mode:      mode,
		sessions:  sessions,
		batch:     progress,
		ledger:    ledger,
		snaps:     snaps,
		streams:   streams,
		startedAt: time.Now(),
	}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) requireSnapshots() error {
	if s.snaps == nil {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeDisabled, Message: "debug snapshots are disabled (DEBUG_SNAPSHOTS=false)"}
	}
	return nil
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	st := Status{
		Mode:      s.mode,
		StartedAt: s.startedAt,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	}
	if rep, ok := s.sessions.Active(); ok {
		st.Session = &rep
	}
	if s.batch != nil {
		p := s.batch.Progress()
		st.Batch = &p
	}
	if s.streams != nil {
		st.StreamClients = s.streams.ClientCount()
		st.StreamDropped = s.streams.Dropped()
	}
	return st, nil
}

// StopSession interrupts the in-flight session. A recording session is
// finalized, and a running batch stops after it.
func (s *Service) StopSession(ctx context.Context, reason string) (session.Report, error) {
	rep, ok := s.sessions.Active()
	if !ok || !s.sessions.Interrupt(stopReason(reason)) {
		return session.Report{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeConflict, Message: "no capture session is active"}
	}
	return rep, nil
}

func stopReason(reason string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return "control api stop"
}

func (s *Service) ListArtifacts(ctx context.Context) ([]storage.Artifact, error) {
	return s.ledger.List()
}

// ArtifactFor reports the delivered artifact for identifier.
func (s *Service) ArtifactFor(ctx context.Context, identifier string) (string, error) {
	if err := s.requireNonEmpty(identifier, "identifier"); err != nil {
		return "", err
	}
	path, ok, err := s.ledger.Completed(identifier)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &cdpcontrol.CodedError{Code: cdpcontrol.CodeNotFound, Message: "no artifact for " + identifier}
	}
	return path, nil
}

func (s *Service) ListSnapshots(ctx context.Context, sessionID string) ([]snapshot.Meta, error) {
	if err := s.requireSnapshots(); err != nil {
		return nil, err
	}
	return s.snaps.List(strings.TrimSpace(sessionID))
}

func (s *Service) GetSnapshot(ctx context.Context, id string) (snapshot.Meta, error) {
	if err := s.requireSnapshots(); err != nil {
		return snapshot.Meta{}, err
	}
	meta, err := s.snaps.Get(id)
	if err != nil {
		return snapshot.Meta{}, notFound(err)
	}
	return meta, nil
}

func (s *Service) ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error) {
	if err := s.requireSnapshots(); err != nil {
		return nil, "", err
	}
	data, format, err := s.snaps.ReadImage(id)
	if err != nil {
		return nil, "", notFound(err)
	}
	return data, format, nil
}

func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	if err := s.requireSnapshots(); err != nil {
		return err
	}
	if err := s.snaps.Delete(id); err != nil {
		return notFound(err)
	}
	return nil
}

func notFound(err error) error {
	return &cdpcontrol.CodedError{Code: cdpcontrol.CodeNotFound, Message: err.Error(), Cause: err}
}
