package relay

import (
	"log/slog"

	"github.com/dgnsrekt/replay_capture/internal/batch"
	"github.com/dgnsrekt/replay_capture/internal/session"
)

// StageEvent is the session feed payload.
type StageEvent struct {
	ID          string         `json:"id"`
	Identifier  string         `json:"identifier"`
	Status      session.Status `json:"status"`
	Label       string         `json:"label,omitempty"`
	Audio       bool           `json:"audio_unlocked"`
	Interrupted bool           `json:"interrupted"`
	ErrorKind   session.Kind   `json:"error_kind,omitempty"`
	Error       string         `json:"error,omitempty"`
	FinalPath   string         `json:"final_path,omitempty"`
}

// Relay turns session and batch callbacks into broker events.
type Relay struct {
	broker *Broker
}

// NewRelay creates a relay publishing to broker.
func NewRelay(broker *Broker) *Relay {
	return &Relay{broker: broker}
}

// Stage publishes one session transition. Safe as a session.Controller
// OnStage hook: it never blocks.
func (r *Relay) Stage(rep session.Report) {
	r.broker.PublishJSON(FeedSession, StageEvent{
		ID:          rep.ID,
		Identifier:  rep.Target.Identifier,
		Status:      rep.Status,
		Label:       rep.Label,
		Audio:       rep.AudioUnlocked,
		Interrupted: rep.Interrupted,
		ErrorKind:   rep.ErrorKind,
		Error:       rep.Error,
		FinalPath:   rep.FinalPath,
	})
	slog.Debug("relay: stage published", "id", rep.ID, "status", rep.Status, "clients", r.broker.ClientCount())
}

// Progress publishes batch progress.
func (r *Relay) Progress(p batch.Progress) {
	r.broker.PublishJSON(FeedBatch, p)
}
