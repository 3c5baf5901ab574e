package session

import (
	"time"

	"github.com/dgnsrekt/replay_capture/internal/types"
	"github.com/dgnsrekt/replay_capture/internal/unlock"
)

// Warning is a non-fatal condition the session tolerated.
type Warning struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Report is the record of one capture session. The controller owns the live
// value; everyone else gets copies.
type Report struct {
	ID     string              `json:"id"`
	Target types.CaptureTarget `json:"target"`
	Status Status              `json:"status"`
	Stages []Status            `json:"stages"`

	PageLoaded    bool          `json:"page_loaded"`
	SurfaceFound  bool          `json:"surface_found"`
	AudioUnlocked bool          `json:"audio_unlocked"`
	Unlock        unlock.Result `json:"unlock"`
	Label         string        `json:"label,omitempty"`

	StartedAtMs int64  `json:"started_at_ms"`
	TempPath    string `json:"temp_path,omitempty"`
	FinalPath   string `json:"final_path,omitempty"`
	RawBytes    int64  `json:"raw_bytes"`
	OutputBytes int64  `json:"output_bytes"`

	EndReason   string    `json:"end_reason,omitempty"`
	Interrupted bool      `json:"interrupted"`
	Warnings    []Warning `json:"warnings,omitempty"`
	ErrorKind   Kind      `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Succeeded reports whether the session produced a final artifact.
func (r Report) Succeeded() bool { return r.Status == StatusComplete }

// Duration is zero until the session ends.
func (r Report) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

func (r Report) clone() Report {
	c := r
	c.Stages = append([]Status(nil), r.Stages...)
	c.Warnings = append([]Warning(nil), r.Warnings...)
	return c
}

func (r Report) hasWarning(k Kind) bool {
	for _, w := range r.Warnings {
		if w.Kind == k {
			return true
		}
	}
	return false
}
