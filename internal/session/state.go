package session

import "fmt"

// Status is a stage of a capture session.
type Status string

const (
	StatusPending        Status = "pending"
	StatusNavigating     Status = "navigating"
	StatusUnlockingAudio Status = "unlocking_audio"
	StatusRecording      Status = "recording"
	StatusFinalizing     Status = "finalizing"
	StatusTranscoding    Status = "transcoding"
	StatusComplete       Status = "complete"
	StatusFailed         Status = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// next is the only forward edge out of each non-terminal status. Failed is
// reachable from every non-terminal status in addition.
var next = map[Status]Status{
	StatusPending:        StatusNavigating,
	StatusNavigating:     StatusUnlockingAudio,
	StatusUnlockingAudio: StatusRecording,
	StatusRecording:      StatusFinalizing,
	StatusFinalizing:     StatusTranscoding,
	StatusTranscoding:    StatusComplete,
}

func isAllowedTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return next[from] == to
}

// checkTransition validates a single step.
func checkTransition(from, to Status) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed session transition: %s -> %s", from, to)
	}
	return nil
}
