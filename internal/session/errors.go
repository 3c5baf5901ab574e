package session

import (
	"errors"
	"fmt"
)

// Kind classifies why a session failed or what it had to tolerate.
type Kind string

const (
	KindNone                 Kind = ""
	KindNavigation           Kind = "NavigationError"
	KindSurfaceNotFound      Kind = "SurfaceNotFound"
	KindAudioUnlockExhausted Kind = "AudioUnlockExhausted"
	KindEmptyCapture         Kind = "EmptyCapture"
	KindTranscode            Kind = "TranscodeError"
	KindInterruptedFinalize  Kind = "InterruptedFinalize"
	KindInterrupted          Kind = "Interrupted"
	KindEngine               Kind = "EngineError"
	KindCapture              Kind = "CaptureError"
	KindInternal             Kind = "InternalError"
)

// Error is a classified session failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf extracts the kind from err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// ErrOperatorStop is the cancel cause for an operator-requested stop.
var ErrOperatorStop = errors.New("operator stop")
