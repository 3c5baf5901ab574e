package cdpcontrol

import "fmt"

const (
	CodeEvalFailure       = "EVAL_FAILURE"
	CodeEvalTimeout       = "EVAL_TIMEOUT"
	CodeCDPUnavailable    = "CDP_UNAVAILABLE"
	CodeNavigation        = "NAVIGATION_FAILED"
	CodeSurfaceNotFound   = "SURFACE_NOT_FOUND"
	CodeInputFailure      = "INPUT_FAILURE"
	CodeStreamUnavailable = "STREAM_UNAVAILABLE"

	// Control surface codes.
	CodeValidation = "VALIDATION"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "CONFLICT"
	CodeDisabled   = "DISABLED"
)

// CodedError is a typed error used for stable mapping into session failures
// and HTTP statuses.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// StreamInfo describes the recorder the page actually started.
type StreamInfo struct {
	MimeType    string `json:"mime_type"`
	AudioTracks int    `json:"audio_tracks"`
	VideoTracks int    `json:"video_tracks"`
}
