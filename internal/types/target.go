package types

// CaptureTarget is one replay queued for capture. It is never mutated after
// it is enqueued.
type CaptureTarget struct {
	Identifier   string `json:"identifier"`
	SourceURL    string `json:"source_url"`
	DisplayTitle string `json:"display_title,omitempty"`
}

// HasURL reports whether the target can be captured at all.
func (t CaptureTarget) HasURL() bool {
	return t.SourceURL != ""
}
