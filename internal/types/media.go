package types

import "context"

// Box is a rectangle in CSS pixels relative to the page viewport.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the box has no usable area.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// At maps fractional coordinates to absolute page coordinates.
func (b Box) At(fx, fy float64) (float64, float64) {
	return b.X + fx*b.Width, b.Y + fy*b.Height
}

// Center returns the midpoint of the box.
func (b Box) Center() (float64, float64) {
	return b.At(0.5, 0.5)
}

// StreamOptions tunes the combined audio/video stream requested from the
// engine.
type StreamOptions struct {
	MimeType           string `json:"mime_type"`
	VideoBitsPerSecond int    `json:"video_bits_per_second"`
	TimesliceMS        int    `json:"timeslice_ms"`
	FrameRate          int    `json:"frame_rate"`
}

// DefaultStreamOptions matches the recorder settings used for replays.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		MimeType:           "video/webm;codecs=vp9,opus",
		VideoBitsPerSecond: 8_000_000,
		TimesliceMS:        1000,
		FrameRate:          30,
	}
}

// MediaStream is a live combined audio/video stream. Chunks are delivered in
// order and the channel is closed once Stop has flushed the final chunk.
type MediaStream interface {
	Chunks() <-chan []byte
	Stop(ctx context.Context) error
}
