package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

var (
	markerGesture  = color.RGBA{R: 255, G: 64, B: 64, A: 220}
	markerUnlocked = color.RGBA{R: 40, G: 200, B: 90, A: 220}
)

// annotate draws the gesture hitbox and a caption on the frame image and
// returns it as PNG with its pixel size.
func annotate(f Frame) ([]byte, int, int, error) {
	src, _, err := image.Decode(bytes.NewReader(f.Image))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("snapshot decode: %w", err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	// Screenshots are in device pixels, gestures in CSS pixels.
	scale := 1.0
	if f.ViewportWidth > 0 {
		scale = float64(w) / float64(f.ViewportWidth)
	}
	x, y := f.X*scale, f.Y*scale

	dc := gg.NewContextForImage(src)
	marker := markerGesture
	if f.Reason == ReasonUnlocked {
		marker = markerUnlocked
	}
	dc.SetColor(marker)
	dc.SetLineWidth(3 * scale)
	dc.DrawCircle(x, y, 12*scale)
	dc.Stroke()
	dc.DrawLine(x-18*scale, y, x+18*scale, y)
	dc.DrawLine(x, y-18*scale, x, y+18*scale)
	dc.Stroke()

	caption := fmt.Sprintf("%s #%d (%.0f,%.0f)", f.Strategy, f.Attempt, f.X, f.Y)
	dc.SetColor(color.RGBA{A: 180})
	dc.DrawRectangle(0, 0, float64(w), 20)
	dc.Fill()
	dc.SetColor(color.White)
	dc.SetFontFace(basicfont.Face7x13)
	dc.DrawStringAnchored(caption, 6, 10, 0, 0.35)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, 0, 0, fmt.Errorf("snapshot encode: %w", err)
	}
	return buf.Bytes(), w, h, nil
}
