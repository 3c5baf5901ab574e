package snapshot

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.Black)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() failed: %v", err)
	}
	return buf.Bytes()
}

func TestSaveFrameAnnotatesAndLists(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	meta, err := store.SaveFrame(Frame{
		SessionID:     "s1",
		Target:        "Big Win X",
		Reason:        ReasonGesture,
		Strategy:      "bottom-row-scan",
		Attempt:       3,
		X:             50,
		Y:             100,
		ViewportWidth: 100,
		Image:         testPNG(t, 300, 600),
	})
	if err != nil {
		t.Fatalf("SaveFrame() error = %v", err)
	}
	if meta.Width != 300 || meta.Height != 600 || meta.Format != "png" {
		t.Fatalf("meta = %+v; want 300x600 png", meta)
	}

	data, format, err := store.ReadImage(meta.ID)
	if err != nil || format != "png" {
		t.Fatalf("ReadImage() = %q, %v; want png", format, err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	// Marker ring at (150,300) scaled by 3, radius 36.
	r, _, _, _ := img.At(150+36, 300).RGBA()
	if r == 0 {
		t.Fatal("expected marker ring drawn at scaled gesture position")
	}

	if _, err := store.SaveFrame(Frame{SessionID: "s2", Image: testPNG(t, 10, 10)}); err != nil {
		t.Fatalf("SaveFrame(s2) error = %v", err)
	}
	metas, err := store.List("s1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(metas) != 1 || metas[0].ID != meta.ID {
		t.Fatalf("List(s1) = %+v; want only %s", metas, meta.ID)
	}
}

func TestSaveFrameRejectsGarbage(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.SaveFrame(Frame{Image: []byte("not an image")}); err == nil {
		t.Fatal("SaveFrame() error = nil; want decode error")
	}
}

func TestDeleteLogsImageCleanupFailureWhenImageMissing(t *testing.T) {
	dir := t.TempDir()
	store := &Store{dir: dir}
	id := "123e4567-e89b-12d3-a456-426614174000"

	metaBytes, err := json.Marshal(Meta{ID: id, Format: "png"})
	if err != nil {
		t.Fatalf("json.Marshal() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, id+".json"), metaBytes, 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}

	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		slog.SetDefault(oldLogger)
	})

	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete() = %v; want nil", err)
	}
	if !strings.Contains(buf.String(), "snapshot image cleanup failed") {
		t.Fatalf("expected image cleanup debug log, got %q", buf.String())
	}
	if _, err := store.Get(id); err == nil {
		t.Fatal("Get() after Delete() error = nil; want not found")
	}
}
