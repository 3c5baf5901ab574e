package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDeliveryArgsContract(t *testing.T) {
	a := DeliveryArgs()
	a.Scale = "390:844"
	got := strings.Join(a.build("in.webm", "out.mp4.part"), " ")
	want := "-hide_banner -y -i in.webm -vf scale=390:844 -c:v libx264 -crf 23 -preset veryfast -pix_fmt yuv420p -c:a aac -b:a 192k -movflags +faststart -f mp4 out.mp4.part"
	if got != want {
		t.Fatalf("args = %q;\nwant %q", got, want)
	}
}

func TestCompressArgs(t *testing.T) {
	got := strings.Join(CompressArgs().build("a.mp4", "b.mp4"), " ")
	for _, part := range []string{"-crf 28", "-preset slow", "-b:a 128k"} {
		if !strings.Contains(got, part) {
			t.Fatalf("compress args %q missing %q", got, part)
		}
	}
	if strings.Contains(got, "-vf") {
		t.Fatalf("compress args %q should not scale", got)
	}
}

func TestTranscodeSurfacesExitCode(t *testing.T) {
	tr := New("ffmpeg", DeliveryArgs(), time.Second)
	tr.run = func(ctx context.Context, bin string, args []string) ([]byte, int, error) {
		return []byte(strings.Repeat("x", maxOutputTail) + "Invalid data found"), 1, errors.New("exit status 1")
	}

	err := tr.Transcode(context.Background(), "in.webm", "out.mp4")
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("Transcode() error = %T; want *Error", err)
	}
	if te.ExitCode != 1 {
		t.Fatalf("ExitCode = %d; want 1", te.ExitCode)
	}
	if len(te.Output) != maxOutputTail || !strings.HasSuffix(te.Output, "Invalid data found") {
		t.Fatalf("Output tail = %d bytes; want last %d bytes", len(te.Output), maxOutputTail)
	}
}

func TestTranscodeAppliesTimeout(t *testing.T) {
	tr := New("ffmpeg", DeliveryArgs(), 10*time.Millisecond)
	tr.run = func(ctx context.Context, bin string, args []string) ([]byte, int, error) {
		<-ctx.Done()
		return nil, -1, ctx.Err()
	}
	if err := tr.Transcode(context.Background(), "in", "out"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Transcode() error = %v; want deadline exceeded", err)
	}
}

func fakeEncoder(calls *[]string) runFunc {
	return func(ctx context.Context, bin string, args []string) ([]byte, int, error) {
		in, out := args[3], args[len(args)-1]
		*calls = append(*calls, filepath.Base(in))
		if strings.Contains(in, "broken") {
			return []byte("boom"), 1, errors.New("exit status 1")
		}
		return nil, 0, os.WriteFile(out, []byte("compressed"), 0o644)
	}
}

func TestCompressorSkipsExistingAndContinuesOnFailure(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"a_1.mp4", "b_2.webm", "broken_3.mp4", "done_4.mp4", "temp_recording_5.webm", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte("raw"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	dst := filepath.Join(src, "mp4")
	if err := os.MkdirAll(dst, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dst, "done_4.mp4"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls []string
	tr := New("ffmpeg", CompressArgs(), 0)
	tr.run = fakeEncoder(&calls)

	sum, err := NewCompressor(tr, src, "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Compressed != 2 || sum.Skipped != 1 || sum.Failed != 1 {
		t.Fatalf("summary = %+v; want 2 compressed, 1 skipped, 1 failed", sum)
	}
	if len(calls) != 3 {
		t.Fatalf("encoder calls = %v; want 3", calls)
	}
	if _, err := os.Stat(filepath.Join(dst, "b_2.mp4")); err != nil {
		t.Fatalf("webm input not normalized to mp4: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "broken_3.mp4.part")); !os.IsNotExist(err) {
		t.Fatal("partial output left behind after failure")
	}
}
