package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Gates of Olympus!":      "Gates_of_Olympus_",
		"sweet-bonanza_1000":     "sweet-bonanza_1000",
		"Ünïcode/slash":          "_n_code_slash",
		strings.Repeat("a", 80): strings.Repeat("a", MaxNameLength),
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Fatalf("SanitizeName(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestIdentifierFromURL(t *testing.T) {
	if got := IdentifierFromURL("https://example.com/replay/abc123/"); got != "abc123" {
		t.Fatalf("IdentifierFromURL() = %q; want %q", got, "abc123")
	}
	if got := IdentifierFromURL("https://example.com/?token=xyz"); got != "token=xyz" {
		t.Fatalf("IdentifierFromURL() = %q; want %q", got, "token=xyz")
	}
}

func TestLedgerPaths(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLedger(dir)
	if err != nil {
		t.Fatalf("NewLedger() error = %v", err)
	}
	at := time.UnixMilli(1700000000123)

	if got, want := l.FinalPath("Big Win #1", at), filepath.Join(dir, "Big_Win__1_1700000000123.mp4"); got != want {
		t.Fatalf("FinalPath() = %q; want %q", got, want)
	}
	if got, want := l.FinalPath("", at), filepath.Join(dir, "unknown_replay_1700000000123.mp4"); got != want {
		t.Fatalf("FinalPath(empty) = %q; want %q", got, want)
	}
	if got, want := l.TempPath(at), filepath.Join(dir, "temp_recording_1700000000123.webm"); got != want {
		t.Fatalf("TempPath() = %q; want %q", got, want)
	}
}

func TestLedgerCompleted(t *testing.T) {
	dir := t.TempDir()
	l, _ := NewLedger(dir)
	for _, name := range []string{
		"Big_Win_X_1700000000000.mp4",
		"Other_1700000000000.webm",
		"temp_recording_1700000000000.webm",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	if _, ok, _ := l.Completed("Big Win X"); !ok {
		t.Fatal("Completed(Big Win X) = false; want true")
	}
	if _, ok, _ := l.Completed("Big Win"); ok {
		t.Fatal("Completed(Big Win) = true; a longer identifier must not count")
	}
	if _, ok, _ := l.Completed("Other"); ok {
		t.Fatal("Completed(Other) = true; raw captures are not artifacts")
	}
}

func TestLedgerPromote(t *testing.T) {
	dir := t.TempDir()
	l, _ := NewLedger(dir)

	empty := filepath.Join(dir, "empty.part")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Promote(empty, filepath.Join(dir, "empty.mp4")); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("Promote(empty) error = %v; want ErrEmptyFile", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "empty.mp4")); !os.IsNotExist(err) {
		t.Fatal("empty file was promoted")
	}

	src := filepath.Join(dir, "a.mp4.part")
	if err := os.WriteFile(src, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	art, err := l.Promote(src, filepath.Join(dir, "a_1.mp4"))
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if art.SizeBytes != 5 || art.Format != "mp4" {
		t.Fatalf("artifact = %+v; want 5 bytes mp4", art)
	}

	list, err := l.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "a_1.mp4" {
		t.Fatalf("List() = %+v; want [a_1.mp4]", list)
	}
}

func TestJournalWritesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sessions.jsonl")
	j, err := NewJournal(path, 16, 5)
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := j.Write(map[string]int{"n": i}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := j.Write(map[string]int{"n": 9}); err == nil {
		t.Fatal("Write() after Close error = nil; want error")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()
	var lines int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]int
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %d invalid JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 3 {
		t.Fatalf("journal lines = %d; want 3", lines)
	}
}
