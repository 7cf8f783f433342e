package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")

	content := []byte("hello world")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestSaveUploadSanitizesAndDedupes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	first, n, err := SaveUpload(dir, "../talk?.wav", strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 bytes written, got %d", n)
	}
	if first != filepath.Join(dir, "talk.wav") {
		t.Fatalf("unexpected path %q", first)
	}

	second, _, err := SaveUpload(dir, "talk.wav", strings.NewReader("defg"))
	if err != nil {
		t.Fatalf("SaveUpload second: %v", err)
	}
	if second != filepath.Join(dir, "talk-1.wav") {
		t.Fatalf("expected suffixed path, got %q", second)
	}
	data, err := os.ReadFile(first)
	if err != nil || string(data) != "abc" {
		t.Fatalf("first upload clobbered: %q err=%v", data, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".upload-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSaveUploadRejectsEmptyName(t *testing.T) {
	_, _, err := SaveUpload(t.TempDir(), "???", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 5), 0o644); err != nil {
		t.Fatal(err)
	}
	size, err := DirSize(dir)
	if err != nil {
		t.Fatal(err)
	}
	if size != 15 {
		t.Fatalf("expected 15 bytes, got %d", size)
	}
}
