package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"squeeze/internal/fileutil"
)

func TestReadStaged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	payload := []byte("fake video payload")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	staged, err := fileutil.ReadStaged(path)
	if err != nil {
		t.Fatalf("ReadStaged returned error: %v", err)
	}
	if staged.Name != "clip.mp4" {
		t.Fatalf("unexpected name %q", staged.Name)
	}
	if staged.Size != int64(len(payload)) {
		t.Fatalf("unexpected size %d", staged.Size)
	}
	if staged.MimeType != "video/mp4" {
		t.Fatalf("unexpected mime type %q", staged.MimeType)
	}
	if string(staged.Data) != string(payload) {
		t.Fatalf("payload mismatch")
	}
	if staged.Modified.IsZero() {
		t.Fatal("expected modified time")
	}
}

func TestReadStagedRejectsDirectory(t *testing.T) {
	if _, err := fileutil.ReadStaged(t.TempDir()); err == nil {
		t.Fatal("expected error for directory path")
	}
}

func TestDetectMimeType(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"photo.JPG", "image/jpeg"},
		{"photo.webp", "image/webp"},
		{"clip.mkv", "video/x-matroska"},
		{"clip.m4v", "video/mp4"},
		{"notes.txt", "application/octet-stream"},
	}
	for _, tc := range cases {
		if got := fileutil.DetectMimeType(tc.name); got != tc.want {
			t.Fatalf("DetectMimeType(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsSupportedMedia(t *testing.T) {
	if !fileutil.IsSupportedMedia("a.png") || !fileutil.IsSupportedMedia("b.webm") {
		t.Fatal("expected media extensions to be supported")
	}
	if fileutil.IsSupportedMedia("c.exe") {
		t.Fatal("expected unsupported extension to be rejected")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.bin")
	if err := fileutil.WriteFileAtomic(path, []byte("payload"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic returned error: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(content) != "payload" {
		t.Fatalf("unexpected content %q", content)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files cleaned up, found %d entries", len(entries))
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KiB"},
		{5 * 1024 * 1024, "5.00 MiB"},
		{3 * 1024 * 1024 * 1024, "3.00 GiB"},
	}
	for _, tc := range cases {
		if got := fileutil.FormatBytes(tc.in); got != tc.want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
