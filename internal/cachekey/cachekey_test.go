package cachekey_test

import (
	"testing"
	"time"

	"squeeze/internal/cachekey"
)

var modTime = time.UnixMilli(1700000000000)

func TestForStagedOriginalUsesCurrentNamespace(t *testing.T) {
	key := cachekey.ForStaged(cachekey.Original(), "My Video.mp4", 1024, modTime)
	want := "original/current/my_video_mp4-1024-1700000000000"
	if key != want {
		t.Fatalf("unexpected key %q, want %q", key, want)
	}
}

func TestForStagedBatchIncludesTaskAndIndex(t *testing.T) {
	key := cachekey.ForStaged(cachekey.BatchFile("3f2a", 2), "Report.PDF", 2048, modTime)
	want := "batch/3f2a/2/report_pdf-2048-1700000000000"
	if key != want {
		t.Fatalf("unexpected key %q, want %q", key, want)
	}
}

func TestForCompressedOmitsTimeComponent(t *testing.T) {
	business := cachekey.Compressed("3f2a", 0)
	first := cachekey.ForCompressed(business, "clip.webm", 555)
	second := cachekey.ForCompressed(business, "clip.webm", 555)
	if first != second {
		t.Fatalf("compressed keys must be stable, got %q then %q", first, second)
	}
	if want := "compressed/3f2a/0/clip_webm-555"; first != want {
		t.Fatalf("unexpected key %q, want %q", first, want)
	}
}

func TestForCompressedSingleFileSegment(t *testing.T) {
	key := cachekey.ForCompressed(cachekey.Compressed("3f2a", cachekey.SingleFileIndex), "clip.webm", 555)
	if want := "compressed/3f2a/single/clip_webm-555"; key != want {
		t.Fatalf("unexpected key %q, want %q", key, want)
	}
}

func TestForStagedModificationTimeChangesKey(t *testing.T) {
	business := cachekey.Original()
	before := cachekey.ForStaged(business, "movie.mkv", 900, modTime)
	after := cachekey.ForStaged(business, "movie.mkv", 900, modTime.Add(time.Second))
	if before == after {
		t.Fatalf("expected distinct keys for edited file, both %q", before)
	}
}

func TestRolePrefixesNeverCollide(t *testing.T) {
	staged := cachekey.ForStaged(cachekey.BatchFile("t", 0), "a.mp4", 10, modTime)
	compressed := cachekey.ForCompressed(cachekey.Compressed("t", 0), "a.mp4", 10)
	if staged == compressed {
		t.Fatalf("role namespaces collided on %q", staged)
	}
}

func TestForStagedEmptyNameFallsBack(t *testing.T) {
	key := cachekey.ForStaged(cachekey.Original(), "", 1, modTime)
	if want := "original/current/unknown-1-1700000000000"; key != want {
		t.Fatalf("unexpected key %q, want %q", key, want)
	}
}

func TestStorePrefixCoversDerivedKeys(t *testing.T) {
	cases := []struct {
		key    cachekey.BusinessKey
		prefix string
	}{
		{cachekey.Original(), "original/current/"},
		{cachekey.BatchFile("3f2a", 2), "batch/3f2a/2/"},
		{cachekey.Compressed("3f2a", cachekey.SingleFileIndex), "compressed/3f2a/single/"},
	}
	for _, tc := range cases {
		if got := tc.key.StorePrefix(); got != tc.prefix {
			t.Fatalf("StorePrefix() = %q, want %q", got, tc.prefix)
		}
	}

	staged := cachekey.ForStaged(cachekey.BatchFile("3f2a", 2), "Report.PDF", 2048, modTime)
	if prefix := cachekey.BatchFile("3f2a", 2).StorePrefix(); staged[:len(prefix)] != prefix {
		t.Fatalf("derived key %q does not start with prefix %q", staged, prefix)
	}
	compressed := cachekey.ForCompressed(cachekey.Compressed("3f2a", 0), "clip.webm", 555)
	if prefix := cachekey.Compressed("3f2a", 0).StorePrefix(); compressed[:len(prefix)] != prefix {
		t.Fatalf("derived key %q does not start with prefix %q", compressed, prefix)
	}
}

func TestNamespacePrefixes(t *testing.T) {
	got := cachekey.NamespacePrefixes("T 1")
	want := []string{"batch/t_1/", "compressed/t_1/"}
	if len(got) != len(want) {
		t.Fatalf("NamespacePrefixes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("NamespacePrefixes = %v, want %v", got, want)
		}
	}

	current := cachekey.NamespacePrefixes("")
	if len(current) != 1 || current[0] != "original/current/" {
		t.Fatalf("NamespacePrefixes(\"\") = %v, want the current-session prefix", current)
	}
}

func TestBusinessKeyString(t *testing.T) {
	cases := []struct {
		key  cachekey.BusinessKey
		want string
	}{
		{cachekey.Original(), "original/current"},
		{cachekey.BatchFile("T 1", 4), "batch/t_1/4"},
		{cachekey.Compressed("x", cachekey.SingleFileIndex), "compressed/x/single"},
	}
	for _, tc := range cases {
		if got := tc.key.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
	}
}
