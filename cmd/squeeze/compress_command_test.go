package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"squeeze/internal/services"
)

func TestCompressSingleStagesUploadsAndStarts(t *testing.T) {
	env := setupCLITestEnv(t)
	input := writeMediaFile(t, env, "clip.mp4", "0123456789A")

	stdout, _, err := runCLI(t, env, "compress", input)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}

	requireContains(t, stdout, "Staged clip.mp4 (11 B)")
	requireContains(t, stdout, "Uploaded as task task-1")
	requireContains(t, stdout, "Compression started for task task-1")
	requireContains(t, stdout, "Follow progress with: squeeze task watch task-1")

	uploads := env.service.uploadedFiles()
	if len(uploads) != 1 || uploads[0] != "clip.mp4" {
		t.Fatalf("expected one upload of clip.mp4, got %v", uploads)
	}
	started := env.service.startedTasks()
	if len(started) != 1 || started[0] != "task-1" {
		t.Fatalf("expected compression started for task-1, got %v", started)
	}
}

func TestCompressStagedOriginalSurvivesIntoNextInvocation(t *testing.T) {
	env := setupCLITestEnv(t)
	input := writeMediaFile(t, env, "clip.mp4", "0123456789A")

	if _, _, err := runCLI(t, env, "compress", input); err != nil {
		t.Fatalf("compress failed: %v", err)
	}

	stdout, _, err := runCLI(t, env, "cache", "ls")
	if err != nil {
		t.Fatalf("cache ls failed: %v", err)
	}
	requireContains(t, stdout, "original/current/clip_mp4-11-")
	requireContains(t, stdout, "clip.mp4")
	requireContains(t, stdout, "video/mp4")
}

func TestCompressRejectsUnsupportedMedia(t *testing.T) {
	env := setupCLITestEnv(t)
	notes := writeMediaFile(t, env, "notes.txt", "not media")

	_, _, err := runCLI(t, env, "compress", notes)
	if err == nil {
		t.Fatal("expected compress to reject a .txt file")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	requireContains(t, err.Error(), `unsupported media type ".txt"`)

	if uploads := env.service.uploadedFiles(); len(uploads) != 0 {
		t.Fatalf("nothing should have been uploaded, got %v", uploads)
	}
}

func TestCompressMissingFileFails(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env, "compress", filepath.Join(env.baseDir, "missing.mp4"))
	if err == nil {
		t.Fatal("expected compress to fail for a missing file")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCompressReplacesPreviouslyStagedFile(t *testing.T) {
	env := setupCLITestEnv(t)
	first := writeMediaFile(t, env, "first.mp4", "AAAAAAAAA")
	second := writeMediaFile(t, env, "second.mp4", "BBBBBBBBBB")

	if _, _, err := runCLI(t, env, "compress", first); err != nil {
		t.Fatalf("first compress failed: %v", err)
	}

	// The second invocation is a fresh process; the purge has to find the
	// earlier staging through the store, not through in-memory references.
	stdout, _, err := runCLI(t, env, "compress", second)
	if err != nil {
		t.Fatalf("second compress failed: %v", err)
	}
	requireContains(t, stdout, "Replaced previously staged file (purged 1 cache entry)")

	lsOut, _, err := runCLI(t, env, "cache", "ls")
	if err != nil {
		t.Fatalf("cache ls failed: %v", err)
	}
	requireContains(t, lsOut, "second_mp4")
	requireNotContains(t, lsOut, "first_mp4")
}

func TestCompressBatchStagesEveryFile(t *testing.T) {
	env := setupCLITestEnv(t)
	first := writeMediaFile(t, env, "first.mp4", "AAAAAAAAA")
	second := writeMediaFile(t, env, "second.webm", "BBBBBBBBBB")

	stdout, _, err := runCLI(t, env, "compress", first, second)
	if err != nil {
		t.Fatalf("batch compress failed: %v", err)
	}
	requireContains(t, stdout, "Uploaded 2 files as task task-1")
	requireContains(t, stdout, "first.mp4")
	requireContains(t, stdout, "second.webm")
	requireContains(t, stdout, "Compression started for task task-1")

	batches := env.service.batchUploads()
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("expected one batch of two files, got %v", batches)
	}
	if batches[0][0] != "first.mp4" || batches[0][1] != "second.webm" {
		t.Fatalf("batch upload order not preserved: %v", batches[0])
	}

	lsOut, _, err := runCLI(t, env, "cache", "ls")
	if err != nil {
		t.Fatalf("cache ls failed: %v", err)
	}
	requireContains(t, lsOut, "batch/task-1/0/first_mp4-9-")
	requireContains(t, lsOut, "batch/task-1/1/second_webm-10-")
}

func TestCompressDownloadRunsWholeWorkflow(t *testing.T) {
	env := setupCLITestEnv(t)
	input := writeMediaFile(t, env, "clip.mp4", "0123456789A")
	env.service.addBlob(singleDownloadPath, []byte("SQZDATA"), "video/mp4")
	env.service.setTask("task-1", completedSingle())

	stdout, _, err := runCLI(t, env, "compress", "--download", input)
	if err != nil {
		t.Fatalf("compress --download failed: %v", err)
	}

	requireContains(t, stdout, "Task task-1: completed (saved 36.4%)")
	requireContains(t, stdout, "Serving compressed_clip.mp4 from cache")
	target := filepath.Join(env.downloadDir, "compressed_clip.mp4")
	requireContains(t, stdout, "Wrote "+target+" (7 B)")
	requireContains(t, stdout, "Removed remote task task-1 and purged 1 cached entry")
	requireContains(t, stdout, "Cache: 1 hit(s), 1 remote fetch(es)")

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "SQZDATA" {
		t.Fatalf("downloaded payload = %q, want SQZDATA", data)
	}

	if hits := env.service.blobHitCount(singleDownloadPath); hits != 1 {
		t.Fatalf("expected exactly one blob fetch, got %d", hits)
	}
	deleted := env.service.deletedTasks()
	if len(deleted) != 1 || deleted[0] != "task-1" {
		t.Fatalf("expected remote task-1 deleted, got %v", deleted)
	}
}
