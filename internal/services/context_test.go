package services_test

import (
	"context"
	"testing"

	"squeeze/internal/services"
)

func TestTaskIDRoundTrip(t *testing.T) {
	ctx := services.WithTaskID(context.Background(), "batch_1700000000")
	id, ok := services.TaskIDFromContext(ctx)
	if !ok || id != "batch_1700000000" {
		t.Fatalf("expected task id round trip, got %q ok=%v", id, ok)
	}
	if _, ok := services.TaskIDFromContext(context.Background()); ok {
		t.Fatal("expected missing task id to report false")
	}
	if ctx2 := services.WithTaskID(context.Background(), ""); ctx2 != context.Background() {
		t.Fatal("expected empty task id to leave context untouched")
	}
}

func TestFileIndexRoundTrip(t *testing.T) {
	ctx := services.WithFileIndex(context.Background(), 3)
	idx, ok := services.FileIndexFromContext(ctx)
	if !ok || idx != 3 {
		t.Fatalf("expected file index round trip, got %d ok=%v", idx, ok)
	}
	if ctx2 := services.WithFileIndex(context.Background(), -1); ctx2 != context.Background() {
		t.Fatal("expected negative index to leave context untouched")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := services.WithRequestID(context.Background(), "req-42")
	id, ok := services.RequestIDFromContext(ctx)
	if !ok || id != "req-42" {
		t.Fatalf("expected request id round trip, got %q ok=%v", id, ok)
	}
}
