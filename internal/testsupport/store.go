package testsupport

import (
	"context"
	"testing"
	"time"

	"squeeze/internal/blobstore"
	"squeeze/internal/config"
	"squeeze/internal/logging"
)

// MustOpenStore opens a blobstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *blobstore.Store {
	t.Helper()

	store, err := blobstore.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("blobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// PutEntry stores an entry with a deterministic payload of the given size and
// an explicit insertion time, so tests control eviction order exactly.
func PutEntry(t testing.TB, store *blobstore.Store, key string, size int, insertedAt time.Time) {
	t.Helper()

	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}
	entry := &blobstore.Entry{
		Key:        key,
		Payload:    payload,
		InsertedAt: insertedAt,
	}
	if err := store.Put(context.Background(), entry); err != nil {
		t.Fatalf("store.Put(%s): %v", key, err)
	}
}
