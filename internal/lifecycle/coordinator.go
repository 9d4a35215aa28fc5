package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"squeeze/internal/blobstore"
	"squeeze/internal/cachekey"
	"squeeze/internal/capacity"
	"squeeze/internal/dataurl"
	"squeeze/internal/fileutil"
	"squeeze/internal/logging"
	"squeeze/internal/metrics"
	"squeeze/internal/refmap"
	"squeeze/internal/services"
)

// CurrentNamespace is the CLI-facing alias for the single-file session's
// purge namespace.
const CurrentNamespace = "current"

// BlobFetcher fetches payload bytes from the compression service.
type BlobFetcher interface {
	FetchBlob(ctx context.Context, url string) ([]byte, string, error)
}

// Coordinator sequences cache reads, writes, eviction, and purges for
// the compression workflow.
type Coordinator struct {
	store      *blobstore.Store
	governor   *capacity.Governor
	refs       *refmap.Map
	fetcher    BlobFetcher
	logger     *slog.Logger
	tracker    *metrics.Tracker
	fetchGroup singleflight.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTracker records cache and fetch activity on the given tracker.
func WithTracker(tracker *metrics.Tracker) Option {
	return func(c *Coordinator) {
		c.tracker = tracker
	}
}

// New builds a coordinator. A nil store selects degraded mode: every
// operation behaves as a cache miss or no-op and the workflow runs
// network-only.
func New(store *blobstore.Store, governor *capacity.Governor, fetcher BlobFetcher, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Coordinator{
		store:    store,
		governor: governor,
		refs:     refmap.New(),
		fetcher:  fetcher,
		logger:   logging.NewComponentLogger(logger, "lifecycle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Degraded reports whether the coordinator is running without a store.
func (c *Coordinator) Degraded() bool {
	return c == nil || c.store == nil
}

// StageOriginal derives the store key for a staged source file, records
// the reference, and writes the payload to the cache after making room.
// The derived store key is returned even when caching fails: staging is
// best-effort, and a dangling reference simply resolves as a miss later.
func (c *Coordinator) StageOriginal(ctx context.Context, key cachekey.BusinessKey, staged *fileutil.StagedFile) (string, error) {
	if staged == nil {
		return "", services.Wrap(services.ErrValidation, "lifecycle", "stage_original", "staged file required", nil)
	}
	if c == nil {
		return cachekey.ForStaged(key, staged.Name, staged.Size, staged.Modified), nil
	}

	ctx, log := c.opContext(ctx, key)
	storeKey := cachekey.ForStaged(key, staged.Name, staged.Size, staged.Modified)

	if displaced, ok := c.refs.Record(key, storeKey); ok {
		log.Debug("reference displaced by new staging",
			logging.String("displaced_store_key", displaced),
			logging.String(logging.FieldStoreKey, storeKey))
	}

	if c.store == nil {
		log.Debug("store unavailable, original not cached",
			logging.String(logging.FieldStoreKey, storeKey))
		return storeKey, nil
	}

	if evicted, err := c.governor.EnsureRoom(ctx, storeKey, staged.Size); err != nil {
		logging.WarnWithContext(log, "eviction pass failed before staging", "stage_eviction_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "write proceeds; cache may exceed its budget"))
	} else {
		c.tracker.Add(metrics.CounterEviction, int64(evicted))
	}

	start := time.Now()
	err := c.store.Put(ctx, &blobstore.Entry{
		Key:         storeKey,
		DisplayName: staged.Name,
		MimeType:    staged.MimeType,
		Payload:     staged.Data,
	})
	c.tracker.Observe("store_put", time.Since(start))
	if err != nil {
		logging.WarnWithContext(log, "failed to cache original", "stage_write_failed",
			logging.String(logging.FieldStoreKey, storeKey),
			logging.Error(err),
			logging.String(logging.FieldImpact, "preview will fall back to the source file"))
		return storeKey, nil
	}

	c.tracker.Add(metrics.CounterStoreWrite, 1)
	log.Info("staged original",
		logging.String(logging.FieldStoreKey, storeKey),
		logging.String("display_name", staged.Name),
		logging.Int64("size_bytes", staged.Size))
	return storeKey, nil
}

// ResolveForDisplay renders the cached payload behind key as a data URL.
// A missing reference, missing entry, or any store trouble yields "".
func (c *Coordinator) ResolveForDisplay(ctx context.Context, key cachekey.BusinessKey) string {
	if c == nil {
		return ""
	}
	ctx, log := c.opContext(ctx, key)

	entry := c.cachedEntry(ctx, log, key)
	if entry == nil {
		c.tracker.Add(metrics.CounterCacheMiss, 1)
		return ""
	}
	c.tracker.Add(metrics.CounterCacheHit, 1)
	return dataurl.FromEntry(entry)
}

// CacheCompressedFromRemote fetches a compressed artifact and caches it
// under key. The derived store key has no time component, so repeated
// status snapshots converge on the same key and the already-cached check
// makes the operation idempotent: at most one fetch per artifact, with
// concurrent calls collapsed into that one flight. A fetch failure is
// returned so the caller can fall back to the remote descriptor; a store
// write failure is only a warning.
func (c *Coordinator) CacheCompressedFromRemote(ctx context.Context, key cachekey.BusinessKey, sourceURL, filename string, declaredSize int64) error {
	if c == nil {
		return nil
	}
	ctx, log := c.opContext(ctx, key)

	if c.store == nil {
		log.Debug("store unavailable, compressed artifact not cached")
		return nil
	}
	if sourceURL == "" {
		return services.Wrap(services.ErrValidation, "lifecycle", "cache_compressed", "source url required", nil)
	}
	if c.fetcher == nil {
		return services.Wrap(services.ErrConfiguration, "lifecycle", "cache_compressed", "no fetcher configured", nil)
	}

	storeKey := cachekey.ForCompressed(key, filename, declaredSize)
	if c.alreadyCached(ctx, key, storeKey) {
		log.Debug("compressed artifact already cached",
			logging.String(logging.FieldStoreKey, storeKey))
		return nil
	}

	_, err, _ := c.fetchGroup.Do(storeKey, func() (any, error) {
		// A concurrent flight may have finished while this call waited.
		if c.alreadyCached(ctx, key, storeKey) {
			return nil, nil
		}

		start := time.Now()
		payload, contentType, fetchErr := c.fetcher.FetchBlob(ctx, sourceURL)
		c.tracker.Observe("remote_fetch", time.Since(start))
		if fetchErr != nil {
			return nil, services.Wrap(services.ErrNetwork, "lifecycle", "cache_compressed", "fetch compressed artifact", fetchErr)
		}
		c.tracker.Add(metrics.CounterRemoteFetch, 1)

		if contentType == "" {
			contentType = fileutil.DetectMimeType(filename)
		}

		if evicted, evictErr := c.governor.EnsureRoom(ctx, storeKey, int64(len(payload))); evictErr != nil {
			logging.WarnWithContext(log, "eviction pass failed before caching", "cache_eviction_failed",
				logging.Error(evictErr),
				logging.String(logging.FieldImpact, "write proceeds; cache may exceed its budget"))
		} else {
			c.tracker.Add(metrics.CounterEviction, int64(evicted))
		}

		start = time.Now()
		putErr := c.store.Put(ctx, &blobstore.Entry{
			Key:         storeKey,
			DisplayName: filename,
			MimeType:    contentType,
			Payload:     payload,
		})
		c.tracker.Observe("store_put", time.Since(start))
		if putErr != nil {
			logging.WarnWithContext(log, "failed to cache compressed artifact", "cache_write_failed",
				logging.String(logging.FieldStoreKey, storeKey),
				logging.Error(putErr),
				logging.String(logging.FieldImpact, "downloads will fall back to the service"))
			return nil, nil
		}

		c.tracker.Add(metrics.CounterStoreWrite, 1)
		c.refs.Record(key, storeKey)
		log.Info("cached compressed artifact",
			logging.String(logging.FieldStoreKey, storeKey),
			logging.String("display_name", filename),
			logging.Int("size_bytes", len(payload)))
		return nil, nil
	})
	return err
}

// DownloadSource tells the caller where to take a payload from: the
// cache entry when present, otherwise the service URL.
type DownloadSource struct {
	Entry     *blobstore.Entry
	RemoteURL string
	Token     string
}

// Local reports whether the payload can be served from the cache.
func (s DownloadSource) Local() bool {
	return s.Entry != nil
}

// ResolveDownloadSource decides between the cached entry for key and the
// remote descriptor. It never fails: any cache trouble, including
// degraded mode, yields the remote descriptor.
func (c *Coordinator) ResolveDownloadSource(ctx context.Context, key cachekey.BusinessKey, remoteURL, token string) DownloadSource {
	source := DownloadSource{RemoteURL: remoteURL, Token: token}
	if c == nil {
		return source
	}
	ctx, log := c.opContext(ctx, key)

	entry := c.cachedEntry(ctx, log, key)
	if entry == nil {
		c.tracker.Add(metrics.CounterCacheMiss, 1)
		return source
	}
	c.tracker.Add(metrics.CounterCacheHit, 1)
	source.Entry = entry
	return source
}

// PurgeNamespace removes every reference under the given task namespace
// and deletes the namespace's store entries, including ones written by
// earlier processes. CurrentNamespace (or "") addresses the single-file
// session. Individual delete failures are warnings; the returned count
// is the number of entries actually removed.
func (c *Coordinator) PurgeNamespace(ctx context.Context, taskID string) int {
	if taskID == CurrentNamespace {
		taskID = ""
	}
	if c == nil {
		return 0
	}
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithTaskID(ctx, taskID)
	log := logging.WithContext(ctx, c.logger)

	storeKeys := c.refs.PurgeTask(taskID)
	if c.store == nil {
		return 0
	}

	removed := 0
	for _, storeKey := range storeKeys {
		ok, err := c.store.Delete(ctx, storeKey)
		if err != nil {
			logging.WarnWithContext(log, "failed to delete purged entry", "purge_delete_failed",
				logging.String(logging.FieldStoreKey, storeKey),
				logging.Error(err),
				logging.String(logging.FieldImpact, "entry lingers until capacity eviction reclaims it"))
			continue
		}
		if ok {
			removed++
		}
	}

	// References only cover keys recorded by this process; sweep the
	// namespace prefixes so entries left by earlier runs go too.
	for _, prefix := range cachekey.NamespacePrefixes(taskID) {
		swept, err := c.store.DeleteByPrefix(ctx, prefix)
		if err != nil {
			logging.WarnWithContext(log, "failed to sweep purged namespace", "purge_sweep_failed",
				logging.String("prefix", prefix),
				logging.Error(err),
				logging.String(logging.FieldImpact, "entries linger until capacity eviction reclaims them"))
			continue
		}
		removed += int(swept)
	}

	if removed > 0 || len(storeKeys) > 0 {
		log.Info("purged namespace",
			logging.Int("references_dropped", len(storeKeys)),
			logging.Int("entries_removed", removed))
	}
	return removed
}

// ClearAll drops every reference and every store entry.
func (c *Coordinator) ClearAll(ctx context.Context) (int64, error) {
	if c == nil {
		return 0, nil
	}
	ctx = services.WithRequestID(ctx, uuid.NewString())
	c.refs.Clear()
	if c.store == nil {
		return 0, nil
	}
	removed, err := c.store.Clear(ctx)
	if err != nil {
		return 0, services.Wrap(services.ErrTransaction, "lifecycle", "clear_all", "clear store", err)
	}
	return removed, nil
}

// CurrentTotalSize reports the stored byte total, 0 in degraded mode.
func (c *Coordinator) CurrentTotalSize(ctx context.Context) (int64, error) {
	if c.Degraded() {
		return 0, nil
	}
	total, err := c.store.TotalSize(ctx)
	if err != nil {
		return 0, services.Wrap(services.ErrTransaction, "lifecycle", "total_size", "snapshot total size", err)
	}
	return total, nil
}

// cachedEntry resolves key through the reference map to a verified store
// entry, or nil on any miss or store failure. When the map holds no
// reference (a fresh process, or one dropped by a purge) the key's
// namespace prefix is scanned instead and a found entry re-records the
// reference, so cached payloads stay reachable across restarts.
func (c *Coordinator) cachedEntry(ctx context.Context, log *slog.Logger, key cachekey.BusinessKey) *blobstore.Entry {
	if c.store == nil {
		return nil
	}
	storeKey, found := c.refs.Lookup(key)
	if !found {
		recovered, err := c.store.NewestKeyWithPrefix(ctx, key.StorePrefix())
		if err != nil {
			logging.WarnWithContext(log, "cache recovery scan failed", "cache_lookup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "treated as a cache miss"))
			return nil
		}
		if recovered == "" {
			return nil
		}
		storeKey = recovered
	}
	entry, err := c.store.Get(ctx, storeKey)
	if err != nil {
		logging.WarnWithContext(log, "cache lookup failed", "cache_lookup_failed",
			logging.String(logging.FieldStoreKey, storeKey),
			logging.Error(err),
			logging.String(logging.FieldImpact, "treated as a cache miss"))
		return nil
	}
	if entry != nil && !found {
		c.refs.Record(key, storeKey)
	}
	return entry
}

// alreadyCached is the idempotence gate for compressed artifacts: true
// only when storeKey holds an intact entry. The reference map is
// consulted first; a map miss falls through to the store so a fresh
// process does not re-fetch artifacts cached by an earlier one.
func (c *Coordinator) alreadyCached(ctx context.Context, key cachekey.BusinessKey, storeKey string) bool {
	if c.store == nil {
		return false
	}
	if existing, found := c.refs.Lookup(key); found && existing != storeKey {
		return false
	}
	entry, err := c.store.Get(ctx, storeKey)
	if err != nil || entry == nil {
		return false
	}
	c.refs.Record(key, storeKey)
	return true
}

func (c *Coordinator) opContext(ctx context.Context, key cachekey.BusinessKey) (context.Context, *slog.Logger) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithTaskID(ctx, key.TaskID)
	ctx = services.WithFileIndex(ctx, key.FileIndex)
	log := logging.WithContext(ctx, c.logger).With(logging.String(logging.FieldRole, string(key.Role)))
	return ctx, log
}
