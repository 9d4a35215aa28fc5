package workflow

import (
	"context"
	"log/slog"

	"squeeze/internal/cachekey"
	"squeeze/internal/lifecycle"
	"squeeze/internal/logging"
	"squeeze/internal/remote"
	"squeeze/internal/services"
)

// Observer harvests compressed artifacts out of task-status snapshots.
// It holds no schedule of its own: callers poll the service and hand
// each snapshot to HandleStatus. Repeat deliveries are cheap because
// artifact keys derive from task identity and the coordinator skips
// work it has already done.
type Observer struct {
	coordinator *lifecycle.Coordinator
	logger      *slog.Logger
}

// NewObserver wires an observer to the lifecycle coordinator.
func NewObserver(coordinator *lifecycle.Coordinator, logger *slog.Logger) *Observer {
	return &Observer{
		coordinator: coordinator,
		logger:      logging.NewComponentLogger(logger, "workflow"),
	}
}

// HandleStatus inspects one status snapshot and caches every compressed
// artifact the service has finished producing. Batch tasks are harvested
// incrementally: files completed so far get cached even while the task
// itself is still processing. The returned count is the number of
// artifacts confirmed in the local cache by this pass. Individual fetch
// failures are logged and skipped; they never abort the pass.
func (o *Observer) HandleStatus(ctx context.Context, status *remote.TaskStatus) (int, error) {
	if o == nil || o.coordinator == nil {
		return 0, nil
	}
	if status == nil {
		return 0, services.Wrap(services.ErrValidation, "workflow", "handle_status", "status snapshot is required", nil)
	}
	if status.TaskID == "" {
		return 0, services.Wrap(services.ErrValidation, "workflow", "handle_status", "status snapshot carries no task id", nil)
	}
	if o.coordinator.Degraded() {
		o.logger.DebugContext(ctx, "cache disabled, leaving artifacts remote",
			logging.String(logging.FieldTaskID, status.TaskID))
		return 0, nil
	}

	ctx = services.WithTaskID(ctx, status.TaskID)
	if status.IsBatch() {
		return o.harvestBatch(ctx, status), nil
	}
	return o.harvestSingle(ctx, status), nil
}

func (o *Observer) harvestSingle(ctx context.Context, status *remote.TaskStatus) int {
	if status.Status != remote.StatusCompleted || status.DownloadURL == "" {
		return 0
	}
	key := cachekey.Compressed(status.TaskID, cachekey.SingleFileIndex)
	name := status.OutputFilename
	if name == "" {
		name = "compressed_" + status.Filename
	}
	if !o.cacheArtifact(ctx, key, status.DownloadURL, name, status.CompressedSize) {
		return 0
	}
	return 1
}

func (o *Observer) harvestBatch(ctx context.Context, status *remote.TaskStatus) int {
	cached := 0
	for idx, file := range status.Files {
		if file.Status != remote.StatusCompleted || file.DownloadURL == "" {
			continue
		}
		key := cachekey.Compressed(status.TaskID, idx)
		name := file.OutputFilename
		if name == "" {
			name = "compressed_" + file.OriginalFilename
		}
		if o.cacheArtifact(services.WithFileIndex(ctx, idx), key, file.DownloadURL, name, file.CompressedSize) {
			cached++
		}
	}
	if cached > 0 {
		o.logger.InfoContext(ctx, "harvested compressed artifacts",
			logging.Int("cached", cached),
			logging.String("task_status", status.Status))
	}
	return cached
}

func (o *Observer) cacheArtifact(ctx context.Context, key cachekey.BusinessKey, url, name string, size int64) bool {
	if err := o.coordinator.CacheCompressedFromRemote(ctx, key, url, name, size); err != nil {
		logging.WarnWithContext(o.logger, "compressed artifact not cached", "artifact_cache_failed",
			logging.String(logging.FieldStoreKey, key.String()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "download will fall back to the service"))
		return false
	}
	return true
}
