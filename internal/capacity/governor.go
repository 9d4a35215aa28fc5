package capacity

import (
	"context"
	"fmt"
	"log/slog"

	"squeeze/internal/blobstore"
	"squeeze/internal/logging"
)

// DefaultBudget is the fixed cache capacity: 100 MiB. It is a program
// constant, not configuration; tests construct governors with small budgets
// instead of changing it.
const DefaultBudget int64 = 100 << 20

// Governor plans and executes just-enough eviction against a store budget.
type Governor struct {
	store  *blobstore.Store
	budget int64
	logger *slog.Logger
}

// NewGovernor wires a governor to the given store. A budget <= 0 falls back
// to DefaultBudget.
func NewGovernor(store *blobstore.Store, budget int64, logger *slog.Logger) *Governor {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Governor{
		store:  store,
		budget: budget,
		logger: logging.NewComponentLogger(logger, "capacity"),
	}
}

// Budget returns the byte budget this governor enforces.
func (g *Governor) Budget() int64 {
	if g == nil {
		return DefaultBudget
	}
	return g.budget
}

// EnsureRoom makes space for an incoming payload of incomingSize bytes,
// evicting oldest entries first until the projected total fits the budget.
// skipKey names the entry about to be written: it is never evicted, and any
// bytes it currently holds are treated as replaced rather than added.
//
// The returned count is the number of entries actually evicted. An error is
// returned only when the usage snapshot itself fails; individual eviction
// failures are logged and skipped so the caller's write always proceeds.
func (g *Governor) EnsureRoom(ctx context.Context, skipKey string, incomingSize int64) (int, error) {
	if g == nil || g.store == nil {
		return 0, nil
	}
	if incomingSize < 0 {
		incomingSize = 0
	}

	total, err := g.store.TotalSize(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot total size: %w", err)
	}

	infos, err := g.store.ScanOldest(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot entries: %w", err)
	}

	projected := total + incomingSize
	for _, info := range infos {
		if skipKey != "" && info.Key == skipKey {
			// Overwrite: the old bytes disappear when the new ones land.
			projected -= info.SizeBytes
			break
		}
	}

	evicted := 0
	for _, info := range infos {
		if projected <= g.budget {
			break
		}
		if skipKey != "" && info.Key == skipKey {
			continue
		}
		removed, err := g.store.Delete(ctx, info.Key)
		if err != nil {
			logging.WarnWithContext(g.logger, "eviction failed, skipping entry", "capacity_evict_failed",
				logging.String(logging.FieldStoreKey, info.Key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "cache may stay over budget until the next write"),
			)
			continue
		}
		if !removed {
			continue
		}
		projected -= info.SizeBytes
		evicted++
		g.logger.InfoContext(ctx, "evicted cache entry",
			logging.String(logging.FieldStoreKey, info.Key),
			logging.Int64("entry_size_bytes", info.SizeBytes),
			logging.Int64("projected_total_bytes", projected),
		)
	}

	if projected > g.budget {
		logging.WarnWithContext(g.logger, "incoming payload exceeds budget even after eviction", "capacity_over_budget",
			logging.String(logging.FieldStoreKey, skipKey),
			logging.Int64("incoming_bytes", incomingSize),
			logging.Int64("budget_bytes", g.budget),
			logging.String(logging.FieldImpact, "write proceeds; store will run over budget until entries age out"),
		)
	}

	return evicted, nil
}
