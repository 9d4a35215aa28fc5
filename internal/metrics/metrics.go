package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Counter names shared between the recording sites and the CLI stats view.
const (
	CounterCacheHit    = "cache_hit"
	CounterCacheMiss   = "cache_miss"
	CounterEviction    = "eviction"
	CounterRemoteFetch = "remote_fetch"
	CounterStoreWrite  = "store_write"
)

// relativeAccuracy bounds quantile estimation error to 1%.
const relativeAccuracy = 0.01

// Tracker tracks named counters and per-operation latency sketches.
type Tracker struct {
	mu       sync.Mutex
	sketches map[string]*ddsketch.DDSketch
	counters map[string]int64
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		sketches: make(map[string]*ddsketch.DDSketch),
		counters: make(map[string]int64),
	}
}

// Observe records a duration for the given operation, in milliseconds.
func (t *Tracker) Observe(operation string, duration time.Duration) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sketch, exists := t.sketches[operation]
	if !exists {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(relativeAccuracy)
		}
		t.sketches[operation] = sketch
	}

	sketch.Add(float64(duration.Microseconds()) / 1000.0)
}

// ObserveFunc runs fn and records its execution time under operation.
func (t *Tracker) ObserveFunc(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	t.Observe(operation, time.Since(start))
	return err
}

// Add increments a named counter.
func (t *Tracker) Add(counter string, delta int64) {
	if t == nil || delta == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.counters[counter] += delta
}

// Counter returns the current value of a named counter.
func (t *Tracker) Counter(counter string) int64 {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.counters[counter]
}

// Quantile returns the latency value at the given quantile (0..1) for the
// operation, in milliseconds.
func (t *Tracker) Quantile(operation string, quantile float64) (float64, error) {
	if t == nil {
		return 0, fmt.Errorf("no data for operation: %s", operation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sketch, exists := t.sketches[operation]
	if !exists {
		return 0, fmt.Errorf("no data for operation: %s", operation)
	}
	return sketch.GetValueAtQuantile(quantile)
}

// OperationStats summarizes the latency sketch of one operation. All
// values are milliseconds.
type OperationStats struct {
	Operation string
	Count     int64
	Min       float64
	P50       float64
	P95       float64
	P99       float64
	Max       float64
}

// String renders a single stats line.
func (s OperationStats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("%s: no data", s.Operation)
	}
	return fmt.Sprintf("%s (n=%d): min=%.2fms p50=%.2fms p95=%.2fms p99=%.2fms max=%.2fms",
		s.Operation, s.Count, s.Min, s.P50, s.P95, s.P99, s.Max)
}

// Summary is a point-in-time snapshot of every counter and operation.
type Summary struct {
	Counters   map[string]int64
	Operations []OperationStats
}

// Snapshot returns the current counters and per-operation statistics,
// operations sorted by name.
func (t *Tracker) Snapshot() Summary {
	if t == nil {
		return Summary{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	summary := Summary{Counters: make(map[string]int64, len(t.counters))}
	for name, value := range t.counters {
		summary.Counters[name] = value
	}

	for operation, sketch := range t.sketches {
		stats := OperationStats{Operation: operation, Count: int64(sketch.GetCount())}
		if stats.Count > 0 {
			stats.Min, _ = sketch.GetMinValue()
			stats.P50, _ = sketch.GetValueAtQuantile(0.50)
			stats.P95, _ = sketch.GetValueAtQuantile(0.95)
			stats.P99, _ = sketch.GetValueAtQuantile(0.99)
			stats.Max, _ = sketch.GetMaxValue()
		}
		summary.Operations = append(summary.Operations, stats)
	}

	sort.Slice(summary.Operations, func(i, j int) bool {
		return summary.Operations[i].Operation < summary.Operations[j].Operation
	})
	return summary
}
