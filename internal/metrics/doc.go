// Package metrics collects in-process counters and latency quantiles for
// cache and network operations. The tracker is optional everywhere it is
// accepted: a nil *Tracker records nothing and costs nothing.
package metrics
