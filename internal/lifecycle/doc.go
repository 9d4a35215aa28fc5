// Package lifecycle coordinates the cache around the compression
// workflow: staging originals before upload, caching compressed results
// as task statuses report them, resolving previews and downloads from
// the cache with a network fallback, and purging namespaces when tasks
// end.
//
// The coordinator is deliberately forgiving. A store that failed to open
// puts it in degraded mode, where every operation behaves as a cache
// miss and the workflow continues against the service alone; individual
// write or eviction failures are logged and absorbed for the same
// reason. The only errors that reach callers are ones they can act on,
// like a failed network fetch.
package lifecycle
