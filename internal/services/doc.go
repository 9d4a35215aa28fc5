// Package services defines shared utilities consumed by the cache lifecycle
// coordinator and the remote-service integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task identifiers, batch file indexes, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (store trouble vs network trouble vs bad input)
//     consistent across components.
//
// Use these helpers when wiring new workflow logic so operational behaviour
// (error handling, observability, degradation) stays uniform across the
// client.
package services
