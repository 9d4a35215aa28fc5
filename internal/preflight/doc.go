// Package preflight verifies the environment before work begins.
//
// Checks cover the directories squeeze writes to, the cache store, and
// the compression service itself. Every check returns a Result instead
// of an error so the doctor command can render the full picture in one
// pass rather than stopping at the first problem.
package preflight
