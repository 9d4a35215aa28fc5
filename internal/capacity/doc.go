// Package capacity keeps the blob store inside its byte budget.
//
// The Governor runs one coordinated pass before each write: snapshot current
// usage, plan the oldest-first deletions needed to fit the incoming payload,
// and execute them, recomputing the running total after every removal so it
// never evicts more than required. The entry being written is exempt; its
// existing bytes are about to be replaced, not added.
//
// Eviction is strictly best-effort. Individual delete failures are logged and
// skipped, an over-budget payload still gets written after everything else is
// cleared, and no caller is ever blocked on cleanup.
package capacity
