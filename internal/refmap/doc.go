// Package refmap holds the in-memory association between business keys
// and durable store keys. The map lives only as long as the process:
// store entries may outlive it, in which case they linger until capacity
// eviction reclaims them, and a mapping may outlive its entry, in which
// case the next lookup simply resolves to a miss.
package refmap
