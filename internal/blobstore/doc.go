// Package blobstore persists cache entries in SQLite and exposes the durable
// key-value surface the rest of the client builds on.
//
// The Store manages the database connection, schema migrations, a
// single-writer file lock, and the entry operations: upsert by key, read with
// payload integrity verification, delete, clear, insertion-ordered scans, and
// size accounting. A missing entry is a nil result, not an error; callers
// treat every miss the same way regardless of cause.
//
// One database holds entries for all roles. Keys carry their role namespace
// as a prefix (original/, batch/, compressed/) so listings stay legible and
// purges can match on business identity derived elsewhere.
package blobstore
