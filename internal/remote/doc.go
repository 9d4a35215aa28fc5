// Package remote talks to the compression service's HTTP API: uploads,
// compression confirmation, task status polling, result and archive
// downloads, and cleanup notifications. The client never interprets
// workflow state beyond decoding it; callers decide what a status means.
package remote
