// Package workflow turns task-status snapshots into cache activity.
//
// The Observer is handed statuses by whoever polls the service (the CLI
// watch loop); it never schedules polls itself. Because compressed store
// keys derive from task identity alone, handing the observer the same
// snapshot any number of times costs at most one remote fetch per
// artifact. Batch tasks are harvested incrementally: each file whose
// per-file status is complete gets cached even while the task as a whole
// is still processing.
package workflow
