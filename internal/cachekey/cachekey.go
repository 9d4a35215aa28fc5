package cachekey

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"squeeze/internal/textutil"
)

// Role is the namespace a cached payload belongs to.
type Role string

const (
	// RoleOriginal covers the staged source file in single-file mode.
	RoleOriginal Role = "original"
	// RoleBatch covers staged source files belonging to a batch task.
	RoleBatch Role = "batch"
	// RoleCompressed covers compressed artifacts fetched from the service.
	RoleCompressed Role = "compressed"
)

// SingleFileIndex addresses the only file of a single-file task.
const SingleFileIndex = -1

// currentSegment is the task segment used when no task has been created
// yet, i.e. the staged file of the current single-file session.
const currentSegment = "current"

// BusinessKey identifies a payload by its place in the workflow rather
// than by its content. An empty TaskID addresses the current single-file
// session; FileIndex is SingleFileIndex outside batch mode.
type BusinessKey struct {
	Role      Role
	TaskID    string
	FileIndex int
}

// Original returns the business key for the current single-file session's
// staged source.
func Original() BusinessKey {
	return BusinessKey{Role: RoleOriginal, TaskID: "", FileIndex: SingleFileIndex}
}

// BatchFile returns the business key for one staged source file of a
// batch task.
func BatchFile(taskID string, index int) BusinessKey {
	return BusinessKey{Role: RoleBatch, TaskID: taskID, FileIndex: index}
}

// Compressed returns the business key for a task's compressed artifact.
// Use SingleFileIndex for single-file tasks.
func Compressed(taskID string, index int) BusinessKey {
	return BusinessKey{Role: RoleCompressed, TaskID: taskID, FileIndex: index}
}

// String renders the key for logs: "original/current", "batch/<task>/2",
// "compressed/<task>/single".
func (k BusinessKey) String() string {
	switch k.Role {
	case RoleBatch, RoleCompressed:
		return string(k.Role) + "/" + k.taskSegment() + "/" + k.indexSegment()
	default:
		return string(k.Role) + "/" + k.taskSegment()
	}
}

// StorePrefix returns the store-key prefix shared by every payload this
// business key can refer to. Store keys append identity fields (name,
// size, and for staged payloads the modification stamp) to this prefix,
// so a prefix scan finds the payload even when no in-process reference
// exists, which is how lookups survive a process restart.
func (k BusinessKey) StorePrefix() string {
	switch k.Role {
	case RoleBatch, RoleCompressed:
		return string(k.Role) + "/" + k.taskSegment() + "/" + k.indexSegment() + "/"
	default:
		return string(RoleOriginal) + "/" + k.taskSegment() + "/"
	}
}

// NamespacePrefixes returns the store-key prefixes covering everything
// cached for a task: its staged batch files and its compressed
// artifacts. An empty taskID addresses the single-file session's staged
// original instead.
func NamespacePrefixes(taskID string) []string {
	if strings.TrimSpace(taskID) == "" {
		return []string{string(RoleOriginal) + "/" + currentSegment + "/"}
	}
	segment := textutil.SanitizeToken(taskID)
	return []string{
		string(RoleBatch) + "/" + segment + "/",
		string(RoleCompressed) + "/" + segment + "/",
	}
}

func (k BusinessKey) taskSegment() string {
	task := strings.TrimSpace(k.TaskID)
	if task == "" {
		return currentSegment
	}
	return textutil.SanitizeToken(task)
}

func (k BusinessKey) indexSegment() string {
	if k.FileIndex < 0 {
		return "single"
	}
	return strconv.Itoa(k.FileIndex)
}

// ForStaged derives the store key for a staged source payload (original
// and batch roles). The file's size and modification time pin the key to
// a specific version of the file, so editing and re-staging the same path
// produces a fresh key instead of silently aliasing the old payload.
func ForStaged(key BusinessKey, name string, size int64, modified time.Time) string {
	token := textutil.SanitizeToken(name)
	switch key.Role {
	case RoleBatch:
		return fmt.Sprintf("%s/%s/%s/%s-%d-%d", RoleBatch, key.taskSegment(), key.indexSegment(), token, size, modified.UnixMilli())
	default:
		return fmt.Sprintf("%s/%s/%s-%d-%d", RoleOriginal, key.taskSegment(), token, size, modified.UnixMilli())
	}
}

// ForCompressed derives the store key for a compressed artifact. There is
// deliberately no time component: the service result for a given task,
// index, filename, and size is immutable, so every status snapshot
// re-derives the same key and the already-cached check can short-circuit
// repeat fetches.
func ForCompressed(key BusinessKey, name string, size int64) string {
	token := textutil.SanitizeToken(name)
	return fmt.Sprintf("%s/%s/%s/%s-%d", RoleCompressed, key.taskSegment(), key.indexSegment(), token, size)
}
