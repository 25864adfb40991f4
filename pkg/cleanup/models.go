// Package cleanup removes stored artifacts after their catalog rows
// are gone. Removals are queued, not inline: a catalog delete must
// never fail or block on storage, so the worker retries in the
// background until the object is gone.
package cleanup

import (
	"time"
)

// TaskState represents the lifecycle state of a cleanup task.
type TaskState string

const (
	TaskStateQueued    TaskState = "queued"
	TaskStateRunning   TaskState = "running"
	TaskStateSucceeded TaskState = "succeeded"
	TaskStateFailed    TaskState = "failed"
)

// Task is the GORM model for one queued artifact removal.
type Task struct {
	ID           string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	Locator      string     `gorm:"column:locator;not null"`
	State        TaskState  `gorm:"column:state;index:idx_cleanup_state;not null;default:queued"`
	RequestedAt  time.Time  `gorm:"column:requested_at;not null"`
	StartedAt    *time.Time `gorm:"column:started_at"`
	FinishedAt   *time.Time `gorm:"column:finished_at"`
	AttemptCount int        `gorm:"column:attempt_count;default:0"`
	LastError    string     `gorm:"column:last_error"`
}

// TableName returns the GORM table name.
func (Task) TableName() string { return "cleanup_tasks" }

// IsTerminal returns true if the task is in a terminal state.
func (t *Task) IsTerminal() bool {
	return t.State == TaskStateSucceeded || t.State == TaskStateFailed
}
