package cleanup

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskStore provides database operations for cleanup tasks.
type TaskStore struct {
	db *gorm.DB
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

// AutoMigrate creates or updates the cleanup_tasks table.
func (s *TaskStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Task{})
}

// Enqueue queues one removal. Duplicate locators are fine; removals
// are idempotent at the storage layer.
func (s *TaskStore) Enqueue(locator string) (*Task, error) {
	task := &Task{
		ID:          uuid.NewString(),
		Locator:     locator,
		State:       TaskStateQueued,
		RequestedAt: time.Now(),
	}
	if err := s.db.Create(task).Error; err != nil {
		return nil, fmt.Errorf("enqueue cleanup task: %w", err)
	}
	return task, nil
}

// Claim atomically picks the oldest queued task and transitions it to
// running. Returns nil when nothing is queued.
func (s *TaskStore) Claim(maxRetries int) (*Task, error) {
	var task Task

	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("state = ? AND attempt_count <= ?", TaskStateQueued, maxRetries).
			Order("requested_at ASC").
			Limit(1).
			First(&task).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		now := time.Now()
		return tx.Model(&Task{}).Where("id = ? AND state = ?", task.ID, TaskStateQueued).
			Updates(map[string]any{
				"state":         TaskStateRunning,
				"started_at":    now,
				"attempt_count": gorm.Expr("attempt_count + 1"),
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim cleanup task: %w", err)
	}

	if task.ID == "" {
		return nil, nil
	}
	if err := s.db.First(&task, "id = ?", task.ID).Error; err != nil {
		return nil, fmt.Errorf("reload claimed task: %w", err)
	}
	return &task, nil
}

// Complete marks a task as succeeded.
func (s *TaskStore) Complete(taskID string) error {
	now := time.Now()
	result := s.db.Model(&Task{}).Where("id = ?", taskID).Updates(map[string]any{
		"state":       TaskStateSucceeded,
		"finished_at": now,
	})
	if result.Error != nil {
		return fmt.Errorf("complete cleanup task: %w", result.Error)
	}
	return nil
}

// Fail records a failed attempt. Tasks within the retry budget go
// back to queued; exhausted tasks land in failed.
func (s *TaskStore) Fail(taskID string, errMsg string, maxRetries int) error {
	var task Task
	if err := s.db.First(&task, "id = ?", taskID).Error; err != nil {
		return fmt.Errorf("load task for fail: %w", err)
	}

	updates := map[string]any{
		"last_error":  errMsg,
		"finished_at": time.Now(),
	}
	if task.AttemptCount <= maxRetries {
		updates["state"] = TaskStateQueued
		updates["started_at"] = nil
		updates["finished_at"] = nil
	} else {
		updates["state"] = TaskStateFailed
	}

	result := s.db.Model(&Task{}).Where("id = ?", taskID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("fail cleanup task: %w", result.Error)
	}
	return nil
}

// RecoverStuck transitions running tasks whose claim is older than
// claimTimeout back to queued.
func (s *TaskStore) RecoverStuck(claimTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-claimTimeout)
	result := s.db.Model(&Task{}).
		Where("state = ? AND started_at < ?", TaskStateRunning, cutoff).
		Updates(map[string]any{
			"state":      TaskStateQueued,
			"started_at": nil,
			"last_error": "timed out (stuck task recovery)",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("recover stuck cleanup tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteOlderThan removes terminal tasks older than the cutoff.
func (s *TaskStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("state IN ? AND finished_at < ?",
		[]TaskState{TaskStateSucceeded, TaskStateFailed}, cutoff).
		Delete(&Task{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old cleanup tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountPending reports how many tasks are queued or running.
func (s *TaskStore) CountPending() (int64, error) {
	var n int64
	err := s.db.Model(&Task{}).
		Where("state IN ?", []TaskState{TaskStateQueued, TaskStateRunning}).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count pending cleanup tasks: %w", err)
	}
	return n, nil
}
