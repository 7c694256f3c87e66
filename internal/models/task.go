package models

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

type Task struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"userId"`
	Title       string        `json:"title"`
	Description *string       `json:"description,omitempty"`
	Status      TaskStatus    `json:"status"`
	Priority    *TaskPriority `json:"priority,omitempty"`
	ExpiresAt   *time.Time    `json:"expiresAt,omitempty"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	Tags        []Tag         `json:"tags"`
}

// ApplyStatus sets the status and keeps the lifecycle timestamps in step with it.
func (t *Task) ApplyStatus(status TaskStatus, now time.Time) {
	if status == TaskStatusInProgress && t.StartedAt == nil {
		t.StartedAt = &now
	}
	if status == TaskStatusCompleted {
		if t.Status != TaskStatusCompleted || t.CompletedAt == nil {
			t.CompletedAt = &now
		}
	} else {
		t.CompletedAt = nil
	}
	t.Status = status
}
