package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the processing state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID         = errors.New("task ID cannot be empty")
	ErrEmptyTaskResourceID = errors.New("task resource ID cannot be empty")
	ErrInvalidTaskStatus   = errors.New("invalid task status")
	ErrNegativeRetryCount  = errors.New("task retry count cannot be negative")
	ErrInvalidTransition   = errors.New("invalid task status transition")
	ErrRetryBudgetExceeded = errors.New("task retry budget exceeded")
)

// transitions lists every edge of the task state machine.
// The two edges back into pending are only valid for retries.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusProcessing},
	TaskStatusProcessing: {TaskStatusCompleted, TaskStatusFailed, TaskStatusPending},
	TaskStatusFailed:     {TaskStatusPending},
	TaskStatusCompleted:  nil,
}

// Task tracks the progress of one audio resource through the processing
// pipeline. There is exactly one Task per resource.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	ResourceID  uuid.UUID  `json:"resource_id"`
	Status      TaskStatus `json:"status"`
	RetryCount  int        `json:"retry_count"`
	ErrorLog    string     `json:"error_log,omitempty"`
	Version     int        `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTask creates a pending Task for the given resource.
func NewTask(resourceID uuid.UUID) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:         uuid.New(),
		ResourceID: resourceID,
		Status:     TaskStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.ResourceID == uuid.Nil {
		return ErrEmptyTaskResourceID
	}

	if !IsValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if t.RetryCount < 0 {
		return ErrNegativeRetryCount
	}

	return nil
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further work will be done for the status
// without a retry decision.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// MarkProcessing moves a pending task into processing. StartedAt is only
// set the first time the task enters processing.
func (t *Task) MarkProcessing(now time.Time) error {
	if err := t.transition(TaskStatusProcessing); err != nil {
		return err
	}
	if t.StartedAt == nil {
		started := now.UTC()
		t.StartedAt = &started
	}
	t.UpdatedAt = now.UTC()
	return nil
}

// MarkCompleted moves a processing task into completed.
func (t *Task) MarkCompleted(now time.Time) error {
	if err := t.transition(TaskStatusCompleted); err != nil {
		return err
	}
	completed := now.UTC()
	t.CompletedAt = &completed
	t.ErrorLog = ""
	t.UpdatedAt = completed
	return nil
}

// MarkFailed moves a processing task into failed and records the reason.
func (t *Task) MarkFailed(reason string, now time.Time) error {
	if err := t.transition(TaskStatusFailed); err != nil {
		return err
	}
	completed := now.UTC()
	t.ErrorLog = reason
	t.CompletedAt = &completed
	t.UpdatedAt = completed
	return nil
}

// IncrementRetryCount records one more transient failure.
func (t *Task) IncrementRetryCount() {
	t.RetryCount++
}

// Touch records that the task was looked at without changing its state.
func (t *Task) Touch(now time.Time) {
	t.UpdatedAt = now.UTC()
}

// MarkRetrying returns a task to pending after a transient failure.
// It requires the retry count to still be below maxRetries.
func (t *Task) MarkRetrying(maxRetries int, now time.Time) error {
	if t.RetryCount >= maxRetries {
		return fmt.Errorf("%w: %d of %d", ErrRetryBudgetExceeded, t.RetryCount, maxRetries)
	}
	if err := t.transition(TaskStatusPending); err != nil {
		return err
	}
	t.ErrorLog = ""
	t.CompletedAt = nil
	t.UpdatedAt = now.UTC()
	return nil
}

func (t *Task) transition(to TaskStatus) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	return nil
}

// IsValidTaskStatus checks if the given status is a valid TaskStatus.
func IsValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}
