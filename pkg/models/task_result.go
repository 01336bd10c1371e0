package models

import "time"

// TaskResultStatus represents the lifecycle state of one task attempt within
// an execution.
type TaskResultStatus string

const (
	TaskResultStatusPending   TaskResultStatus = "pending"
	TaskResultStatusRunning   TaskResultStatus = "running"
	TaskResultStatusCompleted TaskResultStatus = "completed"
	TaskResultStatusFailed    TaskResultStatus = "failed"

	// TaskResultStatusSkipped marks tasks that never became ready because a
	// dependency failed permanently. Recorded during finalization so the
	// execution history explains why the task never ran.
	TaskResultStatusSkipped TaskResultStatus = "skipped"
)

// IsTerminal reports whether the status will never change again.
func (s TaskResultStatus) IsTerminal() bool {
	switch s {
	case TaskResultStatusCompleted, TaskResultStatusFailed, TaskResultStatusSkipped:
		return true
	default:
		return false
	}
}

// TaskResult is the durable record of one task within one execution. It is
// created in the running state and transitions exactly once to a terminal
// status.
type TaskResult struct {
	ID           string           `json:"id"`
	ExecutionID  string           `json:"execution_id"`
	TaskID       string           `json:"task_id"`
	TaskName     string           `json:"task_name"`
	AgentID      string           `json:"agent_id"`
	Status       TaskResultStatus `json:"status"`
	Output       string           `json:"output,omitempty"`
	ErrorMessage string           `json:"error,omitempty"`
	RetryCount   int              `json:"retry_count"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// NewTaskResult creates a running task result record.
func NewTaskResult(id, executionID string, task *Task) *TaskResult {
	return &TaskResult{
		ID:          id,
		ExecutionID: executionID,
		TaskID:      task.ID,
		TaskName:    task.Name,
		AgentID:     task.AgentID,
		Status:      TaskResultStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
}
