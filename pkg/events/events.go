// Package events defines event types for execution lifecycle notifications.
// Events are fire-and-forget observability side effects; scheduling
// correctness never depends on their delivery.
package events

import "time"

type EventType string

// Topic is the bus topic carrying all execution lifecycle events.
const Topic = "agentflow.executions"

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"

	TaskStartedEvent  EventType = "task.started"
	TaskFinishedEvent EventType = "task.finished"
	TaskFailedEvent   EventType = "task.failed"
	TaskSkippedEvent  EventType = "task.skipped"
)

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id"`
}

type ExecutionStarted struct {
	BaseEvent

	TaskCount int `json:"task_count"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type TaskStarted struct {
	BaseEvent

	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
}

func (e TaskStarted) GetType() EventType { return TaskStartedEvent }

type TaskFinished struct {
	BaseEvent

	TaskID     string `json:"task_id"`
	RetryCount int    `json:"retry_count"`
}

func (e TaskFinished) GetType() EventType { return TaskFinishedEvent }

type TaskFailed struct {
	BaseEvent

	TaskID     string `json:"task_id"`
	Error      string `json:"error"`
	RetryCount int    `json:"retry_count"`
}

func (e TaskFailed) GetType() EventType { return TaskFailedEvent }

type TaskSkipped struct {
	BaseEvent

	TaskID    string `json:"task_id"`
	BlockedBy string `json:"blocked_by"`
}

func (e TaskSkipped) GetType() EventType { return TaskSkippedEvent }
