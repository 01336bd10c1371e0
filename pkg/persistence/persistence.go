// Package persistence provides the data storage abstraction consumed by the
// workflow execution engine. The engine depends on it only through narrow
// create/update primitives; each write targets a single row by id.
package persistence

import (
	"context"

	"github.com/agentflow/agentflow/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	TaskResultRepository() TaskResultRepository
	ScheduleRepository() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context) ([]*models.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records. UpdateStatus is called
// exactly once per execution, at finalization.
type ExecutionRepository interface {
	Create(ctx context.Context, id, workflowID string) (*models.Execution, error)
	UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus, errorMessage string) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
}

// TaskResultRepository stores per-task records within an execution. Update
// is called exactly once per result, at its terminal transition. List
// returns results ordered by start time.
type TaskResultRepository interface {
	Create(ctx context.Context, result *models.TaskResult) error
	Update(ctx context.Context, id string, status models.TaskResultStatus, output, errorMessage string, retryCount int) error
	List(ctx context.Context, executionID string) ([]*models.TaskResult, error)
}

// ScheduleRepository stores recurring submission schedules.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.Schedule) error
	GetByID(ctx context.Context, id string) (*models.Schedule, error)
	ListActive(ctx context.Context) ([]*models.Schedule, error)
	Delete(ctx context.Context, id string) error
}
