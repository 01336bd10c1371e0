package redis

import (
	"context"
	"errors"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

const (
	kindWorkflow   = "workflow"
	kindExecution  = "execution"
	kindTaskResult = "task_result"
	kindSchedule   = "schedule"
)

// WorkflowRepository stores workflow documents.
type WorkflowRepository struct {
	client *goredis.Client
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	if err := setJSON(ctx, r.client, kindWorkflow, workflow.ID, workflow); err != nil {
		return persistence.NewError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := getJSON(ctx, r.client, kindWorkflow, id, &workflow)
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewError("GetByID", "workflow", id, err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := r.client.SMembers(ctx, indexKey(kindWorkflow)).Result()
	if err != nil {
		return nil, persistence.NewError("List", "workflow", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.GetByID(ctx, id)
		if persistence.IsWorkflowNotFound(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	deleted, err := removeEntity(ctx, r.client, kindWorkflow, id)
	if err != nil {
		return persistence.NewError("Delete", "workflow", id, err)
	}

	if !deleted {
		return persistence.NewError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// ExecutionRepository stores execution records.
type ExecutionRepository struct {
	client *goredis.Client
}

func (r *ExecutionRepository) Create(ctx context.Context, id, workflowID string) (*models.Execution, error) {
	execution := models.NewExecution(id, workflowID)

	if err := setJSON(ctx, r.client, kindExecution, id, execution); err != nil {
		return nil, persistence.NewError("Create", "execution", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus, errorMessage string) error {
	execution, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	execution.Status = status
	execution.ErrorMessage = errorMessage

	if status.IsTerminal() {
		now := time.Now().UTC()
		execution.CompletedAt = &now
	}

	if err := setJSON(ctx, r.client, kindExecution, id, execution); err != nil {
		return persistence.NewError("UpdateStatus", "execution", id, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	var execution models.Execution

	err := getJSON(ctx, r.client, kindExecution, id, &execution)
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewError("GetByID", "execution", id, err)
	}

	return &execution, nil
}

// TaskResultRepository stores task result records with a per-execution index.
type TaskResultRepository struct {
	client *goredis.Client
}

func executionResultsKey(executionID string) string {
	return entityKey(kindExecution, executionID) + ":task_results"
}

func (r *TaskResultRepository) Create(ctx context.Context, result *models.TaskResult) error {
	if err := setJSON(ctx, r.client, kindTaskResult, result.ID, result); err != nil {
		return persistence.NewError("Create", "task_result", result.ID, err)
	}

	if err := r.client.SAdd(ctx, executionResultsKey(result.ExecutionID), result.ID).Err(); err != nil {
		return persistence.NewError("Create", "task_result", result.ID, err)
	}

	return nil
}

func (r *TaskResultRepository) Update(ctx context.Context, id string, status models.TaskResultStatus, output, errorMessage string, retryCount int) error {
	var result models.TaskResult

	err := getJSON(ctx, r.client, kindTaskResult, id, &result)
	if errors.Is(err, goredis.Nil) {
		return persistence.NewError("Update", "task_result", id, persistence.ErrTaskResultNotFound)
	}

	if err != nil {
		return persistence.NewError("Update", "task_result", id, err)
	}

	result.Status = status
	result.Output = output
	result.ErrorMessage = errorMessage
	result.RetryCount = retryCount

	if status.IsTerminal() {
		now := time.Now().UTC()
		result.CompletedAt = &now
	}

	if err := setJSON(ctx, r.client, kindTaskResult, id, &result); err != nil {
		return persistence.NewError("Update", "task_result", id, err)
	}

	return nil
}

func (r *TaskResultRepository) List(ctx context.Context, executionID string) ([]*models.TaskResult, error) {
	ids, err := r.client.SMembers(ctx, executionResultsKey(executionID)).Result()
	if err != nil {
		return nil, persistence.NewError("List", "task_result", executionID, err)
	}

	results := make([]*models.TaskResult, 0, len(ids))

	for _, id := range ids {
		var result models.TaskResult

		err := getJSON(ctx, r.client, kindTaskResult, id, &result)
		if errors.Is(err, goredis.Nil) {
			continue
		}

		if err != nil {
			return nil, persistence.NewError("List", "task_result", id, err)
		}

		results = append(results, &result)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].StartedAt.Before(results[j].StartedAt)
	})

	return results, nil
}

// ScheduleRepository stores schedules.
type ScheduleRepository struct {
	client *goredis.Client
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	if err := setJSON(ctx, r.client, kindSchedule, schedule.ID, schedule); err != nil {
		return persistence.NewError("Save", "schedule", schedule.ID, err)
	}

	return nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule

	err := getJSON(ctx, r.client, kindSchedule, id, &schedule)
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewError("GetByID", "schedule", id, persistence.ErrScheduleNotFound)
	}

	if err != nil {
		return nil, persistence.NewError("GetByID", "schedule", id, err)
	}

	return &schedule, nil
}

func (r *ScheduleRepository) ListActive(ctx context.Context) ([]*models.Schedule, error) {
	ids, err := r.client.SMembers(ctx, indexKey(kindSchedule)).Result()
	if err != nil {
		return nil, persistence.NewError("ListActive", "schedule", "", err)
	}

	schedules := make([]*models.Schedule, 0, len(ids))

	for _, id := range ids {
		schedule, err := r.GetByID(ctx, id)
		if persistence.IsScheduleNotFound(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		if schedule.Active {
			schedules = append(schedules, schedule)
		}
	}

	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].NextDueAt.Before(schedules[j].NextDueAt)
	})

	return schedules, nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	deleted, err := removeEntity(ctx, r.client, kindSchedule, id)
	if err != nil {
		return persistence.NewError("Delete", "schedule", id, err)
	}

	if !deleted {
		return persistence.NewError("Delete", "schedule", id, persistence.ErrScheduleNotFound)
	}

	return nil
}
