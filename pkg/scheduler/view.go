package scheduler

import (
	"context"
	"fmt"

	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

// ExecutionView is the polling surface for one execution: its current
// status, a completion percentage and the per-task records ordered by start
// time.
type ExecutionView struct {
	Execution   *models.Execution    `json:"execution"`
	Progress    float64              `json:"progress"`
	TaskResults []*models.TaskResult `json:"task_results"`
}

// GetExecution assembles the view from persisted state only, so it stays
// correct when the dispatch loop runs in another process.
func (s *Scheduler) GetExecution(ctx context.Context, id string) (*ExecutionView, error) {
	execution, err := s.executions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
	}

	results, err := s.taskResults.List(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load task results for %s: %w", id, err)
	}

	total := totalTasks(ctx, s.workflows, execution.WorkflowID, len(results))

	return &ExecutionView{
		Execution:   execution,
		Progress:    progress(results, total),
		TaskResults: results,
	}, nil
}

// totalTasks prefers the workflow definition's task count; when the workflow
// has been deleted since submission, the recorded results stand in for it.
func totalTasks(ctx context.Context, workflows persistence.WorkflowRepository, workflowID string, recorded int) int {
	workflow, err := workflows.GetByID(ctx, workflowID)
	if err != nil {
		return recorded
	}

	return len(workflow.Tasks)
}

func progress(results []*models.TaskResult, total int) float64 {
	if total == 0 {
		return 0
	}

	terminal := 0

	for _, result := range results {
		if result.Status.IsTerminal() {
			terminal++
		}
	}

	return float64(terminal) / float64(total) * 100
}
