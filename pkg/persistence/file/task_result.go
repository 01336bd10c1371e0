package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

// TaskResultRepository handles task result files, grouped per execution so
// listing one execution's results does not scan others.
type TaskResultRepository struct {
	root string
}

func (r *TaskResultRepository) dir(executionID string) string {
	return filepath.Join(r.root, "task_results", executionID)
}

func (r *TaskResultRepository) Create(_ context.Context, result *models.TaskResult) error {
	if err := writeJSON(r.dir(result.ExecutionID), result.ID, result); err != nil {
		return persistence.NewError("Create", "task_result", result.ID, err)
	}

	return nil
}

func (r *TaskResultRepository) Update(ctx context.Context, id string, status models.TaskResultStatus, output, errorMessage string, retryCount int) error {
	result, err := r.find(id)
	if err != nil {
		return err
	}

	result.Status = status
	result.Output = output
	result.ErrorMessage = errorMessage
	result.RetryCount = retryCount

	if status.IsTerminal() {
		now := time.Now().UTC()
		result.CompletedAt = &now
	}

	if err := writeJSON(r.dir(result.ExecutionID), id, result); err != nil {
		return persistence.NewError("Update", "task_result", id, err)
	}

	return nil
}

func (r *TaskResultRepository) List(_ context.Context, executionID string) ([]*models.TaskResult, error) {
	ids, err := listIDs(r.dir(executionID))
	if err != nil {
		return nil, persistence.NewError("List", "task_result", executionID, err)
	}

	results := make([]*models.TaskResult, 0, len(ids))

	for _, id := range ids {
		var result models.TaskResult
		if err := readJSON(r.dir(executionID), id, &result); err != nil {
			return nil, persistence.NewError("List", "task_result", id, err)
		}

		results = append(results, &result)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].StartedAt.Before(results[j].StartedAt)
	})

	return results, nil
}

// find locates a task result by id across executions. Updates carry only the
// result id, per the port contract.
func (r *TaskResultRepository) find(id string) (*models.TaskResult, error) {
	base := filepath.Join(r.root, "task_results")

	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, persistence.NewError("Update", "task_result", id, persistence.ErrTaskResultNotFound)
	}

	if err != nil {
		return nil, persistence.NewError("Update", "task_result", id, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		var result models.TaskResult

		err := readJSON(filepath.Join(base, entry.Name()), id, &result)
		if os.IsNotExist(err) {
			continue
		}

		if err != nil {
			return nil, persistence.NewError("Update", "task_result", id, err)
		}

		return &result, nil
	}

	return nil, persistence.NewError("Update", "task_result", id, persistence.ErrTaskResultNotFound)
}
