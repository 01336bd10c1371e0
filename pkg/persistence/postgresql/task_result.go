package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

// TaskResultRepository handles task result rows.
type TaskResultRepository struct {
	db *sql.DB
}

func (r *TaskResultRepository) Create(ctx context.Context, result *models.TaskResult) error {
	query := `
		INSERT INTO task_results (
			id, execution_id, task_id, task_name, agent_id,
			status, output, error_message, retry_count, started_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		result.ID, result.ExecutionID, result.TaskID, result.TaskName, result.AgentID,
		result.Status, result.Output, result.ErrorMessage, result.RetryCount, result.StartedAt)
	if err != nil {
		return persistence.NewError("Create", "task_result", result.ID, err)
	}

	return nil
}

func (r *TaskResultRepository) Update(ctx context.Context, id string, status models.TaskResultStatus, output, errorMessage string, retryCount int) error {
	var completedAt *time.Time

	if status.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}

	query := `
		UPDATE task_results
		SET status = $2, output = $3, error_message = $4, retry_count = $5, completed_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, status, output, errorMessage, retryCount, completedAt)
	if err != nil {
		return persistence.NewError("Update", "task_result", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewError("Update", "task_result", id, err)
	}

	if affected == 0 {
		return persistence.NewError("Update", "task_result", id, persistence.ErrTaskResultNotFound)
	}

	return nil
}

func (r *TaskResultRepository) List(ctx context.Context, executionID string) ([]*models.TaskResult, error) {
	query := `
		SELECT id, execution_id, task_id, task_name, agent_id,
		       status, output, error_message, retry_count, started_at, completed_at
		FROM task_results
		WHERE execution_id = $1
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, persistence.NewError("List", "task_result", executionID, err)
	}
	defer rows.Close()

	var results []*models.TaskResult

	for rows.Next() {
		var (
			result      models.TaskResult
			completedAt sql.NullTime
		)

		err := rows.Scan(
			&result.ID, &result.ExecutionID, &result.TaskID, &result.TaskName, &result.AgentID,
			&result.Status, &result.Output, &result.ErrorMessage, &result.RetryCount,
			&result.StartedAt, &completedAt)
		if err != nil {
			return nil, persistence.NewError("List", "task_result", executionID, err)
		}

		if completedAt.Valid {
			result.CompletedAt = &completedAt.Time
		}

		results = append(results, &result)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewError("List", "task_result", executionID, err)
	}

	return results, nil
}
