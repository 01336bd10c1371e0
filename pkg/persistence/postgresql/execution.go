package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

// ExecutionRepository handles execution rows.
type ExecutionRepository struct {
	db *sql.DB
}

func (r *ExecutionRepository) Create(ctx context.Context, id, workflowID string) (*models.Execution, error) {
	execution := models.NewExecution(id, workflowID)

	query := `
		INSERT INTO executions (id, workflow_id, status, error_message, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		execution.ID, execution.WorkflowID, execution.Status, execution.ErrorMessage, execution.StartedAt)
	if err != nil {
		return nil, persistence.NewError("Create", "execution", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus, errorMessage string) error {
	var completedAt *time.Time

	if status.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}

	query := `
		UPDATE executions
		SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, status, errorMessage, completedAt)
	if err != nil {
		return persistence.NewError("UpdateStatus", "execution", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewError("UpdateStatus", "execution", id, err)
	}

	if affected == 0 {
		return persistence.NewError("UpdateStatus", "execution", id, persistence.ErrExecutionNotFound)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `
		SELECT id, workflow_id, status, error_message, started_at, completed_at
		FROM executions
		WHERE id = $1
	`

	var (
		execution   models.Execution
		completedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&execution.ID, &execution.WorkflowID, &execution.Status,
		&execution.ErrorMessage, &execution.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewError("GetByID", "execution", id, err)
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	return &execution, nil
}
