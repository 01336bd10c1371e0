package file

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

// ExecutionRepository handles execution record files.
type ExecutionRepository struct {
	root string
}

func (r *ExecutionRepository) dir() string {
	return filepath.Join(r.root, "executions")
}

func (r *ExecutionRepository) Create(_ context.Context, id, workflowID string) (*models.Execution, error) {
	execution := models.NewExecution(id, workflowID)

	if err := writeJSON(r.dir(), id, execution); err != nil {
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

	if err := writeJSON(r.dir(), id, execution); err != nil {
		return persistence.NewError("UpdateStatus", "execution", id, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	var execution models.Execution

	err := readJSON(r.dir(), id, &execution)
	if os.IsNotExist(err) {
		return nil, persistence.NewError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewError("GetByID", "execution", id, err)
	}

	return &execution, nil
}
