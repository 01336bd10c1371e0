package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

type Workflow struct {
	persistence persistence.Persistence
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates and stores a new workflow definition.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	now := time.Now().UTC()
	if workflow.ID == "" {
		workflow.ID = "wf-" + uuid.New().String()
	}

	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := w.validateDefinition(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// List retrieves all stored workflows.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// Delete removes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	return w.persistence.WorkflowRepository().Delete(ctx, id)
}

// validateDefinition enforces the structural rules a workflow must satisfy
// before it is accepted for storage. Dependency cycles are deliberately not
// rejected here; they surface at execution time.
func (w *Workflow) validateDefinition(workflow *models.Workflow) error {
	if strings.TrimSpace(workflow.Name) == "" {
		return NewValidationError("validateDefinition", "NAME_REQUIRED", "workflow name is required", ErrWorkflowNameRequired)
	}

	if len(workflow.Tasks) == 0 {
		return NewValidationError("validateDefinition", "TASKS_REQUIRED", "workflow must have at least one task", ErrTasksRequired)
	}

	if len(workflow.Agents) == 0 {
		return NewValidationError("validateDefinition", "AGENTS_REQUIRED", "workflow must have at least one agent", ErrAgentsRequired)
	}

	if err := workflow.ValidateReferences(); err != nil {
		return NewValidationError("validateDefinition", "INVALID_REFERENCES", err.Error(), ErrInvalidReferences)
	}

	return nil
}
