// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/agentflow/agentflow/pkg/gateway"
	"github.com/agentflow/agentflow/pkg/models"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Tasks       []*models.Task  `json:"tasks"       validate:"required,min=1,dive"`
	Agents      []*models.Agent `json:"agents"      validate:"required,min=1,dive"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// ToWorkflow converts the request into a workflow definition. The ID and
// timestamps are assigned by the workflow service.
func (r CreateWorkflowRequest) ToWorkflow() *models.Workflow {
	return &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		Tasks:       r.Tasks,
		Agents:      r.Agents,
		Metadata:    r.Metadata,
	}
}

// SubmitExecutionRequest represents the optional request body for starting a
// workflow execution. Credentials are keyed by provider family name and
// override deployment-level environment fallbacks.
type SubmitExecutionRequest struct {
	Input       map[string]any    `json:"input,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

// GatewayCredentials converts the per-request credential map into the
// gateway's typed form.
func (r SubmitExecutionRequest) GatewayCredentials() gateway.Credentials {
	if len(r.Credentials) == 0 {
		return nil
	}

	credentials := make(gateway.Credentials, len(r.Credentials))
	for family, key := range r.Credentials {
		credentials[gateway.Family(family)] = key
	}

	return credentials
}

// SubmitExecutionResponse is returned when an execution has been accepted.
type SubmitExecutionResponse struct {
	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	Status      models.ExecutionStatus `json:"status"`
}
