package services

import (
	"fmt"
	"strings"

	"github.com/gammazero/toposort"
	"github.com/xeipuuv/gojsonschema"

	"github.com/agentflow/agentflow/pkg/models"
)

// workflowDocumentSchema describes the shape of a workflow document on the
// wire. Structural rules beyond shape (reference resolution, duplicates)
// live in models.Workflow.ValidateReferences.
var workflowDocumentSchema = map[string]any{
	"type":     "object",
	"required": []any{"name", "tasks", "agents"},
	"properties": map[string]any{
		"name":        map[string]any{"type": "string", "minLength": 3},
		"description": map[string]any{"type": "string"},
		"tasks": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "name", "agent_id"},
				"properties": map[string]any{
					"id":           map[string]any{"type": "string", "minLength": 1},
					"name":         map[string]any{"type": "string", "minLength": 1},
					"agent_id":     map[string]any{"type": "string", "minLength": 1},
					"dependencies": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"max_retries":  map[string]any{"type": "integer", "minimum": 0},
				},
			},
		},
		"agents": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "name", "model"},
				"properties": map[string]any{
					"id":          map[string]any{"type": "string", "minLength": 1},
					"name":        map[string]any{"type": "string", "minLength": 1},
					"model":       map[string]any{"type": "string", "minLength": 1},
					"temperature": map[string]any{"type": "number", "minimum": 0, "maximum": 2},
				},
			},
		},
	},
}

// ValidateDocument checks a raw workflow document against the JSON schema.
func ValidateDocument(document map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(workflowDocumentSchema)
	dataLoader := gojsonschema.NewGoLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate workflow document: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return NewValidationError("ValidateDocument", "INVALID_DOCUMENT",
			strings.Join(details, "; "), ErrInvalidDocument)
	}

	return nil
}

// ValidationReport is the result of statically linting a workflow's
// dependency graph. The lint is advisory: submission never requires it, and
// a cycle that slips past still terminates at runtime.
type ValidationReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
	Order  []string `json:"order,omitempty"`
}

// LintDependencies topologically sorts the workflow's tasks. A successful
// sort yields one valid execution order; a failed sort reports the cycle.
func LintDependencies(workflow *models.Workflow) *ValidationReport {
	report := &ValidationReport{Valid: true}

	if err := workflow.ValidateReferences(); err != nil {
		report.Valid = false
		report.Errors = append(report.Errors, err.Error())

		return report
	}

	var edges []toposort.Edge

	for _, task := range workflow.Tasks {
		if len(task.Dependencies) == 0 {
			edges = append(edges, toposort.Edge{nil, task.ID})
			continue
		}

		for _, dep := range task.Dependencies {
			edges = append(edges, toposort.Edge{dep, task.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		report.Valid = false
		report.Errors = append(report.Errors, fmt.Sprintf("dependency graph contains a cycle: %v", err))

		return report
	}

	for _, id := range sorted {
		if id != nil {
			report.Order = append(report.Order, id.(string))
		}
	}

	return report
}
