// Package models defines the core domain models for agent workflow execution.
package models

import (
	"fmt"
	"time"
)

// Workflow is a caller-supplied document of tasks and agents defining a unit
// of orchestrated work. The dependency relation between tasks is expected to
// be a DAG; cycles are not rejected here but surface as a deadlock at
// execution time.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Tasks       []*Task        `json:"tasks"       validate:"required,min=1,dive"`
	Agents      []*Agent       `json:"agents"      validate:"required,min=1,dive"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AgentRoster returns the workflow's agents indexed by ID.
func (w *Workflow) AgentRoster() map[string]*Agent {
	roster := make(map[string]*Agent, len(w.Agents))
	for _, agent := range w.Agents {
		roster[agent.ID] = agent
	}

	return roster
}

// TaskByID returns the task with the given ID, if present.
func (w *Workflow) TaskByID(id string) (*Task, bool) {
	for _, task := range w.Tasks {
		if task.ID == id {
			return task, true
		}
	}

	return nil, false
}

// ValidateReferences checks that every task's agent and dependency references
// resolve within the workflow. It does not check for cycles; an execution
// detects those dynamically via its deadlock branch.
func (w *Workflow) ValidateReferences() error {
	if len(w.Tasks) == 0 {
		return fmt.Errorf("workflow %s has no tasks", w.ID)
	}

	if len(w.Agents) == 0 {
		return fmt.Errorf("workflow %s has no agents", w.ID)
	}

	agents := w.AgentRoster()
	tasks := make(map[string]bool, len(w.Tasks))

	for _, task := range w.Tasks {
		if tasks[task.ID] {
			return fmt.Errorf("duplicate task ID %q in workflow %s", task.ID, w.ID)
		}

		tasks[task.ID] = true
	}

	for _, task := range w.Tasks {
		if _, ok := agents[task.AgentID]; !ok {
			return fmt.Errorf("task %q references unknown agent %q", task.ID, task.AgentID)
		}

		for _, dep := range task.Dependencies {
			if !tasks[dep] {
				return fmt.Errorf("task %q depends on unknown task %q", task.ID, dep)
			}
		}
	}

	return nil
}
