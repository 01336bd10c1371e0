package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow() *Workflow {
	return &Workflow{
		ID:   "wf-1",
		Name: "Research pipeline",
		Agents: []*Agent{
			{ID: "agent-1", Name: "Researcher", Model: "claude-sonnet-4"},
		},
		Tasks: []*Task{
			{ID: "a", Name: "Gather", AgentID: "agent-1"},
			{ID: "b", Name: "Summarize", AgentID: "agent-1", Dependencies: []string{"a"}},
		},
	}
}

func TestWorkflowValidateReferences(t *testing.T) {
	require.NoError(t, validWorkflow().ValidateReferences())
}

func TestWorkflowValidateReferences_UnknownAgent(t *testing.T) {
	workflow := validWorkflow()
	workflow.Tasks[0].AgentID = "missing"

	err := workflow.ValidateReferences()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent")
}

func TestWorkflowValidateReferences_UnknownDependency(t *testing.T) {
	workflow := validWorkflow()
	workflow.Tasks[1].Dependencies = []string{"ghost"}

	err := workflow.ValidateReferences()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestWorkflowValidateReferences_DuplicateTask(t *testing.T) {
	workflow := validWorkflow()
	workflow.Tasks[1].ID = "a"

	err := workflow.ValidateReferences()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate task")
}

func TestWorkflowValidateReferences_CycleIsNotRejected(t *testing.T) {
	// Cycles are a runtime concern; reference validation must accept them.
	workflow := validWorkflow()
	workflow.Tasks[0].Dependencies = []string{"b"}

	require.NoError(t, workflow.ValidateReferences())
}

func TestTaskPromptOverride(t *testing.T) {
	task := &Task{ID: "a", Input: map[string]any{"prompt": "do the thing"}}

	prompt, ok := task.PromptOverride()
	require.True(t, ok)
	assert.Equal(t, "do the thing", prompt)

	_, ok = (&Task{ID: "b"}).PromptOverride()
	assert.False(t, ok)

	_, ok = (&Task{ID: "c", Input: map[string]any{"prompt": 42}}).PromptOverride()
	assert.False(t, ok)
}

func TestStatusTerminality(t *testing.T) {
	assert.False(t, ExecutionStatusRunning.IsTerminal())
	assert.True(t, ExecutionStatusCompleted.IsTerminal())
	assert.True(t, ExecutionStatusFailed.IsTerminal())

	assert.False(t, TaskResultStatusRunning.IsTerminal())
	assert.True(t, TaskResultStatusCompleted.IsTerminal())
	assert.True(t, TaskResultStatusFailed.IsTerminal())
	assert.True(t, TaskResultStatusSkipped.IsTerminal())
}

func TestNewSchedule(t *testing.T) {
	schedule, err := NewSchedule("sched-1", "wf-1", "*/5 * * * *", nil)
	require.NoError(t, err)

	assert.True(t, schedule.Active)
	assert.False(t, schedule.NextDueAt.IsZero())
	assert.False(t, schedule.Due(time.Now().UTC()))
	assert.True(t, schedule.Due(schedule.NextDueAt.Add(time.Second)))
}

func TestNewSchedule_InvalidExpression(t *testing.T) {
	_, err := NewSchedule("sched-1", "wf-1", "not-cron", nil)
	require.Error(t, err)
}
