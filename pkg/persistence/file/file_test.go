package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

func testPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestWorkflowRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)

	workflow := &models.Workflow{
		ID:   "wf-1",
		Name: "Test workflow",
		Agents: []*models.Agent{
			{ID: "agent-1", Name: "Writer", Model: "claude-sonnet-4"},
		},
		Tasks: []*models.Task{
			{ID: "a", Name: "Draft", AgentID: "agent-1"},
		},
	}

	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	loaded, err := p.WorkflowRepository().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	require.Len(t, loaded.Tasks, 1)
	assert.Equal(t, "agent-1", loaded.Tasks[0].AgentID)

	workflows, err := p.WorkflowRepository().List(ctx)
	require.NoError(t, err)
	assert.Len(t, workflows, 1)

	require.NoError(t, p.WorkflowRepository().Delete(ctx, "wf-1"))

	_, err = p.WorkflowRepository().GetByID(ctx, "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestExecutionLifecycle(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)

	execution, err := p.ExecutionRepository().Create(ctx, "exec-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Nil(t, execution.CompletedAt)

	require.NoError(t, p.ExecutionRepository().UpdateStatus(ctx, "exec-1", models.ExecutionStatusCompleted, ""))

	loaded, err := p.ExecutionRepository().GetByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, loaded.Status)
	require.NotNil(t, loaded.CompletedAt)
}

func TestExecutionNotFound(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)

	_, err := p.ExecutionRepository().GetByID(ctx, "ghost")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestTaskResultLifecycleAndOrdering(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	repo := p.TaskResultRepository()

	base := time.Now().UTC()
	second := &models.TaskResult{
		ID: "tr-2", ExecutionID: "exec-1", TaskID: "b", TaskName: "B",
		AgentID: "agent-1", Status: models.TaskResultStatusRunning,
		StartedAt: base.Add(time.Second),
	}
	first := &models.TaskResult{
		ID: "tr-1", ExecutionID: "exec-1", TaskID: "a", TaskName: "A",
		AgentID: "agent-1", Status: models.TaskResultStatusRunning,
		StartedAt: base,
	}

	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.Create(ctx, first))

	require.NoError(t, repo.Update(ctx, "tr-1", models.TaskResultStatusCompleted, "done", "", 0))
	require.NoError(t, repo.Update(ctx, "tr-2", models.TaskResultStatusFailed, "", "boom", 2))

	results, err := repo.List(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Ordered by start time, not by file name or write order.
	assert.Equal(t, "tr-1", results[0].ID)
	assert.Equal(t, models.TaskResultStatusCompleted, results[0].Status)
	assert.Equal(t, "done", results[0].Output)
	require.NotNil(t, results[0].CompletedAt)

	assert.Equal(t, "tr-2", results[1].ID)
	assert.Equal(t, "boom", results[1].ErrorMessage)
	assert.Equal(t, 2, results[1].RetryCount)
}

func TestScheduleRepository(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)

	active, err := models.NewSchedule("sched-1", "wf-1", "* * * * *", nil)
	require.NoError(t, err)

	inactive, err := models.NewSchedule("sched-2", "wf-1", "* * * * *", nil)
	require.NoError(t, err)
	inactive.Active = false

	require.NoError(t, p.ScheduleRepository().Save(ctx, active))
	require.NoError(t, p.ScheduleRepository().Save(ctx, inactive))

	schedules, err := p.ScheduleRepository().ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "sched-1", schedules[0].ID)
}
