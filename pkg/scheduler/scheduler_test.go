package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow/agentflow/pkg/executor"
	"github.com/agentflow/agentflow/pkg/gateway"
	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

// memStore is an in-memory persistence fake that counts terminal updates so
// tests can assert the single-finalization discipline.
type memStore struct {
	mu            sync.Mutex
	workflows     map[string]*models.Workflow
	executions    map[string]*models.Execution
	results       map[string][]*models.TaskResult
	statusUpdates map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		workflows:     make(map[string]*models.Workflow),
		executions:    make(map[string]*models.Execution),
		results:       make(map[string][]*models.TaskResult),
		statusUpdates: make(map[string]int),
	}
}

func (m *memStore) WorkflowRepository() persistence.WorkflowRepository     { return &memWorkflows{m} }
func (m *memStore) ExecutionRepository() persistence.ExecutionRepository   { return &memExecutions{m} }
func (m *memStore) TaskResultRepository() persistence.TaskResultRepository { return &memResults{m} }
func (m *memStore) ScheduleRepository() persistence.ScheduleRepository     { return nil }
func (m *memStore) HealthCheck(_ context.Context) error                    { return nil }
func (m *memStore) Close(_ context.Context) error                          { return nil }

type memWorkflows struct{ s *memStore }

func (r *memWorkflows) Save(_ context.Context, workflow *models.Workflow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.workflows[workflow.ID] = workflow

	return nil
}

func (r *memWorkflows) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	workflow, ok := r.s.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

func (r *memWorkflows) List(_ context.Context) ([]*models.Workflow, error) { return nil, nil }
func (r *memWorkflows) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.workflows, id)

	return nil
}

type memExecutions struct{ s *memStore }

func (r *memExecutions) Create(_ context.Context, id, workflowID string) (*models.Execution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	execution := models.NewExecution(id, workflowID)
	r.s.executions[id] = execution

	return execution, nil
}

func (r *memExecutions) UpdateStatus(_ context.Context, id string, status models.ExecutionStatus, errorMessage string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	execution, ok := r.s.executions[id]
	if !ok {
		return persistence.ErrExecutionNotFound
	}

	r.s.statusUpdates[id]++
	execution.Status = status
	execution.ErrorMessage = errorMessage
	now := time.Now().UTC()
	execution.CompletedAt = &now

	return nil
}

func (r *memExecutions) GetByID(_ context.Context, id string) (*models.Execution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	execution, ok := r.s.executions[id]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	copied := *execution

	return &copied, nil
}

type memResults struct{ s *memStore }

func (r *memResults) Create(_ context.Context, result *models.TaskResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.results[result.ExecutionID] = append(r.s.results[result.ExecutionID], result)

	return nil
}

func (r *memResults) Update(_ context.Context, id string, status models.TaskResultStatus, output, errorMessage string, retryCount int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, results := range r.s.results {
		for _, result := range results {
			if result.ID != id {
				continue
			}

			result.Status = status
			result.Output = output
			result.ErrorMessage = errorMessage
			result.RetryCount = retryCount
			now := time.Now().UTC()
			result.CompletedAt = &now

			return nil
		}
	}

	return persistence.ErrTaskResultNotFound
}

func (r *memResults) List(_ context.Context, executionID string) ([]*models.TaskResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	results := make([]*models.TaskResult, len(r.s.results[executionID]))
	copy(results, r.s.results[executionID])
	sort.Slice(results, func(i, j int) bool { return results[i].StartedAt.Before(results[j].StartedAt) })

	return results, nil
}

// fakeRunner mimics the task executor: it records each call's visible prior
// outputs, persists a terminal result, and fails the tasks it is told to.
type fakeRunner struct {
	store    *memStore
	failures map[string]error
	blocking bool

	mu    sync.Mutex
	calls []runnerCall
}

type runnerCall struct {
	taskID       string
	priorOutputs map[string]string
}

func (r *fakeRunner) Run(
	ctx context.Context,
	executionID string,
	task *models.Task,
	_ map[string]*models.Agent,
	priorOutputs map[string]string,
	_ map[string]any,
	_ gateway.Credentials,
) executor.Outcome {
	if r.blocking {
		<-ctx.Done()

		return executor.Outcome{TaskID: task.ID, Err: ctx.Err()}
	}

	seen := make(map[string]string, len(priorOutputs))
	for k, v := range priorOutputs {
		seen[k] = v
	}

	r.mu.Lock()
	r.calls = append(r.calls, runnerCall{taskID: task.ID, priorOutputs: seen})
	r.mu.Unlock()

	result := models.NewTaskResult("tr-"+task.ID, executionID, task)
	_ = r.store.TaskResultRepository().Create(ctx, result)

	if err, ok := r.failures[task.ID]; ok {
		_ = r.store.TaskResultRepository().Update(ctx, result.ID, models.TaskResultStatusFailed, "", err.Error(), 0)

		return executor.Outcome{TaskID: task.ID, ResultID: result.ID, Err: err}
	}

	output := "out-" + task.ID
	_ = r.store.TaskResultRepository().Update(ctx, result.ID, models.TaskResultStatusCompleted, output, "", 0)

	return executor.Outcome{TaskID: task.ID, ResultID: result.ID, Output: output}
}

func (r *fakeRunner) callOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := make([]string, len(r.calls))
	for i, call := range r.calls {
		order[i] = call.taskID
	}

	return order
}

func (r *fakeRunner) callFor(taskID string) (runnerCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, call := range r.calls {
		if call.taskID == taskID {
			return call, true
		}
	}

	return runnerCall{}, false
}

func testScheduler(t *testing.T, store *memStore, runner *fakeRunner) *Scheduler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	s := New(runner, store, nil, nil, logger, Config{})
	t.Cleanup(s.Close)

	return s
}

func buildWorkflow(tasks ...*models.Task) *models.Workflow {
	return &models.Workflow{
		ID:    "wf-1",
		Name:  "test workflow",
		Tasks: tasks,
		Agents: []*models.Agent{
			{ID: "agent-1", Name: "Worker", Model: "claude-sonnet-4"},
		},
	}
}

func wfTask(id string, deps ...string) *models.Task {
	return &models.Task{ID: id, Name: "Task " + id, AgentID: "agent-1", Dependencies: deps}
}

func awaitTerminal(t *testing.T, s *Scheduler, executionID string) *models.Execution {
	t.Helper()

	var execution *models.Execution

	require.Eventually(t, func() bool {
		view, err := s.GetExecution(context.Background(), executionID)
		if err != nil {
			return false
		}

		execution = view.Execution

		return execution.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	return execution
}

func TestSubmit_LinearChain(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{store: store}
	s := testScheduler(t, store, runner)

	workflow := buildWorkflow(wfTask("a"), wfTask("b", "a"), wfTask("c", "b"))
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	execution, err := s.Submit(context.Background(), workflow, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)

	final := awaitTerminal(t, s, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Empty(t, final.ErrorMessage)

	assert.Equal(t, []string{"a", "b", "c"}, runner.callOrder())

	call, ok := runner.callFor("c")
	require.True(t, ok)
	assert.Equal(t, "out-b", call.priorOutputs["b"])
}

func TestSubmit_FanOutJoin(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{store: store}
	s := testScheduler(t, store, runner)

	workflow := buildWorkflow(wfTask("a"), wfTask("b"), wfTask("c"), wfTask("d", "a", "b", "c"))
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	execution, err := s.Submit(context.Background(), workflow, nil, nil)
	require.NoError(t, err)

	final := awaitTerminal(t, s, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)

	order := runner.callOrder()
	require.Len(t, order, 4)
	// The join task always runs last, after every fan-out sibling.
	assert.Equal(t, "d", order[3])

	call, ok := runner.callFor("d")
	require.True(t, ok)
	assert.Len(t, call.priorOutputs, 3)
}

func TestSubmit_DiamondFailureIsolation(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{store: store, failures: map[string]error{"b": errors.New("provider down")}}
	s := testScheduler(t, store, runner)

	workflow := buildWorkflow(wfTask("a"), wfTask("b", "a"), wfTask("c", "a"), wfTask("d", "b", "c"))
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	execution, err := s.Submit(context.Background(), workflow, nil, nil)
	require.NoError(t, err)

	final := awaitTerminal(t, s, execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.Equal(t, DeadlockMessage, final.ErrorMessage)

	// The failing branch never blocks its sibling.
	_, ranC := runner.callFor("c")
	assert.True(t, ranC)

	_, ranD := runner.callFor("d")
	assert.False(t, ranD)

	view, err := s.GetExecution(context.Background(), execution.ID)
	require.NoError(t, err)

	byTask := make(map[string]*models.TaskResult)
	for _, result := range view.TaskResults {
		byTask[result.TaskID] = result
	}

	require.Contains(t, byTask, "d")
	assert.Equal(t, models.TaskResultStatusSkipped, byTask["d"].Status)
	assert.Contains(t, byTask["d"].ErrorMessage, `"b"`)
}

func TestSubmit_CycleDeadlock(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{store: store}
	s := testScheduler(t, store, runner)

	workflow := buildWorkflow(wfTask("a", "b"), wfTask("b", "a"))
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	execution, err := s.Submit(context.Background(), workflow, nil, nil)
	require.NoError(t, err)

	final := awaitTerminal(t, s, execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.Equal(t, DeadlockMessage, final.ErrorMessage)
	assert.Empty(t, runner.callOrder())

	view, err := s.GetExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	require.Len(t, view.TaskResults, 2)

	for _, result := range view.TaskResults {
		assert.Equal(t, models.TaskResultStatusSkipped, result.Status)
	}
}

func TestSubmit_SingleFinalization(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{store: store, failures: map[string]error{"a": errors.New("boom")}}
	s := testScheduler(t, store, runner)

	workflow := buildWorkflow(wfTask("a"), wfTask("b", "a"))
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	execution, err := s.Submit(context.Background(), workflow, nil, nil)
	require.NoError(t, err)
	awaitTerminal(t, s, execution.ID)

	store.mu.Lock()
	updates := store.statusUpdates[execution.ID]
	store.mu.Unlock()

	assert.Equal(t, 1, updates)
}

func TestSubmit_FailureWithoutDependents(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{store: store, failures: map[string]error{"b": errors.New("boom")}}
	s := testScheduler(t, store, runner)

	workflow := buildWorkflow(wfTask("a"), wfTask("b"))
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	execution, err := s.Submit(context.Background(), workflow, nil, nil)
	require.NoError(t, err)

	final := awaitTerminal(t, s, execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "task b: boom")
	assert.NotEqual(t, DeadlockMessage, final.ErrorMessage)
}

func TestSubmit_InvalidWorkflowRejected(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{store: store}
	s := testScheduler(t, store, runner)

	workflow := buildWorkflow(wfTask("a"))
	workflow.Tasks[0].AgentID = "ghost"

	_, err := s.Submit(context.Background(), workflow, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.executions)
}

func TestClose_CancelsInFlightExecution(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{store: store, blocking: true}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	s := New(runner, store, nil, nil, logger, Config{})

	workflow := buildWorkflow(wfTask("a"), wfTask("b", "a"))
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	execution, err := s.Submit(context.Background(), workflow, nil, nil)
	require.NoError(t, err)

	s.Close()

	view, err := s.GetExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, view.Execution.Status)
	assert.Contains(t, view.Execution.ErrorMessage, "canceled")
}

func TestGetExecution_Progress(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{store: store, failures: map[string]error{"b": errors.New("boom")}}
	s := testScheduler(t, store, runner)

	workflow := buildWorkflow(wfTask("a"), wfTask("b", "a"), wfTask("c", "b"))
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	execution, err := s.Submit(context.Background(), workflow, nil, nil)
	require.NoError(t, err)
	awaitTerminal(t, s, execution.ID)

	view, err := s.GetExecution(context.Background(), execution.ID)
	require.NoError(t, err)

	// a completed, b failed, c skipped: all three terminal.
	assert.InDelta(t, 100.0, view.Progress, 0.01)
	assert.Len(t, view.TaskResults, 3)
}

func TestGetExecution_MaxConcurrencyCap(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{store: store}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	s := New(runner, store, nil, nil, logger, Config{MaxConcurrency: 1})
	t.Cleanup(s.Close)

	tasks := make([]*models.Task, 0, 6)
	for i := range 6 {
		tasks = append(tasks, wfTask(fmt.Sprintf("t%d", i)))
	}

	workflow := buildWorkflow(tasks...)
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	execution, err := s.Submit(context.Background(), workflow, nil, nil)
	require.NoError(t, err)

	final := awaitTerminal(t, s, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Len(t, runner.callOrder(), 6)
}
