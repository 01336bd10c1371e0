// Package scheduler orchestrates workflow executions: it walks the task
// dependency graph in rounds, fanning out every ready task and joining the
// round before advancing the frontier.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/agentflow/agentflow/pkg/eventbus"
	"github.com/agentflow/agentflow/pkg/events"
	"github.com/agentflow/agentflow/pkg/executor"
	"github.com/agentflow/agentflow/pkg/gateway"
	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/otelhelper"
	"github.com/agentflow/agentflow/pkg/persistence"
)

// DeadlockMessage is the diagnostic recorded when the ready set empties out
// while tasks remain unterminated. Both causes, a dependency cycle and a
// permanently failed dependency, surface through the same branch.
const DeadlockMessage = "Circular dependency or failed dependencies detected"

// TaskRunner is the executor capability the scheduler dispatches through.
type TaskRunner interface {
	Run(
		ctx context.Context,
		executionID string,
		task *models.Task,
		roster map[string]*models.Agent,
		priorOutputs map[string]string,
		workflowInput map[string]any,
		credentials gateway.Credentials,
	) executor.Outcome
}

// Config holds scheduler tuning knobs.
type Config struct {
	// MaxConcurrency caps how many tasks of a round run at once.
	// Zero means unbounded: the whole frontier is dispatched together.
	MaxConcurrency int
}

// Scheduler runs workflow executions. Submit starts an execution and returns
// immediately; the dispatch loop runs in its own goroutine until the
// execution reaches a terminal status or the scheduler is closed.
type Scheduler struct {
	runner      TaskRunner
	workflows   persistence.WorkflowRepository
	executions  persistence.ExecutionRepository
	taskResults persistence.TaskResultRepository
	eventBus    eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	config      Config

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler. The event bus and tracer are optional; a nil bus
// disables event publishing and a nil tracer disables span emission.
func New(
	runner TaskRunner,
	p persistence.Persistence,
	bus eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
	config Config,
) *Scheduler {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("scheduler")
	}

	rootCtx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:      runner,
		workflows:   p.WorkflowRepository(),
		executions:  p.ExecutionRepository(),
		taskResults: p.TaskResultRepository(),
		eventBus:    bus,
		tracer:      tracer,
		logger:      logger.With("module", "workflow_scheduler"),
		config:      config,
		rootCtx:     rootCtx,
		cancel:      cancel,
	}
}

// Submit creates a running execution record for the workflow and starts its
// dispatch loop. The returned execution is already persisted; callers poll
// GetExecution for progress.
func (s *Scheduler) Submit(
	ctx context.Context,
	workflow *models.Workflow,
	input map[string]any,
	credentials gateway.Credentials,
) (*models.Execution, error) {
	if err := workflow.ValidateReferences(); err != nil {
		return nil, fmt.Errorf("invalid workflow %s: %w", workflow.ID, err)
	}

	execution, err := s.executions.Create(ctx, newExecutionID(), workflow.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	s.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent: s.baseEvent(events.ExecutionStartedEvent, workflow.ID, execution.ID),
		TaskCount: len(workflow.Tasks),
	})

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.run(s.rootCtx, workflow, execution, input, credentials)
	}()

	return execution, nil
}

// Close stops all in-flight dispatch loops and waits for them to finalize
// their executions.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

// run is the per-execution dispatch loop. All bookkeeping maps are owned by
// this goroutine; task goroutines only write their own slot of the round's
// outcome slice, so no locking is needed.
func (s *Scheduler) run(
	ctx context.Context,
	workflow *models.Workflow,
	execution *models.Execution,
	input map[string]any,
	credentials gateway.Credentials,
) {
	logger := s.logger.With("workflow_id", workflow.ID, "execution_id", execution.ID)

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "scheduler.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.Int("agentflow.task.count", len(workflow.Tasks)),
	)
	defer span.End()

	startedAt := time.Now()
	roster := workflow.AgentRoster()

	outputs := make(map[string]string, len(workflow.Tasks))
	failed := make(map[string]string)
	remaining := make(map[string]*models.Task, len(workflow.Tasks))

	for _, task := range workflow.Tasks {
		remaining[task.ID] = task
	}

	logger.Info("starting execution", "task_count", len(workflow.Tasks))

	round := 0

	for {
		if ctx.Err() != nil {
			logger.Warn("execution canceled", "round", round)
			s.finalize(workflow, execution, models.ExecutionStatusFailed,
				fmt.Sprintf("execution canceled: %v", ctx.Err()), startedAt, remaining, outputs, failed)

			return
		}

		ready := readyTasks(remaining, outputs)
		if len(ready) == 0 {
			break
		}

		round++
		logger.Info("dispatching round", "round", round, "ready", len(ready))

		roundCtx, roundSpan := otelhelper.StartSpan(ctx, s.tracer, "scheduler.round",
			attribute.Int(otelhelper.RoundKey, round),
			attribute.Int("agentflow.round.size", len(ready)),
		)

		outcomes := s.dispatchRound(roundCtx, execution.ID, workflow, ready, roster, outputs, input, credentials)
		roundSpan.End()

		for _, outcome := range outcomes {
			delete(remaining, outcome.TaskID)

			if outcome.OK() {
				outputs[outcome.TaskID] = outcome.Output
			} else {
				failed[outcome.TaskID] = outcome.Err.Error()
				logger.Warn("task failed", "task_id", outcome.TaskID, "round", round, "error", outcome.Err)
			}
		}
	}

	status := models.ExecutionStatusCompleted
	errorMessage := ""

	switch {
	case len(remaining) > 0:
		status = models.ExecutionStatusFailed
		errorMessage = DeadlockMessage
	case len(failed) > 0:
		status = models.ExecutionStatusFailed
		errorMessage = failureSummary(failed)
	}

	if status == models.ExecutionStatusFailed {
		otelhelper.SetError(span, errors.New(errorMessage))
	}

	s.finalize(workflow, execution, status, errorMessage, startedAt, remaining, outputs, failed)
	logger.Info("execution finished", "status", string(status), "rounds", round,
		"completed_tasks", len(outputs), "failed_tasks", len(failed), "skipped_tasks", len(remaining))
}

// dispatchRound fans out the frontier and joins it. A failed task never
// cancels its siblings; every goroutine returns nil to the group.
func (s *Scheduler) dispatchRound(
	ctx context.Context,
	executionID string,
	workflow *models.Workflow,
	ready []*models.Task,
	roster map[string]*models.Agent,
	outputs map[string]string,
	input map[string]any,
	credentials gateway.Credentials,
) []executor.Outcome {
	outcomes := make([]executor.Outcome, len(ready))

	var group errgroup.Group
	if s.config.MaxConcurrency > 0 {
		group.SetLimit(s.config.MaxConcurrency)
	}

	for i, task := range ready {
		group.Go(func() error {
			attrs := []attribute.KeyValue{
				attribute.String(otelhelper.TaskIDKey, task.ID),
				attribute.String(otelhelper.AgentIDKey, task.AgentID),
			}
			if agent, ok := roster[task.AgentID]; ok {
				attrs = append(attrs, attribute.String(otelhelper.ModelKey, agent.Model))
			}

			taskCtx, taskSpan := otelhelper.StartSpan(ctx, s.tracer, "scheduler.task", attrs...)
			defer taskSpan.End()

			s.publish(taskCtx, executionID, events.TaskStarted{
				BaseEvent: s.baseEvent(events.TaskStartedEvent, workflow.ID, executionID),
				TaskID:    task.ID,
				AgentID:   task.AgentID,
			})

			outcome := s.runner.Run(taskCtx, executionID, task, roster, outputs, input, credentials)
			outcomes[i] = outcome

			if outcome.OK() {
				s.publish(taskCtx, executionID, events.TaskFinished{
					BaseEvent:  s.baseEvent(events.TaskFinishedEvent, workflow.ID, executionID),
					TaskID:     task.ID,
					RetryCount: outcome.RetryCount,
				})
			} else {
				otelhelper.SetError(taskSpan, outcome.Err)
				s.publish(taskCtx, executionID, events.TaskFailed{
					BaseEvent:  s.baseEvent(events.TaskFailedEvent, workflow.ID, executionID),
					TaskID:     task.ID,
					Error:      outcome.Err.Error(),
					RetryCount: outcome.RetryCount,
				})
			}

			return nil
		})
	}

	_ = group.Wait()

	return outcomes
}

// finalize performs the single terminal status update for the execution and
// records skipped results for tasks that never became ready. Finalization
// runs on a fresh context so a canceled loop can still write its terminal
// state.
func (s *Scheduler) finalize(
	workflow *models.Workflow,
	execution *models.Execution,
	status models.ExecutionStatus,
	errorMessage string,
	startedAt time.Time,
	remaining map[string]*models.Task,
	outputs map[string]string,
	failed map[string]string,
) {
	ctx, cancelFinalize := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelFinalize()

	logger := s.logger.With("workflow_id", workflow.ID, "execution_id", execution.ID)

	s.recordSkipped(ctx, logger, workflow, execution.ID, remaining, outputs, failed)

	if err := s.executions.UpdateStatus(ctx, execution.ID, status, errorMessage); err != nil {
		logger.Error("failed to finalize execution", "status", string(status), "error", err)
	}

	duration := time.Since(startedAt)

	if status == models.ExecutionStatusCompleted {
		s.publish(ctx, execution.ID, events.ExecutionCompleted{
			BaseEvent: s.baseEvent(events.ExecutionCompletedEvent, workflow.ID, execution.ID),
			Duration:  duration,
		})
	} else {
		s.publish(ctx, execution.ID, events.ExecutionFailed{
			BaseEvent: s.baseEvent(events.ExecutionFailedEvent, workflow.ID, execution.ID),
			Error:     errorMessage,
			Duration:  duration,
		})
	}
}

// recordSkipped writes a terminal skipped result for every task left
// undispatched, naming the dependency that blocked it.
func (s *Scheduler) recordSkipped(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	executionID string,
	remaining map[string]*models.Task,
	outputs map[string]string,
	failed map[string]string,
) {
	for _, task := range sortedTasks(remaining) {
		blockedBy := blockingDependency(task, outputs, failed)
		message := fmt.Sprintf("dependency %q did not complete successfully", blockedBy)

		result := models.NewTaskResult(newTaskResultID(), executionID, task)
		if err := s.taskResults.Create(ctx, result); err != nil {
			logger.Error("failed to record skipped task", "task_id", task.ID, "error", err)
			continue
		}

		if err := s.taskResults.Update(ctx, result.ID, models.TaskResultStatusSkipped, "", message, 0); err != nil {
			logger.Error("failed to record skipped task", "task_id", task.ID, "error", err)
			continue
		}

		s.publish(ctx, executionID, events.TaskSkipped{
			BaseEvent: s.baseEvent(events.TaskSkippedEvent, workflow.ID, executionID),
			TaskID:    task.ID,
			BlockedBy: blockedBy,
		})
	}
}

// publish sends one lifecycle event. Delivery is best effort; failures are
// logged and never affect scheduling.
func (s *Scheduler) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.eventBus == nil {
		return
	}

	if err := s.eventBus.Publish(ctx, key, event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", string(event.GetType()), "error", err)
	}
}

func (s *Scheduler) baseEvent(eventType events.EventType, workflowID, executionID string) events.BaseEvent {
	return events.BaseEvent{
		ID:          "ev-" + uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
	}
}

// readyTasks returns the undispatched tasks whose dependencies have all
// completed successfully, in stable id order.
func readyTasks(remaining map[string]*models.Task, outputs map[string]string) []*models.Task {
	var ready []*models.Task

	for _, task := range sortedTasks(remaining) {
		if dependenciesMet(task, outputs) {
			ready = append(ready, task)
		}
	}

	return ready
}

func dependenciesMet(task *models.Task, outputs map[string]string) bool {
	for _, dep := range task.Dependencies {
		if _, ok := outputs[dep]; !ok {
			return false
		}
	}

	return true
}

// blockingDependency names the first declared dependency that did not
// complete successfully, preferring one that failed outright over one that
// simply never ran.
func blockingDependency(task *models.Task, outputs map[string]string, failed map[string]string) string {
	blocked := ""

	for _, dep := range task.Dependencies {
		if _, ok := outputs[dep]; ok {
			continue
		}

		if _, ok := failed[dep]; ok {
			return dep
		}

		if blocked == "" {
			blocked = dep
		}
	}

	return blocked
}

func failureSummary(failed map[string]string) string {
	ids := make([]string, 0, len(failed))
	for id := range failed {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("task %s: %s", id, failed[id]))
	}

	return fmt.Sprintf("%d task(s) failed: %s", len(ids), strings.Join(parts, "; "))
}

func sortedTasks(tasks map[string]*models.Task) []*models.Task {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	result := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		result = append(result, tasks[id])
	}

	return result
}

func newExecutionID() string {
	return "exec-" + uuid.New().String()
}

func newTaskResultID() string {
	return "tr-" + uuid.New().String()
}
