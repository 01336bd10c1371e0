// Package executor runs a single task to completion or failure, with durable
// recording of both the attempt and its outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/agentflow/agentflow/pkg/gateway"
	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

// ErrAgentNotFound indicates a task references an agent id absent from the
// workflow's roster.
var ErrAgentNotFound = errors.New("agent not found")

// Outcome is what a task run reports back to the scheduler. The scheduler
// relies only on this value for control flow, never on persisted state.
type Outcome struct {
	TaskID     string
	ResultID   string
	Output     string
	RetryCount int
	Err        error
}

// OK reports whether the task completed successfully.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Completer is the provider gateway capability the executor needs.
type Completer interface {
	Complete(ctx context.Context, req gateway.Request) (string, error)
}

// Executor runs one task at a time; a single instance is shared by all
// concurrent task runs of an execution.
type Executor struct {
	gateway     Completer
	taskResults persistence.TaskResultRepository
	logger      *slog.Logger
	maxTokens   int
}

// New creates a task executor. maxTokens bounds provider output per call;
// zero leaves the provider default in place.
func New(completer Completer, taskResults persistence.TaskResultRepository, logger *slog.Logger, maxTokens int) *Executor {
	return &Executor{
		gateway:     completer,
		taskResults: taskResults,
		logger:      logger.With("module", "task_executor"),
		maxTokens:   maxTokens,
	}
}

// Run executes one task: roster lookup, durable running record, prompt
// assembly, provider call with task-level retry, and exactly one terminal
// update. Every failure is absorbed into the returned Outcome.
func (e *Executor) Run(
	ctx context.Context,
	executionID string,
	task *models.Task,
	roster map[string]*models.Agent,
	priorOutputs map[string]string,
	workflowInput map[string]any,
	credentials gateway.Credentials,
) Outcome {
	logger := e.logger.With("execution_id", executionID, "task_id", task.ID)

	result := models.NewTaskResult(newTaskResultID(), executionID, task)

	agent, ok := roster[task.AgentID]
	if !ok {
		// Recorded even though the task never started, so the execution
		// history shows why it never ran.
		err := fmt.Errorf("agent %q: %w", task.AgentID, ErrAgentNotFound)

		if createErr := e.taskResults.Create(ctx, result); createErr != nil {
			logger.Error("failed to record task result", "error", createErr)
		} else {
			e.finalize(ctx, logger, result.ID, models.TaskResultStatusFailed, "", err.Error(), 0)
		}

		return Outcome{TaskID: task.ID, ResultID: result.ID, Err: err}
	}

	if err := e.taskResults.Create(ctx, result); err != nil {
		logger.Error("failed to record task result", "error", err)

		return Outcome{TaskID: task.ID, ResultID: result.ID, Err: fmt.Errorf("failed to record task start: %w", err)}
	}

	provider, err := gateway.ResolveProvider(agent.Model, credentials)
	if err != nil {
		e.finalize(ctx, logger, result.ID, models.TaskResultStatusFailed, "", err.Error(), 0)

		return Outcome{TaskID: task.ID, ResultID: result.ID, Err: err}
	}

	request := gateway.Request{
		Provider:      provider,
		Prompt:        buildPrompt(task, agent),
		Context:       dependencyContext(task, priorOutputs),
		WorkflowInput: workflowInput,
		Temperature:   agent.Temperature,
		MaxTokens:     e.maxTokens,
	}

	output, retries, err := e.completeWithRetry(ctx, logger, task, request)
	if err != nil {
		e.finalize(ctx, logger, result.ID, models.TaskResultStatusFailed, "", err.Error(), retries)

		return Outcome{TaskID: task.ID, ResultID: result.ID, RetryCount: retries, Err: err}
	}

	e.finalize(ctx, logger, result.ID, models.TaskResultStatusCompleted, output, "", retries)

	return Outcome{TaskID: task.ID, ResultID: result.ID, Output: output, RetryCount: retries}
}

// completeWithRetry invokes the gateway up to 1+MaxRetries times. This loop
// sits above the gateway's own network-level retry: it re-runs the whole
// call budget when a task opts into extra attempts.
func (e *Executor) completeWithRetry(ctx context.Context, logger *slog.Logger, task *models.Task, request gateway.Request) (string, int, error) {
	attempts := task.MaxRetries + 1

	var lastErr error

	for attempt := range attempts {
		if ctx.Err() != nil {
			if lastErr == nil {
				lastErr = ctx.Err()
			}

			return "", attempt, lastErr
		}

		output, err := e.gateway.Complete(ctx, request)
		if err == nil {
			return output, attempt, nil
		}

		lastErr = err

		// Resolution-style failures cannot change between attempts.
		if gateway.IsNoCredential(err) || gateway.IsUnknownModel(err) {
			return "", attempt, err
		}

		if attempt < attempts-1 {
			logger.Warn("task attempt failed, retrying", "attempt", attempt+1, "max_retries", task.MaxRetries, "error", err)
		}
	}

	return "", task.MaxRetries, lastErr
}

// finalize performs the single terminal update for a task result. A failed
// update is logged, not propagated: the outcome already carries the truth
// for the scheduler.
func (e *Executor) finalize(ctx context.Context, logger *slog.Logger, resultID string, status models.TaskResultStatus, output, errorMessage string, retryCount int) {
	if err := e.taskResults.Update(ctx, resultID, status, output, errorMessage, retryCount); err != nil {
		logger.Error("failed to finalize task result", "result_id", resultID, "status", string(status), "error", err)
	}
}

// buildPrompt uses the caller-supplied prompt verbatim when present,
// otherwise synthesizes one from the task and its agent.
func buildPrompt(task *models.Task, agent *models.Agent) string {
	if prompt, ok := task.PromptOverride(); ok {
		return prompt
	}

	var b strings.Builder

	b.WriteString("You are ")
	b.WriteString(agent.Name)

	if agent.Role != "" {
		b.WriteString(", ")
		b.WriteString(agent.Role)
	}

	b.WriteString(".")

	if agent.Description != "" {
		b.WriteString(" ")
		b.WriteString(agent.Description)
	}

	b.WriteString("\n")

	if len(agent.Capabilities) > 0 {
		b.WriteString("Capabilities: ")
		b.WriteString(strings.Join(agent.Capabilities, ", "))
		b.WriteString("\n")
	}

	b.WriteString("\nTask: ")
	b.WriteString(task.Name)

	if task.Description != "" {
		b.WriteString("\n")
		b.WriteString(task.Description)
	}

	return b.String()
}

// dependencyContext collects dependency outputs in the task's declared
// order, keeping context assembly deterministic.
func dependencyContext(task *models.Task, priorOutputs map[string]string) []gateway.ContextEntry {
	entries := make([]gateway.ContextEntry, 0, len(task.Dependencies))

	for _, dep := range task.Dependencies {
		output, ok := priorOutputs[dep]
		if !ok {
			continue
		}

		entries = append(entries, gateway.ContextEntry{Label: dep, Value: output})
	}

	return entries
}

func newTaskResultID() string {
	return "tr-" + uuid.New().String()
}
