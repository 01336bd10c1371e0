package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentflow/agentflow/pkg/events"
)

// StartMonitor registers logging handlers for every lifecycle event type and
// starts consuming. Deployments without a dedicated consumer get an audit
// trail of execution activity in the service log.
func StartMonitor(ctx context.Context, bus EventSubscriber, logger *slog.Logger) error {
	log := logger.With("module", "event_monitor")

	lifecycle := []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionCompletedEvent,
		events.ExecutionFailedEvent,
		events.TaskStartedEvent,
		events.TaskFinishedEvent,
		events.TaskFailedEvent,
		events.TaskSkippedEvent,
	}

	for _, eventType := range lifecycle {
		if err := bus.Handle(eventType, logHandler(log, eventType)); err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	return bus.Subscribe(ctx)
}

func logHandler(logger *slog.Logger, eventType events.EventType) EventHandler {
	return func(_ context.Context, event any) error {
		switch e := event.(type) {
		case *events.ExecutionStarted:
			logger.Info("execution started", "execution_id", e.ExecutionID, "workflow_id", e.WorkflowID, "task_count", e.TaskCount)
		case *events.ExecutionCompleted:
			logger.Info("execution completed", "execution_id", e.ExecutionID, "duration", e.Duration.String())
		case *events.ExecutionFailed:
			logger.Warn("execution failed", "execution_id", e.ExecutionID, "error", e.Error, "duration", e.Duration.String())
		case *events.TaskStarted:
			logger.Info("task started", "execution_id", e.ExecutionID, "task_id", e.TaskID, "agent_id", e.AgentID)
		case *events.TaskFinished:
			logger.Info("task finished", "execution_id", e.ExecutionID, "task_id", e.TaskID, "retry_count", e.RetryCount)
		case *events.TaskFailed:
			logger.Warn("task failed", "execution_id", e.ExecutionID, "task_id", e.TaskID, "error", e.Error, "retry_count", e.RetryCount)
		case *events.TaskSkipped:
			logger.Warn("task skipped", "execution_id", e.ExecutionID, "task_id", e.TaskID, "blocked_by", e.BlockedBy)
		default:
			logger.Info("lifecycle event", "event_type", string(eventType))
		}

		return nil
	}
}
