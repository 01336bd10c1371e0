// Package schedule turns stored cron schedules into workflow submissions. A
// single poller scans for due schedules instead of keeping one timer per
// schedule, so schedules survive restarts without rehydration work.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

// DefaultPollInterval is how often the runner scans for due schedules.
const DefaultPollInterval = 30 * time.Second

// Submitter starts one execution of a stored workflow.
type Submitter interface {
	Submit(ctx context.Context, workflow *models.Workflow, input map[string]any) error
}

// Runner polls the schedule repository and submits workflows that have come
// due, advancing each schedule's next due time afterwards.
type Runner struct {
	schedules persistence.ScheduleRepository
	workflows persistence.WorkflowRepository
	submitter Submitter
	logger    *slog.Logger
	interval  time.Duration

	now func() time.Time
}

func NewRunner(
	p persistence.Persistence,
	submitter Submitter,
	logger *slog.Logger,
	interval time.Duration,
) *Runner {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Runner{
		schedules: p.ScheduleRepository(),
		workflows: p.WorkflowRepository(),
		submitter: submitter,
		logger:    logger.With("module", "schedule_runner"),
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the polling loop until the context is canceled.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("starting schedule runner", "interval", r.interval.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("schedule runner stopped")

			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick performs one scan over the active schedules. A schedule that fails to
// submit stays due and is retried on the next scan; a schedule whose
// workflow has been deleted is deactivated.
func (r *Runner) Tick(ctx context.Context) {
	schedules, err := r.schedules.ListActive(ctx)
	if err != nil {
		r.logger.Error("failed to list schedules", "error", err)

		return
	}

	now := r.now()

	for _, schedule := range schedules {
		if !schedule.Due(now) {
			continue
		}

		r.fire(ctx, schedule)
	}
}

func (r *Runner) fire(ctx context.Context, schedule *models.Schedule) {
	logger := r.logger.With("schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID)

	workflow, err := r.workflows.GetByID(ctx, schedule.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			logger.Warn("workflow gone, deactivating schedule")
			r.deactivate(ctx, logger, schedule)

			return
		}

		logger.Error("failed to load workflow", "error", err)

		return
	}

	if err := r.submitter.Submit(ctx, workflow, schedule.Input); err != nil {
		logger.Error("failed to submit scheduled workflow", "error", err)

		return
	}

	logger.Info("submitted scheduled workflow")

	if err := schedule.Advance(); err != nil {
		logger.Error("failed to advance schedule", "error", err)

		return
	}

	if err := r.schedules.Save(ctx, schedule); err != nil {
		logger.Error("failed to save schedule", "error", err)
	}
}

func (r *Runner) deactivate(ctx context.Context, logger *slog.Logger, schedule *models.Schedule) {
	schedule.Active = false
	schedule.UpdatedAt = r.now()

	if err := r.schedules.Save(ctx, schedule); err != nil {
		logger.Error("failed to deactivate schedule", "error", err)
	}
}
