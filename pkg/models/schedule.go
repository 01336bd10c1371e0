package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule defines a recurring workflow submission. NextDueAt is precomputed
// so a poller can find due schedules without keeping per-schedule timers.
type Schedule struct {
	ID             string         `json:"id"              validate:"required"`
	WorkflowID     string         `json:"workflow_id"     validate:"required"`
	CronExpression string         `json:"cron_expression" validate:"required"`
	Input          map[string]any `json:"input,omitempty"`
	NextDueAt      time.Time      `json:"next_due_at"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewSchedule creates an active schedule with its first due time computed
// from the standard 5-field cron expression.
func NewSchedule(id, workflowID, cronExpression string, input map[string]any) (*Schedule, error) {
	now := time.Now().UTC()
	schedule := &Schedule{
		ID:             id,
		WorkflowID:     workflowID,
		CronExpression: cronExpression,
		Input:          input,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := schedule.advanceFrom(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// Advance recomputes NextDueAt from the current time, after a due schedule
// has been submitted.
func (s *Schedule) Advance() error {
	return s.advanceFrom(time.Now().UTC())
}

func (s *Schedule) advanceFrom(from time.Time) error {
	if s.CronExpression == "" {
		return errors.New("schedule cron expression is required")
	}

	spec, err := cron.ParseStandard(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = spec.Next(from)
	s.UpdatedAt = from

	return nil
}

// Due reports whether the schedule should be submitted at the given time.
func (s *Schedule) Due(now time.Time) bool {
	return s.Active && !s.NextDueAt.IsZero() && !now.Before(s.NextDueAt)
}
