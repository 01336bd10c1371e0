package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

// ScheduleRepository handles schedule rows.
type ScheduleRepository struct {
	db *sql.DB
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	input, err := json.Marshal(schedule.Input)
	if err != nil {
		return persistence.NewError("Save", "schedule", schedule.ID, fmt.Errorf("failed to marshal input: %w", err))
	}

	query := `
		INSERT INTO schedules (id, workflow_id, cron_expression, input, next_due_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression,
			input = EXCLUDED.input,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		schedule.ID, schedule.WorkflowID, schedule.CronExpression, input,
		schedule.NextDueAt, schedule.Active, schedule.CreatedAt, schedule.UpdatedAt)
	if err != nil {
		return persistence.NewError("Save", "schedule", schedule.ID, err)
	}

	return nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, cron_expression, input, next_due_at, active, created_at, updated_at
		FROM schedules
		WHERE id = $1
	`, id)

	schedule, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewError("GetByID", "schedule", id, persistence.ErrScheduleNotFound)
	}

	if err != nil {
		return nil, persistence.NewError("GetByID", "schedule", id, err)
	}

	return schedule, nil
}

func (r *ScheduleRepository) ListActive(ctx context.Context) ([]*models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, cron_expression, input, next_due_at, active, created_at, updated_at
		FROM schedules
		WHERE active
		ORDER BY next_due_at ASC
	`)
	if err != nil {
		return nil, persistence.NewError("ListActive", "schedule", "", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, persistence.NewError("ListActive", "schedule", "", err)
		}

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewError("ListActive", "schedule", "", err)
	}

	return schedules, nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = $1", id)
	if err != nil {
		return persistence.NewError("Delete", "schedule", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewError("Delete", "schedule", id, err)
	}

	if affected == 0 {
		return persistence.NewError("Delete", "schedule", id, persistence.ErrScheduleNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var (
		schedule models.Schedule
		input    []byte
	)

	err := row.Scan(&schedule.ID, &schedule.WorkflowID, &schedule.CronExpression, &input,
		&schedule.NextDueAt, &schedule.Active, &schedule.CreatedAt, &schedule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(input) > 0 {
		if err := json.Unmarshal(input, &schedule.Input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
	}

	return &schedule, nil
}
