package file

import (
	"context"
	"os"
	"path/filepath"

	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
)

// ScheduleRepository handles schedule files.
type ScheduleRepository struct {
	root string
}

func (r *ScheduleRepository) dir() string {
	return filepath.Join(r.root, "schedules")
}

func (r *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	if err := writeJSON(r.dir(), schedule.ID, schedule); err != nil {
		return persistence.NewError("Save", "schedule", schedule.ID, err)
	}

	return nil
}

func (r *ScheduleRepository) GetByID(_ context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule

	err := readJSON(r.dir(), id, &schedule)
	if os.IsNotExist(err) {
		return nil, persistence.NewError("GetByID", "schedule", id, persistence.ErrScheduleNotFound)
	}

	if err != nil {
		return nil, persistence.NewError("GetByID", "schedule", id, err)
	}

	return &schedule, nil
}

func (r *ScheduleRepository) ListActive(_ context.Context) ([]*models.Schedule, error) {
	ids, err := listIDs(r.dir())
	if err != nil {
		return nil, persistence.NewError("ListActive", "schedule", "", err)
	}

	schedules := make([]*models.Schedule, 0, len(ids))

	for _, id := range ids {
		var schedule models.Schedule
		if err := readJSON(r.dir(), id, &schedule); err != nil {
			return nil, persistence.NewError("ListActive", "schedule", id, err)
		}

		if schedule.Active {
			schedules = append(schedules, &schedule)
		}
	}

	return schedules, nil
}

func (r *ScheduleRepository) Delete(_ context.Context, id string) error {
	err := os.Remove(filepath.Join(r.dir(), id+".json"))
	if os.IsNotExist(err) {
		return persistence.NewError("Delete", "schedule", id, persistence.ErrScheduleNotFound)
	}

	if err != nil {
		return persistence.NewError("Delete", "schedule", id, err)
	}

	return nil
}
