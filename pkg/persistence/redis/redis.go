// Package redis provides Redis-backed persistence for workflows, executions
// and schedules. Entities are stored as JSON strings with per-kind index
// sets for listing.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/agentflow/agentflow/pkg/persistence"
)

const keyPrefix = "agentflow"

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client         *goredis.Client
	workflowRepo   *WorkflowRepository
	executionRepo  *ExecutionRepository
	taskResultRepo *TaskResultRepository
	scheduleRepo   *ScheduleRepository
}

// NewPersistence connects to Redis using a redis:// URL.
func NewPersistence(ctx context.Context, redisURL string) (*Persistence, error) {
	options, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{
		client:         client,
		workflowRepo:   &WorkflowRepository{client: client},
		executionRepo:  &ExecutionRepository{client: client},
		taskResultRepo: &TaskResultRepository{client: client},
		scheduleRepo:   &ScheduleRepository{client: client},
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) TaskResultRepository() persistence.TaskResultRepository {
	return p.taskResultRepo
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.scheduleRepo
}

// HealthCheck verifies the Redis connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the Redis client.
func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func entityKey(kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, kind, id)
}

func indexKey(kind string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, kind)
}

func setJSON(ctx context.Context, client *goredis.Client, kind, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	pipe := client.TxPipeline()
	pipe.Set(ctx, entityKey(kind, id), data, 0)
	pipe.SAdd(ctx, indexKey(kind), id)

	_, err = pipe.Exec(ctx)

	return err
}

func getJSON(ctx context.Context, client *goredis.Client, kind, id string, value any) error {
	data, err := client.Get(ctx, entityKey(kind, id)).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, value)
}

func removeEntity(ctx context.Context, client *goredis.Client, kind, id string) (bool, error) {
	pipe := client.TxPipeline()
	deleted := pipe.Del(ctx, entityKey(kind, id))
	pipe.SRem(ctx, indexKey(kind), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return deleted.Val() > 0, nil
}
