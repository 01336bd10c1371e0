// Package main provides the AgentFlow API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentflow/agentflow/pkg/eventbus"
	"github.com/agentflow/agentflow/pkg/executor"
	"github.com/agentflow/agentflow/pkg/gateway"
	"github.com/agentflow/agentflow/pkg/models"
	"github.com/agentflow/agentflow/pkg/persistence"
	"github.com/agentflow/agentflow/pkg/schedule"
	"github.com/agentflow/agentflow/pkg/scheduler"
	"github.com/agentflow/agentflow/pkg/services"
	"github.com/agentflow/agentflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	validate    *validator.Validate
	scheduler   *scheduler.Scheduler
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
	maxConcurrency int,
) *API {
	gw := gateway.New(logger, gateway.Config{})
	taskExecutor := executor.New(gw, p.TaskResultRepository(), logger, 0)

	sched := scheduler.New(taskExecutor, p, eventBus, tracer, logger, scheduler.Config{
		MaxConcurrency: maxConcurrency,
	})

	return &API{
		logger:      logger,
		persistence: p,
		eventBus:    eventBus,
		tracer:      tracer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		scheduler:   sched,
	}
}

// Scheduler exposes the execution scheduler for auxiliary runners.
func (a *API) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// ScheduleSubmitter adapts the scheduler to the schedule runner, submitting
// with deployment-level credentials only.
func (a *API) ScheduleSubmitter() schedule.Submitter {
	return submitterFunc(func(ctx context.Context, workflow *models.Workflow, input map[string]any) error {
		_, err := a.scheduler.Submit(ctx, workflow, input, nil)

		return err
	})
}

type submitterFunc func(ctx context.Context, workflow *models.Workflow, input map[string]any) error

func (f submitterFunc) Submit(ctx context.Context, workflow *models.Workflow, input map[string]any) error {
	return f(ctx, workflow, input)
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence)
	handlers := web.NewAPIHandlers(workflowService, a.scheduler, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("AgentFlow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Post("/validate", handlers.ValidateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/executions", handlers.SubmitExecution)

	app.Get("/executions/:id", handlers.GetExecution)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}

// Shutdown stops the scheduler, waiting for in-flight executions to
// finalize.
func (a *API) Shutdown() {
	a.scheduler.Close()
}
