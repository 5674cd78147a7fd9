package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/generation"
	"github.com/phrazzld/relay-api/internal/platform/gemini"
	"github.com/phrazzld/relay-api/internal/platform/redis"
	"github.com/phrazzld/relay-api/internal/service/auth"
	"github.com/phrazzld/relay-api/internal/task"
)

// application holds the shared dependencies of the running server and the
// resources released on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	jobStore   task.JobStore
	registry   *task.Registry
	queue      *task.Queue
	sweeper    *task.Sweeper
	emitter    *events.InMemoryEventEmitter
	jwtService auth.JWTService

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close closeFunc
}

// appOption customizes newApplication. Tests use it to inject collaborators.
type appOption func(*appDeps)

type appDeps struct {
	generator generation.Generator
	jobStore  task.JobStore
}

// withGenerator registers the AI task handlers over gen instead of a Gemini client.
func withGenerator(gen generation.Generator) appOption {
	return func(d *appDeps) { d.generator = gen }
}

// withJobStore uses store instead of opening the configured database.
func withJobStore(store task.JobStore) appOption {
	return func(d *appDeps) { d.jobStore = store }
}

// newApplication wires the job store, queue, handlers and event publishing.
// Jobs left over from a previous run are recovered before it returns.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...appOption) (*application, error) {
	var deps appDeps
	for _, opt := range opts {
		opt(&deps)
	}

	app := &application{
		config:   cfg,
		logger:   logger,
		registry: task.NewRegistry(),
		emitter:  events.NewInMemoryEventEmitter(logger),
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	if deps.jobStore != nil {
		app.jobStore = deps.jobStore
	} else {
		jobStore, closeStore, err := openJobStore(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open job store: %w", err)
		}
		app.jobStore = jobStore
		app.addCloser("job store", closeStore)
	}

	if err := app.setupPublisher(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	if err := app.registerHandlers(ctx, deps.generator); err != nil {
		app.cleanup()
		return nil, err
	}

	app.queue = task.NewQueue(app.jobStore, app.registry, task.DefaultQueueConfig(), logger,
		task.WithEmitter(app.emitter))

	if err := app.queue.Recover(ctx); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to recover jobs: %w", err)
	}

	app.sweeper, err = task.NewSweeper(app.queue, task.SweeperConfig{
		Interval:  cfg.Task.CleanupInterval(),
		Retention: cfg.Task.Retention(),
	}, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create job sweeper: %w", err)
	}

	logger.Info("application initialized",
		"task_types", app.registry.Types())
	return app, nil
}

// setupPublisher forwards job lifecycle events to Redis when a URL is configured.
func (app *application) setupPublisher(ctx context.Context) error {
	if app.config.Redis.URL == "" {
		return nil
	}

	client, err := redis.Open(ctx, app.config.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.addCloser("redis", func(context.Context) error { return client.Close() })

	publisher, err := redis.NewPublisher(client, app.config.Redis.Channel, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	app.emitter.RegisterHandler(publisher)

	app.logger.Info("publishing job events to redis", "channel", publisher.Channel())
	return nil
}

// registerHandlers registers the AI task handlers. Without a generator or
// an API key no task types are served.
func (app *application) registerHandlers(ctx context.Context, gen generation.Generator) error {
	if gen == nil {
		if !app.config.LLM.Enabled() {
			app.logger.Warn("no Gemini API key configured; AI task types are disabled")
			return nil
		}

		var err error
		gen, err = gemini.NewGeminiGenerator(ctx, app.logger, app.config.LLM)
		if err != nil {
			return fmt.Errorf("failed to initialize LLM generator: %w", err)
		}
		app.logger.Info("LLM generator initialized",
			"model", app.config.LLM.ModelName,
			"image_model", app.config.LLM.ImageModelName)
	}

	generation.Register(app.registry, gen)
	return nil
}

func (app *application) addCloser(name string, fn closeFunc) {
	app.closers = append(app.closers, namedCloser{name: name, close: fn})
}

// cleanup releases resources in reverse order of acquisition.
func (app *application) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Task.ShutdownTimeout())
	defer cancel()

	for i := len(app.closers) - 1; i >= 0; i-- {
		c := app.closers[i]
		if err := c.close(ctx); err != nil {
			app.logger.Error("failed to close resource", "resource", c.name, "error", err)
		}
	}
	app.closers = nil

	app.logger.Info("application shutdown completed")
}
