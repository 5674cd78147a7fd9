package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/platform/mongodb"
	"github.com/phrazzld/relay-api/internal/platform/postgres"
	"github.com/phrazzld/relay-api/internal/task"
)

// closeFunc releases a resource opened at startup.
type closeFunc func(ctx context.Context) error

// openJobStore opens the job store selected by cfg.Driver. Postgres schemas
// are migrated up and MongoDB indexes created before the store is returned.
func openJobStore(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (task.JobStore, closeFunc, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory job store; jobs will not survive a restart")
		return task.NewMemoryJobStore(), func(context.Context) error { return nil }, nil

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db, postgres.MigrateUp, log); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("connected to postgres job store")
		return postgres.NewPostgresJobStore(db), func(context.Context) error { return db.Close() }, nil

	case config.DriverMongoDB:
		client, err := mongodb.Open(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		jobStore := mongodb.NewMongoJobStore(client.Database(cfg.Name))
		if err := jobStore.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		log.Info("connected to mongodb job store", "database", cfg.Name)
		return jobStore, client.Disconnect, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
