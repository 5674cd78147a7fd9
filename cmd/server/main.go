// Package main implements the entry point for the Relay API server, which
// accepts background AI jobs over HTTP and runs them asynchronously.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/platform/postgres"
)

func main() {
	migrateCmd := flag.String("migrate", "",
		"run a database migration command (up, down, status, version) and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *migrateCmd); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run loads configuration and either executes a migration command or serves
// until ctx is cancelled.
func run(ctx context.Context, migrateCmd string) error {
	if err := loadDotEnv(".env"); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"llm_enabled", cfg.LLM.Enabled(),
		"redis_enabled", cfg.Redis.URL != "")

	if migrateCmd != "" {
		return runMigrations(ctx, cfg, migrateCmd, log)
	}

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	return app.Run(ctx)
}

// loadDotEnv loads environment variables from path when the file exists.
// Variables already set in the environment win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return fmt.Errorf("load .env file: %w", err)
		}
	}
	return nil
}

// runMigrations executes a goose command against the configured Postgres
// database.
func runMigrations(ctx context.Context, cfg *config.Config, command string, log *slog.Logger) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("migrations require the %s driver, configured driver is %s",
			config.DriverPostgres, cfg.Database.Driver)
	}

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("failed to close database connection", "error", cerr)
		}
	}()

	return postgres.Migrate(ctx, db, command, log)
}
