package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/CoolE88/observatory/internal/config"
	applogger "github.com/CoolE88/observatory/internal/logger"
	"github.com/CoolE88/observatory/internal/repository/postgres"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "observatory",
		Usage:   "Personal time-series ingestion and query service",
		Version: version,
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			emitterCommand(),
			seedCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("observatory: %v", err)
	}
}

// environment общая подготовка для всех команд: конфиг из окружения и логгер
type environment struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newEnvironment() (*environment, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := applogger.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return &environment{cfg: cfg, logger: logger}, nil
}

func (e *environment) close() {
	if err := e.logger.Sync(); err != nil {
		log.Printf("Error during logger sync: %v", err)
	}
}

func (e *environment) openRepository(ctx context.Context) (*postgres.PostgresRepository, error) {
	if e.cfg.RunMigration {
		if err := postgres.Migrate(e.cfg.DBConfig.DBSource, e.logger); err != nil {
			return nil, err
		}
	}

	repo, err := postgres.NewPostgresRepository(ctx, e.cfg.DBConfig, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	e.logger.Info("Database connection established")
	return repo, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations and exit",
		Action: func(ctx context.Context, _ *cli.Command) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			defer env.close()

			return postgres.Migrate(env.cfg.DBConfig.DBSource, env.logger)
		},
	}
}
