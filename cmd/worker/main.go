// The worker pulls import jobs from the Redis queue and runs them through
// the executor. It also owns the periodic stale-import sweep so stuck jobs
// fail even when no API request polls their status.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/spendlens/spendlens/internal/domain/categories"
	"github.com/spendlens/spendlens/internal/domain/imports"
	"github.com/spendlens/spendlens/internal/domain/rules"
	"github.com/spendlens/spendlens/internal/queue"
	"github.com/spendlens/spendlens/pkg/config"
	"github.com/spendlens/spendlens/pkg/cron"
	"github.com/spendlens/spendlens/pkg/db"
	"github.com/spendlens/spendlens/pkg/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	database, err := db.New(db.Config{
		DSN:             cfg.Database.DSN(),
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	importsRepo := imports.NewRepository(database.Pool)
	rulesService := rules.NewService(rules.NewRepository(database.Pool),
		categories.NewService(categories.NewRepository(database.Pool)),
		cfg.Rules.ConfigPath, logger)
	executor := imports.NewExecutor(importsRepo, rulesService, logger)

	redis := queue.RedisOptions(cfg.Queue.RedisAddr, cfg.Queue.RedisPassword, cfg.Queue.RedisDB)
	inspector := queue.NewInspector(redis)
	defer inspector.Close()

	importsService := imports.NewService(importsRepo, executor, nil, inspector, cfg.Import.StaleAfter, logger)
	scheduler := cron.NewScheduler(importsService, cfg.Import.SweepEvery, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	defer scheduler.Stop()

	if cfg.Observability.MetricsEnabled {
		go metrics.Serve(cfg.Observability.MetricsPort+1, logger)
	}

	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{queue.ImportQueue: 1},
		Logger:      newAsynqLogger(logger),
	})

	serveMux := asynq.NewServeMux()
	serveMux.HandleFunc(queue.TaskTypeProcessImport, queue.NewHandler(executor))

	logger.Info("worker starting", slog.String("queue", queue.ImportQueue))
	if err := server.Run(serveMux); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// asynqLogger adapts slog to the queue server's logger interface.
type asynqLogger struct {
	logger *slog.Logger
}

func newAsynqLogger(logger *slog.Logger) *asynqLogger {
	return &asynqLogger{logger: logger}
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug(sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info(sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn(sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logger.Error(sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) {
	l.logger.Error(sprint(args...))
	os.Exit(1)
}

func sprint(args ...any) string {
	return strings.TrimSpace(fmt.Sprintln(args...))
}
