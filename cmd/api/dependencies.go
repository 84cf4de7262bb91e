package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spendlens/spendlens/internal/api"
	"github.com/spendlens/spendlens/internal/domain/categories"
	"github.com/spendlens/spendlens/internal/domain/imports"
	"github.com/spendlens/spendlens/internal/domain/reviews"
	"github.com/spendlens/spendlens/internal/domain/rules"
	"github.com/spendlens/spendlens/internal/domain/transactions"
	"github.com/spendlens/spendlens/internal/queue"
	"github.com/spendlens/spendlens/pkg/config"
	"github.com/spendlens/spendlens/pkg/cron"
	"github.com/spendlens/spendlens/pkg/db"
)

// Dependencies wires the full application graph for the API process.
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Queue
	Enqueuer  *queue.Enqueuer
	Inspector *queue.Inspector

	// Repositories
	ImportsRepo      *imports.Repository
	TransactionsRepo *transactions.Repository
	ReviewsRepo      *reviews.Repository
	RulesRepo        *rules.Repository
	CategoriesRepo   *categories.Repository

	// Services
	CategoriesService   *categories.Service
	RulesService        *rules.Service
	ImportsService      *imports.Service
	TransactionsService *transactions.Service
	ReviewsService      *reviews.Service
	Executor            *imports.Executor
	Scheduler           *cron.Scheduler

	// Handlers
	Handlers api.Handlers
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	deps.initQueue()
	deps.initRepositories()
	deps.initServices()
	deps.initHandlers()

	if err := deps.seed(); err != nil {
		return nil, fmt.Errorf("failed to seed reference data: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initQueue() {
	redis := queue.RedisOptions(d.Config.Queue.RedisAddr, d.Config.Queue.RedisPassword, d.Config.Queue.RedisDB)
	d.Enqueuer = queue.NewEnqueuer(redis, d.Config.Queue.JobTimeout)
	d.Inspector = queue.NewInspector(redis)
}

func (d *Dependencies) initRepositories() {
	d.ImportsRepo = imports.NewRepository(d.DB.Pool)
	d.TransactionsRepo = transactions.NewRepository(d.DB.Pool)
	d.ReviewsRepo = reviews.NewRepository(d.DB.Pool)
	d.RulesRepo = rules.NewRepository(d.DB.Pool)
	d.CategoriesRepo = categories.NewRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() {
	d.CategoriesService = categories.NewService(d.CategoriesRepo)
	d.RulesService = rules.NewService(d.RulesRepo, d.CategoriesService, d.Config.Rules.ConfigPath, d.Logger)

	// The executor is wired into the API process too: it runs inline when
	// the queue is unreachable at submission time.
	d.Executor = imports.NewExecutor(d.ImportsRepo, d.RulesService, d.Logger)
	d.ImportsService = imports.NewService(d.ImportsRepo, d.Executor, d.Enqueuer, d.Inspector,
		d.Config.Import.StaleAfter, d.Logger)

	d.TransactionsService = transactions.NewService(d.TransactionsRepo, d.CategoriesService,
		d.RulesService, d.ImportsRepo, d.Logger)
	d.ReviewsService = reviews.NewService(d.ReviewsRepo, d.TransactionsRepo, d.Logger)

	d.Scheduler = cron.NewScheduler(d.ImportsService, d.Config.Import.SweepEvery, d.Logger)

	d.Logger.Info("services initialized")
}

func (d *Dependencies) initHandlers() {
	d.Handlers = api.Handlers{
		Imports:      api.NewImportsHandler(d.ImportsService),
		Transactions: api.NewTransactionsHandler(d.TransactionsService),
		Reviews:      api.NewReviewsHandler(d.ReviewsService),
		Rules:        api.NewRulesHandler(d.RulesService),
		Categories:   api.NewCategoriesHandler(d.CategoriesService),
	}

	d.Logger.Info("handlers initialized")
}

// seed installs default categories and classification rules on first boot.
func (d *Dependencies) seed() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.CategoriesService.SeedDefaults(ctx); err != nil {
		return err
	}
	return d.RulesService.SeedDefaults(ctx)
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Enqueuer != nil {
		_ = d.Enqueuer.Close()
	}
	if d.Inspector != nil {
		_ = d.Inspector.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
