// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StaleSweeper reconciles non-terminal imports against the task queue.
// Implemented by the imports service.
type StaleSweeper interface {
	SweepStale(ctx context.Context) error
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	sweeper StaleSweeper
	spec    string
	logger  *slog.Logger
}

// NewScheduler creates a new job scheduler. spec is a standard 5-field cron
// expression controlling how often the stale-import sweep runs.
func NewScheduler(sweeper StaleSweeper, spec string, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:    c,
		sweeper: sweeper,
		spec:    spec,
		logger:  logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.sweepStaleImports)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the sweep (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.sweepStaleImports()
}

// sweepStaleImports fails imports whose jobs have stalled or vanished, so
// stuck work surfaces even when nobody polls import status.
func (s *Scheduler) sweepStaleImports() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.sweeper.SweepStale(ctx); err != nil {
		s.logger.Error("stale import sweep failed", slog.Any("error", err))
		return
	}
	s.logger.Debug("stale import sweep finished")
}
