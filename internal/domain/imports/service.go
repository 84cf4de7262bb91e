package imports

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spendlens/spendlens/internal/queue"
	"github.com/spendlens/spendlens/pkg/metrics"
)

// JobEnqueuer publishes import jobs to the external queue. Implemented by
// queue.Enqueuer.
type JobEnqueuer interface {
	EnqueueImport(ctx context.Context, importID uuid.UUID) (string, error)
}

// ErrEmptyFile rejects uploads with no statement content.
var ErrEmptyFile = errors.New("uploaded file is empty")

// Service handles import submission and status reads.
type Service struct {
	repo       *Repository
	executor   *Executor
	enqueuer   JobEnqueuer
	inspector  QueueStateReader
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewService creates a new imports service
func NewService(repo *Repository, executor *Executor, enqueuer JobEnqueuer, inspector QueueStateReader, staleAfter time.Duration, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		executor:   executor,
		enqueuer:   enqueuer,
		inspector:  inspector,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Submit stores the upload and hands the job to the queue. When the queue is
// unavailable the job runs synchronously in the caller before returning,
// sacrificing isolation but not correctness; such imports carry no job id.
func (s *Service) Submit(ctx context.Context, userID *string, filename, contentText string) (*StatementImport, error) {
	if strings.TrimSpace(contentText) == "" {
		return nil, ErrEmptyFile
	}

	record := &StatementImport{
		UserID:   userID,
		Filename: filename,
		Status:   StatusQueued,
	}
	if err := s.repo.CreateWithFile(ctx, record, contentText); err != nil {
		return nil, err
	}
	metrics.ImportsStarted.Inc()

	jobID, err := s.enqueue(ctx, record.ID)
	if err != nil {
		s.logger.Warn("queue unavailable, running import synchronously",
			slog.String("import_id", record.ID.String()), slog.Any("error", err))
		if execErr := s.executor.ProcessImport(ctx, record.ID); execErr != nil {
			s.logger.Error("synchronous import run failed",
				slog.String("import_id", record.ID.String()), slog.Any("error", execErr))
		}
	} else {
		if err := s.repo.SetQueueJobID(ctx, record.ID, jobID); err != nil {
			return nil, err
		}
	}

	return s.repo.GetByID(ctx, userID, record.ID)
}

func (s *Service) enqueue(ctx context.Context, importID uuid.UUID) (string, error) {
	if s.enqueuer == nil {
		return "", errors.New("no queue configured")
	}
	return s.enqueuer.EnqueueImport(ctx, importID)
}

// Get returns an import, reconciling its status against the queue first when
// it is still non-terminal.
func (s *Service) Get(ctx context.Context, userID *string, id uuid.UUID) (*StatementImport, error) {
	record, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, record)
}

// List returns the user's imports, newest first.
func (s *Service) List(ctx context.Context, userID *string, limit, offset int) ([]*StatementImport, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.List(ctx, userID, limit, offset)
}

// SweepStale reconciles every non-terminal import. Run periodically so stuck
// imports fail even when nobody polls their status.
func (s *Service) SweepStale(ctx context.Context) error {
	records, err := s.repo.ListNonTerminal(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		if _, err := s.reconcile(ctx, record); err != nil {
			s.logger.Warn("failed to reconcile import",
				slog.String("import_id", record.ID.String()), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) reconcile(ctx context.Context, record *StatementImport) (*StatementImport, error) {
	if record.Terminal() {
		return record, nil
	}

	decision := DecideReconciliation(record, s.readJobState, s.staleAfter, time.Now().UTC())
	if !decision.MarkFailed {
		return record, nil
	}

	s.logger.Warn("reconciler marking import failed",
		slog.String("import_id", record.ID.String()), slog.String("reason", decision.Reason))
	if err := s.repo.MarkFailed(ctx, record.ID, decision.Reason); err != nil {
		return nil, err
	}
	metrics.ImportsFinished.WithLabelValues(StatusFailed, "reconciler").Inc()
	return s.repo.GetByID(ctx, record.UserID, record.ID)
}

func (s *Service) readJobState(jobID string) queue.JobStatus {
	if s.inspector == nil {
		return queue.JobStatus{Outcome: queue.LookupUnreachable}
	}
	return s.inspector.ReadJobState(jobID)
}
