package imports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spendlens/spendlens/internal/domain/dedupe"
	"github.com/spendlens/spendlens/internal/domain/imports/parser"
	"github.com/spendlens/spendlens/internal/domain/reviews"
	"github.com/spendlens/spendlens/internal/domain/rules"
	"github.com/spendlens/spendlens/internal/domain/transactions"
	"github.com/spendlens/spendlens/pkg/metrics"
)

// batchSize is how many scanned rows accumulate before a commit.
const batchSize = 100

// ExecStore is the persistence surface the executor drives.
type ExecStore interface {
	ClaimImport(ctx context.Context, id uuid.UUID) (*StatementImport, error)
	GetUploadedFileContent(ctx context.Context, importID uuid.UUID) (string, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, totalRows, processedRows int) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	BeginBatch(ctx context.Context) (Batch, error)
}

// Batch is one transactional unit of row results. Lookups read through the
// open transaction so uncommitted inserts from earlier rows are visible.
type Batch interface {
	FindTransactionIDByFingerprint(ctx context.Context, userID *string, fingerprint string) (uuid.UUID, error)
	FindTransactionIDByNaturalKey(ctx context.Context, userID *string, date *time.Time, merchant string, amount decimal.Decimal, direction string) (uuid.UUID, error)
	InsertTransaction(ctx context.Context, t *transactions.Transaction) error
	InsertReview(ctx context.Context, r *reviews.Review) error
	UpdateProgress(ctx context.Context, importID uuid.UUID, totalRows, processedRows int) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SnapshotLoader provides the classification rule snapshot taken once per run.
type SnapshotLoader interface {
	LoadActiveSnapshot(ctx context.Context) (rules.Snapshot, error)
}

// rowDisposition is the per-row outcome: skipped, staged for review, or
// committed as a transaction.
type rowDisposition uint8

const (
	dispositionSkip rowDisposition = iota + 1
	dispositionStage
	dispositionCommit
)

func (d rowDisposition) String() string {
	switch d {
	case dispositionSkip:
		return "skipped"
	case dispositionStage:
		return "staged"
	case dispositionCommit:
		return "committed"
	}
	return "unknown"
}

// Executor runs one import job end to end: claim, parse, classify,
// deduplicate, and commit in batches.
type Executor struct {
	store  ExecStore
	rules  SnapshotLoader
	logger *slog.Logger
}

// NewExecutor creates a new import executor
func NewExecutor(store ExecStore, ruleSource SnapshotLoader, logger *slog.Logger) *Executor {
	return &Executor{store: store, rules: ruleSource, logger: logger}
}

// ProcessImport executes one import job. A missing import record is a no-op;
// any failure rolls back the uncommitted batch and marks the import failed in
// a best-effort separate transaction. The job is never retried automatically.
func (e *Executor) ProcessImport(ctx context.Context, importID uuid.UUID) error {
	record, err := e.store.ClaimImport(ctx, importID)
	if errors.Is(err, sql.ErrNoRows) {
		e.logger.Warn("import job references unknown import", slog.String("import_id", importID.String()))
		return nil
	}
	if err != nil {
		return err
	}

	logger := e.logger.With(slog.String("import_id", importID.String()))
	logger.Info("import processing started", slog.String("filename", record.Filename))

	totalRows, processedRows, runErr := e.run(ctx, record)
	if runErr != nil {
		reason := truncateReason(runErr.Error())
		if markErr := e.store.MarkFailed(ctx, importID, reason); markErr != nil {
			// Leave the record as the last commit left it; the reconciler
			// will flag it as stale.
			logger.Error("failed to mark import failed", slog.Any("error", markErr))
		}
		metrics.ImportsFinished.WithLabelValues(StatusFailed, "executor").Inc()
		logger.Error("import processing failed", slog.Any("error", runErr))
		return runErr
	}

	if err := e.store.MarkCompleted(ctx, importID, totalRows, processedRows); err != nil {
		return err
	}
	metrics.ImportsFinished.WithLabelValues(StatusCompleted, "executor").Inc()
	logger.Info("import processing completed",
		slog.Int("total_rows", totalRows), slog.Int("processed_rows", processedRows))
	return nil
}

// run drives the row loop and returns final counters. On error the open
// batch has already been rolled back.
func (e *Executor) run(ctx context.Context, record *StatementImport) (totalRows, processedRows int, err error) {
	content, err := e.store.GetUploadedFileContent(ctx, record.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, errors.New("uploaded CSV content not found for import")
	}
	if err != nil {
		return 0, 0, err
	}

	rows, err := parser.Decode(strings.NewReader(content))
	if err != nil {
		return 0, 0, err
	}

	snapshot, err := e.rules.LoadActiveSnapshot(ctx)
	if err != nil {
		return 0, 0, err
	}

	userScope := ""
	if record.UserID != nil {
		userScope = strings.TrimSpace(*record.UserID)
	}

	batch, err := e.store.BeginBatch(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil && batch != nil {
			_ = batch.Rollback(ctx)
		}
	}()

	seenFingerprints := make(map[string]struct{})

	for _, raw := range rows {
		totalRows++

		disposition, committed, rowErr := e.processRow(ctx, batch, record, snapshot, raw, totalRows, userScope, seenFingerprints)
		if rowErr != nil {
			return totalRows, processedRows, rowErr
		}
		if committed {
			processedRows++
		}
		metrics.RowsProcessed.WithLabelValues(disposition.String()).Inc()

		if totalRows%batchSize == 0 {
			if err = batch.UpdateProgress(ctx, record.ID, totalRows, processedRows); err != nil {
				return totalRows, processedRows, err
			}
			if err = batch.Commit(ctx); err != nil {
				batch = nil
				return totalRows, processedRows, err
			}
			if batch, err = e.store.BeginBatch(ctx); err != nil {
				batch = nil
				return totalRows, processedRows, err
			}
		}
	}

	if err = batch.UpdateProgress(ctx, record.ID, totalRows, processedRows); err != nil {
		return totalRows, processedRows, err
	}
	if err = batch.Commit(ctx); err != nil {
		batch = nil
		return totalRows, processedRows, err
	}
	batch = nil
	return totalRows, processedRows, nil
}

// processRow takes one raw row through parse, classify, fingerprint, and the
// three ordered collision checks. An invalid row format fails the whole job.
func (e *Executor) processRow(ctx context.Context, batch Batch, record *StatementImport, snapshot rules.Snapshot, raw parser.Row, rowNum int, userScope string, seen map[string]struct{}) (rowDisposition, bool, error) {
	candidate, err := parser.ParseRow(raw, rowNum)
	if err != nil {
		return 0, false, fmt.Errorf("invalid row format: %w", err)
	}
	if candidate == nil {
		return dispositionSkip, false, nil
	}

	category, confidence := snapshot.Classify(candidate.DescriptionRaw, candidate.Merchant, candidate.SourceCategory)
	fingerprint := dedupe.Fingerprint(candidate.Date, candidate.Merchant, candidate.Amount, candidate.Direction, userScope)

	stage := func(scope, reason string, matchedID *uuid.UUID) (rowDisposition, bool, error) {
		review := &reviews.Review{
			UserID:               record.UserID,
			SourceImportID:       record.ID,
			SourceRowNumber:      rowNum,
			DuplicateScope:       scope,
			DuplicateReason:      reason,
			MatchedTransactionID: matchedID,
			TransactionDate:      candidate.Date,
			DescriptionRaw:       candidate.DescriptionRaw,
			MerchantNormalized:   candidate.Merchant,
			Amount:               candidate.Amount,
			Currency:             candidate.Currency,
			Direction:            candidate.Direction,
			Category:             category,
			CategoryConfidence:   confidence,
			DedupeFingerprint:    fingerprint,
			Status:               reviews.StatusPending,
		}
		if err := batch.InsertReview(ctx, review); err != nil {
			return 0, false, err
		}
		return dispositionStage, false, nil
	}

	if _, ok := seen[fingerprint]; ok {
		return stage(reviews.ScopeSameImport, reviews.ReasonFingerprintMatch, nil)
	}

	matchedID, err := batch.FindTransactionIDByFingerprint(ctx, record.UserID, fingerprint)
	if err != nil {
		return 0, false, err
	}
	if matchedID != uuid.Nil {
		return stage(reviews.ScopeExistingData, reviews.ReasonFingerprintMatch, &matchedID)
	}

	matchedID, err = batch.FindTransactionIDByNaturalKey(ctx, record.UserID, candidate.Date, candidate.Merchant, candidate.Amount, candidate.Direction)
	if err != nil {
		return 0, false, err
	}
	if matchedID != uuid.Nil {
		return stage(reviews.ScopeExistingData, reviews.ReasonNaturalKeyMatch, &matchedID)
	}

	txn := &transactions.Transaction{
		UserID:             record.UserID,
		SourceImportID:     &record.ID,
		TransactionDate:    candidate.Date,
		DescriptionRaw:     candidate.DescriptionRaw,
		MerchantNormalized: candidate.Merchant,
		Amount:             candidate.Amount,
		Currency:           candidate.Currency,
		Direction:          candidate.Direction,
		Category:           category,
		CategoryConfidence: confidence,
		DedupeFingerprint:  fingerprint,
	}
	if err := batch.InsertTransaction(ctx, txn); err != nil {
		return 0, false, err
	}
	seen[fingerprint] = struct{}{}
	return dispositionCommit, true, nil
}
