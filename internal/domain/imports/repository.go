package imports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/spendlens/spendlens/internal/domain/reviews"
	"github.com/spendlens/spendlens/internal/domain/transactions"
	"github.com/spendlens/spendlens/pkg/db"
)

// Repository persists import records and uploaded files, and opens the
// transactional batches the executor commits row results through.
type Repository struct {
	db db.Querier
}

// NewRepository creates a new imports repository
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

const importColumns = `id, user_id, filename, status, queue_job_id, total_rows, processed_rows,
	error_message, processing_started_at, finished_at, created_at, updated_at`

func scanImport(row pgx.Row) (*StatementImport, error) {
	var imp StatementImport
	err := row.Scan(&imp.ID, &imp.UserID, &imp.Filename, &imp.Status, &imp.QueueJobID,
		&imp.TotalRows, &imp.ProcessedRows, &imp.ErrorMessage, &imp.ProcessingStartedAt,
		&imp.FinishedAt, &imp.CreatedAt, &imp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &imp, nil
}

// CreateWithFile inserts the import record and its uploaded statement text in
// one transaction, so a submitted import always has content to execute.
func (r *Repository) CreateWithFile(ctx context.Context, imp *StatementImport, contentText string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if imp.ID == uuid.Nil {
		imp.ID = uuid.New()
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO statement_imports (id, user_id, filename, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		imp.ID, imp.UserID, imp.Filename, imp.Status,
	).Scan(&imp.CreatedAt, &imp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO uploaded_files (id, import_id, original_filename, content_text)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), imp.ID, imp.Filename, contentText)
	if err != nil {
		return fmt.Errorf("failed to store uploaded file: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit import creation: %w", err)
	}
	return nil
}

// GetByID retrieves an import scoped to the user.
func (r *Repository) GetByID(ctx context.Context, userID *string, id uuid.UUID) (*StatementImport, error) {
	query := `SELECT ` + importColumns + ` FROM statement_imports WHERE id = $1 AND user_id IS NOT DISTINCT FROM $2`
	imp, err := scanImport(r.db.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import: %w", err)
	}
	return imp, nil
}

// List returns the user's imports, newest first.
func (r *Repository) List(ctx context.Context, userID *string, limit, offset int) ([]*StatementImport, error) {
	query := `SELECT ` + importColumns + ` FROM statement_imports
		WHERE user_id IS NOT DISTINCT FROM $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	var result []*StatementImport
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		result = append(result, imp)
	}
	return result, rows.Err()
}

// ListNonTerminal returns imports still in queued or processing state, used
// by the staleness sweep.
func (r *Repository) ListNonTerminal(ctx context.Context) ([]*StatementImport, error) {
	query := `SELECT ` + importColumns + ` FROM statement_imports
		WHERE status IN ($1, $2) ORDER BY updated_at ASC`

	rows, err := r.db.Query(ctx, query, StatusQueued, StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-terminal imports: %w", err)
	}
	defer rows.Close()

	var result []*StatementImport
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		result = append(result, imp)
	}
	return result, rows.Err()
}

// SetQueueJobID records the external job identifier after a successful
// enqueue.
func (r *Repository) SetQueueJobID(ctx context.Context, id uuid.UUID, jobID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE statement_imports SET queue_job_id = $2, updated_at = now() WHERE id = $1`,
		id, jobID)
	if err != nil {
		return fmt.Errorf("failed to set queue job id: %w", err)
	}
	return nil
}

// ClaimImport transitions an import to processing, clearing any prior error
// and stamping the processing start. Returns sql.ErrNoRows when the import
// does not exist.
func (r *Repository) ClaimImport(ctx context.Context, id uuid.UUID) (*StatementImport, error) {
	query := `
		UPDATE statement_imports
		SET status = $2, error_message = NULL, processing_started_at = now(),
		    finished_at = NULL, updated_at = now()
		WHERE id = $1
		RETURNING ` + importColumns

	imp, err := scanImport(r.db.QueryRow(ctx, query, id, StatusProcessing))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim import: %w", err)
	}
	return imp, nil
}

// GetUploadedFileContent returns the statement text stored for the import.
func (r *Repository) GetUploadedFileContent(ctx context.Context, importID uuid.UUID) (string, error) {
	var content string
	err := r.db.QueryRow(ctx,
		`SELECT content_text FROM uploaded_files WHERE import_id = $1`, importID).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", sql.ErrNoRows
	}
	if err != nil {
		return "", fmt.Errorf("failed to load uploaded file: %w", err)
	}
	return content, nil
}

// MarkCompleted finalizes a successful run.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, totalRows, processedRows int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE statement_imports
		SET status = $2, total_rows = $3, processed_rows = $4, finished_at = now(), updated_at = now()
		WHERE id = $1`,
		id, StatusCompleted, totalRows, processedRows)
	if err != nil {
		return fmt.Errorf("failed to mark import completed: %w", err)
	}
	return nil
}

// MarkFailed records a failure reason, capped at 1000 characters.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE statement_imports
		SET status = $2, error_message = $3, finished_at = now(), updated_at = now()
		WHERE id = $1`,
		id, StatusFailed, truncateReason(reason))
	if err != nil {
		return fmt.Errorf("failed to mark import failed: %w", err)
	}
	return nil
}

// EnsureManualImport returns the id of the user's manual entry bucket,
// creating it on first use.
func (r *Repository) EnsureManualImport(ctx context.Context, userID *string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		SELECT id FROM statement_imports
		WHERE status = $1 AND user_id IS NOT DISTINCT FROM $2
		LIMIT 1`, StatusManual, userID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("failed to look up manual import: %w", err)
	}

	id = uuid.New()
	_, err = r.db.Exec(ctx, `
		INSERT INTO statement_imports (id, user_id, filename, status, finished_at)
		VALUES ($1, $2, 'manual_entries', $3, now())`,
		id, userID, StatusManual)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create manual import: %w", err)
	}
	return id, nil
}

// RecordManualEntry bumps both counters of the manual bucket.
func (r *Repository) RecordManualEntry(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE statement_imports
		SET total_rows = total_rows + 1, processed_rows = processed_rows + 1,
		    finished_at = now(), updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to record manual entry: %w", err)
	}
	return nil
}

// BeginBatch opens a transactional batch for the executor. All collision
// checks inside the batch read through the open transaction, so rows inserted
// earlier in the batch are visible to later checks.
func (r *Repository) BeginBatch(ctx context.Context) (Batch, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch: %w", err)
	}
	return &txBatch{tx: tx}, nil
}

type txBatch struct {
	tx pgx.Tx
}

func (b *txBatch) FindTransactionIDByFingerprint(ctx context.Context, userID *string, fingerprint string) (uuid.UUID, error) {
	var id uuid.UUID
	err := b.tx.QueryRow(ctx, `
		SELECT id FROM transactions
		WHERE user_id IS NOT DISTINCT FROM $1 AND dedupe_fingerprint = $2
		LIMIT 1`, userID, fingerprint).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	return id, nil
}

func (b *txBatch) FindTransactionIDByNaturalKey(ctx context.Context, userID *string, date *time.Time, merchant string, amount decimal.Decimal, direction string) (uuid.UUID, error) {
	var id uuid.UUID
	err := b.tx.QueryRow(ctx, `
		SELECT id FROM transactions
		WHERE user_id IS NOT DISTINCT FROM $1
		  AND transaction_date IS NOT DISTINCT FROM $2
		  AND lower(merchant_normalized) = lower($3)
		  AND round(amount, 2) = round($4::numeric, 2)
		  AND direction = $5
		LIMIT 1`, userID, date, merchant, amount, direction).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up natural key: %w", err)
	}
	return id, nil
}

func (b *txBatch) InsertTransaction(ctx context.Context, t *transactions.Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := b.tx.Exec(ctx, `
		INSERT INTO transactions (id, user_id, source_import_id, transaction_date, description_raw,
			merchant_normalized, amount, currency, direction, category, category_confidence, dedupe_fingerprint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.UserID, t.SourceImportID, t.TransactionDate, t.DescriptionRaw,
		t.MerchantNormalized, t.Amount, t.Currency, t.Direction, t.Category,
		t.CategoryConfidence, t.DedupeFingerprint)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (b *txBatch) InsertReview(ctx context.Context, review *reviews.Review) error {
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	_, err := b.tx.Exec(ctx, `
		INSERT INTO duplicate_reviews (id, user_id, source_import_id, source_row_number,
			duplicate_scope, duplicate_reason, matched_transaction_id, transaction_date,
			description_raw, merchant_normalized, amount, currency, direction, category,
			category_confidence, dedupe_fingerprint, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		review.ID, review.UserID, review.SourceImportID, review.SourceRowNumber,
		review.DuplicateScope, review.DuplicateReason, review.MatchedTransactionID,
		review.TransactionDate, review.DescriptionRaw, review.MerchantNormalized,
		review.Amount, review.Currency, review.Direction, review.Category,
		review.CategoryConfidence, review.DedupeFingerprint, review.Status)
	if err != nil {
		return fmt.Errorf("failed to insert duplicate review: %w", err)
	}
	return nil
}

func (b *txBatch) UpdateProgress(ctx context.Context, importID uuid.UUID, totalRows, processedRows int) error {
	_, err := b.tx.Exec(ctx, `
		UPDATE statement_imports
		SET total_rows = $2, processed_rows = $3, updated_at = now()
		WHERE id = $1`, importID, totalRows, processedRows)
	if err != nil {
		return fmt.Errorf("failed to update import progress: %w", err)
	}
	return nil
}

func (b *txBatch) Commit(ctx context.Context) error {
	return b.tx.Commit(ctx)
}

func (b *txBatch) Rollback(ctx context.Context) error {
	return b.tx.Rollback(ctx)
}
