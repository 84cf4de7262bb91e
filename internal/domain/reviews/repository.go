package reviews

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spendlens/spendlens/internal/domain/transactions"
	"github.com/spendlens/spendlens/pkg/db"
)

// Repository persists duplicate reviews in PostgreSQL.
type Repository struct {
	db db.Querier
}

// NewRepository creates a new reviews repository
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

const reviewColumns = `id, user_id, source_import_id, source_row_number, duplicate_scope,
	duplicate_reason, matched_transaction_id, transaction_date, description_raw,
	merchant_normalized, amount, currency, direction, category, category_confidence,
	dedupe_fingerprint, status, review_note, reviewed_at, created_at`

func scanReview(row pgx.Row) (*Review, error) {
	var r Review
	err := row.Scan(&r.ID, &r.UserID, &r.SourceImportID, &r.SourceRowNumber, &r.DuplicateScope,
		&r.DuplicateReason, &r.MatchedTransactionID, &r.TransactionDate, &r.DescriptionRaw,
		&r.MerchantNormalized, &r.Amount, &r.Currency, &r.Direction, &r.Category,
		&r.CategoryConfidence, &r.DedupeFingerprint, &r.Status, &r.ReviewNote,
		&r.ReviewedAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns reviews for the user, newest batch first, file order within.
func (r *Repository) List(ctx context.Context, userID *string, filter ListFilter) ([]*Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM duplicate_reviews WHERE user_id IS NOT DISTINCT FROM $1`
	args := []any{userID}
	if filter.ImportID != nil {
		args = append(args, *filter.ImportID)
		query += fmt.Sprintf(" AND source_import_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += ` ORDER BY created_at DESC, source_row_number ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate reviews: %w", err)
	}
	defer rows.Close()

	var result []*Review
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan duplicate review: %w", err)
		}
		result = append(result, review)
	}
	return result, rows.Err()
}

// GetByID retrieves one review scoped to the user.
func (r *Repository) GetByID(ctx context.Context, userID *string, id uuid.UUID) (*Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM duplicate_reviews WHERE id = $1 AND user_id IS NOT DISTINCT FROM $2`
	review, err := scanReview(r.db.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get duplicate review: %w", err)
	}
	return review, nil
}

// GetManyByIDs retrieves the subset of the given reviews that exist in-scope,
// keyed by id.
func (r *Repository) GetManyByIDs(ctx context.Context, userID *string, ids []uuid.UUID) (map[uuid.UUID]*Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM duplicate_reviews WHERE user_id IS NOT DISTINCT FROM $1 AND id = ANY($2)`
	rows, err := r.db.Query(ctx, query, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load duplicate reviews: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID]*Review, len(ids))
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan duplicate review: %w", err)
		}
		result[review.ID] = review
	}
	return result, rows.Err()
}

// UpdateStatus sets the status and note, stamping the review time.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, note *string, reviewedAt time.Time) error {
	result, err := r.db.Exec(ctx,
		`UPDATE duplicate_reviews SET status = $2, review_note = $3, reviewed_at = $4 WHERE id = $1`,
		id, status, note, reviewedAt)
	if err != nil {
		return fmt.Errorf("failed to update duplicate review: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a resolved review.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM duplicate_reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete duplicate review: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Resolution is the transactional scope a not_duplicate resolution commits
// through: the materialized transaction, the processed-row bump, and the
// review deletion land together or not at all.
type Resolution interface {
	InsertTransaction(ctx context.Context, t *transactions.Transaction) error
	IncrementProcessedRows(ctx context.Context, importID uuid.UUID) error
	DeleteReview(ctx context.Context, id uuid.UUID) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BeginResolution opens a resolution transaction.
func (r *Repository) BeginResolution(ctx context.Context) (Resolution, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin review resolution: %w", err)
	}
	return &txResolution{tx: tx}, nil
}

type txResolution struct {
	tx pgx.Tx
}

func (res *txResolution) InsertTransaction(ctx context.Context, t *transactions.Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := res.tx.Exec(ctx, `
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

func (res *txResolution) IncrementProcessedRows(ctx context.Context, importID uuid.UUID) error {
	_, err := res.tx.Exec(ctx, `
		UPDATE statement_imports
		SET processed_rows = processed_rows + 1, updated_at = now()
		WHERE id = $1`, importID)
	if err != nil {
		return fmt.Errorf("failed to increment processed rows: %w", err)
	}
	return nil
}

func (res *txResolution) DeleteReview(ctx context.Context, id uuid.UUID) error {
	result, err := res.tx.Exec(ctx, `DELETE FROM duplicate_reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete duplicate review: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (res *txResolution) Commit(ctx context.Context) error {
	return res.tx.Commit(ctx)
}

func (res *txResolution) Rollback(ctx context.Context) error {
	return res.tx.Rollback(ctx)
}

// CountByStatus returns the number of in-scope reviews with the status.
func (r *Repository) CountByStatus(ctx context.Context, userID *string, status string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM duplicate_reviews WHERE user_id IS NOT DISTINCT FROM $1 AND status = $2`,
		userID, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count duplicate reviews: %w", err)
	}
	return count, nil
}
