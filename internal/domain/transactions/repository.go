package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/spendlens/spendlens/pkg/db"
)

// Repository persists transactions in PostgreSQL. All reads are scoped to a
// user: a nil userID matches rows with no owner, which is the single-tenant
// mode used when authentication is disabled.
type Repository struct {
	db db.Querier
}

// NewRepository creates a new transactions repository
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

const txnColumns = `id, user_id, source_import_id, transaction_date, description_raw,
	merchant_normalized, amount, currency, direction, category, category_confidence,
	dedupe_fingerprint, created_at, updated_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.SourceImportID, &t.TransactionDate, &t.DescriptionRaw,
		&t.MerchantNormalized, &t.Amount, &t.Currency, &t.Direction, &t.Category,
		&t.CategoryConfidence, &t.DedupeFingerprint, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns transactions for the user, newest first.
func (r *Repository) List(ctx context.Context, userID *string, filter ListFilter) ([]*Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transactions WHERE user_id IS NOT DISTINCT FROM $1`
	args := []any{userID}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		query += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		query += fmt.Sprintf(" AND transaction_date <= $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	query += ` ORDER BY transaction_date DESC NULLS LAST, created_at DESC`
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
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// GetByID retrieves one transaction scoped to the user.
func (r *Repository) GetByID(ctx context.Context, userID *string, id uuid.UUID) (*Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transactions WHERE id = $1 AND user_id IS NOT DISTINCT FROM $2`
	t, err := scanTransaction(r.db.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// Insert stores a new transaction.
func (r *Repository) Insert(ctx context.Context, t *Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, source_import_id, transaction_date, description_raw,
			merchant_normalized, amount, currency, direction, category, category_confidence, dedupe_fingerprint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, query,
		t.ID, t.UserID, t.SourceImportID, t.TransactionDate, t.DescriptionRaw,
		t.MerchantNormalized, t.Amount, t.Currency, t.Direction, t.Category,
		t.CategoryConfidence, t.DedupeFingerprint,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// FindIDByFingerprint returns the id of the in-scope transaction carrying the
// fingerprint, or uuid.Nil when none exists.
func (r *Repository) FindIDByFingerprint(ctx context.Context, userID *string, fingerprint string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		`SELECT id FROM transactions WHERE user_id IS NOT DISTINCT FROM $1 AND dedupe_fingerprint = $2 LIMIT 1`,
		userID, fingerprint).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	return id, nil
}

// FingerprintExists reports whether any transaction, regardless of owner,
// carries the fingerprint. Used when minting disambiguated fingerprints.
func (r *Repository) FingerprintExists(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE dedupe_fingerprint = $1)`,
		fingerprint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	return exists, nil
}

// FindIDByNaturalKey returns the id of an in-scope transaction matching the
// (date, merchant, amount, direction) tuple, or uuid.Nil when none exists.
func (r *Repository) FindIDByNaturalKey(ctx context.Context, userID *string, date *time.Time, merchant string, amount decimal.Decimal, direction string) (uuid.UUID, error) {
	query := `
		SELECT id FROM transactions
		WHERE user_id IS NOT DISTINCT FROM $1
		  AND transaction_date IS NOT DISTINCT FROM $2
		  AND lower(merchant_normalized) = lower($3)
		  AND round(amount, 2) = round($4::numeric, 2)
		  AND direction = $5
		LIMIT 1`

	var id uuid.UUID
	err := r.db.QueryRow(ctx, query, userID, date, merchant, amount, direction).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up natural key: %w", err)
	}
	return id, nil
}

// UpdateCategory sets the category and confidence of one transaction.
func (r *Repository) UpdateCategory(ctx context.Context, id uuid.UUID, category string, confidence float64) error {
	result, err := r.db.Exec(ctx,
		`UPDATE transactions SET category = $2, category_confidence = $3, updated_at = now() WHERE id = $1`,
		id, category, confidence)
	if err != nil {
		return fmt.Errorf("failed to update transaction category: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListForRecategorize returns all in-scope transactions matching the optional
// date/category window, oldest first, without paging.
func (r *Repository) ListForRecategorize(ctx context.Context, userID *string, startDate, endDate *time.Time, category string) ([]*Transaction, error) {
	filter := ListFilter{StartDate: startDate, EndDate: endDate, Category: category}
	query := `SELECT ` + txnColumns + ` FROM transactions WHERE user_id IS NOT DISTINCT FROM $1`
	args := []any{userID}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		query += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		query += fmt.Sprintf(" AND transaction_date <= $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// SpendByCategory sums debit amounts per category within the date window.
func (r *Repository) SpendByCategory(ctx context.Context, userID *string, startDate, endDate *time.Time) ([]CategorySpend, error) {
	query := `
		SELECT COALESCE(NULLIF(category, ''), 'uncategorized'), COALESCE(sum(amount), 0)
		FROM transactions
		WHERE user_id IS NOT DISTINCT FROM $1 AND direction = 'debit'`
	args := []any{userID}
	if startDate != nil {
		args = append(args, *startDate)
		query += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
	}
	if endDate != nil {
		args = append(args, *endDate)
		query += fmt.Sprintf(" AND transaction_date <= $%d", len(args))
	}
	query += ` GROUP BY 1 ORDER BY 2 DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate spend by category: %w", err)
	}
	defer rows.Close()

	var result []CategorySpend
	for rows.Next() {
		var s CategorySpend
		if err := rows.Scan(&s.Category, &s.Total); err != nil {
			return nil, fmt.Errorf("failed to scan category spend: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// SpendByMerchant sums debit amounts per merchant within the date window.
func (r *Repository) SpendByMerchant(ctx context.Context, userID *string, startDate, endDate *time.Time) ([]MerchantSpend, error) {
	query := `
		SELECT COALESCE(NULLIF(merchant_normalized, ''), 'unknown'), COALESCE(sum(amount), 0)
		FROM transactions
		WHERE user_id IS NOT DISTINCT FROM $1 AND direction = 'debit'`
	args := []any{userID}
	if startDate != nil {
		args = append(args, *startDate)
		query += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
	}
	if endDate != nil {
		args = append(args, *endDate)
		query += fmt.Sprintf(" AND transaction_date <= $%d", len(args))
	}
	query += ` GROUP BY 1 ORDER BY 2 DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate spend by merchant: %w", err)
	}
	defer rows.Close()

	var result []MerchantSpend
	for rows.Next() {
		var s MerchantSpend
		if err := rows.Scan(&s.Merchant, &s.Total); err != nil {
			return nil, fmt.Errorf("failed to scan merchant spend: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
