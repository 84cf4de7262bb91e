package reviews

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendlens/spendlens/internal/domain/dedupe"
)

type fakeLedger struct {
	fingerprints map[string]bool
}

func (f *fakeLedger) FingerprintExists(_ context.Context, fingerprint string) (bool, error) {
	return f.fingerprints[fingerprint], nil
}

func newTestService(ledger *fakeLedger) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(nil, ledger, logger)
}

func manyIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestBulkResolveGuards(t *testing.T) {
	service := newTestService(&fakeLedger{fingerprints: map[string]bool{}})
	ctx := context.Background()

	t.Run("requires explicit confirmation", func(t *testing.T) {
		_, err := service.BulkResolve(ctx, nil, BulkResolveInput{
			ReviewIDs:            manyIDs(1),
			Action:               ActionMarkDuplicate,
			ExpectedPendingCount: 1,
		})
		assert.ErrorIs(t, err, ErrConfirmRequired)
	})

	t.Run("rejects batches over the cap", func(t *testing.T) {
		ids := manyIDs(BulkResolveMax + 1)
		_, err := service.BulkResolve(ctx, nil, BulkResolveInput{
			ReviewIDs:            ids,
			Action:               ActionMarkDuplicate,
			Confirm:              true,
			ExpectedPendingCount: len(ids),
		})
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})

	t.Run("rejects stale expected counts", func(t *testing.T) {
		_, err := service.BulkResolve(ctx, nil, BulkResolveInput{
			ReviewIDs:            manyIDs(3),
			Action:               ActionMarkDuplicate,
			Confirm:              true,
			ExpectedPendingCount: 2,
		})
		assert.ErrorIs(t, err, ErrCountMismatch)
	})

	t.Run("duplicate ids collapse before the count check", func(t *testing.T) {
		id := uuid.New()
		_, err := service.BulkResolve(ctx, nil, BulkResolveInput{
			ReviewIDs:            []uuid.UUID{id, id},
			Action:               ActionMarkDuplicate,
			Confirm:              true,
			ExpectedPendingCount: 2,
		})
		assert.ErrorIs(t, err, ErrCountMismatch)
	})

	t.Run("rejects unknown actions before touching any row", func(t *testing.T) {
		_, err := service.BulkResolve(ctx, nil, BulkResolveInput{
			ReviewIDs:            manyIDs(2),
			Action:               "merge",
			Confirm:              true,
			ExpectedPendingCount: 2,
		})
		assert.ErrorIs(t, err, ErrUnknownAction)
	})
}

var reviewRowColumns = []string{
	"id", "user_id", "source_import_id", "source_row_number", "duplicate_scope",
	"duplicate_reason", "matched_transaction_id", "transaction_date", "description_raw",
	"merchant_normalized", "amount", "currency", "direction", "category", "category_confidence",
	"dedupe_fingerprint", "status", "review_note", "reviewed_at", "created_at",
}

func pendingReviewRow(id, importID uuid.UUID, fingerprint string) []any {
	return []any{
		id, (*string)(nil), importID, 2, ScopeExistingData,
		ReasonFingerprintMatch, (*uuid.UUID)(nil), (*time.Time)(nil), "STARBUCKS 123",
		"starbucks 123", decimal.RequireFromString("4.50"), "USD", "debit", "eating_out", 0.9,
		fingerprint, StatusPending, (*string)(nil), (*time.Time)(nil), time.Now(),
	}
}

// anyInsertArgs matches the 12 positional arguments of the transaction
// insert without constraining their values; pgxmock requires the argument
// count to be declared even when the values are irrelevant.
func anyInsertArgs() []any {
	args := make([]any, 12)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newResolveFixture(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(NewRepository(mock), &fakeLedger{fingerprints: map[string]bool{}}, logger)
	return service, mock
}

func TestResolveNotDuplicateCommitsInOneTransaction(t *testing.T) {
	service, mock := newResolveFixture(t)
	reviewID := uuid.New()
	importID := uuid.New()

	mock.ExpectQuery(`FROM duplicate_reviews WHERE id = \$1`).
		WithArgs(reviewID, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows(reviewRowColumns).
			AddRow(pendingReviewRow(reviewID, importID, "ff00")...))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(anyInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(`SET processed_rows = processed_rows + 1`)).
		WithArgs(importID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM duplicate_reviews`).
		WithArgs(reviewID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	result, err := service.Resolve(context.Background(), nil, reviewID, ActionNotDuplicate)
	require.NoError(t, err)
	assert.Equal(t, "created_transaction_and_deleted_review", result.Status)
	assert.NotNil(t, result.CreatedTransactionID)
	assert.Equal(t, reviewID, result.DeletedReviewID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveNotDuplicateRollsBackWhenDeleteFails(t *testing.T) {
	service, mock := newResolveFixture(t)
	reviewID := uuid.New()
	importID := uuid.New()

	mock.ExpectQuery(`FROM duplicate_reviews WHERE id = \$1`).
		WithArgs(reviewID, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows(reviewRowColumns).
			AddRow(pendingReviewRow(reviewID, importID, "ff00")...))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(anyInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(`SET processed_rows = processed_rows + 1`)).
		WithArgs(importID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM duplicate_reviews`).
		WithArgs(reviewID).
		WillReturnError(errors.New("bad connection"))
	mock.ExpectRollback()

	_, err := service.Resolve(context.Background(), nil, reviewID, ActionNotDuplicate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete duplicate review")
	assert.NoError(t, mock.ExpectationsWereMet(), "insert and counter bump roll back, nothing commits")
}

func TestEnsureUniqueFingerprint(t *testing.T) {
	base := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	reviewID := uuid.New()

	t.Run("free fingerprint is kept as-is", func(t *testing.T) {
		service := newTestService(&fakeLedger{fingerprints: map[string]bool{}})
		got, err := service.ensureUniqueFingerprint(context.Background(), base, reviewID)
		require.NoError(t, err)
		assert.Equal(t, base, got)
	})

	t.Run("collision rehashes with the review id", func(t *testing.T) {
		service := newTestService(&fakeLedger{fingerprints: map[string]bool{base: true}})
		got, err := service.ensureUniqueFingerprint(context.Background(), base, reviewID)
		require.NoError(t, err)
		assert.Equal(t, dedupe.Disambiguate(base, reviewID.String(), 0), got)
	})

	t.Run("repeated collisions advance the attempt counter", func(t *testing.T) {
		service := newTestService(&fakeLedger{fingerprints: map[string]bool{
			base: true,
			dedupe.Disambiguate(base, reviewID.String(), 0): true,
		}})
		got, err := service.ensureUniqueFingerprint(context.Background(), base, reviewID)
		require.NoError(t, err)
		assert.Equal(t, dedupe.Disambiguate(base, reviewID.String(), 1), got)
	})
}

func TestNormalizeStatus(t *testing.T) {
	for _, valid := range []string{StatusPending, StatusConfirmedDuplicate, StatusIgnored} {
		got, err := normalizeStatus("  " + valid + " ")
		require.NoError(t, err)
		assert.Equal(t, valid, got)
	}

	_, err := normalizeStatus("resolved")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestDedupeIDsPreservesOrder(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	got := dedupeIDs([]uuid.UUID{a, b, a, c, b})
	assert.Equal(t, []uuid.UUID{a, b, c}, got)
}
