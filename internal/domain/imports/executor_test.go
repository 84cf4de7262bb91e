package imports

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendlens/spendlens/internal/domain/reviews"
	"github.com/spendlens/spendlens/internal/domain/rules"
	"github.com/spendlens/spendlens/internal/domain/transactions"
)

// fakeExecStore is an in-memory ExecStore. Batches buffer writes and only
// publish them to the store on Commit, matching the transactional visibility
// the executor relies on.
type fakeExecStore struct {
	record  *StatementImport
	content string

	claimErr error

	committed []*transactions.Transaction
	reviews   []*reviews.Review
	progress  [][2]int

	commits      int
	rollbacks    int
	completedAt  *[2]int
	failedReason *string
}

func (s *fakeExecStore) ClaimImport(_ context.Context, _ uuid.UUID) (*StatementImport, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	s.record.Status = StatusProcessing
	return s.record, nil
}

func (s *fakeExecStore) GetUploadedFileContent(_ context.Context, _ uuid.UUID) (string, error) {
	return s.content, nil
}

func (s *fakeExecStore) MarkCompleted(_ context.Context, _ uuid.UUID, totalRows, processedRows int) error {
	s.completedAt = &[2]int{totalRows, processedRows}
	return nil
}

func (s *fakeExecStore) MarkFailed(_ context.Context, _ uuid.UUID, reason string) error {
	s.failedReason = &reason
	return nil
}

func (s *fakeExecStore) BeginBatch(_ context.Context) (Batch, error) {
	return &fakeBatch{store: s}, nil
}

type fakeBatch struct {
	store       *fakeExecStore
	pendingTxns []*transactions.Transaction
	pendingRevs []*reviews.Review
	pendingProg [][2]int
}

func (b *fakeBatch) visibleTransactions() []*transactions.Transaction {
	all := make([]*transactions.Transaction, 0, len(b.store.committed)+len(b.pendingTxns))
	all = append(all, b.store.committed...)
	all = append(all, b.pendingTxns...)
	return all
}

func (b *fakeBatch) FindTransactionIDByFingerprint(_ context.Context, _ *string, fingerprint string) (uuid.UUID, error) {
	for _, t := range b.visibleTransactions() {
		if t.DedupeFingerprint == fingerprint {
			return t.ID, nil
		}
	}
	return uuid.Nil, nil
}

func (b *fakeBatch) FindTransactionIDByNaturalKey(_ context.Context, _ *string, date *time.Time, merchant string, amount decimal.Decimal, direction string) (uuid.UUID, error) {
	for _, t := range b.visibleTransactions() {
		if !sameDate(t.TransactionDate, date) {
			continue
		}
		if !strings.EqualFold(t.MerchantNormalized, merchant) {
			continue
		}
		if !t.Amount.Round(2).Equal(amount.Round(2)) {
			continue
		}
		if t.Direction != direction {
			continue
		}
		return t.ID, nil
	}
	return uuid.Nil, nil
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (b *fakeBatch) InsertTransaction(_ context.Context, t *transactions.Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	b.pendingTxns = append(b.pendingTxns, t)
	return nil
}

func (b *fakeBatch) InsertReview(_ context.Context, r *reviews.Review) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	b.pendingRevs = append(b.pendingRevs, r)
	return nil
}

func (b *fakeBatch) UpdateProgress(_ context.Context, _ uuid.UUID, totalRows, processedRows int) error {
	b.pendingProg = append(b.pendingProg, [2]int{totalRows, processedRows})
	return nil
}

func (b *fakeBatch) Commit(_ context.Context) error {
	b.store.committed = append(b.store.committed, b.pendingTxns...)
	b.store.reviews = append(b.store.reviews, b.pendingRevs...)
	b.store.progress = append(b.store.progress, b.pendingProg...)
	b.store.commits++
	b.pendingTxns, b.pendingRevs, b.pendingProg = nil, nil, nil
	return nil
}

func (b *fakeBatch) Rollback(_ context.Context) error {
	b.store.rollbacks++
	b.pendingTxns, b.pendingRevs, b.pendingProg = nil, nil, nil
	return nil
}

type staticSnapshot struct {
	snapshot rules.Snapshot
}

func (s staticSnapshot) LoadActiveSnapshot(_ context.Context) (rules.Snapshot, error) {
	return s.snapshot, nil
}

func testSnapshot() rules.Snapshot {
	return rules.NewSnapshot([]rules.Rule{
		{
			Kind:       rules.KindMerchantContains,
			Pattern:    "starbucks",
			Category:   "eating_out",
			Confidence: 0.9,
			Priority:   10,
			IsActive:   true,
		},
	})
}

func newExecutorFixture(t *testing.T, content string) (*Executor, *fakeExecStore) {
	t.Helper()
	store := &fakeExecStore{
		record: &StatementImport{
			ID:       uuid.New(),
			Filename: "statement.csv",
			Status:   StatusQueued,
		},
		content: content,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewExecutor(store, staticSnapshot{snapshot: testSnapshot()}, logger), store
}

const freshStatement = "date,description,amount\n" +
	"2024-01-15,STARBUCKS STORE 123,-4.50\n" +
	"2024-01-16,PAYROLL ACME CORP,2500.00\n" +
	"2024-01-17,NETFLIX.COM,-15.99\n"

func TestProcessImportCommitsFreshRows(t *testing.T) {
	executor, store := newExecutorFixture(t, freshStatement)

	err := executor.ProcessImport(context.Background(), store.record.ID)
	require.NoError(t, err)

	require.Len(t, store.committed, 3)
	assert.Empty(t, store.reviews)
	require.NotNil(t, store.completedAt)
	assert.Equal(t, [2]int{3, 3}, *store.completedAt)

	first := store.committed[0]
	assert.Equal(t, "eating_out", first.Category, "merchant rule must classify the row")
	assert.InDelta(t, 0.9, first.CategoryConfidence, 1e-9)
	assert.Equal(t, "debit", first.Direction)
	assert.Len(t, first.DedupeFingerprint, 64)

	second := store.committed[1]
	assert.Equal(t, rules.FallbackCategory, second.Category)
	assert.Equal(t, "credit", second.Direction)
}

func TestProcessImportStagesCrossImportFingerprintMatches(t *testing.T) {
	executor, store := newExecutorFixture(t, freshStatement)
	require.NoError(t, executor.ProcessImport(context.Background(), store.record.ID))
	existing := store.committed

	// Second import of the same file sees every row as already present.
	secondExecutor, secondStore := newExecutorFixture(t, freshStatement)
	secondStore.committed = existing

	require.NoError(t, secondExecutor.ProcessImport(context.Background(), secondStore.record.ID))

	assert.Len(t, secondStore.committed, 3, "no new transactions")
	require.Len(t, secondStore.reviews, 3)
	require.NotNil(t, secondStore.completedAt)
	assert.Equal(t, [2]int{3, 0}, *secondStore.completedAt)

	for _, review := range secondStore.reviews {
		assert.Equal(t, reviews.ScopeExistingData, review.DuplicateScope)
		assert.Equal(t, reviews.ReasonFingerprintMatch, review.DuplicateReason)
		assert.Equal(t, reviews.StatusPending, review.Status)
		require.NotNil(t, review.MatchedTransactionID)
	}
	assert.Equal(t, existing[0].ID, *secondStore.reviews[0].MatchedTransactionID)
}

func TestProcessImportStagesInFileDuplicates(t *testing.T) {
	content := "date,description,amount\n" +
		"2024-01-15,STARBUCKS STORE 123,-4.50\n" +
		"2024-01-15,STARBUCKS STORE 123,-4.50\n"
	executor, store := newExecutorFixture(t, content)

	require.NoError(t, executor.ProcessImport(context.Background(), store.record.ID))

	require.Len(t, store.committed, 1)
	require.Len(t, store.reviews, 1)

	review := store.reviews[0]
	assert.Equal(t, reviews.ScopeSameImport, review.DuplicateScope)
	assert.Equal(t, reviews.ReasonFingerprintMatch, review.DuplicateReason)
	assert.Nil(t, review.MatchedTransactionID, "in-file duplicates have no committed match yet")
	assert.Equal(t, store.record.ID, review.SourceImportID)
	assert.Equal(t, 2, review.SourceRowNumber)
}

func TestProcessImportStagesNaturalKeyMatches(t *testing.T) {
	executor, store := newExecutorFixture(t, "date,description,amount\n2024-01-15,STARBUCKS STORE 123,-4.50\n")

	// An existing row with the same date/merchant/amount/direction but a
	// disambiguated fingerprint, as left behind by a resolved review.
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	existing := &transactions.Transaction{
		ID:                 uuid.New(),
		TransactionDate:    &date,
		MerchantNormalized: "STARBUCKS STORE 123",
		Amount:             decimal.RequireFromString("4.50"),
		Direction:          "debit",
		DedupeFingerprint:  strings.Repeat("ab", 32),
	}
	store.committed = []*transactions.Transaction{existing}

	require.NoError(t, executor.ProcessImport(context.Background(), store.record.ID))

	assert.Len(t, store.committed, 1, "no new transaction")
	require.Len(t, store.reviews, 1)
	review := store.reviews[0]
	assert.Equal(t, reviews.ScopeExistingData, review.DuplicateScope)
	assert.Equal(t, reviews.ReasonNaturalKeyMatch, review.DuplicateReason)
	require.NotNil(t, review.MatchedTransactionID)
	assert.Equal(t, existing.ID, *review.MatchedTransactionID)
}

func TestProcessImportSkipsUnusableRows(t *testing.T) {
	content := "date,description,amount\n" +
		"2024-01-15,No amount at all,\n" +
		"2024-01-16,PAYROLL,100.00\n"
	executor, store := newExecutorFixture(t, content)

	require.NoError(t, executor.ProcessImport(context.Background(), store.record.ID))

	assert.Len(t, store.committed, 1)
	assert.Empty(t, store.reviews)
	require.NotNil(t, store.completedAt)
	assert.Equal(t, [2]int{2, 1}, *store.completedAt, "skipped rows count toward total only")
}

func TestProcessImportFailsOnAmbiguousDebitCredit(t *testing.T) {
	content := "date,description,debit,credit\n" +
		"2024-01-15,GOOD ROW,4.50,\n" +
		"2024-01-16,BAD ROW,10.00,5.00\n"
	executor, store := newExecutorFixture(t, content)

	err := executor.ProcessImport(context.Background(), store.record.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid row format")

	require.NotNil(t, store.failedReason)
	assert.Contains(t, *store.failedReason, "invalid row format")
	assert.Nil(t, store.completedAt)
	assert.Empty(t, store.committed, "open batch must be rolled back")
	assert.Equal(t, 1, store.rollbacks)
}

func TestProcessImportMissingImportIsNoOp(t *testing.T) {
	executor, store := newExecutorFixture(t, freshStatement)
	store.claimErr = sql.ErrNoRows

	err := executor.ProcessImport(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, store.completedAt)
	assert.Nil(t, store.failedReason)
}

func TestProcessImportCommitsInBatches(t *testing.T) {
	faker := gofakeit.New(7)
	var sb strings.Builder
	sb.WriteString("date,description,amount\n")
	for i := 0; i < 150; i++ {
		merchant := strings.ReplaceAll(faker.Company(), ",", " ")
		// Unique cent amounts keep every fingerprint distinct.
		fmt.Fprintf(&sb, "2024-02-%02d,%s,-%d.%02d\n", i%28+1, merchant, i+1, i%100)
	}

	executor, store := newExecutorFixture(t, sb.String())
	require.NoError(t, executor.ProcessImport(context.Background(), store.record.ID))

	assert.Len(t, store.committed, 150)
	assert.Equal(t, 2, store.commits, "one commit at row 100, one final")
	require.NotEmpty(t, store.progress)
	assert.Equal(t, [2]int{100, 100}, store.progress[0])
	assert.Equal(t, [2]int{150, 150}, store.progress[len(store.progress)-1])
	require.NotNil(t, store.completedAt)
	assert.Equal(t, [2]int{150, 150}, *store.completedAt)
}
