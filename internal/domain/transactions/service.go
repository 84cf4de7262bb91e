package transactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spendlens/spendlens/internal/domain/dedupe"
	"github.com/spendlens/spendlens/internal/domain/imports/parser"
	"github.com/spendlens/spendlens/internal/domain/rules"
)

// CategoryResolver validates category names, implemented by the categories
// domain.
type CategoryResolver interface {
	Resolve(ctx context.Context, name string, createIfMissing bool) (string, error)
}

// SnapshotLoader provides the current classification rule snapshot.
type SnapshotLoader interface {
	LoadActiveSnapshot(ctx context.Context) (rules.Snapshot, error)
}

// ManualImportStore manages the synthetic import record that houses manually
// entered transactions.
type ManualImportStore interface {
	EnsureManualImport(ctx context.Context, userID *string) (uuid.UUID, error)
	RecordManualEntry(ctx context.Context, importID uuid.UUID) error
}

// DuplicateError signals that an equivalent transaction already exists.
type DuplicateError struct {
	ExistingID uuid.UUID
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate transaction exists with same date, merchant, amount, and direction: %s", e.ExistingID)
}

// ErrNoActiveRules is returned by Recategorize when the rule table has no
// active rules to apply.
var ErrNoActiveRules = errors.New("no active classification rules found")

// Service implements ledger operations on top of the repository.
type Service struct {
	repo       *Repository
	categories CategoryResolver
	ruleSource SnapshotLoader
	imports    ManualImportStore
	logger     *slog.Logger
}

// NewService creates a new transactions service
func NewService(repo *Repository, categories CategoryResolver, ruleSource SnapshotLoader, imports ManualImportStore, logger *slog.Logger) *Service {
	return &Service{repo: repo, categories: categories, ruleSource: ruleSource, imports: imports, logger: logger}
}

// List returns the user's transactions.
func (s *Service) List(ctx context.Context, userID *string, filter ListFilter) ([]*Transaction, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, userID, filter)
}

// CreateManualInput carries the fields for an ad-hoc transaction entry.
type CreateManualInput struct {
	TransactionDate *time.Time
	DescriptionRaw  string
	Merchant        string
	Amount          decimal.Decimal
	Currency        string
	Direction       string
	Category        string
}

// CreateManual stores a manually entered transaction under the synthetic
// manual import bucket. The entry is checked against both the fingerprint
// and the natural key before committing; either collision is rejected.
func (s *Service) CreateManual(ctx context.Context, userID *string, input CreateManualInput) (*Transaction, error) {
	description := strings.TrimSpace(input.DescriptionRaw)
	if description == "" {
		return nil, errors.New("description is required")
	}
	if input.Direction != parser.DirectionDebit && input.Direction != parser.DirectionCredit {
		return nil, fmt.Errorf("direction must be %q or %q", parser.DirectionDebit, parser.DirectionCredit)
	}
	if !input.Amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = parser.DefaultCurrency
	}
	if money.GetCurrency(currency) == nil {
		return nil, fmt.Errorf("unknown currency code %q", currency)
	}

	category, err := s.categories.Resolve(ctx, input.Category, false)
	if err != nil {
		return nil, err
	}

	merchant := strings.TrimSpace(input.Merchant)
	if merchant == "" {
		merchant = parser.MerchantFromDescription(description)
	}

	scope := ""
	if userID != nil {
		scope = *userID
	}
	fingerprint := dedupe.Fingerprint(input.TransactionDate, merchant, input.Amount, input.Direction, scope)

	if existing, err := s.repo.FindIDByFingerprint(ctx, userID, fingerprint); err != nil {
		return nil, err
	} else if existing != uuid.Nil {
		return nil, &DuplicateError{ExistingID: existing}
	}
	if existing, err := s.repo.FindIDByNaturalKey(ctx, userID, input.TransactionDate, merchant, input.Amount, input.Direction); err != nil {
		return nil, err
	} else if existing != uuid.Nil {
		return nil, &DuplicateError{ExistingID: existing}
	}

	manualImportID, err := s.imports.EnsureManualImport(ctx, userID)
	if err != nil {
		return nil, err
	}

	txn := &Transaction{
		UserID:             userID,
		SourceImportID:     &manualImportID,
		TransactionDate:    input.TransactionDate,
		DescriptionRaw:     description,
		MerchantNormalized: merchant,
		Amount:             input.Amount,
		Currency:           currency,
		Direction:          input.Direction,
		Category:           category,
		CategoryConfidence: 1.0,
		DedupeFingerprint:  fingerprint,
	}
	if err := s.repo.Insert(ctx, txn); err != nil {
		return nil, err
	}
	if err := s.imports.RecordManualEntry(ctx, manualImportID); err != nil {
		s.logger.Warn("failed to bump manual import counters", slog.Any("error", err))
	}
	return txn, nil
}

// UpdateCategory reassigns a transaction's category. A manual assignment is
// authoritative, so confidence is pinned to 1.0.
func (s *Service) UpdateCategory(ctx context.Context, userID *string, id uuid.UUID, category string) (*Transaction, error) {
	txn, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	normalized, err := s.categories.Resolve(ctx, category, false)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCategory(ctx, txn.ID, normalized, 1.0); err != nil {
		return nil, err
	}
	txn.Category = normalized
	txn.CategoryConfidence = 1.0
	return txn, nil
}

// RecategorizeInput narrows the rows a re-classification pass scans.
type RecategorizeInput struct {
	StartDate           *time.Time
	EndDate             *time.Time
	Category            string
	IncludeUserAssigned bool
}

// Recategorize re-runs the rule engine over the selected rows. Rows with a
// user-pinned category (confidence >= 1.0) are skipped unless explicitly
// included, and a fallback "uncategorized" outcome never downgrades a row
// that already has a category.
func (s *Service) Recategorize(ctx context.Context, userID *string, input RecategorizeInput) (*RecategorizeResult, error) {
	snapshot, err := s.ruleSource.LoadActiveSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot.Len() == 0 {
		return nil, ErrNoActiveRules
	}

	rows, err := s.repo.ListForRecategorize(ctx, userID, input.StartDate, input.EndDate, input.Category)
	if err != nil {
		return nil, err
	}

	result := &RecategorizeResult{ScannedRows: len(rows)}
	for _, row := range rows {
		if !input.IncludeUserAssigned && row.CategoryConfidence >= 1.0 {
			result.SkippedUserRows++
			continue
		}

		newCategory, newConfidence := snapshot.Classify(row.DescriptionRaw, row.MerchantNormalized, "")

		if row.Category != rules.FallbackCategory && rules.IsFallback(newCategory, newConfidence) {
			result.UnchangedRows++
			continue
		}
		if row.Category == newCategory && math.Abs(row.CategoryConfidence-newConfidence) < 1e-9 {
			result.UnchangedRows++
			continue
		}

		if err := s.repo.UpdateCategory(ctx, row.ID, newCategory, newConfidence); err != nil {
			return nil, err
		}
		result.UpdatedRows++
	}

	s.logger.Info("recategorize pass finished",
		slog.Int("scanned", result.ScannedRows),
		slog.Int("updated", result.UpdatedRows),
		slog.Int("skipped_user_assigned", result.SkippedUserRows))
	return result, nil
}

// SpendByCategory returns debit totals grouped by category.
func (s *Service) SpendByCategory(ctx context.Context, userID *string, startDate, endDate *time.Time) ([]CategorySpend, error) {
	return s.repo.SpendByCategory(ctx, userID, startDate, endDate)
}

// SpendByMerchant returns debit totals grouped by merchant.
func (s *Service) SpendByMerchant(ctx context.Context, userID *string, startDate, endDate *time.Time) ([]MerchantSpend, error) {
	return s.repo.SpendByMerchant(ctx, userID, startDate, endDate)
}
