package reviews

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spendlens/spendlens/internal/domain/dedupe"
	"github.com/spendlens/spendlens/internal/domain/transactions"
	"github.com/spendlens/spendlens/pkg/metrics"
)

// TransactionStore is the slice of the ledger a resolution needs: probing
// committed fingerprints when minting a collision-free replacement.
type TransactionStore interface {
	FingerprintExists(ctx context.Context, fingerprint string) (bool, error)
}

// Resolution guard errors, mapped to client errors by the handler.
var (
	ErrNotPending      = errors.New("duplicate review is not pending")
	ErrUnknownAction   = errors.New("unsupported action for duplicate review resolution")
	ErrUnknownStatus   = errors.New("unsupported duplicate review status")
	ErrConfirmRequired = errors.New("bulk resolve requires confirm=true")
	ErrBatchTooLarge   = fmt.Errorf("cannot resolve more than %d reviews in one request", BulkResolveMax)
	ErrCountMismatch   = errors.New("expected_pending_count mismatch, refresh the queue and retry with the currently shown record count")
)

// Service implements review queue operations.
type Service struct {
	repo   *Repository
	ledger TransactionStore
	logger *slog.Logger
}

// NewService creates a new reviews service
func NewService(repo *Repository, ledger TransactionStore, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: ledger, logger: logger}
}

// List returns reviews matching the filter.
func (s *Service) List(ctx context.Context, userID *string, filter ListFilter) ([]*Review, error) {
	if filter.Limit <= 0 || filter.Limit > 2000 {
		filter.Limit = 200
	}
	if filter.Status != "" {
		status, err := normalizeStatus(filter.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	return s.repo.List(ctx, userID, filter)
}

// UpdateStatus annotates a review without resolving it: the row stays in the
// queue, only its status and note change.
func (s *Service) UpdateStatus(ctx context.Context, userID *string, id uuid.UUID, status string, note *string) (*Review, error) {
	review, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	normalized, err := normalizeStatus(status)
	if err != nil {
		return nil, err
	}
	if note != nil {
		trimmed := strings.TrimSpace(*note)
		if trimmed == "" {
			note = nil
		} else {
			note = &trimmed
		}
	}
	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, review.ID, normalized, note, now); err != nil {
		return nil, err
	}
	review.Status = normalized
	review.ReviewNote = note
	review.ReviewedAt = &now
	return review, nil
}

// Resolve applies one action to a pending review.
func (s *Service) Resolve(ctx context.Context, userID *string, id uuid.UUID, action string) (*ResolveResult, error) {
	review, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if review.Status != StatusPending {
		return nil, ErrNotPending
	}

	action = strings.ToLower(strings.TrimSpace(action))
	createdID, err := s.applyAction(ctx, review, action)
	if err != nil {
		return nil, err
	}

	result := &ResolveResult{
		Action:          action,
		Status:          "deleted",
		DeletedReviewID: review.ID,
	}
	if createdID != nil {
		result.Status = "created_transaction_and_deleted_review"
		result.CreatedTransactionID = createdID
	}
	return result, nil
}

// BulkResolveInput carries a bulk resolution request.
type BulkResolveInput struct {
	ReviewIDs            []uuid.UUID
	Action               string
	Confirm              bool
	ExpectedPendingCount int
}

// BulkResolve applies one action across a set of reviews. The caller must
// confirm explicitly and state how many reviews it expects to touch; a
// mismatch with the supplied id count means the caller is acting on a stale
// view and the whole request is rejected before any row is changed. Rows that
// are missing or no longer pending are skipped and counted.
func (s *Service) BulkResolve(ctx context.Context, userID *string, input BulkResolveInput) (*BulkResolveResult, error) {
	if !input.Confirm {
		return nil, ErrConfirmRequired
	}

	ids := dedupeIDs(input.ReviewIDs)
	if len(ids) > BulkResolveMax {
		return nil, ErrBatchTooLarge
	}
	if input.ExpectedPendingCount != len(ids) {
		return nil, ErrCountMismatch
	}

	action := strings.ToLower(strings.TrimSpace(input.Action))
	if action != ActionMarkDuplicate && action != ActionNotDuplicate {
		return nil, ErrUnknownAction
	}

	rows, err := s.repo.GetManyByIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	result := &BulkResolveResult{Action: action, RequestedCount: len(ids)}
	for _, id := range ids {
		review, ok := rows[id]
		if !ok {
			result.SkippedMissingCount++
			continue
		}
		if review.Status != StatusPending {
			result.SkippedNonPendingCount++
			continue
		}

		createdID, err := s.applyAction(ctx, review, action)
		if err != nil {
			return nil, err
		}
		result.ProcessedCount++
		result.DeletedReviewsCount++
		if createdID != nil {
			result.CreatedTransactionsCount++
		}
	}

	s.logger.Info("bulk review resolution finished",
		slog.String("action", action),
		slog.Int("requested", result.RequestedCount),
		slog.Int("processed", result.ProcessedCount),
		slog.Int("skipped_missing", result.SkippedMissingCount),
		slog.Int("skipped_non_pending", result.SkippedNonPendingCount))
	return result, nil
}

// CountPending returns the number of pending reviews in scope.
func (s *Service) CountPending(ctx context.Context, userID *string) (int, error) {
	return s.repo.CountByStatus(ctx, userID, StatusPending)
}

// applyAction deletes the review and, for not_duplicate, materializes a
// transaction from the staged data under a collision-free fingerprint. The
// not_duplicate path runs in one database transaction: if any step fails the
// review stays pending with no committed side effects, so a retry cannot
// double-materialize the row.
func (s *Service) applyAction(ctx context.Context, review *Review, action string) (*uuid.UUID, error) {
	switch action {
	case ActionMarkDuplicate:
		if err := s.repo.Delete(ctx, review.ID); err != nil {
			return nil, err
		}
		metrics.ReviewsResolved.WithLabelValues(ActionMarkDuplicate).Inc()
		return nil, nil

	case ActionNotDuplicate:
		fingerprint, err := s.ensureUniqueFingerprint(ctx, review.DedupeFingerprint, review.ID)
		if err != nil {
			return nil, err
		}

		res, err := s.repo.BeginResolution(ctx)
		if err != nil {
			return nil, err
		}
		defer res.Rollback(ctx)

		txn := &transactions.Transaction{
			UserID:             review.UserID,
			SourceImportID:     &review.SourceImportID,
			TransactionDate:    review.TransactionDate,
			DescriptionRaw:     review.DescriptionRaw,
			MerchantNormalized: review.MerchantNormalized,
			Amount:             review.Amount,
			Currency:           review.Currency,
			Direction:          review.Direction,
			Category:           review.Category,
			CategoryConfidence: review.CategoryConfidence,
			DedupeFingerprint:  fingerprint,
		}
		if err := res.InsertTransaction(ctx, txn); err != nil {
			return nil, err
		}
		if err := res.IncrementProcessedRows(ctx, review.SourceImportID); err != nil {
			return nil, err
		}
		if err := res.DeleteReview(ctx, review.ID); err != nil {
			return nil, err
		}
		if err := res.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit review resolution: %w", err)
		}
		metrics.ReviewsResolved.WithLabelValues(ActionNotDuplicate).Inc()
		return &txn.ID, nil

	default:
		return nil, ErrUnknownAction
	}
}

// ensureUniqueFingerprint rehashes the staged fingerprint until it no longer
// collides with any committed transaction.
func (s *Service) ensureUniqueFingerprint(ctx context.Context, base string, reviewID uuid.UUID) (string, error) {
	candidate := base
	for attempt := 0; ; attempt++ {
		exists, err := s.ledger.FingerprintExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = dedupe.Disambiguate(base, reviewID.String(), attempt)
	}
}

func normalizeStatus(value string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case StatusPending, StatusConfirmedDuplicate, StatusIgnored:
		return normalized, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
