// Package reviews manages the duplicate review queue: transaction candidates
// that collided with existing data during an import and wait for a human
// decision instead of being committed.
package reviews

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Review statuses.
const (
	StatusPending            = "pending"
	StatusConfirmedDuplicate = "confirmed_duplicate"
	StatusIgnored            = "ignored"
)

// Collision scopes: where the conflicting row lives.
const (
	ScopeSameImport   = "same_import"
	ScopeExistingData = "existing_data"
)

// Collision reasons: which check fired.
const (
	ReasonFingerprintMatch = "fingerprint_match"
	ReasonNaturalKeyMatch  = "natural_key_match"
)

// Resolution actions.
const (
	ActionMarkDuplicate = "mark_duplicate"
	ActionNotDuplicate  = "not_duplicate"
)

// BulkResolveMax caps the number of reviews one bulk request may touch.
const BulkResolveMax = 500

// Review is one staged candidate. It carries the full transaction payload so
// a not_duplicate resolution can materialize the row without re-reading the
// source file.
type Review struct {
	ID                   uuid.UUID       `json:"id"`
	UserID               *string         `json:"user_id,omitempty"`
	SourceImportID       uuid.UUID       `json:"source_import_id"`
	SourceRowNumber      int             `json:"source_row_number"`
	DuplicateScope       string          `json:"duplicate_scope"`
	DuplicateReason      string          `json:"duplicate_reason"`
	MatchedTransactionID *uuid.UUID      `json:"matched_transaction_id,omitempty"`
	TransactionDate      *time.Time      `json:"transaction_date,omitempty"`
	DescriptionRaw       string          `json:"description_raw"`
	MerchantNormalized   string          `json:"merchant_normalized"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Direction            string          `json:"direction"`
	Category             string          `json:"category"`
	CategoryConfidence   float64         `json:"category_confidence"`
	DedupeFingerprint    string          `json:"dedupe_fingerprint"`
	Status               string          `json:"status"`
	ReviewNote           *string         `json:"review_note,omitempty"`
	ReviewedAt           *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// ListFilter narrows review listings. Zero values are ignored.
type ListFilter struct {
	ImportID *uuid.UUID
	Status   string
	Limit    int
	Offset   int
}

// ResolveResult reports the outcome of a single resolution.
type ResolveResult struct {
	Action               string     `json:"action"`
	Status               string     `json:"status"`
	DeletedReviewID      uuid.UUID  `json:"deleted_review_id"`
	CreatedTransactionID *uuid.UUID `json:"created_transaction_id,omitempty"`
}

// BulkResolveResult reports per-disposition counts for a bulk resolution.
// Missing and non-pending rows are counted, never treated as errors.
type BulkResolveResult struct {
	Action                   string `json:"action"`
	RequestedCount           int    `json:"requested_count"`
	ProcessedCount           int    `json:"processed_count"`
	DeletedReviewsCount      int    `json:"deleted_reviews_count"`
	CreatedTransactionsCount int    `json:"created_transactions_count"`
	SkippedMissingCount      int    `json:"skipped_missing_count"`
	SkippedNonPendingCount   int    `json:"skipped_non_pending_count"`
}
