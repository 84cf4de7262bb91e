// Package transactions manages the committed transaction ledger: listing,
// manual entry, category corrections, re-classification, and spend rollups.
package transactions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is one committed ledger row.
type Transaction struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             *string         `json:"user_id,omitempty"`
	SourceImportID     *uuid.UUID      `json:"source_import_id,omitempty"`
	TransactionDate    *time.Time      `json:"transaction_date,omitempty"`
	DescriptionRaw     string          `json:"description_raw"`
	MerchantNormalized string          `json:"merchant_normalized"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Direction          string          `json:"direction"`
	Category           string          `json:"category"`
	CategoryConfidence float64         `json:"category_confidence"`
	DedupeFingerprint  string          `json:"dedupe_fingerprint"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ListFilter narrows transaction listings. Nil fields are ignored.
type ListFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Category  string
	Limit     int
	Offset    int
}

// RecategorizeResult reports the outcome of a bulk re-classification pass.
type RecategorizeResult struct {
	ScannedRows     int `json:"scanned_rows"`
	UpdatedRows     int `json:"updated_rows"`
	UnchangedRows   int `json:"unchanged_rows"`
	SkippedUserRows int `json:"skipped_user_assigned_rows"`
}

// CategorySpend is a debit total grouped by category.
type CategorySpend struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// MerchantSpend is a debit total grouped by merchant.
type MerchantSpend struct {
	Merchant string          `json:"merchant"`
	Total    decimal.Decimal `json:"total"`
}
