// Package dedupe derives the content fingerprints used to detect duplicate
// transactions.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NormalizeMerchant lower-cases a merchant name and collapses internal
// whitespace. An empty result becomes the literal "unknown".
func NormalizeMerchant(name string) string {
	cleaned := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}

// Fingerprint computes the stable content hash identifying a transaction for
// dedup purposes. Equal inputs always hash equally; the merchant component is
// case- and whitespace-insensitive, and the amount contributes its absolute
// value at two decimal places.
func Fingerprint(txnDate *time.Time, merchant string, amount decimal.Decimal, direction, userScope string) string {
	datePart := ""
	if txnDate != nil {
		datePart = txnDate.Format("2006-01-02")
	}
	raw := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(userScope)),
		datePart,
		NormalizeMerchant(merchant),
		amount.Abs().StringFixed(2),
		strings.ToLower(strings.TrimSpace(direction)),
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Disambiguate derives the attempt-th fallback fingerprint for a staged row
// that a reviewer approved as not-a-duplicate. Callers rehash with increasing
// attempts until the result is unique in scope.
func Disambiguate(baseFingerprint, reviewID string, attempt int) string {
	raw := fmt.Sprintf("%s|approved|%s|%d", baseFingerprint, reviewID, attempt)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
