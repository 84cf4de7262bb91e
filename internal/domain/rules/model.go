// Package rules implements the classification rule engine: an ordered,
// prioritized list of pattern rules evaluated against normalized transaction
// text.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed enumeration of rule kinds. Each kind carries its own
// match predicate; evaluation never dispatches on raw strings.
type Kind uint8

const (
	KindSourceCategoryContains Kind = iota + 1
	KindMerchantExact
	KindMerchantContains
	KindDescriptionContains
	KindTextContains
)

var kindNames = map[Kind]string{
	KindSourceCategoryContains: "source_category_contains",
	KindMerchantExact:          "merchant_exact",
	KindMerchantContains:       "merchant_contains",
	KindDescriptionContains:    "description_contains",
	KindTextContains:           "text_contains",
}

// ParseKind validates and converts a stored rule type string.
func ParseKind(value string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for kind, name := range kindNames {
		if name == normalized {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unsupported rule_type %q (allowed: %s)", value, strings.Join(KindNames(), ", "))
}

// KindNames returns the allowed rule type names in a stable order.
func KindNames() []string {
	return []string{
		"source_category_contains",
		"merchant_exact",
		"merchant_contains",
		"description_contains",
		"text_contains",
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// matchInput carries the already-normalized text fields a predicate sees.
type matchInput struct {
	description    string
	merchant       string
	sourceCategory string
	combined       string
}

// matches is the kind's predicate over normalized input. An unknown kind
// never matches.
func (k Kind) matches(pattern string, in matchInput) bool {
	switch k {
	case KindSourceCategoryContains:
		return strings.Contains(in.sourceCategory, pattern)
	case KindMerchantExact:
		return in.merchant == pattern
	case KindMerchantContains:
		return strings.Contains(in.merchant, pattern)
	case KindDescriptionContains:
		return strings.Contains(in.description, pattern)
	case KindTextContains:
		return strings.Contains(in.combined, pattern)
	}
	return false
}

// Rule is one stored classification rule.
type Rule struct {
	ID         uuid.UUID
	Kind       Kind
	Pattern    string
	Category   string
	Confidence float64
	Priority   int
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NormalizeText lower-cases a value and collapses internal whitespace. It is
// applied uniformly to rule patterns and to the text rules match against.
func NormalizeText(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}
