package rules

import "sort"

const (
	// FallbackCategory and FallbackConfidence form the sentinel result
	// meaning "no rule matched". Recategorization relies on this exact pair
	// to avoid downgrading transactions that already have a real category.
	FallbackCategory   = "uncategorized"
	FallbackConfidence = 0.5
)

// Snapshot is an immutable, evaluation-ordered view of the active rules.
// One snapshot is taken per ingestion run so rule edits mid-run do not affect
// in-flight rows.
type Snapshot struct {
	rules []Rule
}

// NewSnapshot copies the given rules and orders them by priority ascending,
// creation time as the tie-break. Inactive rules and rules whose pattern
// normalizes to empty are excluded up front.
func NewSnapshot(all []Rule) Snapshot {
	rules := make([]Rule, 0, len(all))
	for _, r := range all {
		if !r.IsActive {
			continue
		}
		r.Pattern = NormalizeText(r.Pattern)
		if r.Pattern == "" {
			continue
		}
		rules = append(rules, r)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return Snapshot{rules: rules}
}

// Len returns the number of evaluable rules in the snapshot.
func (s Snapshot) Len() int {
	return len(s.rules)
}

// Classify runs the ordered first-match scan and returns the matched rule's
// category and confidence, or the fallback sentinel when nothing matches.
func (s Snapshot) Classify(description, merchant, sourceCategory string) (string, float64) {
	in := matchInput{
		description:    NormalizeText(description),
		merchant:       NormalizeText(merchant),
		sourceCategory: NormalizeText(sourceCategory),
	}
	in.combined = joinNonEmpty(in.description, in.merchant)

	for _, rule := range s.rules {
		if rule.Kind.matches(rule.Pattern, in) {
			return rule.Category, rule.Confidence
		}
	}
	return FallbackCategory, FallbackConfidence
}

// IsFallback reports whether a (category, confidence) pair is exactly the
// unclassified sentinel.
func IsFallback(category string, confidence float64) bool {
	return category == FallbackCategory && abs(confidence-FallbackConfidence) < 1e-9
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
