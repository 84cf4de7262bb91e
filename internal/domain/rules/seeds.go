package rules

// defaultSeeds is the built-in starter rule set used when the rule table is
// empty and no config file is present. Priorities leave gaps so operators can
// slot custom rules between them.
var defaultSeeds = []ConfigEntry{
	{RuleType: "merchant_contains", Pattern: "uber eats", Category: "eating_out", Confidence: 0.9, Priority: 10, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "doordash", Category: "eating_out", Confidence: 0.9, Priority: 10, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "uber", Category: "transportation", Confidence: 0.85, Priority: 20, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "lyft", Category: "transportation", Confidence: 0.85, Priority: 20, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "patel brothers", Category: "groceries_indian", Confidence: 0.95, Priority: 30, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "india bazaar", Category: "groceries_indian", Confidence: 0.9, Priority: 30, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "trader joe", Category: "groceries_other", Confidence: 0.9, Priority: 40, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "whole foods", Category: "groceries_other", Confidence: 0.9, Priority: 40, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "costco", Category: "groceries_other", Confidence: 0.8, Priority: 40, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "netflix", Category: "subscriptions", Confidence: 0.95, Priority: 50, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "spotify", Category: "subscriptions", Confidence: 0.95, Priority: 50, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "amazon prime", Category: "subscriptions", Confidence: 0.9, Priority: 50, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "amazon", Category: "merchandise_shopping", Confidence: 0.7, Priority: 60, IsActive: true},
	{RuleType: "merchant_contains", Pattern: "target", Category: "merchandise_shopping", Confidence: 0.7, Priority: 60, IsActive: true},
	{RuleType: "description_contains", Pattern: "airlines", Category: "travel", Confidence: 0.85, Priority: 70, IsActive: true},
	{RuleType: "description_contains", Pattern: "marriott", Category: "travel", Confidence: 0.85, Priority: 70, IsActive: true},
	{RuleType: "description_contains", Pattern: "electric", Category: "utilities", Confidence: 0.7, Priority: 80, IsActive: true},
	{RuleType: "description_contains", Pattern: "internet", Category: "utilities", Confidence: 0.7, Priority: 80, IsActive: true},
	{RuleType: "description_contains", Pattern: "pharmacy", Category: "healthcare", Confidence: 0.8, Priority: 90, IsActive: true},
	{RuleType: "text_contains", Pattern: "rent", Category: "rent_or_mortgage", Confidence: 0.75, Priority: 100, IsActive: true},
	{RuleType: "text_contains", Pattern: "insurance", Category: "insurance", Confidence: 0.8, Priority: 100, IsActive: true},
	{RuleType: "source_category_contains", Pattern: "restaurants", Category: "eating_out", Confidence: 0.7, Priority: 110, IsActive: true},
	{RuleType: "source_category_contains", Pattern: "gas", Category: "transportation", Confidence: 0.7, Priority: 110, IsActive: true},
	{RuleType: "text_contains", Pattern: "transfer", Category: "transfers", Confidence: 0.7, Priority: 120, IsActive: true},
}
