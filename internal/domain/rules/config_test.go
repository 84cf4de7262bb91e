package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFileMissing(t *testing.T) {
	entries, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.NoError(t, err)
	assert.Nil(t, entries)
}

func TestLoadConfigFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"}`), 0o644))

	_, err := LoadConfigFile(path)
	assert.Error(t, err)
}

func TestLoadConfigFileNormalizesAndFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	raw := `[
		{"rule_type": " Merchant_Contains ", "pattern": " UBER ", "category": " Transportation ", "confidence": 0.85, "priority": 10, "is_active": true},
		{"rule_type": "text_contains", "pattern": "", "category": "transfers", "confidence": 0.7, "priority": 20, "is_active": true},
		{"rule_type": "", "pattern": "netflix", "category": "subscriptions", "confidence": 0.9, "priority": 5, "is_active": true}
	]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	entries, err := LoadConfigFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 1, "incomplete entries must be dropped")

	assert.Equal(t, "merchant_contains", entries[0].RuleType)
	assert.Equal(t, "uber", entries[0].Pattern)
	assert.Equal(t, "transportation", entries[0].Category)
	assert.True(t, bool(entries[0].IsActive))
}

func TestFlexBoolAcceptsStringEncodings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	raw := `[
		{"rule_type": "merchant_contains", "pattern": "a", "category": "c", "is_active": "yes"},
		{"rule_type": "merchant_contains", "pattern": "b", "category": "c", "is_active": "1"},
		{"rule_type": "merchant_contains", "pattern": "c", "category": "c", "is_active": "no"},
		{"rule_type": "merchant_contains", "pattern": "d", "category": "c", "is_active": false}
	]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	entries, err := LoadConfigFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.True(t, bool(entries[0].IsActive))
	assert.True(t, bool(entries[1].IsActive))
	assert.False(t, bool(entries[2].IsActive))
	assert.False(t, bool(entries[3].IsActive))
}

func TestSaveConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "rules.json")
	entries := []ConfigEntry{
		{RuleType: "merchant_exact", Pattern: "Starbucks", Category: "Eating_Out", Confidence: 0.9, Priority: 1, IsActive: true},
		{RuleType: "", Pattern: "dropped", Category: "x"},
	}

	require.NoError(t, SaveConfigFile(path, entries))

	loaded, err := LoadConfigFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "merchant_exact", loaded[0].RuleType)
	assert.Equal(t, "starbucks", loaded[0].Pattern)
	assert.Equal(t, "eating_out", loaded[0].Category)
	assert.InDelta(t, 0.9, loaded[0].Confidence, 1e-9)
	assert.Equal(t, 1, loaded[0].Priority)
}
