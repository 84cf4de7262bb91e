package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigEntry is the flat-file representation of one rule. The file is an
// ordered JSON array and serves as a backup/versioning mechanism, not a
// runtime lookup path.
type ConfigEntry struct {
	RuleType   string   `json:"rule_type"`
	Pattern    string   `json:"pattern"`
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Priority   int      `json:"priority"`
	IsActive   flexBool `json:"is_active"`
}

// flexBool tolerates both boolean and string encodings ("true", "yes", "1")
// so hand-edited config files keep loading.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var asBool bool
	if err := json.Unmarshal(data, &asBool); err == nil {
		*b = flexBool(asBool)
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		switch strings.ToLower(strings.TrimSpace(asString)) {
		case "1", "true", "yes", "y":
			*b = true
		default:
			*b = false
		}
		return nil
	}
	return fmt.Errorf("is_active must be a boolean or string, got %s", string(data))
}

func normalizeEntry(e ConfigEntry) ConfigEntry {
	e.RuleType = strings.ToLower(strings.TrimSpace(e.RuleType))
	e.Pattern = strings.ToLower(strings.TrimSpace(e.Pattern))
	e.Category = strings.ToLower(strings.TrimSpace(e.Category))
	return e
}

func (e ConfigEntry) complete() bool {
	return e.RuleType != "" && e.Pattern != "" && e.Category != ""
}

// LoadConfigFile reads rule entries from the flat config file. A missing file
// yields no entries without error; malformed JSON is an error.
func LoadConfigFile(path string) ([]ConfigEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules config: %w", err)
	}

	var parsed []ConfigEntry
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("rules config must be a JSON array of rule objects: %w", err)
	}

	entries := make([]ConfigEntry, 0, len(parsed))
	for _, item := range parsed {
		normalized := normalizeEntry(item)
		if !normalized.complete() {
			continue
		}
		entries = append(entries, normalized)
	}
	return entries, nil
}

// SaveConfigFile writes rule entries to the flat config file, creating parent
// directories as needed. Incomplete entries are dropped.
func SaveConfigFile(path string, entries []ConfigEntry) error {
	output := make([]ConfigEntry, 0, len(entries))
	for _, item := range entries {
		normalized := normalizeEntry(item)
		if normalized.complete() {
			output = append(output, normalized)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create rules config directory: %w", err)
	}
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode rules config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write rules config: %w", err)
	}
	return nil
}
