package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// CategoryResolver validates category names against the category table,
// optionally creating missing ones. Implemented by the categories domain.
type CategoryResolver interface {
	Resolve(ctx context.Context, name string, createIfMissing bool) (string, error)
}

// Service exposes rule management on top of the repository: validated CRUD,
// default seeding, and flat-file export/load.
type Service struct {
	repo       *Repository
	categories CategoryResolver
	configPath string
	logger     *slog.Logger
}

// NewService creates a new rules service
func NewService(repo *Repository, categories CategoryResolver, configPath string, logger *slog.Logger) *Service {
	return &Service{repo: repo, categories: categories, configPath: configPath, logger: logger}
}

// LoadActiveSnapshot returns the current evaluation-ordered rule snapshot.
func (s *Service) LoadActiveSnapshot(ctx context.Context) (Snapshot, error) {
	return s.repo.LoadActiveSnapshot(ctx)
}

// List returns rules filtered by optional kind name and active flag.
func (s *Service) List(ctx context.Context, kindName *string, isActive *bool) ([]*Rule, error) {
	var kind *Kind
	if kindName != nil {
		parsed, err := ParseKind(*kindName)
		if err != nil {
			return nil, err
		}
		kind = &parsed
	}
	return s.repo.List(ctx, kind, isActive)
}

// CreateInput carries the fields for a new rule.
type CreateInput struct {
	RuleType   string
	Pattern    string
	Category   string
	Confidence float64
	Priority   int
	IsActive   bool
}

// Create validates and stores a new rule. The category is created when it
// does not exist yet.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Rule, error) {
	kind, err := ParseKind(input.RuleType)
	if err != nil {
		return nil, err
	}
	category, err := s.categories.Resolve(ctx, input.Category, true)
	if err != nil {
		return nil, err
	}

	rule := &Rule{
		Kind:       kind,
		Pattern:    strings.ToLower(strings.TrimSpace(input.Pattern)),
		Category:   category,
		Confidence: input.Confidence,
		Priority:   input.Priority,
		IsActive:   input.IsActive,
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// UpdateInput carries optional patches for an existing rule.
type UpdateInput struct {
	RuleType   *string
	Pattern    *string
	Category   *string
	Confidence *float64
	Priority   *int
	IsActive   *bool
}

// Update applies a partial update to an existing rule.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Rule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.RuleType != nil {
		kind, err := ParseKind(*input.RuleType)
		if err != nil {
			return nil, err
		}
		rule.Kind = kind
	}
	if input.Pattern != nil {
		rule.Pattern = strings.ToLower(strings.TrimSpace(*input.Pattern))
	}
	if input.Category != nil {
		category, err := s.categories.Resolve(ctx, *input.Category, true)
		if err != nil {
			return nil, err
		}
		rule.Category = category
	}
	if input.Confidence != nil {
		rule.Confidence = *input.Confidence
	}
	if input.Priority != nil {
		rule.Priority = *input.Priority
	}
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}

	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Delete removes a rule by id.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// SaveConfig exports all rules, in evaluation order, to the flat config file.
func (s *Service) SaveConfig(ctx context.Context) (string, int, error) {
	all, err := s.repo.List(ctx, nil, nil)
	if err != nil {
		return "", 0, err
	}
	entries := make([]ConfigEntry, 0, len(all))
	for _, rule := range all {
		entries = append(entries, ConfigEntry{
			RuleType:   rule.Kind.String(),
			Pattern:    rule.Pattern,
			Category:   rule.Category,
			Confidence: rule.Confidence,
			Priority:   rule.Priority,
			IsActive:   flexBool(rule.IsActive),
		})
	}
	if err := SaveConfigFile(s.configPath, entries); err != nil {
		return "", 0, err
	}
	return s.configPath, len(entries), nil
}

// LoadConfig imports rules from the flat config file, optionally replacing
// the existing rule set.
func (s *Service) LoadConfig(ctx context.Context, replaceExisting bool) (int, error) {
	entries, err := LoadConfigFile(s.configPath)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("no valid rules found in config file at %s", s.configPath)
	}

	if replaceExisting {
		if err := s.repo.DeleteAll(ctx); err != nil {
			return 0, err
		}
	}

	loaded := 0
	for _, entry := range entries {
		if _, err := s.Create(ctx, CreateInput{
			RuleType:   entry.RuleType,
			Pattern:    entry.Pattern,
			Category:   entry.Category,
			Confidence: entry.Confidence,
			Priority:   entry.Priority,
			IsActive:   bool(entry.IsActive),
		}); err != nil {
			return loaded, fmt.Errorf("failed to load rule %q: %w", entry.Pattern, err)
		}
		loaded++
	}
	return loaded, nil
}

// SeedDefaults populates the rule table when it is empty, preferring the
// config file over the built-in seed set. When the builtin set is used it is
// also written back to the config file as the initial export.
func (s *Service) SeedDefaults(ctx context.Context) error {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	entries, err := LoadConfigFile(s.configPath)
	if err != nil {
		s.logger.Warn("failed to read rules config, falling back to builtin seeds", slog.Any("error", err))
		entries = nil
	}
	fromBuiltin := false
	if len(entries) == 0 {
		entries = defaultSeeds
		fromBuiltin = true
	}

	for _, entry := range entries {
		if _, err := s.Create(ctx, CreateInput{
			RuleType:   entry.RuleType,
			Pattern:    entry.Pattern,
			Category:   entry.Category,
			Confidence: entry.Confidence,
			Priority:   entry.Priority,
			IsActive:   bool(entry.IsActive),
		}); err != nil {
			return fmt.Errorf("failed to seed rule %q: %w", entry.Pattern, err)
		}
	}

	if fromBuiltin {
		if err := SaveConfigFile(s.configPath, entries); err != nil {
			s.logger.Warn("failed to write initial rules config", slog.Any("error", err))
		}
	}
	s.logger.Info("seeded classification rules", slog.Int("count", len(entries)), slog.Bool("builtin", fromBuiltin))
	return nil
}
