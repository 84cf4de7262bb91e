// Package categories manages the spending category reference table.
package categories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spendlens/spendlens/pkg/db"
)

// DefaultCategories is the seed set installed on first startup.
var DefaultCategories = []string{
	"groceries_indian",
	"groceries_other",
	"eating_out",
	"merchandise_shopping",
	"subscriptions",
	"travel",
	"transportation",
	"utilities",
	"rent_or_mortgage",
	"insurance",
	"healthcare",
	"entertainment",
	"education",
	"transfers",
	"uncategorized",
}

// Category is one spending category.
type Category struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// ErrUnknownCategory is returned by Resolve when the category does not exist
// and creation was not requested.
var ErrUnknownCategory = errors.New("category does not exist")

var nonNameChars = regexp.MustCompile(`[^a-z0-9_]+`)
var repeatedUnderscore = regexp.MustCompile(`_+`)

// NormalizeName canonicalizes a category name to lower-case snake form capped
// at 64 characters.
func NormalizeName(name string) (string, error) {
	normalized := nonNameChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	normalized = strings.Trim(repeatedUnderscore.ReplaceAllString(normalized, "_"), "_")
	if normalized == "" {
		return "", errors.New("category name must contain letters or numbers")
	}
	if len(normalized) > 64 {
		normalized = normalized[:64]
	}
	return normalized, nil
}

// Repository persists categories in PostgreSQL.
type Repository struct {
	db db.Querier
}

// NewRepository creates a new categories repository
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// List returns all categories ordered by name.
func (r *Repository) List(ctx context.Context) ([]*Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, created_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var result []*Category
	for rows.Next() {
		c := &Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// GetByName returns the category with the given normalized name.
func (r *Repository) GetByName(ctx context.Context, name string) (*Category, error) {
	c := &Category{}
	err := r.db.QueryRow(ctx, `SELECT id, name, created_at FROM categories WHERE name = $1`, name).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

// Create inserts a category, returning the existing row when the name is
// already taken.
func (r *Repository) Create(ctx context.Context, name string) (*Category, error) {
	c := &Category{ID: uuid.New(), Name: name}
	query := `
		INSERT INTO categories (id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at`
	err := r.db.QueryRow(ctx, query, c.ID, name).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return c, nil
}

// Service wraps the repository with name normalization and seeding.
type Service struct {
	repo *Repository
}

// NewService creates a new categories service
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// List returns all categories.
func (s *Service) List(ctx context.Context) ([]*Category, error) {
	return s.repo.List(ctx)
}

// Create normalizes and stores a category name.
func (s *Service) Create(ctx context.Context, name string) (*Category, error) {
	normalized, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, normalized)
}

// Resolve normalizes a category name and verifies it exists, optionally
// creating it. Satisfies rules.CategoryResolver.
func (s *Service) Resolve(ctx context.Context, name string, createIfMissing bool) (string, error) {
	normalized, err := NormalizeName(name)
	if err != nil {
		return "", err
	}
	if _, err := s.repo.GetByName(ctx, normalized); err == nil {
		return normalized, nil
	} else if !db.IsNoRows(err) {
		return "", err
	}
	if !createIfMissing {
		return "", fmt.Errorf("%w: %s", ErrUnknownCategory, normalized)
	}
	if _, err := s.repo.Create(ctx, normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// SeedDefaults installs the default category set, skipping names that exist.
func (s *Service) SeedDefaults(ctx context.Context) error {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		present[c.Name] = struct{}{}
	}
	for _, name := range DefaultCategories {
		if _, ok := present[name]; ok {
			continue
		}
		if _, err := s.repo.Create(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
