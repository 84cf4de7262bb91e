package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spendlens/spendlens/pkg/db"
)

// Repository persists classification rules in PostgreSQL.
type Repository struct {
	db db.Querier
}

// NewRepository creates a new rules repository
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

const ruleColumns = `id, rule_type, pattern, category, confidence, priority, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*Rule, error) {
	var r Rule
	var kindName string
	err := row.Scan(&r.ID, &kindName, &r.Pattern, &r.Category, &r.Confidence,
		&r.Priority, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	kind, err := ParseKind(kindName)
	if err != nil {
		return nil, fmt.Errorf("stored rule %s has invalid type: %w", r.ID, err)
	}
	r.Kind = kind
	return &r, nil
}

// LoadActiveSnapshot returns an immutable snapshot of the active rules in
// evaluation order.
func (r *Repository) LoadActiveSnapshot(ctx context.Context) (Snapshot, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM classification_rules
		WHERE is_active = TRUE
		ORDER BY priority ASC, created_at ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load active rules: %w", err)
	}
	defer rows.Close()

	var loaded []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to scan rule: %w", err)
		}
		loaded = append(loaded, *rule)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to read rules: %w", err)
	}
	return NewSnapshot(loaded), nil
}

// List returns rules with optional kind/active filters, in evaluation order.
func (r *Repository) List(ctx context.Context, kind *Kind, isActive *bool) ([]*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM classification_rules`
	var args []any
	clause := " WHERE"
	if kind != nil {
		args = append(args, kind.String())
		query += fmt.Sprintf("%s rule_type = $%d", clause, len(args))
		clause = " AND"
	}
	if isActive != nil {
		args = append(args, *isActive)
		query += fmt.Sprintf("%s is_active = $%d", clause, len(args))
	}
	query += ` ORDER BY priority ASC, created_at ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var result []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

// GetByID retrieves a rule by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM classification_rules WHERE id = $1`
	rule, err := scanRule(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// Create inserts a new rule
func (r *Repository) Create(ctx context.Context, rule *Rule) error {
	query := `
		INSERT INTO classification_rules (id, rule_type, pattern, category, confidence, priority, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, query,
		rule.ID, rule.Kind.String(), rule.Pattern, rule.Category,
		rule.Confidence, rule.Priority, rule.IsActive,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// Update rewrites an existing rule
func (r *Repository) Update(ctx context.Context, rule *Rule) error {
	query := `
		UPDATE classification_rules
		SET rule_type = $2, pattern = $3, category = $4, confidence = $5, priority = $6, is_active = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		rule.ID, rule.Kind.String(), rule.Pattern, rule.Category,
		rule.Confidence, rule.Priority, rule.IsActive,
	).Scan(&rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return sql.ErrNoRows
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

// Delete removes a rule
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM classification_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Count returns the total number of stored rules.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM classification_rules`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return count, nil
}

// DeleteAll clears the rule table. Used by config load with replace_existing.
func (r *Repository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM classification_rules`); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}
	return nil
}
