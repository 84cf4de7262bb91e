package categories

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "already normalized", input: "eating_out", want: "eating_out"},
		{name: "mixed case and spaces", input: "  Eating Out  ", want: "eating_out"},
		{name: "punctuation becomes underscores", input: "Rent/Mortgage & Fees", want: "rent_mortgage_fees"},
		{name: "repeated separators collapse", input: "a---b___c", want: "a_b_c"},
		{name: "leading and trailing underscores trimmed", input: "_travel_", want: "travel"},
		{name: "only punctuation is rejected", input: "!!!", wantErr: true},
		{name: "empty is rejected", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeNameCapsLength(t *testing.T) {
	got, err := NormalizeName(strings.Repeat("a", 100))
	require.NoError(t, err)
	assert.Len(t, got, 64)
}

func TestRepositoryGetByName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	id := uuid.New()
	created := time.Now()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, name, created_at FROM categories WHERE name = \$1`).
			WithArgs("travel").
			WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at"}).AddRow(id, "travel", created))

		category, err := repo.GetByName(context.Background(), "travel")
		require.NoError(t, err)
		assert.Equal(t, id, category.ID)
		assert.Equal(t, "travel", category.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing translates to sql.ErrNoRows", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, name, created_at FROM categories WHERE name = \$1`).
			WithArgs("nope").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByName(context.Background(), "nope")
		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestServiceResolve(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	service := NewService(NewRepository(mock))
	id := uuid.New()
	created := time.Now()

	t.Run("existing category resolves without creation", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, name, created_at FROM categories WHERE name = \$1`).
			WithArgs("eating_out").
			WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at"}).AddRow(id, "eating_out", created))

		got, err := service.Resolve(context.Background(), "Eating Out", false)
		require.NoError(t, err)
		assert.Equal(t, "eating_out", got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing category without creation is an error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, name, created_at FROM categories WHERE name = \$1`).
			WithArgs("pets").
			WillReturnError(pgx.ErrNoRows)

		_, err := service.Resolve(context.Background(), "Pets", false)
		assert.ErrorIs(t, err, ErrUnknownCategory)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing category is created on request", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, name, created_at FROM categories WHERE name = \$1`).
			WithArgs("pets").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`INSERT INTO categories`).
			WithArgs(pgxmock.AnyArg(), "pets").
			WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at"}).AddRow(uuid.New(), "pets", created))

		got, err := service.Resolve(context.Background(), "Pets", true)
		require.NoError(t, err)
		assert.Equal(t, "pets", got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
