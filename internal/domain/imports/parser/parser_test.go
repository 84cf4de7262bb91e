package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRowSplitColumns(t *testing.T) {
	tests := []struct {
		name          string
		row           Row
		wantDirection string
		wantAmount    string
	}{
		{
			name:          "debit only",
			row:           Row{Date: "2024-01-15", Description: "Coffee", Debit: "4.50"},
			wantDirection: DirectionDebit,
			wantAmount:    "4.5",
		},
		{
			name:          "credit only",
			row:           Row{Date: "2024-01-15", Description: "Salary", Credit: "2500.00"},
			wantDirection: DirectionCredit,
			wantAmount:    "2500",
		},
		{
			name:          "withdrawal alias maps to debit",
			row:           Row{Date: "2024-01-15", Description: "ATM", Withdrawal: "100"},
			wantDirection: DirectionDebit,
			wantAmount:    "100",
		},
		{
			name:          "deposit alias maps to credit",
			row:           Row{Date: "2024-01-15", Description: "Refund", Deposit: "19.99"},
			wantDirection: DirectionCredit,
			wantAmount:    "19.99",
		},
		{
			name:          "negative debit keeps magnitude",
			row:           Row{Date: "2024-01-15", Description: "Coffee", Debit: "-4.50"},
			wantDirection: DirectionDebit,
			wantAmount:    "4.5",
		},
		{
			name:          "zero debit falls through to credit",
			row:           Row{Date: "2024-01-15", Description: "Pay", Debit: "0.00", Credit: "10.00"},
			wantDirection: DirectionCredit,
			wantAmount:    "10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate, err := ParseRow(tt.row, 1)
			require.NoError(t, err)
			require.NotNil(t, candidate)
			assert.Equal(t, tt.wantDirection, candidate.Direction)
			assert.True(t, candidate.Amount.Equal(decimal.RequireFromString(tt.wantAmount)),
				"amount = %s, want %s", candidate.Amount, tt.wantAmount)
		})
	}
}

func TestParseRowBothColumnsPopulatedIsError(t *testing.T) {
	row := Row{Date: "2024-01-15", Description: "Bad row", Debit: "10.00", Credit: "5.00"}

	candidate, err := ParseRow(row, 7)
	assert.Nil(t, candidate)
	require.Error(t, err)

	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 7, rowErr.RowNumber)
}

func TestParseRowSingleAmountColumn(t *testing.T) {
	t.Run("negative amount is a debit", func(t *testing.T) {
		candidate, err := ParseRow(Row{Date: "2024-01-15", Description: "Store", Amount: "-42.10"}, 1)
		require.NoError(t, err)
		require.NotNil(t, candidate)
		assert.Equal(t, DirectionDebit, candidate.Direction)
		assert.True(t, candidate.Amount.Equal(decimal.RequireFromString("42.10")))
	})

	t.Run("positive amount is a credit", func(t *testing.T) {
		candidate, err := ParseRow(Row{Date: "2024-01-15", Description: "Payroll", Amount: "1000"}, 1)
		require.NoError(t, err)
		require.NotNil(t, candidate)
		assert.Equal(t, DirectionCredit, candidate.Direction)
	})

	t.Run("zero amount is a credit", func(t *testing.T) {
		candidate, err := ParseRow(Row{Date: "2024-01-15", Description: "Nothing", Amount: "0.00"}, 1)
		require.NoError(t, err)
		require.NotNil(t, candidate)
		assert.Equal(t, DirectionCredit, candidate.Direction)
	})

	t.Run("missing amount skips the row", func(t *testing.T) {
		candidate, err := ParseRow(Row{Date: "2024-01-15", Description: "No amount"}, 1)
		assert.NoError(t, err)
		assert.Nil(t, candidate)
	})

	t.Run("unparseable amount skips the row", func(t *testing.T) {
		candidate, err := ParseRow(Row{Date: "2024-01-15", Description: "Junk", Amount: "n/a"}, 1)
		assert.NoError(t, err)
		assert.Nil(t, candidate)
	})
}

func TestParseRowAmountCleaning(t *testing.T) {
	tests := []struct {
		raw           string
		wantAmount    string
		wantDirection string
	}{
		{"$1,234.56", "1234.56", DirectionCredit},
		{"($45.00)", "45", DirectionDebit},
		{" -3.99 ", "3.99", DirectionDebit},
		{"£20.00", "20", DirectionCredit},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			candidate, err := ParseRow(Row{Date: "2024-01-15", Description: "x", Amount: tt.raw}, 1)
			require.NoError(t, err)
			require.NotNil(t, candidate)
			assert.Equal(t, tt.wantDirection, candidate.Direction)
			assert.True(t, candidate.Amount.Equal(decimal.RequireFromString(tt.wantAmount)),
				"amount = %s, want %s", candidate.Amount, tt.wantAmount)
		})
	}
}

func TestParseRowDates(t *testing.T) {
	t.Run("iso date", func(t *testing.T) {
		candidate, err := ParseRow(Row{Date: "2024-03-09", Description: "x", Amount: "1"}, 1)
		require.NoError(t, err)
		require.NotNil(t, candidate.Date)
		assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), *candidate.Date)
	})

	t.Run("slash date prefers month first", func(t *testing.T) {
		candidate, err := ParseRow(Row{Date: "03/04/2024", Description: "x", Amount: "1"}, 1)
		require.NoError(t, err)
		require.NotNil(t, candidate.Date)
		assert.Equal(t, time.March, candidate.Date.Month())
		assert.Equal(t, 4, candidate.Date.Day())
	})

	t.Run("unparseable date yields nil without failing the row", func(t *testing.T) {
		candidate, err := ParseRow(Row{Date: "not a date", Description: "x", Amount: "1"}, 1)
		require.NoError(t, err)
		require.NotNil(t, candidate)
		assert.Nil(t, candidate.Date)
	})

	t.Run("posted date alias is honored", func(t *testing.T) {
		candidate, err := ParseRow(Row{PostedDate: "2024-03-09", Description: "x", Amount: "1"}, 1)
		require.NoError(t, err)
		require.NotNil(t, candidate.Date)
	})
}

func TestMerchantFromDescription(t *testing.T) {
	assert.Equal(t, "unknown", MerchantFromDescription(""))
	assert.Equal(t, "unknown", MerchantFromDescription("   "))
	assert.Equal(t, "STARBUCKS STORE 123", MerchantFromDescription("  STARBUCKS   STORE  123 "))

	long := strings.Repeat("a", 150)
	assert.Len(t, MerchantFromDescription(long), 100)
}

func TestParseRowDefaults(t *testing.T) {
	candidate, err := ParseRow(Row{Date: "2024-01-15", Amount: "-5.00"}, 1)
	require.NoError(t, err)
	require.NotNil(t, candidate)
	assert.Equal(t, "unknown transaction", candidate.DescriptionRaw)
	assert.Equal(t, "unknown", candidate.Merchant)
	assert.Equal(t, DefaultCurrency, candidate.Currency)
}

func TestDecode(t *testing.T) {
	t.Run("header aliases are case-insensitive", func(t *testing.T) {
		csv := "Transaction Date,Memo,Transaction Amount\n2024-01-15,Coffee shop,-4.50\n"
		rows, err := Decode(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, rows, 1)

		candidate, err := ParseRow(rows[0], 1)
		require.NoError(t, err)
		require.NotNil(t, candidate)
		assert.Equal(t, "Coffee shop", candidate.DescriptionRaw)
		assert.Equal(t, DirectionDebit, candidate.Direction)
	})

	t.Run("utf-8 BOM is stripped", func(t *testing.T) {
		csv := "\xEF\xBB\xBFdate,description,amount\n2024-01-15,Coffee,-4.50\n"
		rows, err := Decode(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "2024-01-15", rows[0].Date)
	})

	t.Run("unknown columns are ignored", func(t *testing.T) {
		csv := "date,description,amount,balance\n2024-01-15,Coffee,-4.50,123.00\n"
		rows, err := Decode(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, rows, 1)
	})
}
