// Package parser turns raw statement CSV rows into normalized transaction
// candidates. It uses gocsv for header-based unmarshaling and tolerates the
// column-name variations of common bank export formats.
package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// Transaction directions. Debit is money out, credit is money in.
const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)

// DefaultCurrency is assumed when the export carries no currency column.
const DefaultCurrency = "USD"

// merchantMaxLen caps the normalized merchant name.
const merchantMaxLen = 100

func init() {
	gocsv.SetHeaderNormalizer(func(header string) string {
		return strings.ToLower(strings.TrimSpace(header))
	})
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.LazyQuotes = true
		r.TrimLeadingSpace = true
		r.FieldsPerRecord = -1
		return r
	})
}

// Row is one raw CSV record. Each logical field carries one struct member per
// known header alias; resolution picks the first populated one.
type Row struct {
	// Date aliases
	Date        string `csv:"date"`
	TxnDate     string `csv:"transaction date"`
	PostedDate  string `csv:"posted date"`
	PostingDate string `csv:"posting date"`

	// Description aliases
	Description string `csv:"description"`
	Memo        string `csv:"memo"`
	Merchant    string `csv:"merchant"`
	Name        string `csv:"name"`
	Details     string `csv:"details"`

	// Source-category aliases
	Category string `csv:"category"`
	Type     string `csv:"type"`
	TxnType  string `csv:"transaction type"`

	// Single signed amount aliases
	Amount    string `csv:"amount"`
	TxnAmount string `csv:"transaction amount"`

	// Split debit/credit aliases
	Debit      string `csv:"debit"`
	Withdrawal string `csv:"withdrawal"`
	Credit     string `csv:"credit"`
	Deposit    string `csv:"deposit"`
}

// Candidate is the normalized output of parsing one row, before
// classification and fingerprinting.
type Candidate struct {
	Date           *time.Time // nil when absent or unparseable
	DescriptionRaw string
	Merchant       string
	SourceCategory string
	Amount         decimal.Decimal // always non-negative
	Currency       string
	Direction      string
}

// RowError marks a row whose format is invalid, as opposed to one that is
// merely skippable.
type RowError struct {
	RowNumber int
	Message   string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.RowNumber, e.Message)
}

// Decode reads all records from a statement CSV. A UTF-8 byte-order mark is
// stripped before the header is read.
func Decode(reader io.Reader) ([]Row, error) {
	var rows []Row
	if err := gocsv.Unmarshal(stripBOM(reader), &rows); err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	return rows, nil
}

// ParseRow normalizes one record. Returns (nil, nil) when the row should be
// skipped (no usable amount), a *RowError when the row format is invalid, and
// a Candidate otherwise. rowNum is 1-based over data rows.
func ParseRow(row Row, rowNum int) (*Candidate, error) {
	dateStr := coalesce(row.Date, row.TxnDate, row.PostedDate, row.PostingDate)
	description := coalesce(row.Description, row.Memo, row.Merchant, row.Name, row.Details)
	sourceCategory := coalesce(row.Category, row.Type, row.TxnType)
	amountRaw := coalesce(row.Amount, row.TxnAmount)
	debitRaw := coalesce(row.Debit, row.Withdrawal)
	creditRaw := coalesce(row.Credit, row.Deposit)

	txnDate := parseDate(dateStr)

	debitAmount, hasDebit := parseAmount(debitRaw)
	creditAmount, hasCredit := parseAmount(creditRaw)
	debitPopulated := hasDebit && !debitAmount.IsZero()
	creditPopulated := hasCredit && !creditAmount.IsZero()

	var amount decimal.Decimal
	var direction string
	switch {
	case debitPopulated && !creditPopulated:
		amount = debitAmount.Abs()
		direction = DirectionDebit
	case creditPopulated && !debitPopulated:
		amount = creditAmount.Abs()
		direction = DirectionCredit
	case debitPopulated && creditPopulated:
		return nil, &RowError{RowNumber: rowNum, Message: "both debit and credit columns are populated"}
	default:
		parsed, ok := parseAmount(amountRaw)
		if !ok {
			return nil, nil
		}
		amount = parsed.Abs()
		if parsed.IsNegative() {
			direction = DirectionDebit
		} else {
			direction = DirectionCredit
		}
	}

	descriptionRaw := description
	if descriptionRaw == "" {
		descriptionRaw = "unknown transaction"
	}

	return &Candidate{
		Date:           txnDate,
		DescriptionRaw: descriptionRaw,
		Merchant:       MerchantFromDescription(description),
		SourceCategory: sourceCategory,
		Amount:         amount,
		Currency:       DefaultCurrency,
		Direction:      direction,
	}, nil
}

// MerchantFromDescription derives the normalized merchant name: collapsed
// whitespace, capped length, "unknown" when empty.
func MerchantFromDescription(description string) string {
	cleaned := strings.Join(strings.Fields(description), " ")
	if cleaned == "" {
		return "unknown"
	}
	if len(cleaned) > merchantMaxLen {
		cleaned = cleaned[:merchantMaxLen]
	}
	return cleaned
}

// dateFormats is ordered so month-first layouts win for ambiguous inputs.
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04",
}

// parseDate is permissive: unparseable input yields nil, never an error.
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, value); err == nil {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &day
		}
	}
	return nil
}

// parseAmount cleans currency symbols, thousands separators, and
// accounting-style parenthesized negatives, then parses the remainder.
func parseAmount(value string) (decimal.Decimal, bool) {
	cleaned := strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(value)
	cleaned = strings.TrimSpace(cleaned)
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + strings.Trim(cleaned, "()")
	}
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	parsed, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return parsed, true
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(r io.Reader) io.Reader {
	buffered := make([]byte, len(utf8BOM))
	n, _ := io.ReadFull(r, buffered)
	rest := buffered[:n]
	if bytes.Equal(rest, utf8BOM) {
		return r
	}
	return io.MultiReader(bytes.NewReader(rest), r)
}
