package api

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spendlens/spendlens/internal/domain/categories"
	"github.com/spendlens/spendlens/internal/domain/transactions"
	"github.com/spendlens/spendlens/pkg/middleware"
)

// TransactionsHandler serves the ledger endpoints.
type TransactionsHandler struct {
	svc *transactions.Service
}

// NewTransactionsHandler creates a new transactions handler
func NewTransactionsHandler(svc *transactions.Service) *TransactionsHandler {
	return &TransactionsHandler{svc: svc}
}

// List returns the caller's transactions.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	startDate, err := queryDate(r, "start_date")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	endDate, err := queryDate(r, "end_date")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.svc.List(r.Context(), userID, transactions.ListFilter{
		StartDate: startDate,
		EndDate:   endDate,
		Category:  r.URL.Query().Get("category"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if rows == nil {
		rows = []*transactions.Transaction{}
	}
	respondJSON(w, http.StatusOK, rows)
}

type manualTransactionRequest struct {
	TransactionDate *string         `json:"transaction_date"`
	DescriptionRaw  string          `json:"description_raw"`
	Merchant        string          `json:"merchant_normalized"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Direction       string          `json:"direction"`
	Category        string          `json:"category"`
}

// CreateManual stores an ad-hoc transaction entry.
func (h *TransactionsHandler) CreateManual(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	var req manualTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var txnDate *time.Time
	if req.TransactionDate != nil && *req.TransactionDate != "" {
		parsed, err := time.Parse("2006-01-02", *req.TransactionDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "transaction_date must be formatted as YYYY-MM-DD")
			return
		}
		txnDate = &parsed
	}

	txn, err := h.svc.CreateManual(r.Context(), userID, transactions.CreateManualInput{
		TransactionDate: txnDate,
		DescriptionRaw:  req.DescriptionRaw,
		Merchant:        req.Merchant,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Direction:       req.Direction,
		Category:        req.Category,
	})
	var dup *transactions.DuplicateError
	switch {
	case errors.As(err, &dup):
		respondError(w, http.StatusConflict, dup.Error())
	case errors.Is(err, categories.ErrUnknownCategory):
		respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondJSON(w, http.StatusCreated, txn)
	}
}

type categoryUpdateRequest struct {
	Category string `json:"category"`
}

// UpdateCategory reassigns one transaction's category.
func (h *TransactionsHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req categoryUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	txn, err := h.svc.UpdateCategory(r.Context(), userID, id, req.Category)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, categories.ErrUnknownCategory):
		respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to update transaction")
	default:
		respondJSON(w, http.StatusOK, txn)
	}
}

type recategorizeRequest struct {
	StartDate           *string `json:"start_date"`
	EndDate             *string `json:"end_date"`
	Category            string  `json:"category"`
	IncludeUserAssigned bool    `json:"include_user_assigned"`
}

// Recategorize re-runs the rule engine over selected transactions.
func (h *TransactionsHandler) Recategorize(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	var req recategorizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	parseOptionalDate := func(raw *string) (*time.Time, bool) {
		if raw == nil || *raw == "" {
			return nil, true
		}
		parsed, err := time.Parse("2006-01-02", *raw)
		if err != nil {
			return nil, false
		}
		return &parsed, true
	}
	startDate, ok := parseOptionalDate(req.StartDate)
	if !ok {
		respondError(w, http.StatusBadRequest, "start_date must be formatted as YYYY-MM-DD")
		return
	}
	endDate, ok := parseOptionalDate(req.EndDate)
	if !ok {
		respondError(w, http.StatusBadRequest, "end_date must be formatted as YYYY-MM-DD")
		return
	}

	result, err := h.svc.Recategorize(r.Context(), userID, transactions.RecategorizeInput{
		StartDate:           startDate,
		EndDate:             endDate,
		Category:            req.Category,
		IncludeUserAssigned: req.IncludeUserAssigned,
	})
	switch {
	case errors.Is(err, transactions.ErrNoActiveRules):
		respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to recategorize transactions")
	default:
		respondJSON(w, http.StatusOK, result)
	}
}

// SpendByCategory returns debit totals grouped by category.
func (h *TransactionsHandler) SpendByCategory(w http.ResponseWriter, r *http.Request) {
	h.spend(w, r, func(userID *string, start, end *time.Time) (any, error) {
		rows, err := h.svc.SpendByCategory(r.Context(), userID, start, end)
		if rows == nil {
			rows = []transactions.CategorySpend{}
		}
		return rows, err
	})
}

// SpendByMerchant returns debit totals grouped by merchant.
func (h *TransactionsHandler) SpendByMerchant(w http.ResponseWriter, r *http.Request) {
	h.spend(w, r, func(userID *string, start, end *time.Time) (any, error) {
		rows, err := h.svc.SpendByMerchant(r.Context(), userID, start, end)
		if rows == nil {
			rows = []transactions.MerchantSpend{}
		}
		return rows, err
	})
}

func (h *TransactionsHandler) spend(w http.ResponseWriter, r *http.Request, query func(userID *string, start, end *time.Time) (any, error)) {
	userID := middleware.UserIDFrom(r.Context())

	startDate, err := queryDate(r, "start_date")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	endDate, err := queryDate(r, "end_date")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := query(userID, startDate, endDate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to aggregate spend")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}
