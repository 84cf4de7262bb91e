package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/spendlens/spendlens/internal/domain/reviews"
	"github.com/spendlens/spendlens/pkg/middleware"
)

// ReviewsHandler serves the duplicate review queue endpoints.
type ReviewsHandler struct {
	svc *reviews.Service
}

// NewReviewsHandler creates a new reviews handler
func NewReviewsHandler(svc *reviews.Service) *ReviewsHandler {
	return &ReviewsHandler{svc: svc}
}

// List returns staged duplicate reviews.
func (h *ReviewsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	filter := reviews.ListFilter{Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("import_id"); raw != "" {
		importID, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid import_id")
			return
		}
		filter.ImportID = &importID
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", 200); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.svc.List(r.Context(), userID, filter)
	if errors.Is(err, reviews.ErrUnknownStatus) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list duplicate reviews")
		return
	}
	if rows == nil {
		rows = []*reviews.Review{}
	}
	respondJSON(w, http.StatusOK, rows)
}

type reviewUpdateRequest struct {
	Status     string  `json:"status"`
	ReviewNote *string `json:"review_note"`
}

// Update annotates a review without resolving it.
func (h *ReviewsHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid review id")
		return
	}

	var req reviewUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	review, err := h.svc.UpdateStatus(r.Context(), userID, id, req.Status, req.ReviewNote)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusNotFound, "duplicate review not found")
	case errors.Is(err, reviews.ErrUnknownStatus):
		respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to update duplicate review")
	default:
		respondJSON(w, http.StatusOK, review)
	}
}

type reviewResolveRequest struct {
	Action string `json:"action"`
}

// Resolve applies one action to a pending review.
func (h *ReviewsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid review id")
		return
	}

	var req reviewResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Resolve(r.Context(), userID, id, req.Action)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusNotFound, "duplicate review not found")
	case errors.Is(err, reviews.ErrNotPending):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, reviews.ErrUnknownAction):
		respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to resolve duplicate review")
	default:
		respondJSON(w, http.StatusOK, result)
	}
}

type bulkResolveRequest struct {
	ReviewIDs            []uuid.UUID `json:"review_ids"`
	Action               string      `json:"action"`
	Confirm              bool        `json:"confirm"`
	ExpectedPendingCount int         `json:"expected_pending_count"`
}

// BulkResolve applies one action across a set of reviews.
func (h *ReviewsHandler) BulkResolve(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	var req bulkResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.BulkResolve(r.Context(), userID, reviews.BulkResolveInput{
		ReviewIDs:            req.ReviewIDs,
		Action:               req.Action,
		Confirm:              req.Confirm,
		ExpectedPendingCount: req.ExpectedPendingCount,
	})
	switch {
	case errors.Is(err, reviews.ErrConfirmRequired),
		errors.Is(err, reviews.ErrBatchTooLarge),
		errors.Is(err, reviews.ErrUnknownAction):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reviews.ErrCountMismatch):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to bulk resolve duplicate reviews")
	default:
		respondJSON(w, http.StatusOK, result)
	}
}
